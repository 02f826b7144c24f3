// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// forEachBounded calls work(i) for every i in [0, count) with at most
// limit calls in flight. The first error cancels the context passed
// to the remaining calls and is returned once every started call has
// finished.
func forEachBounded(ctx context.Context, limit, count int, work func(ctx context.Context, i int) error) error {
	if limit < 1 {
		limit = 1
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var waitGroup sync.WaitGroup
	semaphore := make(chan struct{}, limit)
	for i := range count {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			defer func() { <-semaphore }()
			if err := work(ctx, i); err != nil {
				cancel(err)
			}
		}()
	}
	waitGroup.Wait()
	return context.Cause(ctx)
}

// chunkUpload is one chunk of one SetAssetContent operation.
type chunkUpload struct {
	operation int
	index     int
	content   []byte
}

// upload stores the content of every SetAssetContent in operations
// into batchID and fills in their chunk IDs. content supplies the
// encoded bytes by key.
func (s *Syncer) upload(ctx context.Context, batchID asset.BatchID, operations []asset.BatchOperation, content map[string]LocalAsset) error {
	var pending []chunkUpload
	for i, operation := range operations {
		if operation.Kind() != asset.KindSetAssetContent {
			continue
		}
		arguments := operation.SetAssetContent
		encoded, ok := content[arguments.Key].Encoding(arguments.ContentEncoding)
		if !ok {
			return fmt.Errorf("no local content for %s", operation)
		}
		chunks := splitChunks(encoded.Data, s.chunkSize)
		arguments.ChunkIDs = make([]asset.ChunkID, len(chunks))
		for index, chunk := range chunks {
			pending = append(pending, chunkUpload{operation: i, index: index, content: chunk})
		}
	}

	// Each upload writes its own slot of a preallocated ChunkIDs
	// slice, so the workers share no mutable state.
	err := forEachBounded(ctx, s.concurrency, len(pending), func(ctx context.Context, i int) error {
		item := pending[i]
		chunkID, err := s.createChunk(ctx, batchID, item.content)
		if err != nil {
			return fmt.Errorf("uploading chunk %d of %s: %w", item.index, operations[item.operation], err)
		}
		operations[item.operation].SetAssetContent.ChunkIDs[item.index] = chunkID
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("chunks uploaded", "batch_id", batchID, "chunks", len(pending))
	return nil
}

// createChunk uploads one chunk, retrying transport failures with a
// doubling backoff. Errors the store classified are not retried: the
// same request would fail the same way.
func (s *Syncer) createChunk(ctx context.Context, batchID asset.BatchID, content []byte) (asset.ChunkID, error) {
	backoff := s.retryBackoff
	for attempt := 1; ; attempt++ {
		chunkID, err := s.store.CreateChunk(ctx, batchID, content)
		if err == nil {
			return chunkID, nil
		}
		if attempt >= s.retryAttempts || asset.KindOf(err) != asset.KindUnknown || ctx.Err() != nil {
			return 0, err
		}
		s.logger.Warn("chunk upload failed, retrying",
			"batch_id", batchID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.clock.After(backoff):
		}
		backoff *= 2
	}
}
