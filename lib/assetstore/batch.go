// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"time"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// batch is a staging area for chunks awaiting a commit.
type batch struct {
	id        asset.BatchID
	expiresAt time.Time
	chunks    map[asset.ChunkID]struct{}
	proposal  *proposal
}

// chunk is one uploaded slice of content.
type chunk struct {
	batch   asset.BatchID
	content []byte
}

// proposal is the operation list of a proposed batch together with
// the progress of its evidence computation.
type proposal struct {
	// operations are in canonical order.
	operations []asset.BatchOperation
	hasher     *asset.EvidenceHasher
	// nextOperation is the index of the operation being hashed.
	nextOperation int
	// nextChunk is the index of the next chunk of a SetAssetContent
	// operation to hash, or -1 before the operation has begun.
	nextChunk int
	evidence  *asset.Hash
}

// CreateBatch opens a new batch. It fails with a protocol error while
// another batch is proposed, and with a resource error at the batch
// limit.
func (s *State) CreateBatch() (asset.BatchID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.sweepLocked(now)

	for _, existing := range s.batches {
		if existing.proposal != nil {
			return 0, asset.Protocolf("batch %d is already proposed; commit or delete it first", existing.id)
		}
	}
	if s.limits.MaxBatches != nil && uint64(len(s.batches)) >= *s.limits.MaxBatches {
		return 0, asset.Resourcef("batch limit exceeded (%d)", *s.limits.MaxBatches)
	}

	id := s.nextBatchID
	s.nextBatchID++
	s.batches[id] = &batch{
		id:        id,
		expiresAt: now.Add(s.batchTTL),
		chunks:    make(map[asset.ChunkID]struct{}),
	}
	s.logger.Debug("batch created", "batch_id", id)
	return id, nil
}

// CreateChunk stores content in batchID and extends the batch's
// expiry.
func (s *State) CreateChunk(batchID asset.BatchID, content []byte) (asset.ChunkID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	target, err := s.liveBatch(batchID, now)
	if err != nil {
		return 0, err
	}
	if target.proposal != nil {
		return 0, asset.Protocolf("batch %d is proposed; no more chunks may be added", batchID)
	}
	if s.limits.MaxChunks != nil && uint64(len(s.chunks)) >= *s.limits.MaxChunks {
		return 0, asset.Resourcef("chunk limit exceeded (%d)", *s.limits.MaxChunks)
	}
	if s.limits.MaxBytes != nil && s.chunkSize+uint64(len(content)) > *s.limits.MaxBytes {
		return 0, asset.Resourcef("byte limit exceeded (%d)", *s.limits.MaxBytes)
	}

	id := s.nextChunkID
	s.nextChunkID++
	s.chunks[id] = &chunk{batch: batchID, content: content}
	s.chunkSize += uint64(len(content))
	target.chunks[id] = struct{}{}
	target.expiresAt = now.Add(s.batchTTL)
	return id, nil
}

// ProposeCommitBatch stages operations for an evidence-gated commit.
// Nothing is applied until CommitProposedBatch.
func (s *State) ProposeCommitBatch(batchID asset.BatchID, operations []asset.BatchOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	target, err := s.liveBatch(batchID, now)
	if err != nil {
		return err
	}
	if target.proposal != nil {
		return asset.Protocolf("batch %d is already proposed", batchID)
	}
	for _, other := range s.batches {
		if other.id != batchID && other.proposal != nil {
			return asset.Protocolf("batch %d is already proposed", other.id)
		}
	}
	if err := s.checkOperations(operations); err != nil {
		return err
	}

	target.proposal = &proposal{
		operations: asset.CanonicalOrder(operations),
		hasher:     asset.NewEvidenceHasher(),
		nextChunk:  -1,
	}
	target.expiresAt = now.Add(s.batchTTL)
	s.logger.Info("batch proposed", "batch_id", batchID, "operations", len(operations))
	return nil
}

// checkOperations validates operation shapes, rejects duplicates and
// checks that every referenced chunk exists.
func (s *State) checkOperations(operations []asset.BatchOperation) error {
	if err := asset.ValidateOperations(operations); err != nil {
		return err
	}
	for _, operation := range operations {
		if operation.Kind() != asset.KindSetAssetContent {
			continue
		}
		for _, chunkID := range operation.SetAssetContent.ChunkIDs {
			if _, exists := s.chunks[chunkID]; !exists {
				return asset.Consistencyf("%s: chunk %d not found", operation, chunkID)
			}
		}
	}
	return nil
}

// ComputeEvidence advances the evidence computation of a proposed
// batch by at most maxIterations steps (a step hashes one operation
// header or one chunk). It returns nil until the digest is complete,
// and the digest on that and every later call.
func (s *State) ComputeEvidence(batchID asset.BatchID, maxIterations uint16) (*asset.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	target, err := s.liveBatch(batchID, now)
	if err != nil {
		return nil, err
	}
	if target.proposal == nil {
		return nil, asset.Protocolf("batch %d has not been proposed", batchID)
	}
	target.expiresAt = now.Add(s.batchTTL)

	progress := target.proposal
	if progress.evidence != nil {
		return progress.evidence, nil
	}
	iterations := max(int(maxIterations), 1)
	for step := 0; step < iterations && progress.nextOperation < len(progress.operations); step++ {
		if err := s.evidenceStep(progress); err != nil {
			return nil, err
		}
	}
	if progress.nextOperation < len(progress.operations) {
		return nil, nil
	}

	digest := progress.hasher.Sum()
	progress.evidence = &digest
	s.logger.Info("evidence computed", "batch_id", batchID, "evidence", digest.String())
	return progress.evidence, nil
}

func (s *State) evidenceStep(progress *proposal) error {
	operation := progress.operations[progress.nextOperation]
	if operation.Kind() != asset.KindSetAssetContent {
		progress.hasher.BeginOperation(operation, 0)
		progress.hasher.EndOperation(operation)
		progress.nextOperation++
		return nil
	}

	chunkIDs := operation.SetAssetContent.ChunkIDs
	if progress.nextChunk < 0 {
		var length uint64
		for _, chunkID := range chunkIDs {
			stored, exists := s.chunks[chunkID]
			if !exists {
				return asset.Consistencyf("%s: chunk %d not found", operation, chunkID)
			}
			length += uint64(len(stored.content))
		}
		progress.hasher.BeginOperation(operation, length)
		progress.nextChunk = 0
		return nil
	}

	if progress.nextChunk < len(chunkIDs) {
		stored, exists := s.chunks[chunkIDs[progress.nextChunk]]
		if !exists {
			return asset.Consistencyf("%s: chunk %d not found", operation, chunkIDs[progress.nextChunk])
		}
		progress.hasher.Content(stored.content)
		progress.nextChunk++
	}
	if progress.nextChunk == len(chunkIDs) {
		progress.hasher.EndOperation(operation)
		progress.nextOperation++
		progress.nextChunk = -1
	}
	return nil
}

// CommitProposedBatch applies a proposed batch if evidence equals the
// digest the store computed. On mismatch nothing is applied and
// asset.ErrEvidenceMismatch is returned.
func (s *State) CommitProposedBatch(batchID asset.BatchID, evidence asset.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.liveBatch(batchID, s.clock.Now())
	if err != nil {
		return err
	}
	if target.proposal == nil {
		return asset.Protocolf("batch %d has not been proposed", batchID)
	}
	if target.proposal.evidence == nil {
		return asset.Protocolf("evidence for batch %d has not been computed", batchID)
	}
	if *target.proposal.evidence != evidence {
		s.logger.Warn("evidence mismatch",
			"batch_id", batchID,
			"expected", target.proposal.evidence.String(),
			"received", evidence.String(),
		)
		return asset.ErrEvidenceMismatch
	}
	return s.commitLocked(target, target.proposal.operations)
}

// CommitBatch applies operations directly, without evidence.
func (s *State) CommitBatch(batchID asset.BatchID, operations []asset.BatchOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.liveBatch(batchID, s.clock.Now())
	if err != nil {
		return err
	}
	if target.proposal != nil {
		return asset.Protocolf("batch %d is proposed; use commit_proposed_batch", batchID)
	}
	if err := s.checkOperations(operations); err != nil {
		return err
	}
	return s.commitLocked(target, asset.CanonicalOrder(operations))
}

// DeleteBatch discards a batch and its chunks.
func (s *State) DeleteBatch(batchID asset.BatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveBatch(batchID, s.clock.Now()); err != nil {
		return err
	}
	s.dropBatch(batchID)
	s.logger.Info("batch deleted", "batch_id", batchID)
	return nil
}

// commitLocked applies operations, which must already be in canonical
// order, and on success consumes the batch and republishes the
// certificate.
func (s *State) commitLocked(target *batch, operations []asset.BatchOperation) error {
	now := s.clock.Now()
	view := newWorkingView(s.assets)
	consumed := make(map[asset.ChunkID]struct{})
	for _, operation := range operations {
		if err := view.apply(operation, s.chunks, consumed, now); err != nil {
			s.logger.Info("batch commit failed", "batch_id", target.id, "operation", operation.String(), "error", err)
			return err
		}
	}

	s.assets = view.assets
	for chunkID := range consumed {
		s.removeChunk(chunkID)
	}
	s.dropBatch(target.id)
	s.committed[target.id] = now.Add(s.batchTTL)
	s.dirty = true
	s.recertify()

	s.logger.Info("batch committed",
		"batch_id", target.id,
		"operations", len(operations),
		"assets", len(s.assets),
		"root", s.tree.RootHash().String(),
	)
	return nil
}

// liveBatch returns batchID if it exists and has not expired. An
// expired batch is dropped on the spot.
func (s *State) liveBatch(batchID asset.BatchID, now time.Time) (*batch, error) {
	target, exists := s.batches[batchID]
	if exists && !now.Before(target.expiresAt) {
		s.dropBatch(batchID)
		exists = false
	}
	if exists {
		return target, nil
	}
	if until, committed := s.committed[batchID]; committed && now.Before(until) {
		return nil, asset.Protocolf("batch %d has already been committed", batchID)
	}
	return nil, asset.Consistencyf("batch %d not found or expired", batchID)
}

// dropBatch removes a batch and every chunk still attached to it.
func (s *State) dropBatch(batchID asset.BatchID) {
	target, exists := s.batches[batchID]
	if !exists {
		return
	}
	for chunkID := range target.chunks {
		s.removeChunk(chunkID)
	}
	delete(s.batches, batchID)
}

func (s *State) removeChunk(chunkID asset.ChunkID) {
	stored, exists := s.chunks[chunkID]
	if !exists {
		return
	}
	s.chunkSize -= uint64(len(stored.content))
	delete(s.chunks, chunkID)
	if owner, exists := s.batches[stored.batch]; exists {
		delete(owner.chunks, chunkID)
	}
}

// Sweep drops expired batches with their chunks and forgets expired
// commit records. It returns the number of batches dropped.
func (s *State) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.clock.Now())
}

func (s *State) sweepLocked(now time.Time) int {
	dropped := 0
	for id, existing := range s.batches {
		if !now.Before(existing.expiresAt) {
			s.dropBatch(id)
			dropped++
		}
	}
	for id, until := range s.committed {
		if !now.Before(until) {
			delete(s.committed, id)
		}
	}
	if dropped > 0 {
		s.logger.Info("expired batches swept", "count", dropped)
	}
	return dropped
}

// StagingUsage reports the number of live batches, chunks, and chunk
// bytes.
func (s *State) StagingUsage() (batches, chunks int, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches), len(s.chunks), s.chunkSize
}
