// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"context"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// Store is the part of the asset store protocol a sync run uses.
// assetclient.Client implements it.
type Store interface {
	List(ctx context.Context) ([]asset.AssetDetails, error)
	GetAssetProperties(ctx context.Context, key string) (asset.AssetProperties, error)

	CreateBatch(ctx context.Context) (asset.BatchID, error)
	CreateChunk(ctx context.Context, batchID asset.BatchID, content []byte) (asset.ChunkID, error)
	CommitBatch(ctx context.Context, batchID asset.BatchID, operations []asset.BatchOperation) error

	ProposeCommitBatch(ctx context.Context, batchID asset.BatchID, operations []asset.BatchOperation) error
	ComputeEvidence(ctx context.Context, batchID asset.BatchID, maxIterations uint16) (*asset.Hash, error)
	CommitProposedBatch(ctx context.Context, batchID asset.BatchID, evidence asset.Hash) error
}
