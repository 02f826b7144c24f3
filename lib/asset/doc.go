// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package asset defines the vocabulary shared by the asset store and
// the sync client: content encodings, batch operations, the tri-state
// property update, wire shapes for listings, the error taxonomy, and
// the evidence hasher.
//
// The evidence hasher lives here rather than in either side because
// both sides must produce byte-identical digests. The client hashes
// operations together with content it re-encodes from local files;
// the store hashes the same operations together with the uploaded
// chunk bytes. Any divergence between the two (an operation altered
// in transit, a chunk replaced, a content byte flipped) produces a
// different digest, and the client refuses to commit.
//
// # Operation order
//
// Operations have a canonical order (see [CanonicalOrder]): Clear,
// DeleteAsset, CreateAsset, UnsetAssetContent, SetAssetContent,
// SetAssetProperties, each group sorted by key and encoding. This is
// the order the diff engine emits, the order the store applies a
// proposed batch in, and the order evidence is computed over. Using
// one order for all three means the evidence digest is independent
// of the order in which assets were discovered, and a reordering of
// the proposal in transit changes nothing that is applied.
package asset
