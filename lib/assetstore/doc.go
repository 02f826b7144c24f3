// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetstore is the server side of the certified asset
// store.
//
// A [State] owns every piece of mutable store state: the committed
// assets, the staging area of batches and chunks, the certification
// tree, and the signed certificate over its root. Every exported
// method takes the state's lock, so the socket handlers and the HTTP
// gateway may call in concurrently while mutations stay serialised.
//
// Uploads are staged. A client creates a batch, uploads chunks into
// it, and then either commits a list of operations directly
// ([State.CommitBatch]) or proposes them ([State.ProposeCommitBatch]),
// drives [State.ComputeEvidence] until it yields a digest, compares
// that digest with its own, and commits only on an exact match
// ([State.CommitProposedBatch]). A commit applies its operations to a
// copy-on-write view of the assets and replaces the live view only if
// every operation succeeds, so a failed commit leaves the store
// exactly as it was.
//
// After every successful commit the certification tree is rebuilt
// from the assets and its root is signed, before the lock is
// released. No reader can observe new assets with an old root or the
// reverse.
//
// Batches expire after a TTL that is extended on every chunk upload,
// proposal, and evidence step. [State.Sweep] reclaims expired batches
// and their chunks; [State.RunMaintenance] calls it on a timer and
// also writes snapshots of the committed assets.
package assetstore
