// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package certtree implements the labeled Merkle tree that certifies
// HTTP responses served by the asset store.
//
// A [HashTree] is the wire-level proof structure: Empty, Fork,
// Labeled, Leaf, and Pruned nodes, each with a domain-separated
// SHA-256 digest. A [NestedTree] is the mutable server-side index,
// keyed by path segments, from which the store derives its root hash
// and per-path witnesses. A witness is a HashTree in which every
// subtree irrelevant to the requested path has been replaced by a
// Pruned node carrying only its digest, so its digest equals the
// full tree's root hash.
//
// Verifiers reconstruct the root with [HashTree.Digest] and resolve
// a path with [Lookup]. Lookup distinguishes a proven absence (the
// neighbouring labels are revealed and nothing is pruned between
// them) from an unknown result (the path falls inside a pruned
// subtree).
//
// Trees travel as self-describing CBOR arrays:
//
//	[0]                  Empty
//	[1, left, right]     Fork
//	[2, label, subtree]  Labeled
//	[3, value]           Leaf
//	[4, digest]          Pruned
package certtree
