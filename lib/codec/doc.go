// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration used by certasset.
//
// Everything that crosses a process boundary is CBOR: the store's
// socket protocol, certification witnesses attached to HTTP
// responses, data certificates, and on-disk snapshots. All of them
// go through this package so that the same logical value always
// produces the same bytes (RFC 8949 §4.2 Core Deterministic
// Encoding). Deterministic output matters for witnesses in
// particular: a verifier hashes what it decodes, and two encoders
// disagreeing on map order would still verify, but would make
// witness bytes unstable across releases and impossible to diff.
//
// Struct types use cbor struct tags for protocol types and json tags
// for types also exposed as JSON; fxamacker/cbor falls back to json
// tags when no cbor tag is present.
package codec
