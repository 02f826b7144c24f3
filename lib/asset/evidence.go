// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"sort"
)

// ContentSource supplies the encoded bytes a SetAssetContent
// operation refers to. The client implements it by re-encoding the
// local file; the store by concatenating the referenced chunks.
type ContentSource interface {
	EncodedContent(key string, encoding ContentEncoding) ([]byte, error)
}

// EvidenceHasher folds a SHA-256 hasher over a sequence of operations
// and their content. The store drives it one step at a time (so a
// large batch is hashed across several bounded calls); the client
// drives it in one pass through [ComputeEvidence]. Both must feed
// operations in [CanonicalOrder].
//
// Each operation contributes a one-byte kind tag followed by its
// fields in a fixed order. Strings are length-prefixed, integers are
// 8-byte big-endian, optional values carry a presence byte, header
// maps are sorted by name. SetAssetContent contributes the content
// length and bytes in place of chunk IDs, which are an artifact of
// one particular upload.
type EvidenceHasher struct {
	hasher hash.Hash
}

// NewEvidenceHasher returns an empty hasher.
func NewEvidenceHasher() *EvidenceHasher {
	return &EvidenceHasher{hasher: sha256.New()}
}

// BeginOperation writes the tag and leading fields of operation. For
// SetAssetContent, contentLength is the total length of the content
// that will follow via Content; it is ignored for other kinds.
func (e *EvidenceHasher) BeginOperation(operation BatchOperation, contentLength uint64) {
	kind := operation.Kind()
	e.writeByte(byte(kind))

	switch kind {
	case KindCreateAsset:
		arguments := operation.CreateAsset
		e.writeString(arguments.Key)
		e.writeString(arguments.ContentType)
		e.writeOptionalUint64(arguments.MaxAge)
		e.writeOptionalHeaders(arguments.Headers)
		e.writeOptionalBool(arguments.EnableAliasing)
		e.writeOptionalBool(arguments.AllowRawAccess)

	case KindSetAssetContent:
		arguments := operation.SetAssetContent
		e.writeString(arguments.Key)
		e.writeString(arguments.ContentEncoding.String())
		e.writeUint64(contentLength)

	case KindUnsetAssetContent:
		arguments := operation.UnsetAssetContent
		e.writeString(arguments.Key)
		e.writeString(arguments.ContentEncoding.String())

	case KindDeleteAsset:
		e.writeString(operation.DeleteAsset.Key)

	case KindClear:

	case KindSetAssetProperties:
		arguments := operation.SetAssetProperties
		e.writeString(arguments.Key)
		e.writeByte(byte(arguments.MaxAge.Action))
		if arguments.MaxAge.Action == SetTo {
			e.writeUint64(arguments.MaxAge.Value)
		}
		e.writeByte(byte(arguments.Headers.Action))
		if arguments.Headers.Action == SetTo {
			e.writeHeaders(arguments.Headers.Value)
		}
		e.writeByte(byte(arguments.AllowRawAccess.Action))
		if arguments.AllowRawAccess.Action == SetTo {
			e.writeBool(arguments.AllowRawAccess.Value)
		}
		e.writeByte(byte(arguments.IsAliased.Action))
		if arguments.IsAliased.Action == SetTo {
			e.writeBool(arguments.IsAliased.Value)
		}
	}
}

// Content writes a slice of SetAssetContent bytes. Calling it once
// with the whole content or once per chunk yields the same digest.
func (e *EvidenceHasher) Content(data []byte) {
	e.hasher.Write(data)
}

// EndOperation writes the trailing fields of operation.
func (e *EvidenceHasher) EndOperation(operation BatchOperation) {
	if operation.Kind() != KindSetAssetContent {
		return
	}
	digest := operation.SetAssetContent.SHA256
	if digest == nil {
		e.writeByte(0)
		return
	}
	e.writeByte(1)
	e.hasher.Write(digest[:])
}

// Sum returns the evidence digest of everything written so far.
func (e *EvidenceHasher) Sum() Hash {
	var out Hash
	copy(out[:], e.hasher.Sum(nil))
	return out
}

// ComputeEvidence returns the evidence digest of operations, loading
// SetAssetContent bytes from source. Operations are put into
// canonical order first, so the result does not depend on the order
// they are passed in.
func ComputeEvidence(operations []BatchOperation, source ContentSource) (Hash, error) {
	hasher := NewEvidenceHasher()
	for _, operation := range CanonicalOrder(operations) {
		if operation.Kind() != KindSetAssetContent {
			hasher.BeginOperation(operation, 0)
			hasher.EndOperation(operation)
			continue
		}
		arguments := operation.SetAssetContent
		content, err := source.EncodedContent(arguments.Key, arguments.ContentEncoding)
		if err != nil {
			return Hash{}, fmt.Errorf("loading content for %s: %w", operation, err)
		}
		hasher.BeginOperation(operation, uint64(len(content)))
		hasher.Content(content)
		hasher.EndOperation(operation)
	}
	return hasher.Sum(), nil
}

func (e *EvidenceHasher) writeByte(b byte) {
	e.hasher.Write([]byte{b})
}

func (e *EvidenceHasher) writeUint64(value uint64) {
	var buffer [8]byte
	binary.BigEndian.PutUint64(buffer[:], value)
	e.hasher.Write(buffer[:])
}

func (e *EvidenceHasher) writeString(value string) {
	e.writeUint64(uint64(len(value)))
	e.hasher.Write([]byte(value))
}

func (e *EvidenceHasher) writeBool(value bool) {
	if value {
		e.writeByte(1)
	} else {
		e.writeByte(0)
	}
}

func (e *EvidenceHasher) writeOptionalUint64(value *uint64) {
	if value == nil {
		e.writeByte(0)
		return
	}
	e.writeByte(1)
	e.writeUint64(*value)
}

func (e *EvidenceHasher) writeOptionalBool(value *bool) {
	if value == nil {
		e.writeByte(0)
		return
	}
	e.writeByte(1)
	e.writeBool(*value)
}

// writeOptionalHeaders treats an empty map as absent: the wire
// encoding omits empty maps, so the store never sees the difference.
func (e *EvidenceHasher) writeOptionalHeaders(headers map[string]string) {
	if len(headers) == 0 {
		e.writeByte(0)
		return
	}
	e.writeByte(1)
	e.writeHeaders(headers)
}

func (e *EvidenceHasher) writeHeaders(headers map[string]string) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	e.writeUint64(uint64(len(names)))
	for _, name := range names {
		e.writeString(name)
		e.writeString(headers[name])
	}
}
