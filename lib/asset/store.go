// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

// APIVersion is reported by the store's api_version operation. It
// changes when the request or response shapes below change
// incompatibly.
const APIVersion uint16 = 1

// EncodedAsset is the result of the store's get operation: the first
// chunk of the best available encoding plus what a caller needs to
// fetch the rest with get_chunk.
type EncodedAsset struct {
	Content         []byte          `cbor:"content"`
	ContentType     string          `cbor:"content_type"`
	ContentEncoding ContentEncoding `cbor:"content_encoding"`
	TotalLength     uint64          `cbor:"total_length"`
	SHA256          *Hash           `cbor:"sha256,omitempty"`
}

// CertifiedTree is the full certification tree together with the
// certificate over its root. Both are self-describing CBOR.
type CertifiedTree struct {
	Tree        []byte `cbor:"tree"`
	Certificate []byte `cbor:"certificate"`
}

// Limits bound the staging area. A nil field is unlimited.
type Limits struct {
	MaxBatches *uint64 `cbor:"max_batches,omitempty"`
	MaxChunks  *uint64 `cbor:"max_chunks,omitempty"`
	MaxBytes   *uint64 `cbor:"max_bytes,omitempty"`
}

// ConfigureArguments updates Limits. Each field is a tri-state
// update; Clear makes that limit unlimited.
type ConfigureArguments struct {
	MaxBatches Property[uint64] `cbor:"max_batches"`
	MaxChunks  Property[uint64] `cbor:"max_chunks"`
	MaxBytes   Property[uint64] `cbor:"max_bytes"`
}

// Apply returns limits with arguments applied.
func (arguments ConfigureArguments) Apply(limits Limits) (Limits, error) {
	for name, property := range map[string]Property[uint64]{
		"max_batches": arguments.MaxBatches,
		"max_chunks":  arguments.MaxChunks,
		"max_bytes":   arguments.MaxBytes,
	} {
		if err := property.validate(name); err != nil {
			return limits, err
		}
	}
	return Limits{
		MaxBatches: arguments.MaxBatches.Apply(limits.MaxBatches),
		MaxChunks:  arguments.MaxChunks.Apply(limits.MaxChunks),
		MaxBytes:   arguments.MaxBytes.Apply(limits.MaxBytes),
	}, nil
}
