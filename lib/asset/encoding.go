// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"fmt"
	"strings"
)

// ContentEncoding identifies one representation of an asset's bytes.
// The set is closed: every switch over it is exhaustive.
type ContentEncoding uint8

const (
	// Identity is the unmodified content.
	Identity ContentEncoding = iota
	// Gzip is RFC 1952 gzip.
	Gzip
	// Brotli is RFC 7932 brotli, named "br" on the wire and in HTTP.
	Brotli
)

// AllEncodings lists every encoding in declaration order.
var AllEncodings = []ContentEncoding{Identity, Gzip, Brotli}

// DefaultEncodingPriority is the order the HTTP responder prefers
// encodings in when a request accepts several.
var DefaultEncodingPriority = []ContentEncoding{Brotli, Gzip, Identity}

// String returns the HTTP content-coding name.
func (e ContentEncoding) String() string {
	switch e {
	case Identity:
		return "identity"
	case Gzip:
		return "gzip"
	case Brotli:
		return "br"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// ParseContentEncoding parses an HTTP content-coding name. Matching is
// case-insensitive; "brotli" is accepted as an alias for "br".
func ParseContentEncoding(name string) (ContentEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "identity":
		return Identity, nil
	case "gzip":
		return Gzip, nil
	case "br", "brotli":
		return Brotli, nil
	default:
		return 0, Validationf("unsupported content encoding %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e ContentEncoding) MarshalText() ([]byte, error) {
	switch e {
	case Identity, Gzip, Brotli:
		return []byte(e.String()), nil
	default:
		return nil, Validationf("unsupported content encoding %d", uint8(e))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *ContentEncoding) UnmarshalText(text []byte) error {
	parsed, err := ParseContentEncoding(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// SortEncodings returns encodings ordered by declaration, the order
// used wherever a deterministic iteration over an encoding set is
// needed.
func SortEncodings(encodings map[ContentEncoding]bool) []ContentEncoding {
	out := make([]ContentEncoding, 0, len(encodings))
	for _, encoding := range AllEncodings {
		if encodings[encoding] {
			out = append(out, encoding)
		}
	}
	return out
}
