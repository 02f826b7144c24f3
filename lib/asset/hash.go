// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash is a SHA-256 digest. Encoded content, evidence, and
// certification tree nodes are all this size.
type Hash [32]byte

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) Hash {
	return sha256.Sum256(data)
}

// String returns the lowercase hex form of the hash. This is also the
// form used as an HTTP entity tag.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash, used as "absent" where
// an optional digest is stored by value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash parses a 64-character hex string.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// HashFromBytes converts a 32-byte slice into a Hash.
func HashFromBytes(data []byte) (Hash, error) {
	var hash Hash
	if len(data) != len(hash) {
		return hash, fmt.Errorf("hash is %d bytes, want %d", len(data), len(hash))
	}
	copy(hash[:], data)
	return hash, nil
}
