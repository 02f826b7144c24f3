// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package certtree

import (
	"fmt"

	"github.com/bureau-foundation/certasset/lib/codec"
)

// maxDecodeDepth bounds recursion when decoding untrusted trees.
const maxDecodeDepth = 256

// Encode returns the self-describing CBOR encoding of tree.
func Encode(tree HashTree) ([]byte, error) {
	wire, err := toWire(tree)
	if err != nil {
		return nil, err
	}
	return codec.MarshalSelfDescribed(wire)
}

// Decode parses a CBOR-encoded tree, with or without the
// self-describe tag.
func Decode(data []byte) (HashTree, error) {
	var raw any
	if err := codec.UnmarshalSelfDescribed(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding hash tree: %w", err)
	}
	return fromWire(raw, 0)
}

func toWire(tree HashTree) ([]any, error) {
	switch node := tree.(type) {
	case Empty:
		return []any{uint64(tagEmpty)}, nil
	case Fork:
		left, err := toWire(node.Left)
		if err != nil {
			return nil, err
		}
		right, err := toWire(node.Right)
		if err != nil {
			return nil, err
		}
		return []any{uint64(tagFork), left, right}, nil
	case Labeled:
		sub, err := toWire(node.Tree)
		if err != nil {
			return nil, err
		}
		return []any{uint64(tagLabeled), bytesOrEmpty(node.Label), sub}, nil
	case Leaf:
		return []any{uint64(tagLeaf), bytesOrEmpty(node.Value)}, nil
	case Pruned:
		return []any{uint64(tagPruned), node.Hash[:]}, nil
	default:
		return nil, fmt.Errorf("encoding hash tree: unknown node type %T", tree)
	}
}

// bytesOrEmpty keeps nil slices encoding as a zero-length byte
// string rather than CBOR null.
func bytesOrEmpty(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}

func fromWire(raw any, depth int) (HashTree, error) {
	if depth > maxDecodeDepth {
		return nil, fmt.Errorf("hash tree nested deeper than %d", maxDecodeDepth)
	}
	array, ok := raw.([]any)
	if !ok || len(array) == 0 {
		return nil, fmt.Errorf("hash tree node must be a non-empty array, got %T", raw)
	}
	tag, ok := array[0].(uint64)
	if !ok {
		return nil, fmt.Errorf("hash tree node tag must be an unsigned integer, got %T", array[0])
	}

	arity := map[uint64]int{tagEmpty: 1, tagFork: 3, tagLabeled: 3, tagLeaf: 2, tagPruned: 2}
	want, known := arity[tag]
	if !known {
		return nil, fmt.Errorf("unknown hash tree node tag %d", tag)
	}
	if len(array) != want {
		return nil, fmt.Errorf("hash tree node tag %d has %d elements, want %d", tag, len(array), want)
	}

	switch tag {
	case tagEmpty:
		return Empty{}, nil
	case tagFork:
		left, err := fromWire(array[1], depth+1)
		if err != nil {
			return nil, err
		}
		right, err := fromWire(array[2], depth+1)
		if err != nil {
			return nil, err
		}
		return Fork{Left: left, Right: right}, nil
	case tagLabeled:
		label, ok := array[1].([]byte)
		if !ok {
			return nil, fmt.Errorf("labeled node label must be a byte string, got %T", array[1])
		}
		sub, err := fromWire(array[2], depth+1)
		if err != nil {
			return nil, err
		}
		return Labeled{Label: label, Tree: sub}, nil
	case tagLeaf:
		value, ok := array[1].([]byte)
		if !ok {
			return nil, fmt.Errorf("leaf value must be a byte string, got %T", array[1])
		}
		return Leaf{Value: value}, nil
	default:
		digest, ok := array[1].([]byte)
		if !ok || len(digest) != len(Digest{}) {
			return nil, fmt.Errorf("pruned node must hold a 32-byte digest")
		}
		var pruned Pruned
		copy(pruned.Hash[:], digest)
		return pruned, nil
	}
}
