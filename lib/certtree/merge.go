// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package certtree

import (
	"bytes"
	"fmt"
)

// Merge combines two witnesses of the same tree into one that reveals
// everything either reveals. Where one side is pruned the other side
// is taken. The witnesses must have equal digests.
func Merge(a, b HashTree) (HashTree, error) {
	if a.Digest() != b.Digest() {
		return nil, fmt.Errorf("merging witnesses of different trees: %s != %s", a.Digest(), b.Digest())
	}
	return merge(a, b)
}

func merge(a, b HashTree) (HashTree, error) {
	if _, pruned := a.(Pruned); pruned {
		return b, nil
	}
	if _, pruned := b.(Pruned); pruned {
		return a, nil
	}
	switch left := a.(type) {
	case Fork:
		right, ok := b.(Fork)
		if !ok {
			return nil, fmt.Errorf("merging fork with %T", b)
		}
		mergedLeft, err := merge(left.Left, right.Left)
		if err != nil {
			return nil, err
		}
		mergedRight, err := merge(left.Right, right.Right)
		if err != nil {
			return nil, err
		}
		return Fork{Left: mergedLeft, Right: mergedRight}, nil
	case Labeled:
		right, ok := b.(Labeled)
		if !ok || !bytes.Equal(left.Label, right.Label) {
			return nil, fmt.Errorf("merging labeled node %s with mismatched %T", printableLabel(left.Label), b)
		}
		sub, err := merge(left.Tree, right.Tree)
		if err != nil {
			return nil, err
		}
		return Labeled{Label: left.Label, Tree: sub}, nil
	default:
		// Empty and Leaf nodes with equal digests are equal.
		return a, nil
	}
}
