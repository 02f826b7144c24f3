// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package certtree

import "bytes"

// LookupStatus is the outcome of resolving a path in a HashTree.
type LookupStatus int

const (
	// LookupAbsent means the tree proves the path does not exist.
	LookupAbsent LookupStatus = iota
	// LookupUnknown means the path falls inside a pruned subtree.
	LookupUnknown
	// LookupFound means the path names a revealed leaf.
	LookupFound
	// LookupError means the tree is malformed along the path, or the
	// path ends on a container.
	LookupError
)

func (s LookupStatus) String() string {
	switch s {
	case LookupAbsent:
		return "absent"
	case LookupUnknown:
		return "unknown"
	case LookupFound:
		return "found"
	default:
		return "error"
	}
}

// LookupResult is the result of [Lookup]. Value is set only when
// Status is LookupFound.
type LookupResult struct {
	Status LookupStatus
	Value  []byte
}

// Lookup resolves path in tree. Labels at each level must be in
// strictly increasing byte order; a tree that violates this is
// reported as LookupError rather than trusted for an absence proof.
func Lookup(tree HashTree, path [][]byte) LookupResult {
	if len(path) == 0 {
		switch node := tree.(type) {
		case Leaf:
			return LookupResult{Status: LookupFound, Value: node.Value}
		case Pruned:
			return LookupResult{Status: LookupUnknown}
		case Empty:
			return LookupResult{Status: LookupAbsent}
		default:
			return LookupResult{Status: LookupError}
		}
	}
	if _, isLeaf := tree.(Leaf); isLeaf {
		return LookupResult{Status: LookupAbsent}
	}

	label, rest := path[0], path[1:]
	nodes := flatten(tree, nil)
	if !sortedLabels(nodes) {
		return LookupResult{Status: LookupError}
	}
	prunedGap := false
	for _, node := range nodes {
		switch node := node.(type) {
		case Pruned:
			prunedGap = true
		case Labeled:
			switch comparison := bytes.Compare(node.Label, label); {
			case comparison == 0:
				return Lookup(node.Tree, rest)
			case comparison > 0:
				if prunedGap {
					return LookupResult{Status: LookupUnknown}
				}
				return LookupResult{Status: LookupAbsent}
			}
			prunedGap = false
		}
	}
	if prunedGap {
		return LookupResult{Status: LookupUnknown}
	}
	return LookupResult{Status: LookupAbsent}
}

// sortedLabels reports whether the labels of one level are strictly
// increasing and the level holds only labeled, pruned and empty nodes.
func sortedLabels(nodes []HashTree) bool {
	var previous []byte
	seen := false
	for _, node := range nodes {
		switch node := node.(type) {
		case Labeled:
			if seen && bytes.Compare(previous, node.Label) >= 0 {
				return false
			}
			previous, seen = node.Label, true
		case Pruned, Empty:
		default:
			return false
		}
	}
	return true
}

// flatten returns the non-fork nodes of tree in left-to-right order.
func flatten(tree HashTree, out []HashTree) []HashTree {
	if fork, ok := tree.(Fork); ok {
		out = flatten(fork.Left, out)
		return flatten(fork.Right, out)
	}
	return append(out, tree)
}

// Verify reports whether witness reconstructs to root and resolves
// path to a leaf holding value.
func Verify(witness HashTree, root Digest, path [][]byte, value []byte) bool {
	if witness.Digest() != root {
		return false
	}
	result := Lookup(witness, path)
	return result.Status == LookupFound && bytes.Equal(result.Value, value)
}

// StringPath converts string segments to the byte labels Lookup takes.
func StringPath[K ~string](segments []K) [][]byte {
	out := make([][]byte, len(segments))
	for i, segment := range segments {
		out[i] = []byte(segment)
	}
	return out
}
