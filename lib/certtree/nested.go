// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package certtree

import (
	"maps"
	"slices"
)

// NestedTree is a mutable tree whose nodes are either a leaf holding a
// value or a container mapping keys to subtrees. A path is a leaf, a
// container, or absent, never two of these at once. The zero value
// is an empty container, ready to use.
//
// Digests are cached per node and invalidated along the mutated path,
// so the root hash after a mutation costs one hash per level plus the
// fork folds of the touched containers.
//
// NestedTree is not safe for concurrent use. The store owns it and
// serialises access.
type NestedTree[K ~string, V ~[]byte] struct {
	leaf     bool
	value    V
	children map[K]*NestedTree[K, V]
	cached   *Digest
}

// Insert stores value at path, creating intermediate containers. A
// leaf crossed on the way down is replaced by a container, and
// whatever was at path is replaced by the leaf.
func (t *NestedTree[K, V]) Insert(path []K, value V) {
	node := t
	for _, key := range path {
		node.cached = nil
		if node.leaf || node.children == nil {
			node.leaf = false
			node.value = nil
			if node.children == nil {
				node.children = make(map[K]*NestedTree[K, V])
			}
		}
		child, exists := node.children[key]
		if !exists {
			child = &NestedTree[K, V]{}
			node.children[key] = child
		}
		node = child
	}
	node.cached = nil
	node.leaf = true
	node.value = value
	node.children = nil
}

// Delete removes whatever is at path. Containers left empty by the
// removal are removed too, so deleting the only path inserted leaves
// the tree hash-equal to a fresh one. Deleting an absent path is a
// no-op.
func (t *NestedTree[K, V]) Delete(path []K) {
	if len(path) == 0 {
		*t = NestedTree[K, V]{}
		return
	}
	t.delete(path)
}

func (t *NestedTree[K, V]) delete(path []K) bool {
	if t.leaf {
		return false
	}
	child, exists := t.children[path[0]]
	if !exists {
		return false
	}
	if len(path) > 1 {
		if !child.delete(path[1:]) {
			return false
		}
		if child.leaf || len(child.children) > 0 {
			t.cached = nil
			return true
		}
	}
	delete(t.children, path[0])
	t.cached = nil
	return true
}

// Get returns the value of the leaf at path.
func (t *NestedTree[K, V]) Get(path []K) (V, bool) {
	node := t.find(path)
	if node == nil || !node.leaf {
		return nil, false
	}
	return node.value, true
}

// ContainsLeaf reports whether path names a leaf.
func (t *NestedTree[K, V]) ContainsLeaf(path []K) bool {
	node := t.find(path)
	return node != nil && node.leaf
}

// ContainsPath reports whether path names a leaf or a container.
func (t *NestedTree[K, V]) ContainsPath(path []K) bool {
	return t.find(path) != nil
}

// Keys returns the keys of the container at path in label order, or
// nil if path is not a container.
func (t *NestedTree[K, V]) Keys(path []K) []K {
	node := t.find(path)
	if node == nil || node.leaf {
		return nil
	}
	return node.sortedKeys()
}

func (t *NestedTree[K, V]) find(path []K) *NestedTree[K, V] {
	node := t
	for _, key := range path {
		if node.leaf {
			return nil
		}
		child, exists := node.children[key]
		if !exists {
			return nil
		}
		node = child
	}
	return node
}

func (t *NestedTree[K, V]) sortedKeys() []K {
	return slices.Sorted(maps.Keys(t.children))
}

// RootHash returns the digest of the tree's HashTree form.
func (t *NestedTree[K, V]) RootHash() Digest {
	if t.cached != nil {
		return *t.cached
	}
	var digest Digest
	if t.leaf {
		digest = LeafDigest([]byte(t.value))
	} else {
		keys := t.sortedKeys()
		digests := make([]Digest, len(keys))
		for i, key := range keys {
			digests[i] = labeledDigest([]byte(key), t.children[key].RootHash())
		}
		digest = forkDigests(digests)
	}
	t.cached = &digest
	return digest
}

// AsHashTree returns the complete HashTree form of the tree, with no
// pruning.
func (t *NestedTree[K, V]) AsHashTree() HashTree {
	if t.leaf {
		return Leaf{Value: []byte(t.value)}
	}
	keys := t.sortedKeys()
	entries := make([]HashTree, len(keys))
	for i, key := range keys {
		entries[i] = Labeled{Label: []byte(key), Tree: t.children[key].AsHashTree()}
	}
	return forkEntries(entries)
}

// Witness returns a HashTree with the same digest as the whole tree
// that reveals only what is needed to look up path.
//
// If path exists its node is revealed in full: the leaf value, or the
// complete subtree for a container. If path is absent, the labels on
// either side of the first missing key are revealed with pruned
// subtrees, which lets [Lookup] prove the absence. Every other
// subtree is pruned.
func (t *NestedTree[K, V]) Witness(path []K) HashTree {
	if t.leaf {
		return Leaf{Value: []byte(t.value)}
	}
	if len(path) == 0 {
		return t.AsHashTree()
	}
	keys := t.sortedKeys()
	index, found := slices.BinarySearch(keys, path[0])
	entries := make([]HashTree, len(keys))
	for i, key := range keys {
		child := t.children[key]
		switch {
		case found && i == index:
			entries[i] = Labeled{Label: []byte(key), Tree: child.Witness(path[1:])}
		case !found && (i == index-1 || i == index):
			entries[i] = Labeled{Label: []byte(key), Tree: Pruned{Hash: child.RootHash()}}
		default:
			entries[i] = Pruned{Hash: labeledDigest([]byte(key), child.RootHash())}
		}
	}
	return prune(forkEntries(entries))
}

func labeledDigest(label []byte, sub Digest) Digest {
	return domainHash(domainLabeled, label, sub[:])
}

// forkDigests folds digests in the same balanced shape as
// forkEntries.
func forkDigests(digests []Digest) Digest {
	switch len(digests) {
	case 0:
		return Empty{}.Digest()
	case 1:
		return digests[0]
	}
	middle := (len(digests) + 1) / 2
	left, right := forkDigests(digests[:middle]), forkDigests(digests[middle:])
	return domainHash(domainFork, left[:], right[:])
}
