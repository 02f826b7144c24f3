// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package certtree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest is a SHA-256 node digest.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Node type tags. They are both the CBOR array tag and the order in
// which the kinds are documented.
const (
	tagEmpty   = 0
	tagFork    = 1
	tagLabeled = 2
	tagLeaf    = 3
	tagPruned  = 4
)

// Domain separators prefix every node hash so that a leaf can never
// be confused with a fork whose children happen to concatenate to the
// same bytes.
const (
	domainEmpty   = "certasset.hashtree.empty"
	domainFork    = "certasset.hashtree.fork"
	domainLabeled = "certasset.hashtree.labeled"
	domainLeaf    = "certasset.hashtree.leaf"
)

// HashTree is one node of a labeled Merkle tree. The concrete types
// are [Empty], [Fork], [Labeled], [Leaf], and [Pruned].
type HashTree interface {
	// Digest returns the node's hash, recomputed from its children.
	Digest() Digest
	tag() int
}

// Empty is the tree with no labels.
type Empty struct{}

// Fork joins two subtrees. Labels in Left sort before labels in
// Right.
type Fork struct {
	Left, Right HashTree
}

// Labeled attaches a label to a subtree.
type Labeled struct {
	Label []byte
	Tree  HashTree
}

// Leaf holds a value.
type Leaf struct {
	Value []byte
}

// Pruned stands in for a subtree whose contents were omitted.
type Pruned struct {
	Hash Digest
}

func (Empty) tag() int   { return tagEmpty }
func (Fork) tag() int    { return tagFork }
func (Labeled) tag() int { return tagLabeled }
func (Leaf) tag() int    { return tagLeaf }
func (Pruned) tag() int  { return tagPruned }

func (Empty) Digest() Digest {
	return domainHash(domainEmpty)
}

func (f Fork) Digest() Digest {
	left, right := f.Left.Digest(), f.Right.Digest()
	return domainHash(domainFork, left[:], right[:])
}

func (l Labeled) Digest() Digest {
	sub := l.Tree.Digest()
	return domainHash(domainLabeled, l.Label, sub[:])
}

func (l Leaf) Digest() Digest {
	return domainHash(domainLeaf, l.Value)
}

func (p Pruned) Digest() Digest {
	return p.Hash
}

// domainHash hashes a length-prefixed domain separator followed by
// parts.
func domainHash(domain string, parts ...[]byte) Digest {
	hasher := sha256.New()
	hasher.Write([]byte{byte(len(domain))})
	hasher.Write([]byte(domain))
	for _, part := range parts {
		hasher.Write(part)
	}
	var out Digest
	copy(out[:], hasher.Sum(nil))
	return out
}

// LeafDigest is the digest of a leaf holding value, without
// constructing the node.
func LeafDigest(value []byte) Digest {
	return domainHash(domainLeaf, value)
}

// String renders the tree in a compact diagnostic form, with labels
// shown as quoted strings when printable and hex otherwise.
func String(tree HashTree) string {
	var buffer bytes.Buffer
	writeTree(&buffer, tree)
	return buffer.String()
}

func writeTree(buffer *bytes.Buffer, tree HashTree) {
	switch node := tree.(type) {
	case Empty:
		buffer.WriteString("empty")
	case Fork:
		buffer.WriteString("fork(")
		writeTree(buffer, node.Left)
		buffer.WriteString(", ")
		writeTree(buffer, node.Right)
		buffer.WriteString(")")
	case Labeled:
		fmt.Fprintf(buffer, "%s:", printableLabel(node.Label))
		writeTree(buffer, node.Tree)
	case Leaf:
		fmt.Fprintf(buffer, "leaf(%s)", printableLabel(node.Value))
	case Pruned:
		fmt.Fprintf(buffer, "pruned(%s)", node.Hash.String()[:8])
	default:
		buffer.WriteString("invalid")
	}
}

func printableLabel(label []byte) string {
	for _, b := range label {
		if b < 0x20 || b > 0x7e {
			return "0x" + hex.EncodeToString(label)
		}
	}
	return fmt.Sprintf("%q", label)
}

// forkEntries combines sibling nodes, already in label order, into a
// balanced fork tree. Zero entries yield Empty.
func forkEntries(entries []HashTree) HashTree {
	switch len(entries) {
	case 0:
		return Empty{}
	case 1:
		return entries[0]
	}
	middle := (len(entries) + 1) / 2
	return Fork{Left: forkEntries(entries[:middle]), Right: forkEntries(entries[middle:])}
}

// prune collapses any fork whose two sides are both pruned into a
// single Pruned node. The digest is unchanged.
func prune(tree HashTree) HashTree {
	fork, ok := tree.(Fork)
	if !ok {
		return tree
	}
	left, right := prune(fork.Left), prune(fork.Right)
	_, leftPruned := left.(Pruned)
	_, rightPruned := right.(Pruned)
	collapsed := Fork{Left: left, Right: right}
	if leftPruned && rightPruned {
		return Pruned{Hash: collapsed.Digest()}
	}
	return collapsed
}
