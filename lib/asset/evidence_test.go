// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"fmt"
	"testing"
)

// mapSource serves content from a map keyed by "key|encoding".
type mapSource map[string][]byte

func (m mapSource) EncodedContent(key string, encoding ContentEncoding) ([]byte, error) {
	content, ok := m[key+"|"+encoding.String()]
	if !ok {
		return nil, fmt.Errorf("no content for %s %s", key, encoding)
	}
	return content, nil
}

func uint64Pointer(value uint64) *uint64 { return &value }

func sampleOperations() ([]BatchOperation, mapSource) {
	indexHash := SHA256([]byte("<h1>hello</h1>"))
	styleHash := SHA256([]byte("body{}"))
	operations := []BatchOperation{
		{DeleteAsset: &DeleteAssetArguments{Key: "/old.txt"}},
		{CreateAsset: &CreateAssetArguments{Key: "/index.html", ContentType: "text/html", MaxAge: uint64Pointer(60)}},
		{CreateAsset: &CreateAssetArguments{Key: "/style.css", ContentType: "text/css", Headers: map[string]string{"x-a": "1", "x-b": "2"}}},
		{SetAssetContent: &SetAssetContentArguments{Key: "/index.html", ContentEncoding: Identity, ChunkIDs: []ChunkID{1}, SHA256: &indexHash}},
		{SetAssetContent: &SetAssetContentArguments{Key: "/style.css", ContentEncoding: Identity, ChunkIDs: []ChunkID{2}, SHA256: &styleHash}},
		{SetAssetProperties: &SetAssetPropertiesArguments{Key: "/style.css", MaxAge: Set[uint64](10), IsAliased: Cleared[bool]()}},
	}
	source := mapSource{
		"/index.html|identity": []byte("<h1>hello</h1>"),
		"/style.css|identity":  []byte("body{}"),
	}
	return operations, source
}

func TestComputeEvidenceIndependentOfOperationOrder(t *testing.T) {
	operations, source := sampleOperations()
	want, err := ComputeEvidence(operations, source)
	if err != nil {
		t.Fatalf("ComputeEvidence: %v", err)
	}

	reversed := make([]BatchOperation, len(operations))
	for i, operation := range operations {
		reversed[len(operations)-1-i] = operation
	}
	got, err := ComputeEvidence(reversed, source)
	if err != nil {
		t.Fatalf("ComputeEvidence(reversed): %v", err)
	}
	if got != want {
		t.Errorf("evidence depends on order: %s != %s", got, want)
	}
}

func TestComputeEvidenceChangesWithContentByte(t *testing.T) {
	operations, source := sampleOperations()
	original, err := ComputeEvidence(operations, source)
	if err != nil {
		t.Fatal(err)
	}

	altered := mapSource{}
	for key, content := range source {
		altered[key] = append([]byte(nil), content...)
	}
	altered["/style.css|identity"][0] ^= 0x01

	changed, err := ComputeEvidence(operations, altered)
	if err != nil {
		t.Fatal(err)
	}
	if changed == original {
		t.Error("flipping one content bit did not change the evidence")
	}
}

func TestComputeEvidenceChangesWithOperationField(t *testing.T) {
	operations, source := sampleOperations()
	original, err := ComputeEvidence(operations, source)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		tamper func([]BatchOperation) []BatchOperation
	}{
		{"content type", func(ops []BatchOperation) []BatchOperation {
			changed := *ops[1].CreateAsset
			changed.ContentType = "text/plain"
			ops[1] = BatchOperation{CreateAsset: &changed}
			return ops
		}},
		{"max age", func(ops []BatchOperation) []BatchOperation {
			changed := *ops[1].CreateAsset
			changed.MaxAge = uint64Pointer(61)
			ops[1] = BatchOperation{CreateAsset: &changed}
			return ops
		}},
		{"header value", func(ops []BatchOperation) []BatchOperation {
			changed := *ops[2].CreateAsset
			changed.Headers = map[string]string{"x-a": "1", "x-b": "3"}
			ops[2] = BatchOperation{CreateAsset: &changed}
			return ops
		}},
		{"extra delete", func(ops []BatchOperation) []BatchOperation {
			return append(ops, BatchOperation{DeleteAsset: &DeleteAssetArguments{Key: "/index.html"}})
		}},
		{"dropped operation", func(ops []BatchOperation) []BatchOperation {
			return ops[:len(ops)-1]
		}},
		{"property action", func(ops []BatchOperation) []BatchOperation {
			changed := *ops[5].SetAssetProperties
			changed.IsAliased = Set(false)
			ops[5] = BatchOperation{SetAssetProperties: &changed}
			return ops
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fresh, _ := sampleOperations()
			got, err := ComputeEvidence(test.tamper(fresh), source)
			if err != nil {
				t.Fatal(err)
			}
			if got == original {
				t.Errorf("tampering with %s did not change the evidence", test.name)
			}
		})
	}
}

func TestEvidenceChunkedContentMatchesWhole(t *testing.T) {
	content := []byte("0123456789abcdefghij")
	digest := SHA256(content)
	operation := BatchOperation{SetAssetContent: &SetAssetContentArguments{
		Key: "/data.bin", ContentEncoding: Identity, ChunkIDs: []ChunkID{1, 2, 3}, SHA256: &digest,
	}}

	whole := NewEvidenceHasher()
	whole.BeginOperation(operation, uint64(len(content)))
	whole.Content(content)
	whole.EndOperation(operation)

	chunked := NewEvidenceHasher()
	chunked.BeginOperation(operation, uint64(len(content)))
	chunked.Content(content[:7])
	chunked.Content(content[7:14])
	chunked.Content(content[14:])
	chunked.EndOperation(operation)

	if whole.Sum() != chunked.Sum() {
		t.Error("chunk boundaries changed the evidence")
	}
}

func TestEvidenceIgnoresChunkIDs(t *testing.T) {
	content := []byte("same bytes")
	first := []BatchOperation{{SetAssetContent: &SetAssetContentArguments{Key: "/a", ContentEncoding: Identity, ChunkIDs: []ChunkID{1}}}}
	second := []BatchOperation{{SetAssetContent: &SetAssetContentArguments{Key: "/a", ContentEncoding: Identity, ChunkIDs: []ChunkID{7}}}}
	source := mapSource{"/a|identity": content}

	firstDigest, err := ComputeEvidence(first, source)
	if err != nil {
		t.Fatal(err)
	}
	secondDigest, err := ComputeEvidence(second, source)
	if err != nil {
		t.Fatal(err)
	}
	if firstDigest != secondDigest {
		t.Error("chunk IDs should not contribute to evidence")
	}
}

func TestEvidenceEmptyHeadersEqualAbsent(t *testing.T) {
	withEmpty := []BatchOperation{{CreateAsset: &CreateAssetArguments{Key: "/a", ContentType: "text/plain", Headers: map[string]string{}}}}
	withNil := []BatchOperation{{CreateAsset: &CreateAssetArguments{Key: "/a", ContentType: "text/plain"}}}

	first, err := ComputeEvidence(withEmpty, mapSource{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := ComputeEvidence(withNil, mapSource{})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("empty header map and absent header map must hash identically")
	}
}

func TestComputeEvidenceMissingContent(t *testing.T) {
	operations := []BatchOperation{{SetAssetContent: &SetAssetContentArguments{Key: "/missing", ContentEncoding: Gzip, ChunkIDs: []ChunkID{1}}}}
	if _, err := ComputeEvidence(operations, mapSource{}); err == nil {
		t.Error("expected an error when content cannot be loaded")
	}
}
