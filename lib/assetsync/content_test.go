// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"bytes"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/certasset/lib/asset"
)

func decode(t *testing.T, data []byte, encoding asset.ContentEncoding) []byte {
	t.Helper()
	var reader io.Reader
	switch encoding {
	case asset.Identity:
		return data
	case asset.Gzip:
		gzipReader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("gzip.NewReader: %v", err)
		}
		reader = gzipReader
	case asset.Brotli:
		reader = brotli.NewReader(bytes.NewReader(data))
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("decoding %s: %v", encoding, err)
	}
	return decoded
}

func TestEncodeRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("certified assets are served with proofs. ", 200))
	for _, encoding := range asset.AllEncodings {
		t.Run(encoding.String(), func(t *testing.T) {
			encoded, err := Encode(data, encoding)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(decode(t, encoded, encoding), data) {
				t.Error("decoded content differs from the input")
			}
			again, err := Encode(data, encoding)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(encoded, again) {
				t.Error("encoding the same input twice gave different bytes")
			}
		})
	}
}

func TestEncodeRejectsUnknownEncoding(t *testing.T) {
	_, err := Encode([]byte("x"), asset.ContentEncoding(9))
	if asset.KindOf(err) != asset.KindValidation {
		t.Errorf("Encode with an unknown encoding: %v, want a validation error", err)
	}
}

func TestEncodePrunesEncodingsThatDoNotShrink(t *testing.T) {
	descriptor := Descriptor{
		Key:       "/a.txt",
		Encodings: []asset.ContentEncoding{asset.Identity, asset.Gzip, asset.Brotli},
	}

	small, err := encodeData(descriptor, []byte("A"))
	if err != nil {
		t.Fatalf("encodeData: %v", err)
	}
	if len(small.Content) != 1 || small.Content[0].Encoding != asset.Identity {
		t.Fatalf("one-byte file encodings = %v, want identity only", encodingsOf(small))
	}
	if small.Content[0].SHA256 != asset.SHA256([]byte("A")) {
		t.Error("identity digest is not the SHA-256 of the content")
	}

	large, err := encodeData(descriptor, []byte(strings.Repeat("abc", 1000)))
	if err != nil {
		t.Fatalf("encodeData: %v", err)
	}
	want := []asset.ContentEncoding{asset.Identity, asset.Gzip, asset.Brotli}
	if got := encodingsOf(large); !slices.Equal(got, want) {
		t.Fatalf("repetitive file encodings = %v, want %v", got, want)
	}
	for _, content := range large.Content {
		if content.SHA256 != asset.SHA256(content.Data) {
			t.Errorf("%s digest does not cover the encoded bytes", content.Encoding)
		}
	}
	if _, ok := large.Encoding(asset.Gzip); !ok {
		t.Error("Encoding(gzip) not found")
	}
}

func encodingsOf(local LocalAsset) []asset.ContentEncoding {
	var encodings []asset.ContentEncoding
	for _, content := range local.Content {
		encodings = append(encodings, content.Encoding)
	}
	return encodings
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		data string
		size int
		want []string
	}{
		{"", 4, []string{""}},
		{"abc", 4, []string{"abc"}},
		{"abcd", 4, []string{"abcd"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
	}
	for _, test := range tests {
		var got []string
		for _, chunk := range splitChunks([]byte(test.data), test.size) {
			got = append(got, string(chunk))
		}
		if !slices.Equal(got, test.want) {
			t.Errorf("splitChunks(%q, %d) = %q, want %q", test.data, test.size, got, test.want)
		}
	}
}

func TestFileSourceRereadsDisk(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "before"})
	source := fileSource{"/a.txt": {Key: "/a.txt", SourcePath: root + "/a.txt"}}

	writeFile(t, root, "a.txt", "after")
	content, err := source.EncodedContent("/a.txt", asset.Identity)
	if err != nil {
		t.Fatalf("EncodedContent: %v", err)
	}
	if string(content) != "after" {
		t.Errorf("content = %q, want the current file", content)
	}
	if _, err := source.EncodedContent("/missing", asset.Identity); err == nil {
		t.Error("EncodedContent for an unknown key succeeded")
	}
}
