// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"bytes"
	"fmt"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// DefaultChunkSize keeps a create_chunk request, content plus
// envelope, well under the socket protocol's message limit.
const DefaultChunkSize = 1_900_000

// EncodedContent is one encoding of a local file.
type EncodedContent struct {
	Encoding asset.ContentEncoding
	Data     []byte
	SHA256   asset.Hash
}

// LocalAsset is a descriptor together with its encoded content.
type LocalAsset struct {
	Descriptor

	// Content holds identity first, then every compressed encoding
	// that came out smaller than identity.
	Content []EncodedContent
}

// Encoding returns the content of one encoding, if it was produced.
func (a LocalAsset) Encoding(encoding asset.ContentEncoding) (EncodedContent, bool) {
	for _, content := range a.Content {
		if content.Encoding == encoding {
			return content, true
		}
	}
	return EncodedContent{}, false
}

// Encode returns data under encoding. Output is deterministic: the
// same input always produces the same bytes, which the evidence check
// depends on.
func Encode(data []byte, encoding asset.ContentEncoding) ([]byte, error) {
	var buffer bytes.Buffer
	switch encoding {
	case asset.Identity:
		return data, nil

	case asset.Gzip:
		writer, err := gzip.NewWriterLevel(&buffer, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}

	case asset.Brotli:
		writer := brotli.NewWriterLevel(&buffer, brotli.BestCompression)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("brotli: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("brotli: %w", err)
		}

	default:
		return nil, asset.Validationf("unsupported content encoding %s", encoding)
	}
	return buffer.Bytes(), nil
}

// encodeFile reads the descriptor's source file and encodes it.
func encodeFile(descriptor Descriptor) (LocalAsset, error) {
	data, err := os.ReadFile(descriptor.SourcePath)
	if err != nil {
		return LocalAsset{}, fmt.Errorf("reading %s: %w", descriptor.SourcePath, err)
	}
	return encodeData(descriptor, data)
}

func encodeData(descriptor Descriptor, data []byte) (LocalAsset, error) {
	local := LocalAsset{
		Descriptor: descriptor,
		Content: []EncodedContent{{
			Encoding: asset.Identity,
			Data:     data,
			SHA256:   asset.SHA256(data),
		}},
	}
	for _, encoding := range descriptor.Encodings {
		if encoding == asset.Identity {
			continue
		}
		encoded, err := Encode(data, encoding)
		if err != nil {
			return LocalAsset{}, fmt.Errorf("encoding %s as %s: %w", descriptor.Key, encoding, err)
		}
		if len(encoded) >= len(data) {
			continue
		}
		local.Content = append(local.Content, EncodedContent{
			Encoding: encoding,
			Data:     encoded,
			SHA256:   asset.SHA256(encoded),
		})
	}
	return local, nil
}

// splitChunks cuts data into pieces of at most size bytes. Empty data
// is one empty chunk, since the store requires at least one.
func splitChunks(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := min(size, len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// fileSource re-reads and re-encodes local files on demand, so the
// client's evidence covers what is on disk at commit time rather than
// what was read during the scan.
type fileSource map[string]Descriptor

func (s fileSource) EncodedContent(key string, encoding asset.ContentEncoding) ([]byte, error) {
	descriptor, ok := s[key]
	if !ok {
		return nil, fmt.Errorf("no local file for %s", key)
	}
	data, err := os.ReadFile(descriptor.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return Encode(data, encoding)
}
