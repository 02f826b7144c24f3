// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/certtree"
)

func snapshotFixture(t *testing.T) *State {
	t.Helper()
	s, _ := newTestState(t, func(config *Config) { config.FallbackKey = "/index.html" })
	maxAge := uint64(60)
	allowed := true
	page := bytes.Repeat([]byte("<p>repeated paragraph</p>\n"), 200)
	putAssets(t, s,
		testAsset{key: "/index.html", contentType: "text/html", encodings: map[asset.ContentEncoding][][]byte{
			asset.Identity: {page[:1000], page[1000:]},
			asset.Gzip:     {gzipBytes(t, page)},
		}, create: &asset.CreateAssetArguments{MaxAge: &maxAge, Headers: map[string]string{"X-Frame-Options": "DENY"}}},
		testAsset{key: "/raw.bin", contentType: "application/octet-stream", encodings: identity("raw"),
			create: &asset.CreateAssetArguments{AllowRawAccess: &allowed}},
	)
	if err := s.Configure(asset.ConfigureArguments{MaxBatches: asset.Set[uint64](7)}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			original := snapshotFixture(t)
			path := filepath.Join(t.TempDir(), "assets.snapshot")
			if !original.Dirty() {
				t.Fatal("store is not dirty after a commit")
			}
			if err := original.Snapshot(path, tag); err != nil {
				t.Fatalf("Snapshot: %v", err)
			}
			if original.Dirty() {
				t.Error("store is still dirty after a snapshot")
			}

			restored, _ := newTestState(t, func(config *Config) { config.FallbackKey = "/index.html" })
			if err := restored.LoadSnapshot(path); err != nil {
				t.Fatalf("LoadSnapshot: %v", err)
			}

			if restored.RootHash() != original.RootHash() {
				t.Errorf("restored root %s, want %s", restored.RootHash(), original.RootHash())
			}
			if !reflect.DeepEqual(restored.List(), original.List()) {
				t.Errorf("restored List() = %+v\nwant %+v", restored.List(), original.List())
			}
			if !reflect.DeepEqual(restored.Limits(), original.Limits()) {
				t.Errorf("restored limits = %+v, want %+v", restored.Limits(), original.Limits())
			}

			wantID, err := original.CreateBatch()
			if err != nil {
				t.Fatalf("CreateBatch on original: %v", err)
			}
			gotID, err := restored.CreateBatch()
			if err != nil {
				t.Fatalf("CreateBatch on restored: %v", err)
			}
			if gotID != wantID {
				t.Errorf("restored store issued batch %d, want %d", gotID, wantID)
			}

			response := restored.HTTPRequest(get("/index.html", "Accept-Encoding", "gzip"))
			verify(t, restored, "/index.html", response, certtree.VerifyOptions{})
		})
	}
}

func TestSnapshotCorruption(t *testing.T) {
	original := snapshotFixture(t)
	path := filepath.Join(t.TempDir(), "assets.snapshot")
	if err := original.Snapshot(path, CompressionNone); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"flipped_payload_byte", func(data []byte) []byte {
			data[len(data)-1] ^= 0xff
			return data
		}},
		{"flipped_checksum_byte", func(data []byte) []byte {
			data[20] ^= 0x01
			return data
		}},
		{"bad_magic", func(data []byte) []byte {
			copy(data, "NOTASNAP")
			return data
		}},
		{"truncated_header", func(data []byte) []byte {
			return data[:snapshotHeaderSize-1]
		}},
		{"truncated_payload", func(data []byte) []byte {
			return data[:len(data)-10]
		}},
		{"unknown_tag", func(data []byte) []byte {
			data[8] = 9
			return data
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			corrupted := filepath.Join(t.TempDir(), "corrupted.snapshot")
			if err := os.WriteFile(corrupted, test.mutate(bytes.Clone(data)), 0o600); err != nil {
				t.Fatal(err)
			}

			s, _ := newTestState(t, nil)
			putAssets(t, s, testAsset{key: "/keep.txt", contentType: "text/plain", encodings: identity("keep")})
			before := s.RootHash()
			if err := s.LoadSnapshot(corrupted); err == nil {
				t.Fatal("LoadSnapshot accepted a corrupted file")
			}
			if s.RootHash() != before {
				t.Error("failed load changed the store")
			}
		})
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	s, _ := newTestState(t, nil)
	err := s.LoadSnapshot(filepath.Join(t.TempDir(), "absent.snapshot"))
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("LoadSnapshot of a missing file = %v, want ErrNoSnapshot", err)
	}
}

func TestCompressionTagNames(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil {
			t.Errorf("ParseCompressionTag(%q): %v", tag.String(), err)
			continue
		}
		if parsed != tag {
			t.Errorf("ParseCompressionTag(%q) = %v, want %v", tag.String(), parsed, tag)
		}
	}
	if _, err := ParseCompressionTag("gzip"); err == nil {
		t.Error("ParseCompressionTag(gzip) succeeded")
	}
	if got := CompressionTag(42).String(); got != "unknown(42)" {
		t.Errorf("String of an unknown tag = %q", got)
	}
}

func TestCompressFallsBackToNone(t *testing.T) {
	random := make([]byte, 4096)
	rand.NewChaCha8([32]byte{1}).Read(random)
	compressible := bytes.Repeat([]byte("certasset "), 500)

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		compressed, used, err := compress(random, tag)
		if err != nil {
			t.Fatalf("compress(random, %s): %v", tag, err)
		}
		if used != CompressionNone || !bytes.Equal(compressed, random) {
			t.Errorf("compress(random, %s) used %s, want none", tag, used)
		}

		compressed, used, err = compress(compressible, tag)
		if err != nil {
			t.Fatalf("compress(compressible, %s): %v", tag, err)
		}
		if used != tag || len(compressed) >= len(compressible) {
			t.Errorf("compress(compressible, %s) used %s with %d bytes", tag, used, len(compressed))
		}
		restored, err := decompress(compressed, used, len(compressible))
		if err != nil {
			t.Fatalf("decompress(%s): %v", tag, err)
		}
		if !bytes.Equal(restored, compressible) {
			t.Errorf("decompress(%s) did not restore the input", tag)
		}
		if _, err := decompress(compressed, used, len(compressible)+1); err == nil {
			t.Errorf("decompress(%s) accepted a wrong size", tag)
		}
	}
}
