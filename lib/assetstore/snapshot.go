// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/codec"
)

// Snapshot file layout:
//
//	magic      8 bytes  "CASNAP01"
//	tag        1 byte   CompressionTag
//	size       8 bytes  uncompressed payload length, big-endian
//	checksum  32 bytes  BLAKE3 keyed hash of the uncompressed payload
//	payload             CBOR snapshotState, compressed per tag
var snapshotMagic = []byte("CASNAP01")

const snapshotHeaderSize = 8 + 1 + 8 + 32

// snapshotDomainKey keys the BLAKE3 checksum. The bytes are the ASCII
// domain name, zero-padded to 32.
var snapshotDomainKey = [32]byte{
	'c', 'e', 'r', 't', 'a', 's', 's', 'e', 't', '.', 's', 'n', 'a', 'p', 's', 'h',
	'o', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ErrNoSnapshot is returned by LoadSnapshot when the file does not
// exist.
var ErrNoSnapshot = errors.New("no snapshot")

// snapshotState is the persisted form of the committed assets.
// Batches and chunks are not persisted: an interrupted upload is
// abandoned exactly as if its batch had expired. The ID counters are
// kept so that IDs are never reused across restarts.
type snapshotState struct {
	Assets      []snapshotAsset `cbor:"assets"`
	Limits      asset.Limits    `cbor:"limits"`
	NextBatchID asset.BatchID   `cbor:"next_batch_id"`
	NextChunkID asset.ChunkID   `cbor:"next_chunk_id"`
}

type snapshotAsset struct {
	Key            string             `cbor:"key"`
	ContentType    string             `cbor:"content_type"`
	Encodings      []snapshotEncoding `cbor:"encodings"`
	MaxAge         *uint64            `cbor:"max_age,omitempty"`
	Headers        map[string]string  `cbor:"headers,omitempty"`
	IsAliased      *bool              `cbor:"is_aliased,omitempty"`
	AllowRawAccess *bool              `cbor:"allow_raw_access,omitempty"`
}

type snapshotEncoding struct {
	ContentEncoding asset.ContentEncoding `cbor:"content_encoding"`
	Chunks          [][]byte              `cbor:"chunks"`
	SHA256          asset.Hash            `cbor:"sha256"`
	Modified        int64                 `cbor:"modified"`
}

// Snapshot writes the committed assets to path, replacing any
// previous file atomically.
func (s *State) Snapshot(path string, tag CompressionTag) error {
	s.mu.Lock()
	state := s.snapshotLocked()
	s.dirty = false
	s.mu.Unlock()

	payload, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	compressed, usedTag, err := compress(payload, tag)
	if err != nil {
		return err
	}

	var file bytes.Buffer
	file.Grow(snapshotHeaderSize + len(compressed))
	file.Write(snapshotMagic)
	file.WriteByte(byte(usedTag))
	file.Write(binary.BigEndian.AppendUint64(nil, uint64(len(payload))))
	checksum := snapshotChecksum(payload)
	file.Write(checksum[:])
	file.Write(compressed)

	temporary, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer os.Remove(temporary.Name())
	if _, err := temporary.Write(file.Bytes()); err != nil {
		temporary.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("installing snapshot: %w", err)
	}

	s.logger.Info("snapshot written",
		"path", path,
		"assets", len(state.Assets),
		"bytes", file.Len(),
		"compression", usedTag.String(),
	)
	return nil
}

func (s *State) snapshotLocked() snapshotState {
	state := snapshotState{
		Assets:      make([]snapshotAsset, 0, len(s.assets)),
		Limits:      s.limits,
		NextBatchID: s.nextBatchID,
		NextChunkID: s.nextChunkID,
	}
	for _, key := range slices.Sorted(maps.Keys(s.assets)) {
		stored := s.assets[key]
		persisted := snapshotAsset{
			Key:            stored.Key,
			ContentType:    stored.ContentType,
			Encodings:      []snapshotEncoding{},
			MaxAge:         stored.MaxAge,
			Headers:        stored.Headers,
			IsAliased:      stored.IsAliased,
			AllowRawAccess: stored.AllowRawAccess,
		}
		for _, contentEncoding := range asset.AllEncodings {
			if encoding, exists := stored.Encodings[contentEncoding]; exists {
				persisted.Encodings = append(persisted.Encodings, snapshotEncoding{
					ContentEncoding: contentEncoding,
					Chunks:          encoding.Chunks,
					SHA256:          encoding.SHA256,
					Modified:        encoding.Modified,
				})
			}
		}
		state.Assets = append(state.Assets, persisted)
	}
	return state
}

// LoadSnapshot replaces the committed assets and limits with those in
// the snapshot at path, rebuilds certification, and publishes a new
// certificate. Every encoding's digest is recomputed and checked. It
// returns ErrNoSnapshot if the file does not exist.
func (s *State) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoSnapshot
	}
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) < snapshotHeaderSize || !bytes.Equal(data[:len(snapshotMagic)], snapshotMagic) {
		return fmt.Errorf("%s is not a snapshot file", path)
	}
	tag := CompressionTag(data[8])
	size := binary.BigEndian.Uint64(data[9:17])
	var checksum [32]byte
	copy(checksum[:], data[17:49])

	payload, err := decompress(data[snapshotHeaderSize:], tag, int(size))
	if err != nil {
		return fmt.Errorf("decompressing snapshot: %w", err)
	}
	if snapshotChecksum(payload) != checksum {
		return fmt.Errorf("snapshot %s checksum mismatch", path)
	}

	var state snapshotState
	if err := codec.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	assets, err := restoreAssets(state.Assets)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = assets
	s.limits = state.Limits
	s.nextBatchID = max(s.nextBatchID, state.NextBatchID)
	s.nextChunkID = max(s.nextChunkID, state.NextChunkID)
	s.dirty = false
	s.recertify()
	s.logger.Info("snapshot loaded", "path", path, "assets", len(assets), "root", s.tree.RootHash().String())
	return nil
}

func restoreAssets(persisted []snapshotAsset) (map[string]*Asset, error) {
	assets := make(map[string]*Asset, len(persisted))
	for _, entry := range persisted {
		if err := asset.ValidateKey(entry.Key); err != nil {
			return nil, err
		}
		restored := &Asset{
			Key:            entry.Key,
			ContentType:    entry.ContentType,
			Encodings:      make(map[asset.ContentEncoding]*Encoding, len(entry.Encodings)),
			MaxAge:         entry.MaxAge,
			Headers:        entry.Headers,
			IsAliased:      entry.IsAliased,
			AllowRawAccess: entry.AllowRawAccess,
		}
		for _, persistedEncoding := range entry.Encodings {
			encoding := &Encoding{
				Chunks:   persistedEncoding.Chunks,
				SHA256:   persistedEncoding.SHA256,
				Modified: persistedEncoding.Modified,
			}
			var content []byte
			for _, chunk := range encoding.Chunks {
				encoding.TotalLength += uint64(len(chunk))
				content = append(content, chunk...)
			}
			if asset.SHA256(content) != encoding.SHA256 {
				return nil, fmt.Errorf("asset %s (%s): content does not match recorded sha256", entry.Key, persistedEncoding.ContentEncoding)
			}
			restored.Encodings[persistedEncoding.ContentEncoding] = encoding
		}
		assets[entry.Key] = restored
	}
	return assets, nil
}

func snapshotChecksum(payload []byte) [32]byte {
	hasher, err := blake3.NewKeyed(snapshotDomainKey[:])
	if err != nil {
		panic("assetstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// Dirty reports whether assets changed since the last snapshot.
func (s *State) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
