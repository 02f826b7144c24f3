// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/certtree"
	"github.com/bureau-foundation/certasset/lib/clock"
)

// DefaultBatchTTL is how long a batch lives without activity.
const DefaultBatchTTL = 5 * time.Minute

// DefaultRawHostMarker identifies hosts that serve uncertified
// responses.
const DefaultRawHostMarker = ".raw."

// Asset is one committed asset.
type Asset struct {
	Key            string
	ContentType    string
	Encodings      map[asset.ContentEncoding]*Encoding
	MaxAge         *uint64
	Headers        map[string]string
	IsAliased      *bool
	AllowRawAccess *bool
}

// aliased reports whether the asset is reachable under its alias
// paths. Aliasing is on unless explicitly disabled.
func (a *Asset) aliased() bool {
	return a.IsAliased == nil || *a.IsAliased
}

// rawAccessAllowed reports whether the asset may be served
// uncertified on a raw host.
func (a *Asset) rawAccessAllowed() bool {
	return a.AllowRawAccess != nil && *a.AllowRawAccess
}

// servable reports whether the asset has any content to serve.
func (a *Asset) servable() bool {
	return len(a.Encodings) > 0
}

// clone returns a copy that can be mutated without affecting a. The
// encodings themselves are shared: they are replaced, never edited,
// by batch operations.
func (a *Asset) clone() *Asset {
	copied := *a
	copied.Encodings = maps.Clone(a.Encodings)
	if copied.Encodings == nil {
		copied.Encodings = make(map[asset.ContentEncoding]*Encoding)
	}
	copied.Headers = maps.Clone(a.Headers)
	return &copied
}

// Encoding is one stored representation of an asset's content.
type Encoding struct {
	// Chunks are the content in upload order. The streaming
	// responder serves one chunk per message.
	Chunks      [][]byte
	TotalLength uint64
	SHA256      asset.Hash
	// Modified is the store clock time of the SetAssetContent that
	// created the encoding, in Unix nanoseconds.
	Modified int64

	// The fields below are derived by certification.
	Certified bool
	// Expression is the certification expression of the response
	// headers this encoding is served with.
	Expression string
	// ResponseHashes maps a status code to the certified response
	// hash for that status.
	ResponseHashes map[uint16][32]byte
}

// Config configures a State.
type Config struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// SigningKey signs certificates. A fresh key is generated when
	// nil.
	SigningKey ed25519.PrivateKey

	// BatchTTL defaults to DefaultBatchTTL.
	BatchTTL time.Duration
	Limits   asset.Limits

	// EncodingPriority is the order the responder prefers encodings
	// in. Defaults to asset.DefaultEncodingPriority.
	EncodingPriority []asset.ContentEncoding

	// RawHostMarker defaults to DefaultRawHostMarker.
	RawHostMarker string

	// FallbackKey names the asset served, and certified under the
	// root wildcard, for paths with no asset. Empty disables the
	// fallback.
	FallbackKey string
	// FallbackStatus is the status of fallback responses. Defaults
	// to 404.
	FallbackStatus uint16
}

// State is the complete store. See the package documentation.
type State struct {
	mu sync.Mutex

	clock  clock.Clock
	logger *slog.Logger
	key    ed25519.PrivateKey

	batchTTL         time.Duration
	limits           asset.Limits
	encodingPriority []asset.ContentEncoding
	rawHostMarker    string
	fallbackKey      string
	fallbackStatus   uint16

	assets map[string]*Asset

	batches   map[asset.BatchID]*batch
	chunks    map[asset.ChunkID]*chunk
	chunkSize uint64
	// committed remembers recently committed batch IDs so that a
	// repeated commit is reported as a protocol error rather than
	// "not found".
	committed   map[asset.BatchID]time.Time
	nextBatchID asset.BatchID
	nextChunkID asset.ChunkID

	// served maps each certified request path to the asset key that
	// answers it.
	served      map[string]string
	tree        *certtree.NestedTree[string, []byte]
	certificate []byte

	// dirty is set by every commit and cleared by a snapshot.
	dirty bool
}

// New returns an empty store with a published certificate.
func New(config Config) (*State, error) {
	if config.Clock == nil {
		return nil, errors.New("assetstore: Clock is required")
	}
	if config.Logger == nil {
		return nil, errors.New("assetstore: Logger is required")
	}
	key := config.SigningKey
	if key == nil {
		var err error
		if _, key, err = ed25519.GenerateKey(nil); err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
	}
	if config.FallbackKey != "" {
		if err := asset.ValidateKey(config.FallbackKey); err != nil {
			return nil, fmt.Errorf("fallback key: %w", err)
		}
	}
	for _, encoding := range config.EncodingPriority {
		if _, err := encoding.MarshalText(); err != nil {
			return nil, fmt.Errorf("encoding priority: %w", err)
		}
	}

	state := &State{
		clock:            config.Clock,
		logger:           config.Logger,
		key:              key,
		batchTTL:         config.BatchTTL,
		limits:           config.Limits,
		encodingPriority: config.EncodingPriority,
		rawHostMarker:    config.RawHostMarker,
		fallbackKey:      config.FallbackKey,
		fallbackStatus:   config.FallbackStatus,
		assets:           make(map[string]*Asset),
		batches:          make(map[asset.BatchID]*batch),
		chunks:           make(map[asset.ChunkID]*chunk),
		committed:        make(map[asset.BatchID]time.Time),
		nextBatchID:      1,
		nextChunkID:      1,
	}
	if state.batchTTL == 0 {
		state.batchTTL = DefaultBatchTTL
	}
	if len(state.encodingPriority) == 0 {
		state.encodingPriority = asset.DefaultEncodingPriority
	}
	if state.rawHostMarker == "" {
		state.rawHostMarker = DefaultRawHostMarker
	}
	if state.fallbackStatus == 0 {
		state.fallbackStatus = 404
	}
	state.recertify()
	return state, nil
}

// PublicKey returns the key certificates are signed with.
func (s *State) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// APIVersion returns the protocol version.
func (s *State) APIVersion() uint16 {
	return asset.APIVersion
}

// List returns every asset, sorted by key, with its encodings in
// declaration order.
func (s *State) List() []asset.AssetDetails {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := slices.Sorted(maps.Keys(s.assets))
	details := make([]asset.AssetDetails, 0, len(keys))
	for _, key := range keys {
		stored := s.assets[key]
		entry := asset.AssetDetails{
			Key:         key,
			ContentType: stored.ContentType,
			Encodings:   []asset.AssetEncodingDetails{},
		}
		for _, contentEncoding := range asset.AllEncodings {
			encoding, exists := stored.Encodings[contentEncoding]
			if !exists {
				continue
			}
			entry.Encodings = append(entry.Encodings, asset.AssetEncodingDetails{
				ContentEncoding: contentEncoding,
				SHA256:          encoding.SHA256,
				Length:          encoding.TotalLength,
				Modified:        encoding.Modified,
			})
		}
		details = append(details, entry)
	}
	return details
}

// GetAssetProperties returns the mutable properties of key.
func (s *State) GetAssetProperties(key string) (asset.AssetProperties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.assets[key]
	if !exists {
		return asset.AssetProperties{}, asset.Consistencyf("asset %s not found", key)
	}
	return asset.AssetProperties{
		MaxAge:         stored.MaxAge,
		Headers:        maps.Clone(stored.Headers),
		AllowRawAccess: stored.AllowRawAccess,
		IsAliased:      stored.IsAliased,
	}, nil
}

// Get returns the first chunk of the first of acceptEncodings that key
// has.
func (s *State) Get(key string, acceptEncodings []asset.ContentEncoding) (asset.EncodedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.assets[key]
	if !exists {
		return asset.EncodedAsset{}, asset.Consistencyf("asset %s not found", key)
	}
	for _, contentEncoding := range acceptEncodings {
		encoding, exists := stored.Encodings[contentEncoding]
		if !exists {
			continue
		}
		digest := encoding.SHA256
		return asset.EncodedAsset{
			Content:         encoding.chunk(0),
			ContentType:     stored.ContentType,
			ContentEncoding: contentEncoding,
			TotalLength:     encoding.TotalLength,
			SHA256:          &digest,
		}, nil
	}
	return asset.EncodedAsset{}, asset.Consistencyf("asset %s has none of the accepted encodings", key)
}

// GetChunk returns chunk index of one encoding of key. When sha256 is
// given it must match the encoding's digest, which detects content
// replaced between chunk fetches.
func (s *State) GetChunk(key string, contentEncoding asset.ContentEncoding, index uint64, sha256 *asset.Hash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoding, err := s.encoding(key, contentEncoding, sha256)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(encoding.Chunks)) {
		return nil, asset.Validationf("chunk index %d out of range for %s (%s has %d chunks)", index, key, contentEncoding, len(encoding.Chunks))
	}
	return encoding.Chunks[index], nil
}

// encoding looks up a stored encoding, checking its digest when one is
// given.
func (s *State) encoding(key string, contentEncoding asset.ContentEncoding, sha256 *asset.Hash) (*Encoding, error) {
	stored, exists := s.assets[key]
	if !exists {
		return nil, asset.Consistencyf("asset %s not found", key)
	}
	encoding, exists := stored.Encodings[contentEncoding]
	if !exists {
		return nil, asset.Consistencyf("asset %s has no %s encoding", key, contentEncoding)
	}
	if sha256 != nil && *sha256 != encoding.SHA256 {
		return nil, asset.Consistencyf("sha256 mismatch for %s (%s): content changed", key, contentEncoding)
	}
	return encoding, nil
}

// chunk returns chunk index, or an empty body for a zero-chunk
// encoding.
func (e *Encoding) chunk(index int) []byte {
	if index >= len(e.Chunks) {
		return []byte{}
	}
	return e.Chunks[index]
}

// Limits returns the current staging limits.
func (s *State) Limits() asset.Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// Configure updates the staging limits. Lowering a limit below current
// usage does not evict anything; it only blocks further growth.
func (s *State) Configure(arguments asset.ConfigureArguments) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	limits, err := arguments.Apply(s.limits)
	if err != nil {
		return err
	}
	s.limits = limits
	s.logger.Info("limits configured",
		"max_batches", formatLimit(limits.MaxBatches),
		"max_chunks", formatLimit(limits.MaxChunks),
		"max_bytes", formatLimit(limits.MaxBytes),
	)
	return nil
}

func formatLimit(limit *uint64) string {
	if limit == nil {
		return "unlimited"
	}
	return fmt.Sprint(*limit)
}
