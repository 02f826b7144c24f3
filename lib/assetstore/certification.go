// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/certtree"
)

// legacyEncodingOrder is the order in which the version 1 scheme
// picks the single encoding it certifies for a path.
var legacyEncodingOrder = []asset.ContentEncoding{asset.Identity, asset.Gzip, asset.Brotli}

// recertify rebuilds the certification tree from the assets and
// publishes a newly signed certificate. Certification is a pure
// function of the assets and the fallback configuration, so a tree
// rebuilt from a snapshot equals the one that was live when the
// snapshot was taken.
func (s *State) recertify() {
	tree := &certtree.NestedTree[string, []byte]{}
	s.served = s.servedPaths()
	for path, key := range s.served {
		s.certifyPath(tree, path, s.assets[key])
	}
	if fallback := s.fallbackAsset(); fallback != nil {
		for contentEncoding, encoding := range fallback.Encodings {
			headers := certifiedHeaders(fallback, contentEncoding)
			responseHash := certtree.ResponseHash(s.fallbackStatus, headerMap(headers), encoding.SHA256)
			encoding.ResponseHashes[s.fallbackStatus] = responseHash
			tree.Insert(certtree.ResponsePath(certtree.WildcardPath("/"), certtree.ExpressionHash(encoding.Expression), responseHash), []byte{})
		}
	}
	s.tree = tree
	s.publish()
}

// publish signs the current root.
func (s *State) publish() {
	certificate := certtree.SignCertificate(s.key, s.tree.RootHash(), s.clock.Now())
	encoded, err := certtree.EncodeCertificate(certificate)
	if err != nil {
		// Certificate is plain bytes and integers.
		panic("assetstore: encoding certificate: " + err.Error())
	}
	s.certificate = encoded
}

// servedPaths maps every certified request path to the key of the
// asset it serves: each servable asset under its own key, then each
// alias not already taken. Keys are visited in sorted order so that
// the first claimant of a contested alias is deterministic. The
// responder resolves requests through this same map, so a path is
// served exactly when it is certified.
func (s *State) servedPaths() map[string]string {
	keys := slices.Sorted(maps.Keys(s.assets))
	served := make(map[string]string, len(keys))
	for _, key := range keys {
		stored := s.assets[key]
		for _, encoding := range stored.Encodings {
			encoding.Certified = false
			encoding.Expression = ""
			encoding.ResponseHashes = make(map[uint16][32]byte)
		}
		if stored.servable() {
			served[key] = key
		}
	}
	for _, key := range keys {
		stored := s.assets[key]
		if !stored.servable() || !stored.aliased() {
			continue
		}
		for _, alias := range aliasesOf(key) {
			if _, taken := served[alias]; !taken {
				served[alias] = key
			}
		}
	}
	return served
}

// aliasesOf returns the alternative paths an asset is served under:
// "/a/index.html" as "/a/" and "/a", and "/a.html" as "/a".
func aliasesOf(key string) []string {
	switch {
	case strings.HasSuffix(key, "/index.html"):
		directory := strings.TrimSuffix(key, "index.html")
		aliases := []string{directory}
		if bare := strings.TrimSuffix(directory, "/"); bare != "" {
			aliases = append(aliases, bare)
		}
		return aliases
	case strings.HasSuffix(key, ".html"):
		if bare := strings.TrimSuffix(key, ".html"); bare != "" && !strings.HasSuffix(bare, "/") {
			return []string{bare}
		}
	}
	return nil
}

// certifyPath inserts the version 1 and version 2 entries for serving
// stored at path.
func (s *State) certifyPath(tree *certtree.NestedTree[string, []byte], path string, stored *Asset) {
	for _, contentEncoding := range legacyEncodingOrder {
		if encoding, exists := stored.Encodings[contentEncoding]; exists {
			tree.Insert(certtree.LegacyPath(path), encoding.SHA256[:])
			break
		}
	}

	for contentEncoding, encoding := range stored.Encodings {
		headers := certifiedHeaders(stored, contentEncoding)
		expression := certtree.Expression(headerNames(headers))
		responseHash := certtree.ResponseHash(200, headerMap(headers), encoding.SHA256)

		encoding.Certified = true
		encoding.Expression = expression
		encoding.ResponseHashes[200] = responseHash
		tree.Insert(certtree.ResponsePath(certtree.ExactPath(path), certtree.ExpressionHash(expression), responseHash), []byte{})
	}
}

// certifiedHeaders returns the headers an encoding is served with and
// whose values the response hash covers: content type, content
// encoding, cache control, then the asset's own headers by name. Asset
// headers that repeat an earlier name are dropped.
func certifiedHeaders(stored *Asset, contentEncoding asset.ContentEncoding) []asset.HeaderField {
	headers := []asset.HeaderField{{Name: "content-type", Value: stored.ContentType}}
	if contentEncoding != asset.Identity {
		headers = append(headers, asset.HeaderField{Name: "content-encoding", Value: contentEncoding.String()})
	}
	if stored.MaxAge != nil {
		headers = append(headers, asset.HeaderField{Name: "cache-control", Value: "max-age=" + strconv.FormatUint(*stored.MaxAge, 10)})
	}

	seen := make(map[string]bool, len(headers)+len(stored.Headers))
	for _, header := range headers {
		seen[header.Name] = true
	}
	for _, name := range slices.Sorted(maps.Keys(stored.Headers)) {
		lower := strings.ToLower(name)
		if seen[lower] || isCertificationHeader(lower) {
			continue
		}
		seen[lower] = true
		headers = append(headers, asset.HeaderField{Name: lower, Value: stored.Headers[name]})
	}
	return headers
}

func isCertificationHeader(lower string) bool {
	return lower == strings.ToLower(certtree.CertificateHeader) || lower == strings.ToLower(certtree.ExpressionHeader)
}

func headerNames(headers []asset.HeaderField) []string {
	names := make([]string, len(headers))
	for i, header := range headers {
		names[i] = header.Name
	}
	return names
}

func headerMap(headers []asset.HeaderField) map[string]string {
	out := make(map[string]string, len(headers))
	for _, header := range headers {
		out[header.Name] = header.Value
	}
	return out
}

// fallbackAsset returns the configured fallback asset if it exists
// and has content.
func (s *State) fallbackAsset() *Asset {
	if s.fallbackKey == "" {
		return nil
	}
	stored, exists := s.assets[s.fallbackKey]
	if !exists || !stored.servable() {
		return nil
	}
	return stored
}

// CertifiedTree returns the complete certification tree and the
// current certificate.
func (s *State) CertifiedTree() (asset.CertifiedTree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := certtree.Encode(s.tree.AsHashTree())
	if err != nil {
		return asset.CertifiedTree{}, asset.Resourcef("encoding certification tree: %v", err)
	}
	return asset.CertifiedTree{Tree: tree, Certificate: s.certificate}, nil
}

// RootHash returns the published root digest.
func (s *State) RootHash() certtree.Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.RootHash()
}
