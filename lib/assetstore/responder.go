// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/certtree"
)

// HTTPRequest answers an HTTP request from the committed assets.
//
// The query string is ignored and the path percent-decoded. A path
// with no asset of its own is served by the asset it aliases
// ("/a/" and "/a" by "/a/index.html", "/a" by "/a.html"), then by the
// fallback asset, then with an uncertified 404. Requests on a raw host
// are served uncertified if the asset allows raw access and are
// otherwise redirected to the certified host. HEAD responses carry the
// GET headers without certification: the certified response hash
// covers a body that HEAD does not return.
//
// Only the first chunk of the body is returned. When the encoding has
// more, the response carries a streaming token for
// HTTPRequestStreamingCallback.
func (s *State) HTTPRequest(request asset.HTTPRequest) asset.HTTPResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	if request.Method != "GET" && request.Method != "HEAD" {
		return plainResponse(405, "method not allowed")
	}
	requestPath, err := certtree.RequestPath(request.URL)
	if err != nil {
		return plainResponse(400, err.Error())
	}

	stored, fallback := s.resolve(requestPath)
	if stored == nil {
		return plainResponse(404, "not found")
	}

	host, _ := request.Header("Host")
	raw := s.rawHostMarker != "" && strings.Contains(strings.ToLower(host), s.rawHostMarker)
	if raw && !stored.rawAccessAllowed() {
		location := "https://" + strings.Replace(strings.ToLower(host), s.rawHostMarker, ".", 1) + request.URL
		return asset.HTTPResponse{
			StatusCode: 308,
			Headers:    []asset.HeaderField{{Name: "location", Value: location}},
			Body:       []byte{},
		}
	}

	acceptEncoding, _ := request.Header("Accept-Encoding")
	contentEncoding := s.negotiate(stored, acceptEncoding)
	encoding := stored.Encodings[contentEncoding]
	etag := `"` + encoding.SHA256.String() + `"`

	if ifNoneMatch, present := request.Header("If-None-Match"); present && matchesETag(ifNoneMatch, encoding.SHA256) {
		return asset.HTTPResponse{
			StatusCode: 304,
			Headers:    []asset.HeaderField{{Name: "etag", Value: etag}},
			Body:       []byte{},
		}
	}

	status := uint16(200)
	if fallback {
		status = s.fallbackStatus
	}
	response := asset.HTTPResponse{
		StatusCode: status,
		Headers:    append(certifiedHeaders(stored, contentEncoding), asset.HeaderField{Name: "etag", Value: etag}),
		Body:       encoding.chunk(0),
	}

	if !raw && request.Method != "HEAD" {
		version := 2
		if request.CertificateVersion != nil && *request.CertificateVersion == 1 {
			version = 1
		}
		certification, err := s.certificationHeaders(version, requestPath, encoding, status, fallback)
		if err != nil {
			s.logger.Error("certifying response failed", "path", requestPath, "error", err)
			return plainResponse(500, "certification failed")
		}
		response.Headers = append(response.Headers, certification...)
	}

	if request.Method == "HEAD" {
		response.Body = []byte{}
		return response
	}
	if len(encoding.Chunks) > 1 {
		digest := encoding.SHA256
		response.StreamingToken = &asset.StreamingCallbackToken{
			Key:             stored.Key,
			ContentEncoding: contentEncoding,
			Index:           1,
			SHA256:          &digest,
		}
	}
	return response
}

// HTTPRequestStreamingCallback returns the chunk a streaming token
// names and the token for the chunk after it, if any.
func (s *State) HTTPRequestStreamingCallback(token asset.StreamingCallbackToken) (asset.StreamingCallbackResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoding, err := s.encoding(token.Key, token.ContentEncoding, token.SHA256)
	if err != nil {
		return asset.StreamingCallbackResponse{}, err
	}
	if token.Index >= uint64(len(encoding.Chunks)) {
		return asset.StreamingCallbackResponse{}, asset.Validationf("streaming index %d out of range for %s (%s has %d chunks)",
			token.Index, token.Key, token.ContentEncoding, len(encoding.Chunks))
	}

	response := asset.StreamingCallbackResponse{Body: encoding.Chunks[token.Index]}
	if next := token.Index + 1; next < uint64(len(encoding.Chunks)) {
		digest := encoding.SHA256
		response.Token = &asset.StreamingCallbackToken{
			Key:             token.Key,
			ContentEncoding: token.ContentEncoding,
			Index:           next,
			SHA256:          &digest,
		}
	}
	return response, nil
}

// resolve returns the asset that serves requestPath and whether it is
// the fallback.
func (s *State) resolve(requestPath string) (*Asset, bool) {
	if key, served := s.served[requestPath]; served {
		return s.assets[key], false
	}
	if fallback := s.fallbackAsset(); fallback != nil {
		return fallback, true
	}
	return nil, false
}

// negotiate picks the first encoding in priority order that the asset
// has and the request accepts. If the request accepts none of them,
// the asset's highest-priority encoding is served anyway: a
// compressed body the client may not decode is more useful than no
// body.
func (s *State) negotiate(stored *Asset, acceptEncoding string) asset.ContentEncoding {
	accepted := acceptedEncodings(acceptEncoding)
	for _, contentEncoding := range s.encodingPriority {
		if _, exists := stored.Encodings[contentEncoding]; exists && accepted[contentEncoding] {
			return contentEncoding
		}
	}
	for _, contentEncoding := range slices.Concat(s.encodingPriority, asset.AllEncodings) {
		if _, exists := stored.Encodings[contentEncoding]; exists {
			return contentEncoding
		}
	}
	// Unreachable for a servable asset.
	return asset.Identity
}

// acceptedEncodings parses an Accept-Encoding header. Identity is
// accepted unless explicitly refused; unknown codings are ignored.
func acceptedEncodings(header string) map[asset.ContentEncoding]bool {
	accepted := map[asset.ContentEncoding]bool{asset.Identity: true}
	for _, part := range strings.Split(header, ",") {
		name, parameters, _ := strings.Cut(part, ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		acceptable := true
		for _, parameter := range strings.Split(parameters, ";") {
			key, value, _ := strings.Cut(strings.TrimSpace(parameter), "=")
			if strings.EqualFold(key, "q") {
				if quality, err := strconv.ParseFloat(value, 64); err == nil && quality == 0 {
					acceptable = false
				}
			}
		}
		if name == "*" {
			for _, contentEncoding := range asset.AllEncodings {
				if _, explicit := accepted[contentEncoding]; !explicit || contentEncoding == asset.Identity {
					accepted[contentEncoding] = acceptable
				}
			}
			continue
		}
		contentEncoding, err := asset.ParseContentEncoding(name)
		if err != nil {
			continue
		}
		accepted[contentEncoding] = acceptable
	}
	return accepted
}

// matchesETag reports whether an If-None-Match header names digest.
func matchesETag(header string, digest asset.Hash) bool {
	for _, tag := range strings.Split(header, ",") {
		tag = strings.Trim(strings.TrimPrefix(strings.TrimSpace(tag), "W/"), `"`)
		if tag == "*" || tag == digest.String() {
			return true
		}
	}
	return false
}

// certificationHeaders returns the Certificate header, plus the
// expression header for version 2, proving the response for
// requestPath.
func (s *State) certificationHeaders(version int, requestPath string, encoding *Encoding, status uint16, fallback bool) ([]asset.HeaderField, error) {
	header := certtree.CertificateHeaderValue{Certificate: s.certificate, Version: version}
	var witness certtree.HashTree

	if version == 1 {
		witness = s.tree.Witness(certtree.LegacyPath(requestPath))
		if fallback {
			var err error
			witness, err = certtree.Merge(witness, s.tree.Witness(certtree.LegacyPath(s.fallbackKey)))
			if err != nil {
				return nil, err
			}
		}
	} else {
		header.ExpressionPath = certtree.ExactPath(requestPath)
		if fallback {
			header.ExpressionPath = certtree.WildcardPath("/")
		}
		responsePath := certtree.ResponsePath(header.ExpressionPath, certtree.ExpressionHash(encoding.Expression), encoding.ResponseHashes[status])
		witness = s.tree.Witness(responsePath)
		if fallback {
			var err error
			witness, err = certtree.Merge(s.tree.Witness(certtree.ExactPath(requestPath)), witness)
			if err != nil {
				return nil, err
			}
		}
	}

	tree, err := certtree.Encode(witness)
	if err != nil {
		return nil, err
	}
	header.Tree = tree
	value, err := header.Format()
	if err != nil {
		return nil, err
	}

	headers := []asset.HeaderField{{Name: strings.ToLower(certtree.CertificateHeader), Value: value}}
	if version >= 2 {
		headers = append(headers, asset.HeaderField{Name: strings.ToLower(certtree.ExpressionHeader), Value: encoding.Expression})
	}
	return headers, nil
}

func plainResponse(status uint16, message string) asset.HTTPResponse {
	return asset.HTTPResponse{
		StatusCode: status,
		Headers:    []asset.HeaderField{{Name: "content-type", Value: "text/plain; charset=utf-8"}},
		Body:       []byte(message),
	}
}
