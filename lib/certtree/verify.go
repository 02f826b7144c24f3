// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package certtree

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"
	"slices"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// VerifyOptions configures [VerifyResponse].
type VerifyOptions struct {
	// TrustedKey is the store's public key. When nil the key embedded
	// in the certificate is accepted.
	TrustedKey ed25519.PublicKey
	// FallbackKey is the asset served for unknown paths, needed to
	// verify version 1 fallback responses. Version 2 responses carry
	// their wildcard path and do not need it.
	FallbackKey string
}

// VerifiedResponse reports what a successful verification proved.
type VerifiedResponse struct {
	Version int
	Root    Digest
	// Path is the tree path whose leaf certified the response.
	Path []string
	// Fallback is true when the response was certified for a path
	// other than the request's own (a wildcard or fallback asset).
	Fallback bool
}

// VerifyResponse checks that response, whose complete body is body,
// is certified for requestURL: the certificate signature is valid, the
// witness reconstructs the certified root, and the witness proves the
// body (and in version 2 the status code and certified headers).
func VerifyResponse(requestURL string, response asset.HTTPResponse, body []byte, options VerifyOptions) (VerifiedResponse, error) {
	var verified VerifiedResponse

	headerValue, ok := response.Header(CertificateHeader)
	if !ok {
		return verified, fmt.Errorf("response has no %s header", CertificateHeader)
	}
	header, err := ParseCertificateHeader(headerValue)
	if err != nil {
		return verified, err
	}
	verified.Version = header.Version

	certificate, err := DecodeCertificate(header.Certificate)
	if err != nil {
		return verified, err
	}
	if err := certificate.Verify(options.TrustedKey); err != nil {
		return verified, err
	}
	verified.Root, err = certificate.Root()
	if err != nil {
		return verified, err
	}

	witness, err := Decode(header.Tree)
	if err != nil {
		return verified, err
	}
	if witness.Digest() != verified.Root {
		return verified, fmt.Errorf("witness digest %s does not match certified root %s", witness.Digest(), verified.Root)
	}

	requestPath, err := RequestPath(requestURL)
	if err != nil {
		return verified, err
	}

	if header.Version < 2 {
		return verifyLegacy(witness, requestPath, response, body, options, verified)
	}
	return verifyExpression(witness, requestPath, header.ExpressionPath, response, body, verified)
}

func verifyLegacy(witness HashTree, requestPath string, response asset.HTTPResponse, body []byte, options VerifyOptions, verified VerifiedResponse) (VerifiedResponse, error) {
	verified.Path = LegacyPath(requestPath)
	result := Lookup(witness, StringPath(verified.Path))
	if result.Status == LookupAbsent && options.FallbackKey != "" {
		verified.Path = LegacyPath(options.FallbackKey)
		verified.Fallback = true
		result = Lookup(witness, StringPath(verified.Path))
	}
	if result.Status != LookupFound {
		return verified, fmt.Errorf("witness does not certify %v: %s", verified.Path, result.Status)
	}

	bodyHash := sha256.Sum256(body)
	if bytes.Equal(result.Value, bodyHash[:]) {
		return verified, nil
	}
	// The legacy scheme certifies one encoding per path; a response
	// in another encoding verifies against its decoded bytes.
	encoding, _ := response.Header("Content-Encoding")
	decoded, err := decodeBody(encoding, body)
	if err != nil {
		return verified, err
	}
	decodedHash := sha256.Sum256(decoded)
	if !bytes.Equal(result.Value, decodedHash[:]) {
		return verified, fmt.Errorf("body digest does not match certified digest for %v", verified.Path)
	}
	return verified, nil
}

func verifyExpression(witness HashTree, requestPath string, expressionPath []string, response asset.HTTPResponse, body []byte, verified VerifiedResponse) (VerifiedResponse, error) {
	if len(expressionPath) < 2 || expressionPath[0] != ExpressionRoot {
		return verified, fmt.Errorf("expression path %v is not under %s", expressionPath, ExpressionRoot)
	}
	exact := ExactPath(requestPath)
	switch expressionPath[len(expressionPath)-1] {
	case ExactMarker:
		if !slices.Equal(expressionPath, exact) {
			return verified, fmt.Errorf("expression path %v does not match request path %s", expressionPath, requestPath)
		}
	case WildcardMarker:
		directory := expressionPath[1 : len(expressionPath)-1]
		if len(directory) > 0 && directory[len(directory)-1] == "" {
			directory = directory[:len(directory)-1]
		}
		if !hasPrefix(PathSegments(requestPath), directory) {
			return verified, fmt.Errorf("wildcard path %v does not cover request path %s", expressionPath, requestPath)
		}
		if status := Lookup(witness, StringPath(exact)).Status; status != LookupAbsent {
			return verified, fmt.Errorf("witness does not prove %s has no exact certification: %s", requestPath, status)
		}
		verified.Fallback = true
	default:
		return verified, fmt.Errorf("expression path %v has no terminal marker", expressionPath)
	}

	expression, ok := response.Header(ExpressionHeader)
	if !ok {
		return verified, fmt.Errorf("response has no %s header", ExpressionHeader)
	}
	names, err := ParseExpression(expression)
	if err != nil {
		return verified, err
	}
	certified := make(map[string]string, len(names))
	for _, name := range names {
		value, ok := response.Header(name)
		if !ok {
			return verified, fmt.Errorf("certified header %q is missing from the response", name)
		}
		certified[name] = value
	}

	responseHash := ResponseHash(response.StatusCode, certified, sha256.Sum256(body))
	verified.Path = ResponsePath(expressionPath, ExpressionHash(expression), responseHash)
	result := Lookup(witness, StringPath(verified.Path))
	if result.Status != LookupFound || len(result.Value) != 0 {
		return verified, fmt.Errorf("witness does not certify this response under %v: %s", expressionPath, result.Status)
	}
	return verified, nil
}

func hasPrefix(segments, prefix []string) bool {
	return len(segments) >= len(prefix) && slices.Equal(segments[:len(prefix)], prefix)
}

func decodeBody(encoding string, body []byte) ([]byte, error) {
	contentEncoding := asset.Identity
	if encoding != "" {
		var err error
		contentEncoding, err = asset.ParseContentEncoding(encoding)
		if err != nil {
			return nil, err
		}
	}
	switch contentEncoding {
	case asset.Gzip:
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("decoding gzip body: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case asset.Brotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	default:
		return body, nil
	}
}
