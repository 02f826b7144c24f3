// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package certtree

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/certasset/lib/codec"
)

// Labels of the two certification schemes.
const (
	// LegacyRoot is the first label of version 1 paths:
	// ["http_assets", key] with the encoding's SHA-256 as the leaf.
	LegacyRoot = "http_assets"
	// ExpressionRoot is the first label of version 2 paths:
	// ["http_expr", segments..., "<$>", expression hash, request
	// hash, response hash] with an empty leaf.
	ExpressionRoot = "http_expr"
	// ExactMarker terminates the segments of a path certified for
	// exactly that URL.
	ExactMarker = "<$>"
	// WildcardMarker terminates the segments of a path certified for
	// every URL under that prefix with no exact entry.
	WildcardMarker = "<*>"
)

// Response header names.
const (
	CertificateHeader = "Certificate"
	ExpressionHeader  = "Certificate-Expression"
	// statusPseudoHeader carries the status code into the response
	// hash.
	statusPseudoHeader = ":certificate-status"
)

// RequestPath extracts the asset key from a request URL: the query
// and fragment are removed and the path is percent-decoded.
func RequestPath(rawURL string) (string, error) {
	path := rawURL
	if index := strings.IndexAny(path, "?#"); index >= 0 {
		path = path[:index]
	}
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("decoding request path %q: %w", path, err)
	}
	if !strings.HasPrefix(decoded, "/") {
		decoded = "/" + decoded
	}
	return decoded, nil
}

// PathSegments splits a key into URL segments: "/a/b" is ["a", "b"],
// "/" is [""] and "/a/" is ["a", ""].
func PathSegments(key string) []string {
	return strings.Split(strings.TrimPrefix(key, "/"), "/")
}

// LegacyPath is the version 1 tree path of key.
func LegacyPath(key string) []string {
	return []string{LegacyRoot, key}
}

// ExactPath is the version 2 path prefix certifying key exactly.
func ExactPath(key string) []string {
	return append(append([]string{ExpressionRoot}, PathSegments(key)...), ExactMarker)
}

// WildcardPath is the version 2 path prefix certifying every URL
// under the directory prefix with no exact entry. The directory "/"
// yields ["http_expr", "", "<*>"].
func WildcardPath(prefix string) []string {
	segments := PathSegments(prefix)
	return append(append([]string{ExpressionRoot}, segments...), WildcardMarker)
}

// ResponsePath is the full version 2 path of one certified response.
// The request hash label is empty: requests are not certified.
func ResponsePath(prefix []string, expressionHash, responseHash [32]byte) []string {
	return append(slices.Clone(prefix), string(expressionHash[:]), "", string(responseHash[:]))
}

// Expression returns the certification expression listing the
// response headers covered by the response hash. Header names are
// lower-cased.
func Expression(certifiedHeaders []string) string {
	quoted := make([]string, len(certifiedHeaders))
	for i, name := range certifiedHeaders {
		quoted[i] = strconv.Quote(strings.ToLower(name))
	}
	return "default_certification(ValidationArgs{certification:Certification{no_request_certification:Empty{}," +
		"response_certification:ResponseCertification{certified_response_headers:ResponseHeaderList{headers:[" +
		strings.Join(quoted, ",") + "]}}}})"
}

// ParseExpression returns the certified header names listed in an
// expression produced by [Expression].
func ParseExpression(expression string) ([]string, error) {
	const open = "headers:["
	start := strings.Index(expression, open)
	if start < 0 {
		return nil, fmt.Errorf("certification expression has no header list")
	}
	rest := expression[start+len(open):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return nil, fmt.Errorf("certification expression header list is not terminated")
	}
	list := strings.TrimSpace(rest[:end])
	if list == "" {
		return nil, nil
	}
	var names []string
	for _, item := range strings.Split(list, ",") {
		name, err := strconv.Unquote(strings.TrimSpace(item))
		if err != nil {
			return nil, fmt.Errorf("certification expression header %s: %w", item, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// ExpressionHash is the SHA-256 of the expression text.
func ExpressionHash(expression string) [32]byte {
	return sha256.Sum256([]byte(expression))
}

// ResponseHash binds a status code, the certified headers, and the
// body digest. Header names are compared lower-cased. The header map
// is hashed independently of order: each name and value is hashed,
// the pairs are sorted, and the concatenation is hashed.
func ResponseHash(statusCode uint16, headers map[string]string, bodyHash [32]byte) [32]byte {
	pairs := make([][]byte, 0, len(headers)+1)
	addPair := func(name, value string) {
		nameHash := sha256.Sum256([]byte(strings.ToLower(name)))
		valueHash := sha256.Sum256([]byte(value))
		pairs = append(pairs, append(nameHash[:], valueHash[:]...))
	}
	for name, value := range headers {
		addPair(name, value)
	}
	addPair(statusPseudoHeader, strconv.Itoa(int(statusCode)))
	slices.SortFunc(pairs, bytes.Compare)

	headersHash := sha256.Sum256(bytes.Join(pairs, nil))
	return sha256.Sum256(append(headersHash[:], bodyHash[:]...))
}

// CertificateHeaderValue is the parsed Certificate response header.
type CertificateHeaderValue struct {
	Certificate []byte
	Tree        []byte
	Version     int
	// ExpressionPath is set for version 2.
	ExpressionPath []string
}

// Format renders the header value as comma-separated fields with
// byte fields base64-encoded between colons.
func (v CertificateHeaderValue) Format() (string, error) {
	fields := []string{
		"certificate=:" + base64.StdEncoding.EncodeToString(v.Certificate) + ":",
		"tree=:" + base64.StdEncoding.EncodeToString(v.Tree) + ":",
	}
	if v.Version >= 2 {
		path, err := codec.MarshalSelfDescribed(v.ExpressionPath)
		if err != nil {
			return "", fmt.Errorf("encoding expression path: %w", err)
		}
		fields = append(fields,
			"version="+strconv.Itoa(v.Version),
			"expr_path=:"+base64.StdEncoding.EncodeToString(path)+":",
		)
	}
	return strings.Join(fields, ", "), nil
}

// ParseCertificateHeader is the inverse of Format. A header without a
// version field is version 1.
func ParseCertificateHeader(value string) (CertificateHeaderValue, error) {
	parsed := CertificateHeaderValue{Version: 1}
	for _, field := range strings.Split(value, ",") {
		name, content, found := strings.Cut(strings.TrimSpace(field), "=")
		if !found {
			return parsed, fmt.Errorf("certificate header field %q has no value", field)
		}
		switch name {
		case "certificate", "tree", "expr_path":
			decoded, err := decodeColonBase64(content)
			if err != nil {
				return parsed, fmt.Errorf("certificate header field %s: %w", name, err)
			}
			switch name {
			case "certificate":
				parsed.Certificate = decoded
			case "tree":
				parsed.Tree = decoded
			default:
				if err := codec.UnmarshalSelfDescribed(decoded, &parsed.ExpressionPath); err != nil {
					return parsed, fmt.Errorf("decoding expression path: %w", err)
				}
			}
		case "version":
			version, err := strconv.Atoi(content)
			if err != nil {
				return parsed, fmt.Errorf("certificate header version %q: %w", content, err)
			}
			parsed.Version = version
		}
	}
	if parsed.Certificate == nil || parsed.Tree == nil {
		return parsed, fmt.Errorf("certificate header lacks certificate or tree")
	}
	if parsed.Version >= 2 && parsed.ExpressionPath == nil {
		return parsed, fmt.Errorf("version %d certificate header lacks expr_path", parsed.Version)
	}
	return parsed, nil
}

func decodeColonBase64(content string) ([]byte, error) {
	if len(content) < 2 || content[0] != ':' || content[len(content)-1] != ':' {
		return nil, fmt.Errorf("value %q is not colon-delimited", content)
	}
	return base64.StdEncoding.DecodeString(content[1 : len(content)-1])
}
