// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import "strings"

// AssetEncodingDetails describes one stored encoding in a listing.
type AssetEncodingDetails struct {
	ContentEncoding ContentEncoding `cbor:"content_encoding"`
	SHA256          Hash            `cbor:"sha256"`
	Length          uint64          `cbor:"length"`
	// Modified is the store clock time of the last SetAssetContent,
	// in Unix nanoseconds.
	Modified int64 `cbor:"modified"`
}

// AssetDetails is one entry of the store's list result.
type AssetDetails struct {
	Key         string                 `cbor:"key"`
	ContentType string                 `cbor:"content_type"`
	Encodings   []AssetEncodingDetails `cbor:"encodings"`
}

// Encoding returns the details of one encoding, if present.
func (d AssetDetails) Encoding(encoding ContentEncoding) (AssetEncodingDetails, bool) {
	for _, details := range d.Encodings {
		if details.ContentEncoding == encoding {
			return details, true
		}
	}
	return AssetEncodingDetails{}, false
}

// AssetProperties are the mutable properties of an asset.
type AssetProperties struct {
	MaxAge         *uint64           `cbor:"max_age,omitempty"`
	Headers        map[string]string `cbor:"headers,omitempty"`
	AllowRawAccess *bool             `cbor:"allow_raw_access,omitempty"`
	IsAliased      *bool             `cbor:"is_aliased,omitempty"`
}

// StreamingCallbackToken identifies the next chunk of a response body
// too large for one message.
type StreamingCallbackToken struct {
	Key             string          `cbor:"key"`
	ContentEncoding ContentEncoding `cbor:"content_encoding"`
	Index           uint64          `cbor:"index"`
	SHA256          *Hash           `cbor:"sha256,omitempty"`
}

// HeaderField is one HTTP header. Headers travel as an ordered list
// because HTTP allows repeated names.
type HeaderField struct {
	Name  string `cbor:"name"`
	Value string `cbor:"value"`
}

// HTTPRequest is a request handed to the store's HTTP responder.
type HTTPRequest struct {
	Method  string        `cbor:"method"`
	URL     string        `cbor:"url"`
	Headers []HeaderField `cbor:"headers"`
	Body    []byte        `cbor:"body,omitempty"`
	// CertificateVersion selects the certification scheme: 1 for the
	// legacy per-path scheme, 2 (the default when absent) for the
	// expression-path scheme.
	CertificateVersion *uint16 `cbor:"certificate_version,omitempty"`
}

// Header returns the first value of the named header,
// case-insensitively.
func (r HTTPRequest) Header(name string) (string, bool) {
	return findHeader(r.Headers, name)
}

// HTTPResponse is the responder's answer. When StreamingToken is
// present the body holds only the first chunk; the caller fetches the
// rest through the streaming callback, in order.
type HTTPResponse struct {
	StatusCode     uint16                  `cbor:"status_code"`
	Headers        []HeaderField           `cbor:"headers"`
	Body           []byte                  `cbor:"body"`
	StreamingToken *StreamingCallbackToken `cbor:"streaming_token,omitempty"`
}

// Header returns the first value of the named header,
// case-insensitively.
func (r HTTPResponse) Header(name string) (string, bool) {
	return findHeader(r.Headers, name)
}

// StreamingCallbackResponse carries one further chunk of a response
// body and, unless it is the last one, the token for the next.
type StreamingCallbackResponse struct {
	Body  []byte                  `cbor:"body"`
	Token *StreamingCallbackToken `cbor:"token,omitempty"`
}

func findHeader(headers []HeaderField, name string) (string, bool) {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value, true
		}
	}
	return "", false
}
