// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"net/http"
	"strconv"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// CertificateVersionHeader selects the certification scheme of a
// gateway response. Absent means version 2.
const CertificateVersionHeader = "Certificate-Version"

// Gateway returns an http.Handler answering requests from the store
// through HTTPRequest. Streamed bodies are written chunk by chunk by
// following the streaming tokens; the client sees one complete body.
func (s *State) Gateway() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assetRequest := asset.HTTPRequest{
			Method:  request.Method,
			URL:     request.URL.RequestURI(),
			Headers: []asset.HeaderField{{Name: "host", Value: request.Host}},
		}
		for name, values := range request.Header {
			for _, value := range values {
				assetRequest.Headers = append(assetRequest.Headers, asset.HeaderField{Name: name, Value: value})
			}
		}
		if raw := request.Header.Get(CertificateVersionHeader); raw != "" {
			if version, err := strconv.ParseUint(raw, 10, 16); err == nil {
				certificateVersion := uint16(version)
				assetRequest.CertificateVersion = &certificateVersion
			}
		}

		response := s.HTTPRequest(assetRequest)
		for _, header := range response.Headers {
			writer.Header().Add(header.Name, header.Value)
		}
		writer.WriteHeader(int(response.StatusCode))
		if _, err := writer.Write(response.Body); err != nil {
			return
		}

		token := response.StreamingToken
		for token != nil {
			next, err := s.HTTPRequestStreamingCallback(*token)
			if err != nil {
				// The status line is already written; all that is
				// left is to cut the body short.
				s.logger.Warn("streaming response aborted",
					"key", token.Key,
					"index", token.Index,
					"error", err,
				)
				return
			}
			if _, err := writer.Write(next.Body); err != nil {
				return
			}
			token = next.Token
		}
	})
}
