// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

// Socket actions of the store protocol. Every request is a CBOR map
// carrying "action" plus the fields of the matching request type
// below; actions without a request type take no fields.
const (
	ActionCreateBatch                  = "create_batch"
	ActionCreateChunk                  = "create_chunk"
	ActionProposeCommitBatch           = "propose_commit_batch"
	ActionComputeEvidence              = "compute_evidence"
	ActionCommitProposedBatch          = "commit_proposed_batch"
	ActionCommitBatch                  = "commit_batch"
	ActionDeleteBatch                  = "delete_batch"
	ActionList                         = "list"
	ActionGetAssetProperties           = "get_asset_properties"
	ActionGet                          = "get"
	ActionGetChunk                     = "get_chunk"
	ActionHTTPRequest                  = "http_request"
	ActionHTTPRequestStreamingCallback = "http_request_streaming_callback"
	ActionCertifiedTree                = "certified_tree"
	ActionAPIVersion                   = "api_version"
	ActionGetConfiguration             = "get_configuration"
	ActionConfigure                    = "configure"
)

// CreateBatchResponse is the result of create_batch.
type CreateBatchResponse struct {
	BatchID BatchID `cbor:"batch_id"`
}

// CreateChunkRequest uploads one chunk into a batch.
type CreateChunkRequest struct {
	BatchID BatchID `cbor:"batch_id"`
	Content []byte  `cbor:"content"`
}

// CreateChunkResponse is the result of create_chunk.
type CreateChunkResponse struct {
	ChunkID ChunkID `cbor:"chunk_id"`
}

// CommitBatchRequest is the request of both commit_batch and
// propose_commit_batch.
type CommitBatchRequest struct {
	BatchID    BatchID          `cbor:"batch_id"`
	Operations []BatchOperation `cbor:"operations"`
}

// ComputeEvidenceRequest advances the evidence computation of a
// proposed batch.
type ComputeEvidenceRequest struct {
	BatchID       BatchID `cbor:"batch_id"`
	MaxIterations uint16  `cbor:"max_iterations,omitempty"`
}

// ComputeEvidenceResponse carries the evidence once it is complete.
// Evidence is absent while the store is still computing.
type ComputeEvidenceResponse struct {
	Evidence *Hash `cbor:"evidence,omitempty"`
}

// CommitProposedBatchRequest commits a proposed batch if Evidence
// matches the store's digest.
type CommitProposedBatchRequest struct {
	BatchID  BatchID `cbor:"batch_id"`
	Evidence Hash    `cbor:"evidence"`
}

// DeleteBatchRequest discards a batch.
type DeleteBatchRequest struct {
	BatchID BatchID `cbor:"batch_id"`
}

// KeyRequest names one asset.
type KeyRequest struct {
	Key string `cbor:"key"`
}

// GetRequest asks for the first of AcceptEncodings an asset has.
type GetRequest struct {
	Key             string            `cbor:"key"`
	AcceptEncodings []ContentEncoding `cbor:"accept_encodings"`
}

// GetChunkRequest asks for one chunk of one encoding.
type GetChunkRequest struct {
	Key             string          `cbor:"key"`
	ContentEncoding ContentEncoding `cbor:"content_encoding"`
	Index           uint64          `cbor:"index"`
	SHA256          *Hash           `cbor:"sha256,omitempty"`
}

// GetChunkResponse is the result of get_chunk.
type GetChunkResponse struct {
	Content []byte `cbor:"content"`
}

// HTTPRequestRequest wraps a request for the HTTP responder.
type HTTPRequestRequest struct {
	Request HTTPRequest `cbor:"request"`
}

// StreamingCallbackRequest asks for the chunk a token names.
type StreamingCallbackRequest struct {
	Token StreamingCallbackToken `cbor:"token"`
}

// APIVersionResponse is the result of api_version.
type APIVersionResponse struct {
	Version uint16 `cbor:"version"`
}
