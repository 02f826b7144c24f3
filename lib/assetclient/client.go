// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetclient

import (
	"context"
	"errors"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/service"
)

// Client talks to one asset store socket.
type Client struct {
	service *service.ServiceClient
}

// New returns a client for the store listening on socketPath. No
// connection is made until the first call.
func New(socketPath string) *Client {
	return &Client{service: service.NewServiceClient(socketPath)}
}

// SocketPath returns the socket the client connects to.
func (c *Client) SocketPath() string {
	return c.service.SocketPath()
}

// --- Staging and commit ---

// CreateBatch opens a batch.
func (c *Client) CreateBatch(ctx context.Context) (asset.BatchID, error) {
	var response asset.CreateBatchResponse
	if err := c.call(ctx, asset.ActionCreateBatch, nil, &response); err != nil {
		return 0, err
	}
	return response.BatchID, nil
}

// CreateChunk uploads one chunk into batchID.
func (c *Client) CreateChunk(ctx context.Context, batchID asset.BatchID, content []byte) (asset.ChunkID, error) {
	var response asset.CreateChunkResponse
	err := c.call(ctx, asset.ActionCreateChunk, map[string]any{
		"batch_id": batchID,
		"content":  content,
	}, &response)
	if err != nil {
		return 0, err
	}
	return response.ChunkID, nil
}

// CommitBatch applies operations directly, without evidence.
func (c *Client) CommitBatch(ctx context.Context, batchID asset.BatchID, operations []asset.BatchOperation) error {
	return c.call(ctx, asset.ActionCommitBatch, map[string]any{
		"batch_id":   batchID,
		"operations": operations,
	}, nil)
}

// ProposeCommitBatch stages operations for an evidence-gated commit.
func (c *Client) ProposeCommitBatch(ctx context.Context, batchID asset.BatchID, operations []asset.BatchOperation) error {
	return c.call(ctx, asset.ActionProposeCommitBatch, map[string]any{
		"batch_id":   batchID,
		"operations": operations,
	}, nil)
}

// ComputeEvidence advances the store's evidence computation by at most
// maxIterations steps. It returns nil until the digest is complete.
func (c *Client) ComputeEvidence(ctx context.Context, batchID asset.BatchID, maxIterations uint16) (*asset.Hash, error) {
	var response asset.ComputeEvidenceResponse
	err := c.call(ctx, asset.ActionComputeEvidence, map[string]any{
		"batch_id":       batchID,
		"max_iterations": maxIterations,
	}, &response)
	if err != nil {
		return nil, err
	}
	return response.Evidence, nil
}

// CommitProposedBatch commits a proposed batch if evidence matches the
// store's own digest.
func (c *Client) CommitProposedBatch(ctx context.Context, batchID asset.BatchID, evidence asset.Hash) error {
	return c.call(ctx, asset.ActionCommitProposedBatch, map[string]any{
		"batch_id": batchID,
		"evidence": evidence,
	}, nil)
}

// DeleteBatch abandons a batch and its chunks.
func (c *Client) DeleteBatch(ctx context.Context, batchID asset.BatchID) error {
	return c.call(ctx, asset.ActionDeleteBatch, map[string]any{"batch_id": batchID}, nil)
}

// --- Queries ---

// List returns every asset with its encodings.
func (c *Client) List(ctx context.Context) ([]asset.AssetDetails, error) {
	var response []asset.AssetDetails
	if err := c.call(ctx, asset.ActionList, nil, &response); err != nil {
		return nil, err
	}
	return response, nil
}

// GetAssetProperties returns the mutable properties of key.
func (c *Client) GetAssetProperties(ctx context.Context, key string) (asset.AssetProperties, error) {
	var response asset.AssetProperties
	err := c.call(ctx, asset.ActionGetAssetProperties, map[string]any{"key": key}, &response)
	return response, err
}

// Get returns the first chunk of the first encoding of key in
// acceptEncodings that exists.
func (c *Client) Get(ctx context.Context, key string, acceptEncodings []asset.ContentEncoding) (asset.EncodedAsset, error) {
	var response asset.EncodedAsset
	err := c.call(ctx, asset.ActionGet, map[string]any{
		"key":              key,
		"accept_encodings": acceptEncodings,
	}, &response)
	return response, err
}

// GetChunk returns one chunk of an encoding. When sha256 is non-nil
// the store fails if the encoding has changed.
func (c *Client) GetChunk(ctx context.Context, key string, contentEncoding asset.ContentEncoding, index uint64, sha256 *asset.Hash) ([]byte, error) {
	fields := map[string]any{
		"key":              key,
		"content_encoding": contentEncoding,
		"index":            index,
	}
	if sha256 != nil {
		fields["sha256"] = *sha256
	}
	var response asset.GetChunkResponse
	if err := c.call(ctx, asset.ActionGetChunk, fields, &response); err != nil {
		return nil, err
	}
	return response.Content, nil
}

// CertifiedTree returns the full certification tree and certificate.
func (c *Client) CertifiedTree(ctx context.Context) (asset.CertifiedTree, error) {
	var response asset.CertifiedTree
	err := c.call(ctx, asset.ActionCertifiedTree, nil, &response)
	return response, err
}

// APIVersion returns the store protocol version.
func (c *Client) APIVersion(ctx context.Context) (uint16, error) {
	var response asset.APIVersionResponse
	if err := c.call(ctx, asset.ActionAPIVersion, nil, &response); err != nil {
		return 0, err
	}
	return response.Version, nil
}

// --- HTTP ---

// HTTPRequest asks the store's responder to answer request.
func (c *Client) HTTPRequest(ctx context.Context, request asset.HTTPRequest) (asset.HTTPResponse, error) {
	var response asset.HTTPResponse
	err := c.call(ctx, asset.ActionHTTPRequest, map[string]any{"request": request}, &response)
	return response, err
}

// StreamingCallback fetches the chunk a streaming token names.
func (c *Client) StreamingCallback(ctx context.Context, token asset.StreamingCallbackToken) (asset.StreamingCallbackResponse, error) {
	var response asset.StreamingCallbackResponse
	err := c.call(ctx, asset.ActionHTTPRequestStreamingCallback, map[string]any{"token": token}, &response)
	return response, err
}

// FetchBody returns the complete body of response, following its
// streaming token to the end.
func (c *Client) FetchBody(ctx context.Context, response asset.HTTPResponse) ([]byte, error) {
	body := append([]byte(nil), response.Body...)
	token := response.StreamingToken
	for token != nil {
		next, err := c.StreamingCallback(ctx, *token)
		if err != nil {
			return nil, err
		}
		body = append(body, next.Body...)
		token = next.Token
	}
	return body, nil
}

// --- Limits ---

// Limits returns the store's staging limits.
func (c *Client) Limits(ctx context.Context) (asset.Limits, error) {
	var response asset.Limits
	err := c.call(ctx, asset.ActionGetConfiguration, nil, &response)
	return response, err
}

// Configure updates the store's staging limits.
func (c *Client) Configure(ctx context.Context, arguments asset.ConfigureArguments) error {
	return c.call(ctx, asset.ActionConfigure, map[string]any{
		"max_batches": arguments.MaxBatches,
		"max_chunks":  arguments.MaxChunks,
		"max_bytes":   arguments.MaxBytes,
	}, nil)
}

// call performs one action and converts a store-side failure into the
// *asset.Error it was on the store.
func (c *Client) call(ctx context.Context, action string, fields map[string]any, result any) error {
	err := c.service.Call(ctx, action, fields, result)
	var serviceErr *service.ServiceError
	if errors.As(err, &serviceErr) {
		return &asset.Error{Kind: asset.ParseErrorKind(serviceErr.Kind), Message: serviceErr.Message}
	}
	return err
}
