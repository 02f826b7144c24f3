// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"context"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/codec"
	"github.com/bureau-foundation/certasset/lib/service"
)

// RegisterActions registers the store protocol on server. Each action
// decodes its request from the raw CBOR message and calls the State
// method of the same name.
func (s *State) RegisterActions(server *service.SocketServer) {
	// Staging and commit.
	server.Handle(asset.ActionCreateBatch, s.handleCreateBatch)
	server.Handle(asset.ActionCreateChunk, s.handleCreateChunk)
	server.Handle(asset.ActionProposeCommitBatch, s.handleProposeCommitBatch)
	server.Handle(asset.ActionComputeEvidence, s.handleComputeEvidence)
	server.Handle(asset.ActionCommitProposedBatch, s.handleCommitProposedBatch)
	server.Handle(asset.ActionCommitBatch, s.handleCommitBatch)
	server.Handle(asset.ActionDeleteBatch, s.handleDeleteBatch)

	// Queries.
	server.Handle(asset.ActionList, s.handleList)
	server.Handle(asset.ActionGetAssetProperties, s.handleGetAssetProperties)
	server.Handle(asset.ActionGet, s.handleGet)
	server.Handle(asset.ActionGetChunk, s.handleGetChunk)
	server.Handle(asset.ActionCertifiedTree, s.handleCertifiedTree)
	server.Handle(asset.ActionAPIVersion, s.handleAPIVersion)

	// HTTP.
	server.Handle(asset.ActionHTTPRequest, s.handleHTTPRequest)
	server.Handle(asset.ActionHTTPRequestStreamingCallback, s.handleStreamingCallback)

	// Limits.
	server.Handle(asset.ActionGetConfiguration, s.handleGetConfiguration)
	server.Handle(asset.ActionConfigure, s.handleConfigure)
}

// decodeRequest decodes the action-specific fields of raw into
// request. A malformed request is a validation error.
func decodeRequest(raw []byte, request any) error {
	if err := codec.Unmarshal(raw, request); err != nil {
		return asset.Validationf("invalid request: %v", err)
	}
	return nil
}

func (s *State) handleCreateBatch(ctx context.Context, raw []byte) (any, error) {
	batchID, err := s.CreateBatch()
	if err != nil {
		return nil, err
	}
	return asset.CreateBatchResponse{BatchID: batchID}, nil
}

func (s *State) handleCreateChunk(ctx context.Context, raw []byte) (any, error) {
	var request asset.CreateChunkRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	chunkID, err := s.CreateChunk(request.BatchID, request.Content)
	if err != nil {
		return nil, err
	}
	return asset.CreateChunkResponse{ChunkID: chunkID}, nil
}

func (s *State) handleProposeCommitBatch(ctx context.Context, raw []byte) (any, error) {
	var request asset.CommitBatchRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return nil, s.ProposeCommitBatch(request.BatchID, request.Operations)
}

func (s *State) handleComputeEvidence(ctx context.Context, raw []byte) (any, error) {
	var request asset.ComputeEvidenceRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	evidence, err := s.ComputeEvidence(request.BatchID, request.MaxIterations)
	if err != nil {
		return nil, err
	}
	return asset.ComputeEvidenceResponse{Evidence: evidence}, nil
}

func (s *State) handleCommitProposedBatch(ctx context.Context, raw []byte) (any, error) {
	var request asset.CommitProposedBatchRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return nil, s.CommitProposedBatch(request.BatchID, request.Evidence)
}

func (s *State) handleCommitBatch(ctx context.Context, raw []byte) (any, error) {
	var request asset.CommitBatchRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return nil, s.CommitBatch(request.BatchID, request.Operations)
}

func (s *State) handleDeleteBatch(ctx context.Context, raw []byte) (any, error) {
	var request asset.DeleteBatchRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return nil, s.DeleteBatch(request.BatchID)
}

func (s *State) handleList(ctx context.Context, raw []byte) (any, error) {
	return s.List(), nil
}

func (s *State) handleGetAssetProperties(ctx context.Context, raw []byte) (any, error) {
	var request asset.KeyRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return s.GetAssetProperties(request.Key)
}

func (s *State) handleGet(ctx context.Context, raw []byte) (any, error) {
	var request asset.GetRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return s.Get(request.Key, request.AcceptEncodings)
}

func (s *State) handleGetChunk(ctx context.Context, raw []byte) (any, error) {
	var request asset.GetChunkRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	content, err := s.GetChunk(request.Key, request.ContentEncoding, request.Index, request.SHA256)
	if err != nil {
		return nil, err
	}
	return asset.GetChunkResponse{Content: content}, nil
}

func (s *State) handleCertifiedTree(ctx context.Context, raw []byte) (any, error) {
	return s.CertifiedTree()
}

func (s *State) handleAPIVersion(ctx context.Context, raw []byte) (any, error) {
	return asset.APIVersionResponse{Version: s.APIVersion()}, nil
}

func (s *State) handleHTTPRequest(ctx context.Context, raw []byte) (any, error) {
	var request asset.HTTPRequestRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return s.HTTPRequest(request.Request), nil
}

func (s *State) handleStreamingCallback(ctx context.Context, raw []byte) (any, error) {
	var request asset.StreamingCallbackRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return s.HTTPRequestStreamingCallback(request.Token)
}

func (s *State) handleGetConfiguration(ctx context.Context, raw []byte) (any, error) {
	return s.Limits(), nil
}

func (s *State) handleConfigure(ctx context.Context, raw []byte) (any, error) {
	var request asset.ConfigureArguments
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	return nil, s.Configure(request)
}
