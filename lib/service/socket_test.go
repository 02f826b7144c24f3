// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/codec"
	"github.com/bureau-foundation/certasset/lib/testutil"
)

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(testutil.SocketDir(t), "assets.sock")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// startServer serves until the test ends.
func startServer(t *testing.T, server *SocketServer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-serveDone
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "socket server ready")
}

// roundTrip writes payload as-is and decodes the envelope the server
// answers with. The write runs alongside the read: a server that
// stops reading at the message limit answers before the client has
// written everything.
func roundTrip(t *testing.T, socketPath string, payload []byte) Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dialing %s: %v", socketPath, err)
	}
	defer conn.Close()
	go func() {
		if _, err := conn.Write(payload); err == nil {
			conn.(*net.UnixConn).CloseWrite()
		}
	}()

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}

func encodeRequest(t *testing.T, request map[string]any) codec.RawMessage {
	t.Helper()
	raw, err := codec.Marshal(request)
	if err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	return raw
}

// batchServer stands in for the store with two actions that exercise
// results and every error kind.
func batchServer(socketPath string) *SocketServer {
	server := NewSocketServer(socketPath, testLogger())
	server.Handle(asset.ActionCreateChunk, func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			BatchID asset.BatchID `cbor:"batch_id"`
			Content []byte        `cbor:"content"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, asset.Validationf("decoding create_chunk: %v", err)
		}
		if request.BatchID != 1 {
			return nil, asset.Consistencyf("batch %d not found", request.BatchID)
		}
		return asset.CreateChunkResponse{ChunkID: asset.ChunkID(len(request.Content))}, nil
	})
	server.Handle(asset.ActionDeleteBatch, func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
	return server
}

func TestDispatchErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    string
		message string
	}{
		{"validation", asset.Validationf("chunk_ids is empty"), "validation", "chunk_ids is empty"},
		{"consistency", asset.ErrEvidenceMismatch, "consistency", asset.ErrEvidenceMismatch.Error()},
		{"resource through wrapping", fmt.Errorf("create_chunk: %w", asset.Resourcef("chunk limit exceeded (3)")), "resource", "create_chunk: chunk limit exceeded (3)"},
		{"protocol", asset.Protocolf("batch 4 is proposed"), "protocol", "batch 4 is proposed"},
		{"unclassified", errors.New("disk full"), "", "disk full"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := NewSocketServer("unused.sock", testLogger())
			server.Handle(asset.ActionCommitBatch, func(context.Context, []byte) (any, error) {
				return nil, test.err
			})
			response := server.dispatch(t.Context(), encodeRequest(t, map[string]any{"action": asset.ActionCommitBatch}))
			if response.OK || response.ErrorKind != test.kind || response.Error != test.message {
				t.Errorf("response = %+v, want kind %q message %q", response, test.kind, test.message)
			}
		})
	}
}

func TestDispatchRejectsUnroutableRequests(t *testing.T) {
	server := batchServer("unused.sock")
	tests := []struct {
		name    string
		raw     codec.RawMessage
		message string
	}{
		{"no action", encodeRequest(t, map[string]any{"batch_id": 1}), "request has no action"},
		{"unknown action", encodeRequest(t, map[string]any{"action": "upload_everything"}), `unknown action "upload_everything"`},
		{"not a map", codec.RawMessage{0x18, 0x2a}, "invalid request"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response := server.dispatch(t.Context(), test.raw)
			if response.OK || !strings.Contains(response.Error, test.message) || response.ErrorKind != "" {
				t.Errorf("response = %+v, want an unkinded %q failure", response, test.message)
			}
		})
	}
}

func TestSocketServerRoundTrip(t *testing.T) {
	socketPath := testSocketPath(t)
	startServer(t, batchServer(socketPath))

	response := roundTrip(t, socketPath, encodeRequest(t, map[string]any{
		"action":   asset.ActionCreateChunk,
		"batch_id": 1,
		"content":  []byte("hello"),
	}))
	if !response.OK {
		t.Fatalf("create_chunk failed: %s", response.Error)
	}
	var created asset.CreateChunkResponse
	if err := codec.Unmarshal(response.Data, &created); err != nil {
		t.Fatalf("decoding create_chunk result: %v", err)
	}
	if created.ChunkID != 5 {
		t.Errorf("chunk_id = %d, want 5", created.ChunkID)
	}

	missing := roundTrip(t, socketPath, encodeRequest(t, map[string]any{
		"action":   asset.ActionCreateChunk,
		"batch_id": 9,
		"content":  []byte("x"),
	}))
	if missing.OK || missing.ErrorKind != "consistency" || missing.Error != "batch 9 not found" {
		t.Errorf("create_chunk on a missing batch = %+v", missing)
	}

	deleted := roundTrip(t, socketPath, encodeRequest(t, map[string]any{"action": asset.ActionDeleteBatch, "batch_id": 1}))
	if !deleted.OK || len(deleted.Data) != 0 {
		t.Errorf("delete_batch = %+v, want ok with no data", deleted)
	}
}

func TestSocketServerMalformedPayload(t *testing.T) {
	socketPath := testSocketPath(t)
	startServer(t, batchServer(socketPath))

	// A map header promising one entry, then a reserved byte.
	response := roundTrip(t, socketPath, []byte{0xa1, 0xff})
	if response.OK || !strings.HasPrefix(response.Error, "invalid request") {
		t.Errorf("response = %+v, want an invalid request failure", response)
	}
}

func TestSocketServerMessageSizeLimit(t *testing.T) {
	socketPath := testSocketPath(t)
	startServer(t, batchServer(socketPath))

	fits := bytes.Repeat([]byte{7}, MaxMessageSize-1024)
	response := roundTrip(t, socketPath, encodeRequest(t, map[string]any{
		"action":   asset.ActionCreateChunk,
		"batch_id": 1,
		"content":  fits,
	}))
	if !response.OK {
		t.Fatalf("chunk below the message limit rejected: %s", response.Error)
	}

	tooLarge := bytes.Repeat([]byte{7}, MaxMessageSize+1)
	response = roundTrip(t, socketPath, encodeRequest(t, map[string]any{
		"action":   asset.ActionCreateChunk,
		"batch_id": 1,
		"content":  tooLarge,
	}))
	if response.OK {
		t.Error("chunk above the message limit accepted")
	}
}

func TestSocketServerFinishesInflightOnShutdown(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())
	entered := make(chan struct{})
	release := make(chan struct{})
	server.Handle(asset.ActionComputeEvidence, func(ctx context.Context, raw []byte) (any, error) {
		close(entered)
		<-release
		evidence := asset.SHA256([]byte("batch"))
		return asset.ComputeEvidenceResponse{Evidence: &evidence}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "socket server ready")

	responses := make(chan Response, 1)
	go func() {
		responses <- roundTrip(t, socketPath, encodeRequest(t, map[string]any{"action": asset.ActionComputeEvidence}))
	}()
	testutil.RequireClosed(t, entered, 5*time.Second, "compute_evidence in flight")
	cancel()
	close(release)

	response := testutil.RequireReceive(t, responses, 5*time.Second, "in-flight compute_evidence")
	var result asset.ComputeEvidenceResponse
	if err := codec.Unmarshal(response.Data, &result); err != nil || result.Evidence == nil {
		t.Fatalf("in-flight response = %+v (%v), want evidence", response, err)
	}
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "Serve return"); err != nil {
		t.Errorf("Serve() = %v", err)
	}
	if _, err := os.Stat(socketPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket file left behind: %v", err)
	}
}

func TestSocketServerReplacesStaleSocket(t *testing.T) {
	socketPath := testSocketPath(t)
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	startServer(t, batchServer(socketPath))
	response := roundTrip(t, socketPath, encodeRequest(t, map[string]any{"action": asset.ActionDeleteBatch}))
	if !response.OK {
		t.Errorf("delete_batch after replacing a stale socket: %s", response.Error)
	}
}

func TestHandleTwicePanics(t *testing.T) {
	server := batchServer("unused.sock")
	defer func() {
		if recover() == nil {
			t.Error("registering create_chunk twice did not panic")
		}
	}()
	server.Handle(asset.ActionCreateChunk, func(context.Context, []byte) (any, error) { return nil, nil })
}
