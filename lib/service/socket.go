// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/certasset/lib/codec"
)

// ActionFunc handles one action. raw is the whole CBOR request map,
// "action" included; the handler decodes its own fields from it. A
// nil result is answered with {ok: true} and no data.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every socket reply.
type Response struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
	// ErrorKind names the failure category ("validation",
	// "consistency", "resource", "protocol") when the handler's error
	// carries one. Callers branch on it instead of the message.
	ErrorKind string           `cbor:"error_kind,omitempty"`
	Data      codec.RawMessage `cbor:"data,omitempty"`
}

// kindedError is satisfied by *asset.Error and anything else that
// classifies itself.
type kindedError interface {
	error
	ErrorKind() string
}

// Connection limits. A request is read in full before dispatch, so
// MaxMessageSize also bounds one uploaded chunk.
const (
	MaxMessageSize = 4 * 1024 * 1024
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// SocketServer answers one CBOR request per connection on a Unix
// socket, routing on the request's "action" field.
type SocketServer struct {
	socketPath string
	logger     *slog.Logger
	actions    map[string]ActionFunc

	ready    chan struct{}
	inflight sync.WaitGroup
}

// NewSocketServer returns a server for socketPath with no actions.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		logger:     logger,
		actions:    make(map[string]ActionFunc),
		ready:      make(chan struct{}),
	}
}

// Handle registers handler for action. Registering an action twice is
// a programming error and panics. All registration happens before
// Serve.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, taken := s.actions[action]; taken {
		panic(fmt.Sprintf("service: action %q registered twice", action))
	}
	s.actions[action] = handler
}

// Ready is closed once the socket accepts connections.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve listens until ctx is cancelled, then waits for in-flight
// requests. A stale socket file left by a previous process is
// replaced; the socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	defer os.Remove(s.socketPath)
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("socket server listening", "path", s.socketPath)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accepting connection", "error", err)
			continue
		}
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.serveConn(ctx, conn)
		}()
	}
	listener.Close()
	s.inflight.Wait()
	return nil
}

func (s *SocketServer) listen() (net.Listener, error) {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	return listener, nil
}

func (s *SocketServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var raw codec.RawMessage
	err := codec.NewDecoder(io.LimitReader(conn, MaxMessageSize)).Decode(&raw)
	if errors.Is(err, io.EOF) {
		return
	}
	var response Response
	if err != nil {
		response = failure(fmt.Errorf("invalid request: %w", err))
	} else {
		response = s.dispatch(ctx, raw)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}

// dispatch routes one decoded request to its action and wraps the
// outcome in a Response.
func (s *SocketServer) dispatch(ctx context.Context, raw codec.RawMessage) Response {
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		return failure(fmt.Errorf("invalid request: %w", err))
	}
	if header.Action == "" {
		return failure(errors.New("request has no action"))
	}
	handler, known := s.actions[header.Action]
	if !known {
		return failure(fmt.Errorf("unknown action %q", header.Action))
	}

	start := time.Now()
	result, err := handler(ctx, raw)
	var response Response
	if err != nil {
		response = failure(err)
	} else {
		response = success(result)
	}
	s.logger.Debug("socket request",
		"action", header.Action,
		"ok", response.OK,
		"error_kind", response.ErrorKind,
		"duration", time.Since(start),
	)
	return response
}

func success(result any) Response {
	if result == nil {
		return Response{OK: true}
	}
	data, err := codec.Marshal(result)
	if err != nil {
		return failure(fmt.Errorf("encoding result: %w", err))
	}
	return Response{OK: true, Data: data}
}

func failure(err error) Response {
	response := Response{Error: err.Error()}
	var kinded kindedError
	if errors.As(err, &kinded) {
		response.ErrorKind = kinded.ErrorKind()
	}
	return response
}
