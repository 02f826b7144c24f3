// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Defaults for [HTTPServerConfig].
const (
	DefaultHTTPWriteTimeout = 5 * time.Minute
	DefaultHTTPDrainTimeout = 10 * time.Second
)

// HTTPServerConfig configures an [HTTPServer].
type HTTPServerConfig struct {
	// Address is the TCP listen address. Port 0 picks a free port;
	// [HTTPServer.Addr] reports it once the server is ready.
	Address string
	Handler http.Handler
	Logger  *slog.Logger

	// WriteTimeout bounds writing one response, every streamed
	// chunk included.
	WriteTimeout time.Duration
	// DrainTimeout bounds how long Serve waits for in-flight
	// requests after its context ends.
	DrainTimeout time.Duration
}

// HTTPServer serves a handler over TCP for as long as a context
// lives. The asset service puts the store's gateway behind it.
// Every request is logged at debug level with its status and size.
type HTTPServer struct {
	address string
	logger  *slog.Logger
	drain   time.Duration
	server  *http.Server

	ready chan struct{}
	addr  net.Addr
}

// NewHTTPServer checks config and returns a server that has not yet
// bound its address.
func NewHTTPServer(config HTTPServerConfig) (*HTTPServer, error) {
	var problems []error
	if config.Address == "" {
		problems = append(problems, errors.New("address is required"))
	}
	if config.Handler == nil {
		problems = append(problems, errors.New("handler is required"))
	}
	if config.Logger == nil {
		problems = append(problems, errors.New("logger is required"))
	}
	if err := errors.Join(problems...); err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}

	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultHTTPWriteTimeout
	}
	drain := config.DrainTimeout
	if drain <= 0 {
		drain = DefaultHTTPDrainTimeout
	}

	s := &HTTPServer{
		address: config.Address,
		logger:  config.Logger,
		drain:   drain,
		ready:   make(chan struct{}),
	}
	s.server = &http.Server{
		Handler:           s.logRequests(config.Handler),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       time.Minute,
		ErrorLog:          slog.NewLogLogger(config.Logger.Handler(), slog.LevelWarn),
	}
	return s, nil
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address. Valid after Ready is closed.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// Serve binds the address and serves until ctx is cancelled, then
// stops accepting and gives in-flight responses up to the drain
// timeout to finish.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }
	close(s.ready)
	s.logger.Info("http gateway listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- s.server.Serve(listener)
	}()

	select {
	case err := <-serveDone:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), s.drain)
	defer cancel()
	if err := s.server.Shutdown(drainCtx); err != nil {
		s.logger.Warn("http gateway drain incomplete", "error", err)
		return fmt.Errorf("draining http gateway: %w", err)
	}
	s.logger.Info("http gateway stopped")
	return nil
}

// logRequests wraps handler with a debug log line per request.
func (s *HTTPServer) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		start := time.Now()
		recorder := &responseRecorder{ResponseWriter: writer, status: http.StatusOK}
		handler.ServeHTTP(recorder, request)
		s.logger.Debug("http request",
			"method", request.Method,
			"host", request.Host,
			"path", request.URL.Path,
			"status", recorder.status,
			"bytes", recorder.written,
			"duration", time.Since(start),
		)
	})
}

// responseRecorder captures the status and body size a handler wrote.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	n, err := r.ResponseWriter.Write(data)
	r.written += int64(n)
	return n, err
}
