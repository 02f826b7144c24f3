// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net"
	"time"

	"github.com/bureau-foundation/certasset/lib/codec"
)

const (
	dialTimeout = 5 * time.Second
	// replyTimeout covers the server reading the request, running the
	// handler and writing the reply.
	replyTimeout = readTimeout + writeTimeout + 5*time.Second
)

// ServiceError is a failure reported by the server, as opposed to a
// failure to reach it. Kind is the envelope's error_kind and may be
// empty.
type ServiceError struct {
	Action  string
	Message string
	Kind    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// ServiceClient calls actions on a [SocketServer], one connection per
// call.
type ServiceClient struct {
	socketPath string
}

// NewServiceClient returns a client for socketPath. Nothing is dialed
// until Call.
func NewServiceClient(socketPath string) *ServiceClient {
	return &ServiceClient{socketPath: socketPath}
}

// SocketPath is the socket the client dials.
func (c *ServiceClient) SocketPath() string {
	return c.socketPath
}

// Call sends fields plus "action" and decodes any reply data into
// result (which may be nil). A reply with ok=false is returned as
// *ServiceError; anything else that goes wrong (dialing, encoding,
// a cancelled ctx) is a plain error.
func (c *ServiceClient) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := maps.Clone(fields)
	if request == nil {
		request = make(map[string]any, 1)
	}
	request["action"] = action

	reply, err := c.exchange(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !reply.OK {
		return &ServiceError{Action: action, Message: reply.Error, Kind: reply.ErrorKind}
	}
	if result == nil || len(reply.Data) == 0 {
		return nil
	}
	if err := codec.Unmarshal(reply.Data, result); err != nil {
		return fmt.Errorf("decoding %q reply: %w", action, err)
	}
	return nil
}

func (c *ServiceClient) exchange(ctx context.Context, request map[string]any) (Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return Response{}, contextOr(ctx, err)
	}
	defer conn.Close()
	// Cancelling ctx unblocks whichever of the write or read is
	// pending.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	conn.SetDeadline(time.Now().Add(replyTimeout))
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return Response{}, contextOr(ctx, fmt.Errorf("writing request: %w", err))
	}
	if unix, ok := conn.(*net.UnixConn); ok {
		unix.CloseWrite()
	}

	var reply Response
	if err := codec.NewDecoder(io.LimitReader(conn, MaxMessageSize)).Decode(&reply); err != nil {
		return Response{}, contextOr(ctx, fmt.Errorf("reading reply: %w", err))
	}
	return reply, nil
}

// contextOr prefers ctx's error, so a cancelled call reports
// context.Canceled rather than the deadline it provoked.
func contextOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
