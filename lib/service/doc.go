// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the transport scaffolding of the asset
// service:
//
//   - Socket server: a CBOR request-response protocol on a Unix
//     socket, one request per connection, dispatched by the request's
//     "action" field, with connection timeouts and graceful shutdown.
//     Failures carry an optional error kind so clients can react to
//     the category of a failure without parsing messages.
//   - Service client: the matching caller side.
//   - HTTP server: listener lifecycle and graceful shutdown for the
//     gateway that answers browser requests.
//
// Services compose these utilities in their own main() function rather
// than subclassing a framework. The package provides building blocks,
// not a runtime.
//
// # Authentication
//
// There is no socket-level authentication. Filesystem permissions on
// the socket determine who may upload; the certification of every
// served response is what protects readers.
package service
