// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. Unix domain sockets have a 108-byte path limit
// (sun_path in sockaddr_un), and t.TempDir() can exceed it under
// deeply nested TMPDIR settings. The directory is automatically
// removed when the test completes.
//
// [RequireReceive] and [RequireClosed] bound every wait on a goroutine
// (a socket server becoming ready, a sync pass, a maintenance loop
// exiting) with a wall-clock timeout. They are the only real-time
// waits in the test suite; everything else runs on the fake clock.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
