// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"
	"time"
)

// RequireReceive returns the next value sent on ch. The test fails if
// ch is closed first or nothing arrives within timeout; what names
// the awaited event in the failure message.
//
//	passes := testutil.RequireReceive(t, passes, 5*time.Second, "initial sync pass")
func RequireReceive[T any](t testing.TB, ch <-chan T, timeout time.Duration, what string) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock hang guard
	defer timer.Stop()
	select {
	case value, open := <-ch:
		if !open {
			t.Fatalf("%s: channel closed before a value arrived", what)
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received after %v", what, timeout)
	}
	var zero T
	return zero
}

// RequireClosed waits for a readiness or completion channel to close
// (or deliver a value).
//
//	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "store socket ready")
func RequireClosed(t testing.TB, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock hang guard
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: still open after %v", what, timeout)
	}
}
