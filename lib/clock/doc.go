// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The asset store stamps batch expiry and encoding modification times
// from a Clock; the sync client waits between upload retries with
// one; the service's sweep and snapshot loop ticks on one. In
// production they receive Real(). Tests receive Fake(), whose time
// only moves when Advance is called, so TTL expiry and retry backoff
// are tested without sleeping.
//
// Use WaitForTimers before Advance when another goroutine is about to
// block on After or a ticker; it removes the race between timer
// registration and advancing the clock.
package clock
