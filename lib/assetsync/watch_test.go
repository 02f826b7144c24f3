// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/certasset/lib/testutil"
)

func TestWatchResyncsAfterChanges(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html":  "<h1>v1</h1>",
		"sub/old.txt": "old",
	})
	state, fake := newState(t, nil)
	syncer := newSyncer(t, stateStore{state}, fake, nil)

	passes := make(chan syncOutcome, 16)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- syncer.Watch(ctx, root, time.Second, func(result *Result, err error) {
			passes <- syncOutcome{result, err}
		})
	}()

	initial := testutil.RequireReceive(t, passes, 5*time.Second, "initial pass")
	if initial.err != nil || !initial.result.Committed {
		t.Fatalf("initial pass = %+v, %v", initial.result, initial.err)
	}

	writeFile(t, root, "sub/new.txt", "new")
	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	changed := testutil.RequireReceive(t, passes, 5*time.Second, "pass after change")
	if changed.err != nil {
		t.Fatalf("pass after change: %v", changed.err)
	}
	want := []string{"/index.html", "/sub/new.txt", "/sub/old.txt"}
	if got := remoteKeys(state); !slices.Equal(got, want) {
		t.Errorf("remote keys = %v, want %v", got, want)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "watch return"); err != nil {
		t.Errorf("Watch: %v", err)
	}
}
