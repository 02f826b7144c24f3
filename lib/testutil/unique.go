// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use it instead of time.Now() when
// tests need distinguishable names, such as asset keys or file
// contents that must differ between runs of a helper.
//
//	key := "/" + testutil.UniqueID("page") + ".html" // "/page-1.html", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
