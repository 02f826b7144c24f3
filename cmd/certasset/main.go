// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// certasset is the client of the certified asset store: it synchronizes
// directories into the store and verifies what the store serves.
package main

import (
	"os"

	"github.com/bureau-foundation/certasset/cmd/certasset/commands"
	"github.com/bureau-foundation/certasset/lib/process"
)

func main() {
	// Commands that print their own outcome return a cli.ExitError;
	// process.Fatal exits with its code without an "error:" line.
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
