// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import "github.com/bureau-foundation/certasset/cmd/certasset/cli"

// Root returns the top-level certasset command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "certasset",
		Summary: "Synchronize and verify a certified asset store",
		Description: `certasset uploads a directory of static files into a certified asset
store and checks what the store serves.

A sync pass scans the directory, encodes every file, compares the result
with the store, and applies the difference as a single atomic batch. The
batch is either committed directly or proposed and committed only after
the store's evidence for it matches the evidence computed locally.`,
		Subcommands: []*cli.Command{
			syncCommand(),
			listCommand(),
			verifyCommand(),
			evidenceCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Upload a built site",
				Command:     "certasset sync dist",
			},
			{
				Description: "Show what a sync would change",
				Command:     "certasset sync --dry-run dist",
			},
			{
				Description: "Check the certification of the served index page",
				Command:     "certasset verify /index.html",
			},
		},
	}
}
