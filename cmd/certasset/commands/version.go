// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/certasset/cmd/certasset/cli"
	"github.com/bureau-foundation/certasset/lib/version"
)

func versionCommand() *cli.Command {
	var flags storeFlags
	var store bool
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "certasset version [--store] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&store, "store", false, "also print the store's API version")
			return flagSet
		},
		Args: cli.NoArgs,
		Run: func(args []string) error {
			fmt.Fprintf(os.Stdout, "certasset %s\n", version.Full())
			if !store {
				return nil
			}
			_, client, _, err := flags.open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			apiVersion, err := client.APIVersion(ctx)
			if err != nil {
				return fmt.Errorf("querying store API version: %w", err)
			}
			fmt.Fprintf(os.Stdout, "store API version %d at %s\n", apiVersion, client.SocketPath())
			return nil
		},
	}
}
