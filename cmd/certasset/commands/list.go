// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/certasset/cmd/certasset/cli"
	"github.com/bureau-foundation/certasset/lib/assetclient"
)

func listCommand() *cli.Command {
	var flags storeFlags
	var long bool
	return &cli.Command{
		Name:    "ls",
		Summary: "List the assets in the store",
		Usage:   "certasset ls [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ls", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVarP(&long, "long", "l", false, "show one line per encoding with its digest and modification time")
			return flagSet
		},
		Args: cli.NoArgs,
		Run: func(args []string) error {
			_, client, _, err := flags.open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return runList(ctx, client, long, os.Stdout)
		},
	}
}

func runList(ctx context.Context, client *assetclient.Client, long bool, w io.Writer) error {
	listing, err := client.List(ctx)
	if err != nil {
		return fmt.Errorf("listing assets: %w", err)
	}

	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	if long {
		fmt.Fprintln(tw, "KEY\tTYPE\tENCODING\tLENGTH\tSHA256\tMODIFIED")
		for _, details := range listing {
			for _, encoding := range details.Encodings {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					details.Key, details.ContentType, encoding.ContentEncoding, encoding.Length,
					encoding.SHA256, time.Unix(0, encoding.Modified).UTC().Format(time.RFC3339))
			}
		}
	} else {
		fmt.Fprintln(tw, "KEY\tTYPE\tENCODINGS")
		for _, details := range listing {
			names := make([]string, len(details.Encodings))
			for i, encoding := range details.Encodings {
				names[i] = encoding.ContentEncoding.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", details.Key, details.ContentType, strings.Join(names, ","))
		}
	}
	return tw.Flush()
}
