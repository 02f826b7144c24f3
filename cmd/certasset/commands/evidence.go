// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/certasset/cmd/certasset/cli"
	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/assetclient"
	"github.com/bureau-foundation/certasset/lib/assetsync"
)

func evidenceCommand() *cli.Command {
	var flags storeFlags
	var commit bool
	return &cli.Command{
		Name:    "evidence",
		Summary: "Check a proposed batch against a directory",
		Description: `Recompute the evidence of the batch a sync of <dir> would produce and
compare it with the store's evidence for the proposed batch <batch-id>.
With --commit a matching batch is then committed.

Exits with status 1 when the evidence differs; the batch is left for
the store to expire.`,
		Usage: "certasset evidence <dir> <batch-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("evidence", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&commit, "commit", false, "commit the batch when the evidence matches")
			return flagSet
		},
		Args: cli.ExactArgs(2),
		Run: func(args []string) error {
			batchID, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid batch id %q: %w", args[1], err)
			}

			cfg, client, logger, err := flags.open()
			if err != nil {
				return err
			}
			syncerConfiguration, err := syncerConfig(&cfg.Sync, client, logger)
			if err != nil {
				return err
			}
			syncer, err := assetsync.New(syncerConfiguration)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runEvidence(ctx, syncer, client, args[0], asset.BatchID(batchID), commit, os.Stdout)
		},
	}
}

func runEvidence(ctx context.Context, syncer *assetsync.Syncer, client *assetclient.Client, root string, batchID asset.BatchID, commit bool, w io.Writer) error {
	evidence, err := syncer.CheckProposal(ctx, root, batchID)
	if errors.Is(err, asset.ErrEvidenceMismatch) {
		fmt.Fprintf(w, "local evidence %s does not match batch %d\n", evidence, batchID)
		return &cli.ExitError{Code: 1}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "evidence %s matches batch %d\n", evidence, batchID)
	if !commit {
		return nil
	}
	if err := client.CommitProposedBatch(ctx, batchID, evidence); err != nil {
		return fmt.Errorf("committing batch %d: %w", batchID, err)
	}
	fmt.Fprintf(w, "committed batch %d\n", batchID)
	return nil
}
