// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/certasset/cmd/certasset/cli"
	"github.com/bureau-foundation/certasset/lib/assetsync"
	"github.com/bureau-foundation/certasset/lib/config"
)

type syncFlags struct {
	storeFlags
	dryRun      bool
	byProposal  bool
	proposeOnly bool
	watch       bool
	debounce    time.Duration
	concurrency int
	chunkSize   int
}

// apply folds the command-line overrides into cfg.
func (f *syncFlags) apply(cfg *config.SyncConfig) error {
	if f.byProposal && f.proposeOnly {
		return errors.New("--by-proposal and --propose-only are mutually exclusive")
	}
	if f.byProposal {
		cfg.CommitMode = config.CommitProposal
	}
	if f.proposeOnly {
		cfg.CommitMode = config.CommitProposeOnly
	}
	if f.concurrency > 0 {
		cfg.Concurrency = f.concurrency
	}
	if f.chunkSize > 0 {
		cfg.ChunkSize = f.chunkSize
	}
	return nil
}

func syncCommand() *cli.Command {
	var flags syncFlags
	return &cli.Command{
		Name:    "sync",
		Summary: "Make the store serve exactly the files of a directory",
		Description: `Scan a directory, diff it against the store, and apply the difference as
one batch. Only changed encodings are uploaded; a directory already in
sync opens no batch at all.

Files and directories whose name starts with "." are skipped. A
.assets.jsonc file in any directory sets properties for the files below
it: cache max_age, extra headers, content type, aliasing, raw access,
encodings, or ignore.`,
		Usage: "certasset sync [dir] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&flags.dryRun, "dry-run", false, "print the operations without changing the store")
			flagSet.BoolVar(&flags.byProposal, "by-proposal", false, "commit only after the store's evidence matches")
			flagSet.BoolVar(&flags.proposeOnly, "propose-only", false, "propose the batch and print its evidence without committing")
			flagSet.BoolVar(&flags.watch, "watch", false, "keep running and sync again after every change")
			flagSet.DurationVar(&flags.debounce, "debounce", 500*time.Millisecond, "quiet period before a watched change is synced")
			flagSet.IntVar(&flags.concurrency, "concurrency", 0, "parallel encodes and uploads (default sync.concurrency)")
			flagSet.IntVar(&flags.chunkSize, "chunk-size", 0, "largest uploaded chunk in bytes (default sync.chunk_size)")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Upload through a proposal checked against local evidence",
				Command:     "certasset sync --by-proposal dist",
			},
			{
				Description: "Re-sync whenever the build output changes",
				Command:     "certasset sync --watch dist",
			},
		},
		Args: cli.MaxArgs(1),
		Run: func(args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			cfg, client, logger, err := flags.open()
			if err != nil {
				return err
			}
			if err := flags.apply(&cfg.Sync); err != nil {
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

			switch {
			case flags.dryRun:
				return runPlan(ctx, syncer, root, os.Stdout)
			case flags.watch:
				return runWatch(ctx, syncer, root, flags.debounce, logger, os.Stdout)
			default:
				return runSync(ctx, syncer, root, os.Stdout)
			}
		},
	}
}

func runPlan(ctx context.Context, syncer *assetsync.Syncer, root string, w io.Writer) error {
	plan, err := syncer.Plan(ctx, root)
	if err != nil {
		return err
	}
	for _, failure := range plan.Failures {
		fmt.Fprintf(w, "skipped %s\n", failure)
	}
	return assetsync.WriteReport(w, plan.Operations)
}

func runSync(ctx context.Context, syncer *assetsync.Syncer, root string, w io.Writer) error {
	plan, err := syncer.Plan(ctx, root)
	if err != nil {
		return err
	}
	if err := assetsync.WriteReport(w, plan.Operations); err != nil {
		return err
	}
	result, err := syncer.Apply(ctx, plan)
	if err != nil {
		return err
	}
	writeResult(w, result)
	if len(plan.Failures) > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func runWatch(ctx context.Context, syncer *assetsync.Syncer, root string, debounce time.Duration, logger *slog.Logger, w io.Writer) error {
	return syncer.Watch(ctx, root, debounce, func(result *assetsync.Result, err error) {
		if err != nil {
			logger.Error("sync pass failed", "root", root, "error", err)
			return
		}
		if len(result.Plan.Operations) > 0 {
			assetsync.WriteReport(w, result.Plan.Operations)
		}
		writeResult(w, result)
	})
}

func writeResult(w io.Writer, result *assetsync.Result) {
	for _, failure := range result.Plan.Failures {
		fmt.Fprintf(w, "skipped %s\n", failure)
	}
	switch {
	case result.BatchID == 0:
		fmt.Fprintln(w, "already in sync")
	case result.Committed && result.Evidence != nil:
		fmt.Fprintf(w, "committed batch %d (evidence %s)\n", result.BatchID, result.Evidence)
	case result.Committed:
		fmt.Fprintf(w, "committed batch %d\n", result.BatchID)
	default:
		fmt.Fprintf(w, "proposed batch %d with evidence %s\n", result.BatchID, result.Evidence)
		fmt.Fprintf(w, "check and commit it with: certasset evidence --commit %s %d\n", result.Plan.Root, result.BatchID)
	}
}
