// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// certasset-service hosts a certified asset store. It serves the store
// protocol on a Unix socket, optionally answers browser requests over
// HTTP, sweeps expired batches, and persists committed assets in a
// snapshot that is reloaded on start.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/certasset/lib/assetstore"
	"github.com/bureau-foundation/certasset/lib/certtree"
	"github.com/bureau-foundation/certasset/lib/clock"
	"github.com/bureau-foundation/certasset/lib/process"
	"github.com/bureau-foundation/certasset/lib/service"
	"github.com/bureau-foundation/certasset/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		showVersion bool
		overrides   flagOverrides
	)
	flags := pflag.NewFlagSet("certasset-service", pflag.ContinueOnError)
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	flags.StringVar(&overrides.configPath, "config", "", "configuration file (default $CERTASSET_CONFIG)")
	flags.StringVar(&overrides.socketPath, "socket", "", "store protocol socket (default service.socket_path)")
	flags.StringVar(&overrides.httpListen, "http-listen", "", "HTTP gateway address (default service.http_listen)")
	flags.BoolVar(&overrides.noHTTP, "no-http", false, "do not start the HTTP gateway")
	flags.StringVar(&overrides.snapshotPath, "snapshot", "", "snapshot file (default service.snapshot_path)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("certasset-service %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := service.NewLogger()

	key, err := certtree.LoadOrCreateSigningKey(cfg.Service.SigningKey)
	if err != nil {
		return err
	}

	clk := clock.Real()
	state, err := newState(&cfg.Service, key, clk, logger)
	if err != nil {
		return err
	}

	compression, err := assetstore.ParseCompressionTag(cfg.Service.SnapshotCompression)
	if err != nil {
		return err
	}
	if cfg.Service.SnapshotPath != "" {
		err := state.LoadSnapshot(cfg.Service.SnapshotPath)
		switch {
		case errors.Is(err, assetstore.ErrNoSnapshot):
			logger.Info("no snapshot, starting empty", "path", cfg.Service.SnapshotPath)
		case err != nil:
			return fmt.Errorf("loading snapshot: %w", err)
		default:
			logger.Info("snapshot loaded", "path", cfg.Service.SnapshotPath, "assets", len(state.List()))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(cfg.Service.SocketPath), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	socketServer := service.NewSocketServer(cfg.Service.SocketPath, logger)
	state.RegisterActions(socketServer)
	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	var httpDone chan error
	if cfg.Service.HTTPListen != "" {
		httpServer, err := service.NewHTTPServer(service.HTTPServerConfig{
			Address: cfg.Service.HTTPListen,
			Handler: state.Gateway(),
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		httpDone = make(chan error, 1)
		go func() {
			httpDone <- httpServer.Serve(ctx)
		}()
	}

	maintenanceDone := make(chan struct{})
	go func() {
		defer close(maintenanceDone)
		state.RunMaintenance(ctx, assetstore.MaintenanceConfig{
			Interval:     cfg.Service.MaintenanceIntervalDuration(),
			SnapshotPath: cfg.Service.SnapshotPath,
			Compression:  compression,
		})
	}()

	logger.Info("certasset service running",
		"version", version.Info(),
		"socket", cfg.Service.SocketPath,
		"http", cfg.Service.HTTPListen,
		"public_key", hex.EncodeToString(state.PublicKey()),
		"root_hash", state.RootHash().String(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-socketDone; err != nil {
		logger.Error("socket listener error", "error", err)
	}
	if httpDone != nil {
		if err := <-httpDone; err != nil {
			logger.Error("http gateway error", "error", err)
		}
	}
	// RunMaintenance writes the final snapshot on its way out.
	<-maintenanceDone
	return nil
}
