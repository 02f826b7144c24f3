// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/certasset/cmd/certasset/cli"
	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/assetclient"
	"github.com/bureau-foundation/certasset/lib/assetsync"
	"github.com/bureau-foundation/certasset/lib/clock"
	"github.com/bureau-foundation/certasset/lib/config"
)

// storeFlags are the flags shared by every command that talks to a
// store.
type storeFlags struct {
	configPath string
	socketPath string
	verbose    bool
}

func (f *storeFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "configuration file (default $CERTASSET_CONFIG)")
	flagSet.StringVar(&f.socketPath, "socket", "", "store socket (default sync.socket_path)")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")
}

// open loads the configuration and returns it with a client for the
// selected socket and a command logger.
func (f *storeFlags) open() (*config.Config, *assetclient.Client, *slog.Logger, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if f.socketPath != "" {
		cfg.Sync.SocketPath = f.socketPath
	}
	logger := cli.NewCommandLogger(f.verbose).With("socket", cfg.Sync.SocketPath)
	return cfg, assetclient.New(cfg.Sync.SocketPath), logger, nil
}

// loadConfig reads path, else $CERTASSET_CONFIG, else the defaults,
// and validates the result.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case os.Getenv("CERTASSET_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// syncerConfig maps the sync section of cfg onto an assetsync.Config.
func syncerConfig(cfg *config.SyncConfig, store assetsync.Store, logger *slog.Logger) (assetsync.Config, error) {
	mode, err := assetsync.ParseCommitMode(cfg.CommitMode)
	if err != nil {
		return assetsync.Config{}, err
	}
	encodings := make([]asset.ContentEncoding, 0, len(cfg.Encodings))
	for _, name := range cfg.Encodings {
		encoding, err := asset.ParseContentEncoding(name)
		if err != nil {
			return assetsync.Config{}, fmt.Errorf("sync.encodings: %w", err)
		}
		encodings = append(encodings, encoding)
	}
	return assetsync.Config{
		Store:              store,
		Clock:              clock.Real(),
		Logger:             logger,
		Encodings:          encodings,
		ChunkSize:          cfg.ChunkSize,
		Concurrency:        cfg.Concurrency,
		RetryAttempts:      cfg.RetryAttempts,
		RetryBackoff:       cfg.RetryBackoffDuration(),
		Mode:               mode,
		EvidenceIterations: cfg.EvidenceIterations,
	}, nil
}
