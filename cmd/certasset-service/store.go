// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/assetstore"
	"github.com/bureau-foundation/certasset/lib/clock"
	"github.com/bureau-foundation/certasset/lib/config"
)

// flagOverrides are the command-line values that replace
// configuration fields when set.
type flagOverrides struct {
	configPath   string
	socketPath   string
	httpListen   string
	noHTTP       bool
	snapshotPath string
}

// loadConfig reads --config, else $CERTASSET_CONFIG, else the
// defaults, applies the flag overrides, and validates the result.
func loadConfig(overrides flagOverrides) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case overrides.configPath != "":
		cfg, err = config.LoadFile(overrides.configPath)
	case os.Getenv("CERTASSET_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if overrides.socketPath != "" {
		cfg.Service.SocketPath = overrides.socketPath
	}
	if overrides.httpListen != "" {
		cfg.Service.HTTPListen = overrides.httpListen
	}
	if overrides.noHTTP {
		cfg.Service.HTTPListen = ""
	}
	if overrides.snapshotPath != "" {
		cfg.Service.SnapshotPath = overrides.snapshotPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newState builds the store described by cfg. Limits from cfg are
// the starting values; a snapshot loaded afterwards carries the
// limits last set through configure and replaces them.
func newState(cfg *config.ServiceConfig, key ed25519.PrivateKey, clk clock.Clock, logger *slog.Logger) (*assetstore.State, error) {
	priority := make([]asset.ContentEncoding, 0, len(cfg.EncodingPriority))
	for _, name := range cfg.EncodingPriority {
		encoding, err := asset.ParseContentEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("service.encoding_priority: %w", err)
		}
		priority = append(priority, encoding)
	}
	return assetstore.New(assetstore.Config{
		Clock:      clk,
		Logger:     logger,
		SigningKey: key,
		BatchTTL:   cfg.BatchTTLDuration(),
		Limits: asset.Limits{
			MaxBatches: cfg.MaxBatches,
			MaxChunks:  cfg.MaxChunks,
			MaxBytes:   cfg.MaxBytes,
		},
		EncodingPriority: priority,
		RawHostMarker:    cfg.RawHostMarker,
		FallbackKey:      cfg.FallbackKey,
		FallbackStatus:   cfg.FallbackStatus,
	})
}
