// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto/ed25519"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/certasset/lib/clock"
	"github.com/bureau-foundation/certasset/lib/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CERTASSET_CONFIG", "")
	configPath := filepath.Join(t.TempDir(), "certasset.yaml")
	data := []byte(`
service:
  socket_path: /tmp/from-file.sock
  http_listen: 127.0.0.1:9000
  max_chunks: 10
  fallback_key: /index.html
  fallback_status: 200
`)
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(flagOverrides{configPath: configPath})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Service.SocketPath != "/tmp/from-file.sock" || cfg.Service.HTTPListen != "127.0.0.1:9000" {
		t.Errorf("service config = %+v", cfg.Service)
	}

	cfg, err = loadConfig(flagOverrides{
		configPath:   configPath,
		socketPath:   "/tmp/from-flag.sock",
		noHTTP:       true,
		snapshotPath: "/tmp/assets.snapshot",
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Service.SocketPath != "/tmp/from-flag.sock" {
		t.Errorf("socket_path = %q, want the flag value", cfg.Service.SocketPath)
	}
	if cfg.Service.HTTPListen != "" {
		t.Errorf("http_listen = %q, want disabled", cfg.Service.HTTPListen)
	}
	if cfg.Service.SnapshotPath != "/tmp/assets.snapshot" {
		t.Errorf("snapshot_path = %q, want the flag value", cfg.Service.SnapshotPath)
	}

	badPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(badPath, []byte("service:\n  snapshot_compression: gzip\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(flagOverrides{configPath: badPath}); err == nil {
		t.Error("loadConfig accepted an unknown snapshot compression")
	}
}

func TestNewState(t *testing.T) {
	_, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	maxChunks := uint64(10)
	cfg := config.Default().Service
	cfg.MaxChunks = &maxChunks
	cfg.BatchTTL = "30s"

	state, err := newState(&cfg, key, clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), testLogger())
	if err != nil {
		t.Fatalf("newState: %v", err)
	}
	if !state.PublicKey().Equal(key.Public()) {
		t.Error("store does not sign with the configured key")
	}
	limits := state.Limits()
	if limits.MaxChunks == nil || *limits.MaxChunks != 10 || limits.MaxBatches != nil || limits.MaxBytes != nil {
		t.Errorf("limits = %+v, want only max_chunks=10", limits)
	}

	cfg.EncodingPriority = []string{"zstd"}
	if _, err := newState(&cfg, key, clock.Real(), testLogger()); err == nil {
		t.Error("newState accepted an unknown encoding in the priority list")
	}

	cfg.EncodingPriority = nil
	cfg.FallbackKey = "no-leading-slash"
	if _, err := newState(&cfg, key, clock.Real(), testLogger()); err == nil {
		t.Error("newState accepted an invalid fallback key")
	}
}
