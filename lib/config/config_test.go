// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.Service.SocketPath != "/run/certasset/store.sock" {
		t.Errorf("expected socket_path=/run/certasset/store.sock, got %s", cfg.Service.SocketPath)
	}

	if cfg.Sync.CommitMode != CommitDirect {
		t.Errorf("expected commit_mode=direct for development, got %s", cfg.Sync.CommitMode)
	}

	if cfg.Service.FallbackStatus != 404 {
		t.Errorf("expected fallback_status=404, got %d", cfg.Service.FallbackStatus)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresCertassetConfig(t *testing.T) {
	t.Setenv("CERTASSET_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CERTASSET_CONFIG not set, got nil")
	}

	expectedMsg := "CERTASSET_CONFIG environment variable not set"
	if !strings.HasPrefix(err.Error(), expectedMsg) {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithCertassetConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "certasset.yaml")
	configContent := `
environment: staging
service:
  socket_path: /test/store.sock
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("CERTASSET_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Service.SocketPath != "/test/store.sock" {
		t.Errorf("expected socket_path=/test/store.sock, got %s", cfg.Service.SocketPath)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "certasset.yaml")

	configContent := `
paths:
  root: /custom/root
  state: ${CERTASSET_ROOT}/state

service:
  http_listen: ":9000"
  snapshot_path: ${CERTASSET_STATE}/snap
  snapshot_compression: lz4
  max_chunks: 500
  fallback_key: /404.html

sync:
  concurrency: 4
  commit_mode: propose-only
  encodings: [gzip]
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Paths.State != "/custom/root/state" {
		t.Errorf("expected state=/custom/root/state, got %s", cfg.Paths.State)
	}
	if cfg.Service.SnapshotPath != "/custom/root/state/snap" {
		t.Errorf("expected snapshot_path=/custom/root/state/snap, got %s", cfg.Service.SnapshotPath)
	}
	if cfg.Service.HTTPListen != ":9000" {
		t.Errorf("expected http_listen=:9000, got %s", cfg.Service.HTTPListen)
	}
	if cfg.Service.SnapshotCompression != "lz4" {
		t.Errorf("expected snapshot_compression=lz4, got %s", cfg.Service.SnapshotCompression)
	}
	if cfg.Service.MaxChunks == nil || *cfg.Service.MaxChunks != 500 {
		t.Errorf("expected max_chunks=500, got %v", cfg.Service.MaxChunks)
	}
	if cfg.Service.MaxBatches != nil {
		t.Errorf("expected max_batches unset, got %d", *cfg.Service.MaxBatches)
	}
	if cfg.Service.FallbackKey != "/404.html" {
		t.Errorf("expected fallback_key=/404.html, got %s", cfg.Service.FallbackKey)
	}
	// Unset fields keep their defaults.
	if cfg.Service.RawHostMarker != ".raw." {
		t.Errorf("expected raw_host_marker=.raw., got %s", cfg.Service.RawHostMarker)
	}
	if cfg.Sync.Concurrency != 4 {
		t.Errorf("expected concurrency=4, got %d", cfg.Sync.Concurrency)
	}
	if cfg.Sync.CommitMode != CommitProposeOnly {
		t.Errorf("expected commit_mode=propose-only, got %s", cfg.Sync.CommitMode)
	}
	if len(cfg.Sync.Encodings) != 1 || cfg.Sync.Encodings[0] != "gzip" {
		t.Errorf("expected encodings=[gzip], got %v", cfg.Sync.Encodings)
	}
	if cfg.Sync.RetryBackoffDuration() != 500*time.Millisecond {
		t.Errorf("expected retry_backoff=500ms, got %v", cfg.Sync.RetryBackoffDuration())
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}

	configPath := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(configPath, []byte("service: [not, a, map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(configPath); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		commitMode string
		socketPath string
	}{
		{
			name:       "production defaults to proposals",
			content:    "environment: production\n",
			commitMode: CommitProposal,
			socketPath: "/run/certasset/store.sock",
		},
		{
			name: "explicit production section",
			content: `
environment: production
production:
  sync:
    commit_mode: propose-only
    socket_path: /prod/store.sock
`,
			commitMode: CommitProposeOnly,
			socketPath: "/prod/store.sock",
		},
		{
			name: "staging section ignored in development",
			content: `
environment: development
staging:
  sync:
    commit_mode: proposal
`,
			commitMode: CommitDirect,
			socketPath: "/run/certasset/store.sock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "certasset.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadFile(configPath)
			if err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}
			if cfg.Sync.CommitMode != tt.commitMode {
				t.Errorf("commit_mode = %s, want %s", cfg.Sync.CommitMode, tt.commitMode)
			}
			if cfg.Sync.SocketPath != tt.socketPath {
				t.Errorf("sync.socket_path = %s, want %s", cfg.Sync.SocketPath, tt.socketPath)
			}
		})
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/certasset",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/certasset",
		},
		{
			input:    "${CERTASSET_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid environment",
			modify:  func(c *Config) { c.Environment = "invalid" },
			wantErr: "invalid environment",
		},
		{
			name:    "empty root path",
			modify:  func(c *Config) { c.Paths.Root = "" },
			wantErr: "paths.root is required",
		},
		{
			name:    "unknown compression",
			modify:  func(c *Config) { c.Service.SnapshotCompression = "xz" },
			wantErr: "service.snapshot_compression",
		},
		{
			name:    "bad duration",
			modify:  func(c *Config) { c.Service.BatchTTL = "soon" },
			wantErr: "service.batch_ttl",
		},
		{
			name:    "negative duration",
			modify:  func(c *Config) { c.Sync.RetryBackoff = "-1s" },
			wantErr: "sync.retry_backoff must be positive",
		},
		{
			name:    "unknown encoding",
			modify:  func(c *Config) { c.Service.EncodingPriority = []string{"br", "deflate"} },
			wantErr: `unknown encoding "deflate"`,
		},
		{
			name:    "bad status",
			modify:  func(c *Config) { c.Service.FallbackStatus = 42 },
			wantErr: "service.fallback_status",
		},
		{
			name:    "zero concurrency",
			modify:  func(c *Config) { c.Sync.Concurrency = 0 },
			wantErr: "sync.concurrency",
		},
		{
			name:    "unknown commit mode",
			modify:  func(c *Config) { c.Sync.CommitMode = "force" },
			wantErr: "sync.commit_mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want one mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Service.SocketPath = ""
	cfg.Sync.SocketPath = ""
	cfg.Sync.ChunkSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"service.socket_path", "sync.socket_path", "sync.chunk_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Paths.Root = filepath.Join(tmpDir, "certasset")
	cfg.Paths.State = filepath.Join(cfg.Paths.Root, "state")
	cfg.Service.SigningKey = filepath.Join(cfg.Paths.Root, "keys", "signing.key")
	cfg.Service.SnapshotPath = filepath.Join(cfg.Paths.Root, "snapshots", "assets.snapshot")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{
		cfg.Paths.Root,
		cfg.Paths.State,
		filepath.Join(cfg.Paths.Root, "keys"),
		filepath.Join(cfg.Paths.Root, "snapshots"),
	} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
