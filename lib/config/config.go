// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Commit modes of the sync tool.
const (
	// CommitDirect applies the batch in one commit_batch call.
	CommitDirect = "direct"
	// CommitProposal proposes the batch, compares evidence, and
	// commits only on a match.
	CommitProposal = "proposal"
	// CommitProposeOnly proposes the batch and prints the evidence
	// for a separate party to commit.
	CommitProposeOnly = "propose-only"
)

var (
	commitModes       = []string{CommitDirect, CommitProposal, CommitProposeOnly}
	compressionNames  = []string{"none", "lz4", "zstd"}
	contentEncodings  = []string{"identity", "gzip", "br"}
	maxUploadParallel = 64
)

// Config is the master configuration for certasset.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Service configures the store host.
	Service ServiceConfig `yaml:"service"`

	// Sync configures the sync tool.
	Sync SyncConfig `yaml:"sync"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Service *ServiceConfig `yaml:"service,omitempty"`
	Sync    *SyncConfig    `yaml:"sync,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for certasset data.
	Root string `yaml:"root"`

	// State holds the signing key and snapshots.
	State string `yaml:"state"`
}

// ServiceConfig configures certasset-service.
type ServiceConfig struct {
	// SocketPath is the Unix socket the store protocol is served on.
	// Default: /run/certasset/store.sock
	SocketPath string `yaml:"socket_path"`

	// HTTPListen is the TCP address of the HTTP gateway. Empty
	// disables the gateway.
	HTTPListen string `yaml:"http_listen"`

	// SigningKey is the path of the Ed25519 certificate key, created
	// on first start.
	SigningKey string `yaml:"signing_key"`

	// SnapshotPath is where committed assets are persisted. Empty
	// disables persistence.
	SnapshotPath string `yaml:"snapshot_path"`

	// SnapshotCompression is one of none, lz4, zstd.
	SnapshotCompression string `yaml:"snapshot_compression"`

	// MaintenanceInterval is how often expired batches are swept and
	// pending snapshots written.
	// Default: 1m
	MaintenanceInterval string `yaml:"maintenance_interval"`

	// BatchTTL is how long a batch lives without activity.
	// Default: 5m
	BatchTTL string `yaml:"batch_ttl"`

	// Limits bound the staging area. Absent means unlimited.
	MaxBatches *uint64 `yaml:"max_batches,omitempty"`
	MaxChunks  *uint64 `yaml:"max_chunks,omitempty"`
	MaxBytes   *uint64 `yaml:"max_bytes,omitempty"`

	// EncodingPriority is the order the responder prefers encodings
	// in. Values: identity, gzip, br.
	EncodingPriority []string `yaml:"encoding_priority,omitempty"`

	// RawHostMarker marks hosts served without certification.
	// Default: .raw.
	RawHostMarker string `yaml:"raw_host_marker"`

	// FallbackKey is the asset served for unknown paths.
	FallbackKey string `yaml:"fallback_key"`

	// FallbackStatus is the status code of fallback responses.
	// Default: 404
	FallbackStatus uint16 `yaml:"fallback_status"`
}

// SyncConfig configures the sync tool.
type SyncConfig struct {
	// SocketPath is the store socket to sync into.
	// Default: /run/certasset/store.sock
	SocketPath string `yaml:"socket_path"`

	// Concurrency bounds parallel encoding and chunk uploads.
	// Default: 8
	Concurrency int `yaml:"concurrency"`

	// RetryAttempts is how many times a failed chunk upload is tried
	// in total.
	// Default: 3
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBackoff is the wait before the first retry; it doubles
	// with every further attempt.
	// Default: 500ms
	RetryBackoff string `yaml:"retry_backoff"`

	// ChunkSize is the largest chunk uploaded, in bytes.
	// Default: 1900000
	ChunkSize int `yaml:"chunk_size"`

	// CommitMode is one of direct, proposal, propose-only.
	// Default: direct (development), proposal (production)
	CommitMode string `yaml:"commit_mode"`

	// EvidenceIterations is the work bound passed to each
	// compute_evidence call.
	// Default: 100
	EvidenceIterations uint16 `yaml:"evidence_iterations"`

	// Encodings lists the encodings produced for compressible
	// content. Identity is always produced.
	// Default: [gzip, br]
	Encodings []string `yaml:"encodings,omitempty"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "certasset")
	stateDir := filepath.Join(defaultRoot, "state")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: stateDir,
		},
		Service: ServiceConfig{
			SocketPath:          "/run/certasset/store.sock",
			HTTPListen:          "127.0.0.1:8480",
			SigningKey:          filepath.Join(stateDir, "signing.key"),
			SnapshotPath:        filepath.Join(stateDir, "assets.snapshot"),
			SnapshotCompression: "zstd",
			MaintenanceInterval: "1m",
			BatchTTL:            "5m",
			EncodingPriority:    []string{"br", "gzip", "identity"},
			RawHostMarker:       ".raw.",
			FallbackStatus:      404,
		},
		Sync: SyncConfig{
			SocketPath:         "/run/certasset/store.sock",
			Concurrency:        8,
			RetryAttempts:      3,
			RetryBackoff:       "500ms",
			ChunkSize:          1_900_000,
			CommitMode:         CommitDirect,
			EvidenceIterations: 100,
			Encodings:          []string{"gzip", "br"},
		},
	}
}

// Load loads configuration from the CERTASSET_CONFIG environment
// variable. There is no fallback: if it is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("CERTASSET_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CERTASSET_CONFIG environment variable not set; " +
			"set it to the path of your certasset.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// Default.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME},
// ${CERTASSET_ROOT} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: commits are gated on evidence.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Sync: &SyncConfig{CommitMode: CommitProposal},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		setString(&c.Paths.Root, overrides.Paths.Root)
		setString(&c.Paths.State, overrides.Paths.State)
	}

	if service := overrides.Service; service != nil {
		setString(&c.Service.SocketPath, service.SocketPath)
		setString(&c.Service.HTTPListen, service.HTTPListen)
		setString(&c.Service.SigningKey, service.SigningKey)
		setString(&c.Service.SnapshotPath, service.SnapshotPath)
		setString(&c.Service.SnapshotCompression, service.SnapshotCompression)
		setString(&c.Service.MaintenanceInterval, service.MaintenanceInterval)
		setString(&c.Service.BatchTTL, service.BatchTTL)
		setString(&c.Service.RawHostMarker, service.RawHostMarker)
		setString(&c.Service.FallbackKey, service.FallbackKey)
		if service.MaxBatches != nil {
			c.Service.MaxBatches = service.MaxBatches
		}
		if service.MaxChunks != nil {
			c.Service.MaxChunks = service.MaxChunks
		}
		if service.MaxBytes != nil {
			c.Service.MaxBytes = service.MaxBytes
		}
		if len(service.EncodingPriority) > 0 {
			c.Service.EncodingPriority = service.EncodingPriority
		}
		if service.FallbackStatus != 0 {
			c.Service.FallbackStatus = service.FallbackStatus
		}
	}

	if sync := overrides.Sync; sync != nil {
		setString(&c.Sync.SocketPath, sync.SocketPath)
		setString(&c.Sync.RetryBackoff, sync.RetryBackoff)
		setString(&c.Sync.CommitMode, sync.CommitMode)
		if sync.Concurrency != 0 {
			c.Sync.Concurrency = sync.Concurrency
		}
		if sync.RetryAttempts != 0 {
			c.Sync.RetryAttempts = sync.RetryAttempts
		}
		if sync.ChunkSize != 0 {
			c.Sync.ChunkSize = sync.ChunkSize
		}
		if sync.EvidenceIterations != 0 {
			c.Sync.EvidenceIterations = sync.EvidenceIterations
		}
		if len(sync.Encodings) > 0 {
			c.Sync.Encodings = sync.Encodings
		}
	}
}

func setString(target *string, override string) {
	if override != "" {
		*target = override
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CERTASSET_ROOT": c.Paths.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["CERTASSET_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["CERTASSET_STATE"] = c.Paths.State

	c.Service.SocketPath = expandVars(c.Service.SocketPath, vars)
	c.Service.SigningKey = expandVars(c.Service.SigningKey, vars)
	c.Service.SnapshotPath = expandVars(c.Service.SnapshotPath, vars)
	c.Sync.SocketPath = expandVars(c.Sync.SocketPath, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem found is
// reported, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}

	if c.Service.SocketPath == "" {
		errs = append(errs, errors.New("service.socket_path is required"))
	}
	if c.Service.SigningKey == "" {
		errs = append(errs, errors.New("service.signing_key is required"))
	}
	if !slices.Contains(compressionNames, c.Service.SnapshotCompression) {
		errs = append(errs, fmt.Errorf("service.snapshot_compression must be one of: %v", compressionNames))
	}
	errs = appendDurationError(errs, "service.maintenance_interval", c.Service.MaintenanceInterval)
	errs = appendDurationError(errs, "service.batch_ttl", c.Service.BatchTTL)
	for _, name := range c.Service.EncodingPriority {
		if !slices.Contains(contentEncodings, name) {
			errs = append(errs, fmt.Errorf("service.encoding_priority: unknown encoding %q (want one of %v)", name, contentEncodings))
		}
	}
	if c.Service.FallbackStatus < 100 || c.Service.FallbackStatus > 599 {
		errs = append(errs, fmt.Errorf("service.fallback_status %d is not an HTTP status", c.Service.FallbackStatus))
	}

	if c.Sync.SocketPath == "" {
		errs = append(errs, errors.New("sync.socket_path is required"))
	}
	if c.Sync.Concurrency < 1 || c.Sync.Concurrency > maxUploadParallel {
		errs = append(errs, fmt.Errorf("sync.concurrency must be between 1 and %d", maxUploadParallel))
	}
	if c.Sync.RetryAttempts < 1 {
		errs = append(errs, errors.New("sync.retry_attempts must be at least 1"))
	}
	errs = appendDurationError(errs, "sync.retry_backoff", c.Sync.RetryBackoff)
	if c.Sync.ChunkSize < 1 {
		errs = append(errs, errors.New("sync.chunk_size must be positive"))
	}
	if !slices.Contains(commitModes, c.Sync.CommitMode) {
		errs = append(errs, fmt.Errorf("sync.commit_mode must be one of: %v", commitModes))
	}
	if c.Sync.EvidenceIterations == 0 {
		errs = append(errs, errors.New("sync.evidence_iterations must be positive"))
	}
	for _, name := range c.Sync.Encodings {
		if !slices.Contains(contentEncodings, name) {
			errs = append(errs, fmt.Errorf("sync.encodings: unknown encoding %q (want one of %v)", name, contentEncodings))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func appendDurationError(errs []error, field, value string) []error {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", field, err))
	}
	if duration <= 0 {
		return append(errs, fmt.Errorf("%s must be positive", field))
	}
	return errs
}

// MaintenanceIntervalDuration returns the parsed service.maintenance_interval.
// Call after Validate.
func (c *ServiceConfig) MaintenanceIntervalDuration() time.Duration {
	duration, _ := time.ParseDuration(c.MaintenanceInterval)
	return duration
}

// BatchTTLDuration returns the parsed service.batch_ttl. Call after
// Validate.
func (c *ServiceConfig) BatchTTLDuration() time.Duration {
	duration, _ := time.ParseDuration(c.BatchTTL)
	return duration
}

// RetryBackoffDuration returns the parsed sync.retry_backoff. Call
// after Validate.
func (c *SyncConfig) RetryBackoffDuration() time.Duration {
	duration, _ := time.ParseDuration(c.RetryBackoff)
	return duration
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
	}
	for _, file := range []string{c.Service.SigningKey, c.Service.SnapshotPath} {
		if file != "" {
			paths = append(paths, filepath.Dir(file))
		}
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
