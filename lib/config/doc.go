// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for certasset
// binaries.
//
// Configuration is loaded from a single file specified by either the
// CERTASSET_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search; when
// neither is given the binaries run on [Default]. Command-line flags
// of the binaries override file values after loading.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter: the
// sync tool commits through evidence-gated proposals.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${CERTASSET_ROOT}, ${CERTASSET_STATE} and ${VAR:-default}
// patterns are expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Service, Sync
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other certasset packages.
package config
