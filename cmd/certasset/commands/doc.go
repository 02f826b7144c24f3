// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the command tree of the certasset tool.
//
// Every command talks to one store socket. Its path comes from
// --socket, else from sync.socket_path of the configuration, which is
// read from --config, else from $CERTASSET_CONFIG, else built from
// the defaults.
package commands
