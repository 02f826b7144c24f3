// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the certasset tool: a tree
// of [Command] values with pflag-based flag parsing, structured help
// output, and typo suggestions for unknown commands and flags.
//
// Commands return errors. A command whose failure is an expected
// outcome (for example "verify" reporting an uncertified response)
// returns an [ExitError] after printing its own output, and main exits
// with that code without an extra error line.
package cli
