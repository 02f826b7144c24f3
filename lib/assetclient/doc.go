// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetclient is the typed client for the asset store's socket
// protocol. Each method is one action; failures the store reports come
// back as *asset.Error with the kind the store assigned, so callers
// branch on [asset.KindOf] the same way whether they talk to a local
// State or a remote one. Transport failures (dial, timeout,
// cancellation) are returned as plain wrapped errors.
package assetclient
