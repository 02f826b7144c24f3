// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetsync synchronizes a local directory into an asset
// store.
//
// A sync run is a pipeline:
//
//  1. [Scan] walks the directory and turns every file into a
//     [Descriptor], applying the per-directory .assets.jsonc rules
//     (cache lifetime, headers, aliasing, raw access, encodings,
//     ignore).
//  2. Each descriptor is read and encoded into identity plus the
//     requested compressed encodings. A compressed encoding that is
//     not smaller than identity is dropped.
//  3. [Diff] compares the encoded assets with the store's listing and
//     emits the minimal operation list: deletions, creations, unset
//     encodings, new content, property patches.
//  4. The [Syncer] opens a batch, uploads the content in chunks with
//     bounded concurrency and retries, and commits. In proposal mode
//     it proposes the batch, has the store compute evidence, and only
//     commits when the store's evidence equals the locally computed
//     one.
//
// A run that finds nothing to change creates no batch. The package
// talks to the store through the [Store] interface, which
// assetclient.Client implements over the service socket.
package assetsync
