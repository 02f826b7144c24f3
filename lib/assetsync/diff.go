// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"maps"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// RemoteAsset is one asset as the store lists it, with its mutable
// properties.
type RemoteAsset struct {
	asset.AssetDetails
	Properties asset.AssetProperties
}

// Diff returns the operations that make the store hold exactly local,
// in canonical order:
//
//  1. delete every remote asset that is gone locally or whose content
//     type changed
//  2. create every local asset the store does not hold (including the
//     ones just deleted for a content type change)
//  3. unset remote encodings the local asset no longer has
//  4. set every local encoding whose digest differs from the store's
//  5. patch the properties that differ on assets that were kept
//
// SetAssetContent operations carry the content digest but no chunk
// IDs; the upload fills those in. Running Diff against a store that
// already matches returns nothing.
func Diff(local []LocalAsset, remote []RemoteAsset) []asset.BatchOperation {
	localByKey := make(map[string]LocalAsset, len(local))
	for _, entry := range local {
		localByKey[entry.Key] = entry
	}

	var operations []asset.BatchOperation
	kept := make(map[string]RemoteAsset, len(remote))
	for _, entry := range remote {
		wanted, ok := localByKey[entry.Key]
		if !ok || wanted.ContentType != entry.ContentType {
			operations = append(operations, asset.BatchOperation{
				DeleteAsset: &asset.DeleteAssetArguments{Key: entry.Key},
			})
			continue
		}
		kept[entry.Key] = entry
	}

	for _, entry := range local {
		if _, ok := kept[entry.Key]; ok {
			continue
		}
		operations = append(operations, asset.BatchOperation{
			CreateAsset: &asset.CreateAssetArguments{
				Key:            entry.Key,
				ContentType:    entry.ContentType,
				MaxAge:         entry.MaxAge,
				Headers:        maps.Clone(entry.Headers),
				EnableAliasing: entry.EnableAliasing,
				AllowRawAccess: entry.AllowRawAccess,
			},
		})
	}

	for _, entry := range local {
		existing, ok := kept[entry.Key]
		if !ok {
			continue
		}
		for _, details := range existing.Encodings {
			if _, has := entry.Encoding(details.ContentEncoding); has {
				continue
			}
			operations = append(operations, asset.BatchOperation{
				UnsetAssetContent: &asset.UnsetAssetContentArguments{
					Key:             entry.Key,
					ContentEncoding: details.ContentEncoding,
				},
			})
		}
	}

	for _, entry := range local {
		existing, existed := kept[entry.Key]
		for _, content := range entry.Content {
			if existed {
				details, ok := existing.Encoding(content.Encoding)
				if ok && details.SHA256 == content.SHA256 {
					continue
				}
			}
			digest := content.SHA256
			operations = append(operations, asset.BatchOperation{
				SetAssetContent: &asset.SetAssetContentArguments{
					Key:             entry.Key,
					ContentEncoding: content.Encoding,
					SHA256:          &digest,
				},
			})
		}
	}

	for _, entry := range local {
		existing, ok := kept[entry.Key]
		if !ok {
			continue
		}
		if patch, changed := propertyPatch(entry.Descriptor, existing.Properties); changed {
			operations = append(operations, asset.BatchOperation{SetAssetProperties: &patch})
		}
	}

	return asset.CanonicalOrder(operations)
}

// propertyPatch returns the SetAssetProperties that moves stored to
// what local asks for, touching only the properties that differ.
// Unset aliasing and raw-access flags compare as their store
// defaults, so a rule that spells out a default causes no churn.
func propertyPatch(local Descriptor, stored asset.AssetProperties) (asset.SetAssetPropertiesArguments, bool) {
	patch := asset.SetAssetPropertiesArguments{Key: local.Key}
	changed := false

	if !equalOptional(local.MaxAge, stored.MaxAge) {
		patch.MaxAge = optionalUpdate(local.MaxAge)
		changed = true
	}
	if !maps.Equal(local.Headers, stored.Headers) {
		if len(local.Headers) == 0 {
			patch.Headers = asset.Cleared[map[string]string]()
		} else {
			patch.Headers = asset.Set(maps.Clone(local.Headers))
		}
		changed = true
	}
	if valueOr(local.AllowRawAccess, false) != valueOr(stored.AllowRawAccess, false) {
		patch.AllowRawAccess = optionalUpdate(local.AllowRawAccess)
		changed = true
	}
	if valueOr(local.EnableAliasing, true) != valueOr(stored.IsAliased, true) {
		patch.IsAliased = optionalUpdate(local.EnableAliasing)
		changed = true
	}
	return patch, changed
}

func equalOptional[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func optionalUpdate[T any](value *T) asset.Property[T] {
	if value == nil {
		return asset.Cleared[T]()
	}
	return asset.Set(*value)
}

func valueOr[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}
	return *value
}
