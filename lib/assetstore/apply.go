// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"crypto/sha256"
	"maps"
	"time"

	"github.com/bureau-foundation/certasset/lib/asset"
)

// workingView is a copy-on-write view of the asset map. The map is
// copied up front; an asset is cloned the first time an operation
// modifies it. The live map and the assets in it are never touched,
// so abandoning a view after a failed operation needs no rollback.
type workingView struct {
	assets map[string]*Asset
	owned  map[string]bool
}

func newWorkingView(live map[string]*Asset) *workingView {
	return &workingView{
		assets: maps.Clone(live),
		owned:  make(map[string]bool),
	}
}

// mutable returns an asset of the view that may be modified.
func (v *workingView) mutable(key string) (*Asset, error) {
	existing, exists := v.assets[key]
	if !exists {
		return nil, asset.Consistencyf("asset %s not found", key)
	}
	if !v.owned[key] {
		existing = existing.clone()
		v.assets[key] = existing
		v.owned[key] = true
	}
	return existing, nil
}

// apply performs one operation. Chunks referenced by SetAssetContent
// are recorded in consumed; the caller removes them only if the whole
// batch succeeds.
func (v *workingView) apply(operation asset.BatchOperation, chunks map[asset.ChunkID]*chunk, consumed map[asset.ChunkID]struct{}, now time.Time) error {
	switch operation.Kind() {
	case asset.KindClear:
		v.assets = make(map[string]*Asset)
		v.owned = make(map[string]bool)

	case asset.KindDeleteAsset:
		delete(v.assets, operation.DeleteAsset.Key)
		delete(v.owned, operation.DeleteAsset.Key)

	case asset.KindCreateAsset:
		arguments := operation.CreateAsset
		if existing, exists := v.assets[arguments.Key]; exists {
			if existing.ContentType != arguments.ContentType {
				return asset.Consistencyf("%s: content type mismatch: stored %q, requested %q",
					operation, existing.ContentType, arguments.ContentType)
			}
			return nil
		}
		v.assets[arguments.Key] = &Asset{
			Key:            arguments.Key,
			ContentType:    arguments.ContentType,
			Encodings:      make(map[asset.ContentEncoding]*Encoding),
			MaxAge:         arguments.MaxAge,
			Headers:        maps.Clone(arguments.Headers),
			IsAliased:      arguments.EnableAliasing,
			AllowRawAccess: arguments.AllowRawAccess,
		}
		v.owned[arguments.Key] = true

	case asset.KindSetAssetContent:
		arguments := operation.SetAssetContent
		target, err := v.mutable(arguments.Key)
		if err != nil {
			return err
		}
		encoding := &Encoding{
			Chunks:   make([][]byte, 0, len(arguments.ChunkIDs)),
			Modified: now.UnixNano(),
		}
		hasher := sha256.New()
		for _, chunkID := range arguments.ChunkIDs {
			stored, exists := chunks[chunkID]
			if !exists {
				return asset.Consistencyf("%s: chunk %d not found", operation, chunkID)
			}
			encoding.Chunks = append(encoding.Chunks, stored.content)
			encoding.TotalLength += uint64(len(stored.content))
			hasher.Write(stored.content)
			consumed[chunkID] = struct{}{}
		}
		copy(encoding.SHA256[:], hasher.Sum(nil))
		if arguments.SHA256 != nil && *arguments.SHA256 != encoding.SHA256 {
			return asset.Consistencyf("%s: sha256 mismatch: declared %s, content %s",
				operation, arguments.SHA256, encoding.SHA256)
		}
		target.Encodings[arguments.ContentEncoding] = encoding

	case asset.KindUnsetAssetContent:
		arguments := operation.UnsetAssetContent
		target, err := v.mutable(arguments.Key)
		if err != nil {
			return err
		}
		delete(target.Encodings, arguments.ContentEncoding)

	case asset.KindSetAssetProperties:
		arguments := operation.SetAssetProperties
		target, err := v.mutable(arguments.Key)
		if err != nil {
			return err
		}
		target.MaxAge = arguments.MaxAge.Apply(target.MaxAge)
		target.AllowRawAccess = arguments.AllowRawAccess.Apply(target.AllowRawAccess)
		target.IsAliased = arguments.IsAliased.Apply(target.IsAliased)
		if headers := arguments.Headers.Apply(&target.Headers); headers != nil {
			target.Headers = maps.Clone(*headers)
		} else {
			target.Headers = nil
		}

	default:
		return asset.Validationf("invalid batch operation")
	}
	return nil
}
