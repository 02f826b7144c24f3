// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"sort"
	"strings"
)

// BatchID identifies a batch in the store.
type BatchID uint64

// ChunkID identifies an uploaded chunk in the store.
type ChunkID uint64

// OperationKind is the tag of a BatchOperation. The numeric values
// are the one-byte tags fed to the evidence hasher and must not
// change.
type OperationKind uint8

const (
	KindCreateAsset        OperationKind = 1
	KindSetAssetContent    OperationKind = 2
	KindUnsetAssetContent  OperationKind = 3
	KindDeleteAsset        OperationKind = 4
	KindClear              OperationKind = 5
	KindSetAssetProperties OperationKind = 6
)

func (k OperationKind) String() string {
	switch k {
	case KindCreateAsset:
		return "CreateAsset"
	case KindSetAssetContent:
		return "SetAssetContent"
	case KindUnsetAssetContent:
		return "UnsetAssetContent"
	case KindDeleteAsset:
		return "DeleteAsset"
	case KindClear:
		return "Clear"
	case KindSetAssetProperties:
		return "SetAssetProperties"
	default:
		return "Invalid"
	}
}

// phase is the position of a kind in the canonical order.
func (k OperationKind) phase() int {
	switch k {
	case KindClear:
		return 0
	case KindDeleteAsset:
		return 1
	case KindCreateAsset:
		return 2
	case KindUnsetAssetContent:
		return 3
	case KindSetAssetContent:
		return 4
	case KindSetAssetProperties:
		return 5
	default:
		return 6
	}
}

// CreateAssetArguments creates an empty asset. Unset optional fields
// take the store defaults (no max-age, no extra headers, aliasing
// enabled, raw access disallowed).
type CreateAssetArguments struct {
	Key            string            `cbor:"key"`
	ContentType    string            `cbor:"content_type"`
	MaxAge         *uint64           `cbor:"max_age,omitempty"`
	Headers        map[string]string `cbor:"headers,omitempty"`
	EnableAliasing *bool             `cbor:"enable_aliasing,omitempty"`
	AllowRawAccess *bool             `cbor:"allow_raw_access,omitempty"`
}

// SetAssetContentArguments assembles previously uploaded chunks, in
// order, into one encoding of an asset. When SHA256 is present the
// store verifies it against the assembled bytes.
type SetAssetContentArguments struct {
	Key             string          `cbor:"key"`
	ContentEncoding ContentEncoding `cbor:"content_encoding"`
	ChunkIDs        []ChunkID       `cbor:"chunk_ids"`
	SHA256          *Hash           `cbor:"sha256,omitempty"`
}

// UnsetAssetContentArguments removes one encoding of an asset.
type UnsetAssetContentArguments struct {
	Key             string          `cbor:"key"`
	ContentEncoding ContentEncoding `cbor:"content_encoding"`
}

// DeleteAssetArguments removes an asset and all its encodings.
type DeleteAssetArguments struct {
	Key string `cbor:"key"`
}

// ClearArguments removes every asset. It has no fields.
type ClearArguments struct{}

// SetAssetPropertiesArguments updates mutable asset properties.
type SetAssetPropertiesArguments struct {
	Key            string                      `cbor:"key"`
	MaxAge         Property[uint64]            `cbor:"max_age"`
	Headers        Property[map[string]string] `cbor:"headers"`
	AllowRawAccess Property[bool]              `cbor:"allow_raw_access"`
	IsAliased      Property[bool]              `cbor:"is_aliased"`
}

// BatchOperation is a tagged variant: exactly one field is non-nil.
type BatchOperation struct {
	CreateAsset        *CreateAssetArguments        `cbor:"create_asset,omitempty"`
	SetAssetContent    *SetAssetContentArguments    `cbor:"set_asset_content,omitempty"`
	UnsetAssetContent  *UnsetAssetContentArguments  `cbor:"unset_asset_content,omitempty"`
	DeleteAsset        *DeleteAssetArguments        `cbor:"delete_asset,omitempty"`
	Clear              *ClearArguments              `cbor:"clear,omitempty"`
	SetAssetProperties *SetAssetPropertiesArguments `cbor:"set_asset_properties,omitempty"`
}

// Kind returns the variant tag, or 0 if the operation does not hold
// exactly one variant.
func (o BatchOperation) Kind() OperationKind {
	var kind OperationKind
	count := 0
	if o.CreateAsset != nil {
		kind, count = KindCreateAsset, count+1
	}
	if o.SetAssetContent != nil {
		kind, count = KindSetAssetContent, count+1
	}
	if o.UnsetAssetContent != nil {
		kind, count = KindUnsetAssetContent, count+1
	}
	if o.DeleteAsset != nil {
		kind, count = KindDeleteAsset, count+1
	}
	if o.Clear != nil {
		kind, count = KindClear, count+1
	}
	if o.SetAssetProperties != nil {
		kind, count = KindSetAssetProperties, count+1
	}
	if count != 1 {
		return 0
	}
	return kind
}

// Key returns the asset key the operation targets, or "" for Clear.
func (o BatchOperation) Key() string {
	switch o.Kind() {
	case KindCreateAsset:
		return o.CreateAsset.Key
	case KindSetAssetContent:
		return o.SetAssetContent.Key
	case KindUnsetAssetContent:
		return o.UnsetAssetContent.Key
	case KindDeleteAsset:
		return o.DeleteAsset.Key
	case KindSetAssetProperties:
		return o.SetAssetProperties.Key
	default:
		return ""
	}
}

// encoding returns the content encoding for encoding-scoped
// operations. The second result is false for other kinds.
func (o BatchOperation) encoding() (ContentEncoding, bool) {
	switch o.Kind() {
	case KindSetAssetContent:
		return o.SetAssetContent.ContentEncoding, true
	case KindUnsetAssetContent:
		return o.UnsetAssetContent.ContentEncoding, true
	default:
		return 0, false
	}
}

// String renders the operation for diff reports and logs.
func (o BatchOperation) String() string {
	kind := o.Kind()
	switch kind {
	case KindClear:
		return "Clear"
	case KindSetAssetContent, KindUnsetAssetContent:
		encoding, _ := o.encoding()
		return kind.String() + "(" + o.Key() + ", " + encoding.String() + ")"
	case 0:
		return "Invalid"
	default:
		return kind.String() + "(" + o.Key() + ")"
	}
}

// Validate checks the shape of a single operation.
func (o BatchOperation) Validate() error {
	kind := o.Kind()
	if kind == 0 {
		return Validationf("batch operation must hold exactly one variant")
	}
	if kind == KindClear {
		return nil
	}
	if err := ValidateKey(o.Key()); err != nil {
		return err
	}
	switch kind {
	case KindCreateAsset:
		if strings.TrimSpace(o.CreateAsset.ContentType) == "" {
			return Validationf("CreateAsset(%s): content_type is required", o.CreateAsset.Key)
		}
		return ValidateHeaders(o.CreateAsset.Headers)
	case KindSetAssetContent:
		if _, err := o.SetAssetContent.ContentEncoding.MarshalText(); err != nil {
			return err
		}
		if len(o.SetAssetContent.ChunkIDs) == 0 {
			// A zero-length asset is uploaded as one empty chunk.
			return Validationf("SetAssetContent(%s): chunk_ids is empty", o.SetAssetContent.Key)
		}
	case KindUnsetAssetContent:
		if _, err := o.UnsetAssetContent.ContentEncoding.MarshalText(); err != nil {
			return err
		}
	case KindSetAssetProperties:
		arguments := o.SetAssetProperties
		checks := []struct {
			name  string
			check func(string) error
		}{
			{"max_age", arguments.MaxAge.validate},
			{"headers", arguments.Headers.validate},
			{"allow_raw_access", arguments.AllowRawAccess.validate},
			{"is_aliased", arguments.IsAliased.validate},
		}
		for _, property := range checks {
			if err := property.check(property.name); err != nil {
				return err
			}
		}
		if arguments.Headers.Action == SetTo {
			return ValidateHeaders(arguments.Headers.Value)
		}
	}
	return nil
}

// ValidateOperations validates every operation and rejects a list in
// which two operations share a kind, key and encoding. Without such
// duplicates [CanonicalOrder] is a total order, so the evidence of a
// batch depends only on its set of operations.
func ValidateOperations(operations []BatchOperation) error {
	type identity struct {
		kind     OperationKind
		key      string
		encoding ContentEncoding
	}
	seen := make(map[identity]struct{}, len(operations))
	for _, operation := range operations {
		if err := operation.Validate(); err != nil {
			return err
		}
		encoding, _ := operation.encoding()
		id := identity{kind: operation.Kind(), key: operation.Key(), encoding: encoding}
		if _, duplicate := seen[id]; duplicate {
			return Validationf("%s appears more than once in the batch", operation)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// ValidateKey checks that key is an absolute URL path whose segments
// do not collide with the certification tree's path markers.
func ValidateKey(key string) error {
	if !strings.HasPrefix(key, "/") {
		return Validationf("asset key %q must start with '/'", key)
	}
	if strings.ContainsAny(key, "?#") {
		return Validationf("asset key %q must not contain a query or fragment", key)
	}
	for _, segment := range strings.Split(key[1:], "/") {
		if segment == "<$>" || segment == "<*>" {
			return Validationf("asset key %q contains the reserved segment %q", key, segment)
		}
	}
	return nil
}

// ValidateHeaders checks that every header name is a non-empty HTTP
// token and that no two names differ only in case.
func ValidateHeaders(headers map[string]string) error {
	seen := make(map[string]string, len(headers))
	for name, value := range headers {
		if name == "" {
			return Validationf("header name must not be empty")
		}
		for _, r := range name {
			if !isTokenRune(r) {
				return Validationf("header name %q contains invalid character %q", name, r)
			}
		}
		if strings.ContainsAny(value, "\r\n") {
			return Validationf("header %q value contains a line break", name)
		}
		lower := strings.ToLower(name)
		if previous, exists := seen[lower]; exists {
			return Validationf("header names %q and %q differ only in case", previous, name)
		}
		seen[lower] = name
	}
	return nil
}

func isTokenRune(r rune) bool {
	if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
		return true
	}
	return strings.ContainsRune("!#$%&'*+-.^_`|~", r)
}

// CanonicalOrder returns a copy of operations sorted into canonical
// order: by kind phase, then key, then encoding. The sort is stable;
// lists accepted by [ValidateOperations] have no equal elements.
func CanonicalOrder(operations []BatchOperation) []BatchOperation {
	sorted := make([]BatchOperation, len(operations))
	copy(sorted, operations)
	sort.SliceStable(sorted, func(i, j int) bool {
		left, right := sorted[i], sorted[j]
		if left.Kind().phase() != right.Kind().phase() {
			return left.Kind().phase() < right.Kind().phase()
		}
		if left.Key() != right.Key() {
			return left.Key() < right.Key()
		}
		leftEncoding, _ := left.encoding()
		rightEncoding, _ := right.encoding()
		return leftEncoding < rightEncoding
	})
	return sorted
}
