// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

// PropertyAction says what a property update does to the stored value.
type PropertyAction uint8

const (
	// Unchanged leaves the stored value as it is. It is the zero
	// value, so a property absent from a decoded request is
	// unchanged.
	Unchanged PropertyAction = iota
	// Clear removes the stored value.
	Clear
	// SetTo replaces the stored value with Property.Value.
	SetTo
)

// Property is a tri-state update of an optional asset property.
type Property[T any] struct {
	Action PropertyAction `cbor:"action"`
	Value  T              `cbor:"value,omitempty"`
}

// Set returns a property update that stores value.
func Set[T any](value T) Property[T] {
	return Property[T]{Action: SetTo, Value: value}
}

// Cleared returns a property update that removes the stored value.
func Cleared[T any]() Property[T] {
	return Property[T]{Action: Clear}
}

// IsUnchanged reports whether p leaves the value alone.
func (p Property[T]) IsUnchanged() bool {
	return p.Action == Unchanged
}

// Apply returns the value that results from applying p to current,
// where nil means "not set".
func (p Property[T]) Apply(current *T) *T {
	switch p.Action {
	case Clear:
		return nil
	case SetTo:
		value := p.Value
		return &value
	default:
		return current
	}
}

// validate rejects actions outside the three known values.
func (p Property[T]) validate(name string) error {
	switch p.Action {
	case Unchanged, Clear, SetTo:
		return nil
	default:
		return Validationf("property %s: unknown action %d", name, p.Action)
	}
}
