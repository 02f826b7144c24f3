// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure.
type ErrorKind uint8

const (
	// KindUnknown is the kind of errors outside the taxonomy.
	KindUnknown ErrorKind = iota
	// KindValidation covers malformed arguments.
	KindValidation
	// KindConsistency covers disagreement between expected and actual
	// state: evidence mismatch, content type mismatch, missing or
	// expired batch, digest mismatch.
	KindConsistency
	// KindResource covers local I/O, hashing, network failures, and
	// exhausted store limits.
	KindResource
	// KindProtocol covers invalid state transitions such as
	// committing a batch twice.
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConsistency:
		return "consistency"
	case KindResource:
		return "resource"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// ParseErrorKind is the inverse of String. Unrecognised names map to
// KindUnknown.
func ParseErrorKind(name string) ErrorKind {
	switch name {
	case "validation":
		return KindValidation
	case "consistency":
		return KindConsistency
	case "resource":
		return KindResource
	case "protocol":
		return KindProtocol
	default:
		return KindUnknown
	}
}

// Error is a classified error.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorKind returns the kind name carried in the socket response
// envelope.
func (e *Error) ErrorKind() string {
	return e.Kind.String()
}

// Is matches any *Error of the same kind, so errors.Is(err,
// ErrEvidenceMismatch) and kind checks work through wrapping.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind && (other.Message == "" || other.Message == e.Message)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnknown
}

// Validationf returns a KindValidation error.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Consistencyf returns a KindConsistency error.
func Consistencyf(format string, args ...any) error {
	return &Error{Kind: KindConsistency, Message: fmt.Sprintf(format, args...)}
}

// Resourcef returns a KindResource error.
func Resourcef(format string, args ...any) error {
	return &Error{Kind: KindResource, Message: fmt.Sprintf(format, args...)}
}

// Protocolf returns a KindProtocol error.
func Protocolf(format string, args ...any) error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}

// ErrEvidenceMismatch is returned when the store's evidence for a
// proposed batch differs from the evidence the client computed. It
// is never recovered from: the batch is not committed.
var ErrEvidenceMismatch = &Error{Kind: KindConsistency, Message: "evidence mismatch: not committing"}
