// Package errkind defines the error categories raised by the remediation
// engine and a classifier used by metrics and retry policy.
package errkind

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a raised error, per the error handling
// design: each kind carries its own recovery policy at the call site.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindCrypto          Kind = "crypto"
	KindHostKey         Kind = "host_key"
	KindAuth            Kind = "auth"
	KindConnection      Kind = "connection"
	KindCommand         Kind = "command"
	KindFileTransfer    Kind = "file_transfer"
	KindState           Kind = "state"
	KindPool            Kind = "pool"
	KindPlaybook        Kind = "playbook"
	KindUnknown         Kind = "unknown"
)

// Error is the common typed-error shape for every kind above. It never
// carries user-facing payload beyond the kind name and an opaque detail
// string; callers needing structured fields wrap it with %w.
type Error struct {
	Kind    Kind
	Op      string
	Detail  string
	Wrapped error
}

func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: err.Error(), Wrapped: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Detail)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// The constructors below build a pre-populated error per kind with a
// one-line detail, matching the naming this module uses for each kind.
func ValidationError(field, value string) *Error {
	return New(KindValidation, field, fmt.Sprintf("invalid value %q", value))
}

func CryptoError(detail string) *Error {
	return New(KindCrypto, "", detail)
}

func HostKeyError(expected, actual string) *Error {
	return New(KindHostKey, "", fmt.Sprintf("expected %s got %s", expected, actual))
}

func AuthError(detail string) *Error {
	return New(KindAuth, "", detail)
}

func ConnectionError(detail string) *Error {
	return New(KindConnection, "", detail)
}

func CommandError(detail string) *Error {
	return New(KindCommand, "", detail)
}

func FileTransferError(local, remote, cause string) *Error {
	return New(KindFileTransfer, "", fmt.Sprintf("%s -> %s: %s", local, remote, cause))
}

func StateError(detail string) *Error {
	return New(KindState, "", detail)
}

func PoolError(detail string) *Error {
	return New(KindPool, "", detail)
}

func PlaybookError(detail string) *Error {
	return New(KindPlaybook, "", detail)
}

// Classify recovers the Kind of any error produced by this package,
// returning KindUnknown for foreign errors, for labeling retry metrics.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether errors of this kind are eligible for the
// engine's retry/backoff policy.
func Retryable(k Kind) bool {
	switch k {
	case KindConnection, KindCommand, KindPool:
		return true
	default:
		return false
	}
}
