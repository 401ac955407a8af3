package gameroot

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/access"
)

// Kind classifies a failed call.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindPrecondition  Kind = "precondition"
	KindInvariant     Kind = "invariant"
	KindInternal      Kind = "internal"
)

// CallError carries a stable code of the form operation.reason.
type CallError struct {
	kind Kind
	code string
	err  error
}

func (e *CallError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *CallError) Unwrap() error {
	return e.err
}

func (e *CallError) Code() string {
	return e.code
}

func (e *CallError) Kind() Kind {
	return e.kind
}

func newCallError(kind Kind, operation, reason string, cause error) error {
	return &CallError{kind: kind, code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Precondition reports a rejected input or state (missing game, bad price, ...).
func Precondition(operation, reason string, cause error) error {
	return newCallError(KindPrecondition, operation, reason, cause)
}

// Invariant reports a stale compare-and-set or a broken ledger expectation.
func Invariant(operation, reason string, cause error) error {
	return newCallError(KindInvariant, operation, reason, cause)
}

// Unauthorized wraps a failed role check.
func Unauthorized(operation string, cause error) error {
	return newCallError(KindAuthorization, operation, "missing_role", cause)
}

// Internal wraps storage and wiring failures.
func Internal(operation, reason string, cause error) error {
	return newCallError(KindInternal, operation, reason, cause)
}

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.kind
	}
	var missing *access.MissingRoleError
	if errors.As(err, &missing) {
		return KindAuthorization
	}
	return KindInternal
}

// CodeOf returns the CallError code or "internal".
func CodeOf(err error) string {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.code
	}
	var missing *access.MissingRoleError
	if errors.As(err, &missing) {
		return "access.missing_role"
	}
	return "internal"
}
