// Package errkind defines the typed error taxonomy shared by every
// component of the storage substrate: NotFound, Conflict, Corruption,
// Unavailable, PermissionDenied, InvalidRequest and Internal.
//
// Lower layers (blobstore, indexedlog) produce these directly; higher
// layers attach context (operation, key, repo id) with Wrap without
// erasing the Kind, so callers can still recover it with errors.As.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is a stable error tag. Callers should branch on Kind, never on the
// error's formatted message.
type Kind string

const (
	NotFound         Kind = "not_found"
	Conflict         Kind = "conflict"
	Corruption       Kind = "corruption"
	Unavailable      Kind = "unavailable"
	PermissionDenied Kind = "permission_denied"
	InvalidRequest   Kind = "invalid_request"
	Internal         Kind = "internal"
)

// Error is the concrete error type produced by this module. Op, Key and
// RepoID are optional context fields; Err is the wrapped cause, if any.
type Error struct {
	Kind   Kind
	Op     string
	Key    string
	RepoID int32
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, errkind.New(errkind.NotFound, "", "")) match
// any *Error in err's chain by Kind alone; see the package-level Is
// helper below for the usual call shape.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New creates an *Error of the given kind with no wrapped cause.
func New(kind Kind, op, key string) *Error {
	return &Error{Kind: kind, Op: op, Key: key}
}

// Wrap attaches operation/key context to err without discarding its Kind:
// if err already carries a *Error, its Kind is kept; otherwise err is
// classified as kind.
func Wrap(kind Kind, op, key string, err error) *Error {
	var inner *Error
	if errors.As(err, &inner) {
		kind = inner.Kind
	}
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// Of returns the Kind of err, or Internal if err is not a tagged *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether the first *Error in err's chain is tagged with the
// given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}

// WithRepoID returns a copy of e annotated with a repo id, for layers that
// learn the repo id after the error is first constructed.
func (e *Error) WithRepoID(repoID int32) *Error {
	cp := *e
	cp.RepoID = repoID
	return &cp
}
