// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ekind implements the engine's error taxonomy.
//
// The taxonomy distinguishes error *kinds*, not types, per spec: callers
// branch on Kind rather than on concrete Go types, and only
// TransientStorageFailure is ever recovered from locally (see retry.go).
package ekind

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	// InvalidInput means a Finding or EvidenceBundle failed schema/shape
	// validation. No writes occur; the error is surfaced to the caller.
	InvalidInput Kind = "invalid_input"

	// ScopeNotFound means the (workspace, project) scope does not exist.
	ScopeNotFound Kind = "scope_not_found"

	// ScopeArchived means the project exists but is archived.
	ScopeArchived Kind = "scope_archived"

	// ExternalAgentFailure means the Attribution Agent call timed out or
	// returned a malformed EvidenceBundle. No AttributionOutcome is recorded.
	ExternalAgentFailure Kind = "external_agent_failure"

	// ConflictViolation means a store invariant was breached (e.g. a second
	// active Pattern for an already-occupied patternKey).
	ConflictViolation Kind = "conflict_violation"

	// TransientStorageFailure means the scoped store hiccuped in a way
	// that is expected to resolve itself; callers may retry.
	TransientStorageFailure Kind = "transient_storage_failure"
)

// Error is the engine's wrapped error type. Construct with New or Wrap;
// inspect with errors.As and the Kind field, or with Is against the
// package's sentinel errors below.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind, so that
// errors.Is(err, ekind.ErrConflictViolation) works against a wrapped *Error.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && errors.Is(sentinel, target)
}

// New builds an *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind, wrapping a lower-level cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Sentinel errors, one per Kind, so callers can use errors.Is without
// needing to import this package's Kind constants directly.
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrScopeNotFound           = errors.New("scope not found")
	ErrScopeArchived           = errors.New("scope archived")
	ErrExternalAgentFailure    = errors.New("external attribution agent failure")
	ErrConflictViolation       = errors.New("conflict violation")
	ErrTransientStorageFailure = errors.New("transient storage failure")
)

var sentinels = map[Kind]error{
	InvalidInput:            ErrInvalidInput,
	ScopeNotFound:           ErrScopeNotFound,
	ScopeArchived:           ErrScopeArchived,
	ExternalAgentFailure:    ErrExternalAgentFailure,
	ConflictViolation:       ErrConflictViolation,
	TransientStorageFailure: ErrTransientStorageFailure,
}

// OfKind reports whether err is (or wraps) an *Error of the given kind.
func OfKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return errors.Is(err, sentinels[kind])
}
