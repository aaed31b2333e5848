// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"errors"
	"fmt"

	"github.com/hxrts/aura/ids"
)

// ErrorKind is the closed taxonomy every cross-package error carries.
type ErrorKind uint8

const (
	// ErrProtocolViolation covers wrong phase, wrong sender, bad epoch,
	// size cap, and duplicate messages. Surfaced to the coordinator;
	// never crashes peers.
	ErrProtocolViolation ErrorKind = iota
	// ErrByzantine covers equivocation, invalid signatures, and hash
	// mismatches attributable to a peer.
	ErrByzantine
	// ErrNetwork covers send/receive failure and partition.
	ErrNetwork
	// ErrCrypto covers invalid shares, aggregate failure, and verify
	// failure. Fatal for the current consensus instance only.
	ErrCrypto
	// ErrCapability is a policy denial. Fatal for the request; no retry.
	ErrCapability
	// ErrStorage covers read/write and integrity failures.
	ErrStorage
	// ErrTimeout covers per-phase and overall deadlines.
	ErrTimeout
	// ErrInternal is an invariant violation: a bug. The session aborts;
	// the process continues.
	ErrInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrProtocolViolation:
		return "protocol_violation"
	case ErrByzantine:
		return "byzantine"
	case ErrNetwork:
		return "network"
	case ErrCrypto:
		return "crypto"
	case ErrCapability:
		return "capability"
	case ErrStorage:
		return "storage"
	case ErrTimeout:
		return "timeout"
	case ErrInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the typed error that crosses module boundaries. Errors
// within one session never leak to other sessions.
type Error struct {
	Kind      ErrorKind
	SessionID *ids.SessionID
	Msg       string
	wrapped   error
}

func (e *Error) Error() string {
	if e.SessionID != nil {
		return fmt.Sprintf("%s [session %s]: %s", e.Kind, e.SessionID, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is matches errors of the same kind, so callers can switch on the
// taxonomy with errors.Is(err, &types.Error{Kind: ...}).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// NewError builds a typed error with no session attribution.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind to an underlying error.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), wrapped: err}
}

// WithSession attributes the error to a session.
func (e *Error) WithSession(id ids.SessionID) *Error {
	e.SessionID = &id
	return e
}

// KindOf extracts the taxonomy kind from err, or ErrInternal if err is
// not a typed Error.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ErrInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Kind == kind
}
