// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the primitive types shared across the Aura core:
// hashes, epochs, provenanced time, sessions, and the error taxonomy.
package types

import (
	"bytes"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/hxrts/aura/ids"
)

// Hash32 is a BLAKE3 32-byte digest.
type Hash32 [32]byte

// EmptyHash is the zero digest.
var EmptyHash = Hash32{}

// HashBytes returns the BLAKE3 digest of b.
func HashBytes(b []byte) Hash32 {
	return Hash32(blake3.Sum256(b))
}

// HashConcat hashes the concatenation of the given byte slices.
func HashConcat(parts ...[]byte) Hash32 {
	h := blake3.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}

func (h Hash32) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash32) Bytes() []byte {
	return h[:]
}

func (h Hash32) IsZero() bool {
	return h == EmptyHash
}

func (h Hash32) Compare(other Hash32) int {
	return bytes.Compare(h[:], other[:])
}

// Epoch is a monotone counter advanced on membership change. It scopes
// every cached cryptographic artifact.
type Epoch uint64

// TimeStampKind discriminates physical from logical timestamps.
type TimeStampKind uint8

const (
	TimePhysical TimeStampKind = iota
	TimeLogical
)

// TimeStamp is either a physical wall-clock reading in milliseconds
// with optional uncertainty, or a Lamport logical clock value.
type TimeStamp struct {
	Kind          TimeStampKind
	PhysicalMS    uint64
	UncertaintyMS uint64
	Lamport       uint64
}

// Physical builds a physical timestamp.
func Physical(ms uint64) TimeStamp {
	return TimeStamp{Kind: TimePhysical, PhysicalMS: ms}
}

// Logical builds a Lamport timestamp.
func Logical(counter uint64) TimeStamp {
	return TimeStamp{Kind: TimeLogical, Lamport: counter}
}

// Value collapses a timestamp into a comparable u64: physical stamps
// compare by milliseconds, logical stamps by counter. Physical and
// logical stamps never order against each other in practice because a
// journal sticks to one clock discipline per authority.
func (t TimeStamp) Value() uint64 {
	if t.Kind == TimeLogical {
		return t.Lamport
	}
	return t.PhysicalMS
}

// ProvenancedTime is a timestamp plus the evidence that backs it.
type ProvenancedTime struct {
	Stamp  TimeStamp
	Proofs [][]byte
	Origin *ids.DeviceID
}

// SessionKind enumerates the protocol choreographies a session can run.
type SessionKind uint8

const (
	SessionDKD SessionKind = iota
	SessionDKG
	SessionUnwrap
	SessionRecovery
	SessionOTA
)

func (k SessionKind) String() string {
	switch k {
	case SessionDKD:
		return "dkd"
	case SessionDKG:
		return "dkg"
	case SessionUnwrap:
		return "unwrap"
	case SessionRecovery:
		return "recovery"
	case SessionOTA:
		return "ota"
	default:
		return "unknown"
	}
}

// SessionState is the lifecycle state of a protocol session.
type SessionState uint8

const (
	SessionPending SessionState = iota
	SessionActive
	SessionComplete
	SessionAborted
	SessionTimedOut
)

func (s SessionState) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionActive:
		return "active"
	case SessionComplete:
		return "complete"
	case SessionAborted:
		return "aborted"
	case SessionTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionComplete || s == SessionAborted || s == SessionTimedOut
}

// SessionMetrics accumulates per-session counters.
type SessionMetrics struct {
	MessagesSent     uint64
	MessagesReceived uint64
	ByzantineEvents  uint64
	RoundTrips       uint64
	DurationMS       uint64
}

// Session tracks one run of a protocol choreography. Owned by its
// coordinator; view materializers observe it read-only.
type Session struct {
	ID           ids.SessionID
	Kind         SessionKind
	Participants []ids.DeviceID
	StartedAt    TimeStamp
	TTLEpochs    uint64
	State        SessionState
	Metrics      SessionMetrics
}

// NewSession creates a pending session over the given participants.
func NewSession(kind SessionKind, participants []ids.DeviceID, startedAt TimeStamp, ttlEpochs uint64) *Session {
	sorted := make([]ids.DeviceID, len(participants))
	copy(sorted, participants)
	ids.SortDeviceIDs(sorted)
	return &Session{
		ID:           ids.NewSessionID(),
		Kind:         kind,
		Participants: sorted,
		StartedAt:    startedAt,
		TTLEpochs:    ttlEpochs,
		State:        SessionPending,
	}
}
