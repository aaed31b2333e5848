// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// IntentState is the lifecycle state of a proposed append.
type IntentState uint8

const (
	IntentPending IntentState = iota
	IntentCommitted
	IntentTombstoned
)

func (s IntentState) String() string {
	switch s {
	case IntentPending:
		return "pending"
	case IntentCommitted:
		return "committed"
	case IntentTombstoned:
		return "tombstoned"
	default:
		return "unknown"
	}
}

// Intent is a proposed append awaiting capability check and, for
// multi-party operations, consensus.
type Intent struct {
	ID            ids.ID
	Operation     []byte
	OperationHash types.Hash32
	PrestateRoot  types.Hash32
	Capabilities  []string
	SubmittedAt   types.TimeStamp
	State         IntentState
}

// NewIntent builds a pending intent bound to the current prestate root.
func NewIntent(operation []byte, prestateRoot types.Hash32, capabilities []string, now types.TimeStamp) *Intent {
	return &Intent{
		ID:            ids.NewID(),
		Operation:     operation,
		OperationHash: types.HashBytes(operation),
		PrestateRoot:  prestateRoot,
		Capabilities:  capabilities,
		SubmittedAt:   now,
		State:         IntentPending,
	}
}
