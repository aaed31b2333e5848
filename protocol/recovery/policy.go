// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package recovery implements guardian-mediated account recovery:
// policy enforcement, the guardian threshold collection, and the
// journal annotation of the outcome.
package recovery

import (
	"fmt"

	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// Priority orders recovery urgency.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityEmergency
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Dispute window bounds in seconds. Emergency recoveries close within
// a day; normal recoveries stay open at least two.
const (
	EmergencyMaxDisputeSecs uint64 = 24 * 3600
	NormalMinDisputeSecs    uint64 = 48 * 3600
)

// Request describes one recovery attempt.
type Request struct {
	RequestingDevice   ids.DeviceID
	AccountID          ids.AccountID
	RecoveryContext    []byte
	RequiredThreshold  uint16
	AvailableGuardians []ids.GuardianID
	Priority           Priority
	DisputeWindowSecs  uint64
}

// Violation is one structured policy failure.
type Violation struct {
	Rule   string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Detail)
}

// Assessment is the outcome of policy evaluation. Violations deny the
// request; warnings proceed with a cooldown multiplier.
type Assessment struct {
	Violations         []Violation
	Warnings           []Violation
	CooldownMultiplier uint32
	AdjustedWindowSecs uint64
}

// Denied reports whether the request must be refused.
func (a *Assessment) Denied() bool {
	return len(a.Violations) > 0
}

// Policy is the recovery policy for one account.
type Policy struct {
	// ThresholdByPriority overrides the required guardian threshold per
	// priority level.
	ThresholdByPriority map[Priority]uint16
	// MaxAttemptsPerEpoch bounds attempts per requesting device.
	MaxAttemptsPerEpoch uint32
	// MinGuardians is the floor on available guardians.
	MinGuardians uint16
	// AllowEmergencyOverride permits emergency priority with the
	// matching capability.
	AllowEmergencyOverride bool
}

// DefaultPolicy is a two-guardian floor with three attempts per epoch.
func DefaultPolicy() Policy {
	return Policy{
		ThresholdByPriority: map[Priority]uint16{
			PriorityLow:       2,
			PriorityNormal:    2,
			PriorityHigh:      2,
			PriorityEmergency: 1,
		},
		MaxAttemptsPerEpoch:    3,
		MinGuardians:           2,
		AllowEmergencyOverride: false,
	}
}

// Evaluate enforces policy before any guardian traffic happens.
// attempts is the requesting device's attempt count this epoch;
// hasOverride reports the emergency-override capability.
func (p Policy) Evaluate(req *Request, attempts uint32, hasOverride bool) *Assessment {
	a := &Assessment{CooldownMultiplier: 1, AdjustedWindowSecs: req.DisputeWindowSecs}

	if want, ok := p.ThresholdByPriority[req.Priority]; ok && req.RequiredThreshold < want {
		a.Violations = append(a.Violations, Violation{
			Rule:   "threshold_by_priority",
			Detail: fmt.Sprintf("threshold %d below %d required for %s", req.RequiredThreshold, want, req.Priority),
		})
	}
	if uint16(len(req.AvailableGuardians)) < req.RequiredThreshold {
		a.Violations = append(a.Violations, Violation{
			Rule:   "guardian_availability",
			Detail: fmt.Sprintf("%d guardians available, %d required", len(req.AvailableGuardians), req.RequiredThreshold),
		})
	}
	if uint16(len(req.AvailableGuardians)) < p.MinGuardians {
		a.Violations = append(a.Violations, Violation{
			Rule:   "guardian_floor",
			Detail: fmt.Sprintf("%d guardians below policy floor %d", len(req.AvailableGuardians), p.MinGuardians),
		})
	}
	if attempts >= p.MaxAttemptsPerEpoch {
		a.Violations = append(a.Violations, Violation{
			Rule:   "attempt_limit",
			Detail: fmt.Sprintf("%d attempts this epoch, limit %d", attempts, p.MaxAttemptsPerEpoch),
		})
	}
	if req.Priority == PriorityEmergency && !p.AllowEmergencyOverride && !hasOverride {
		a.Violations = append(a.Violations, Violation{
			Rule:   "emergency_override",
			Detail: "emergency priority requires the override capability",
		})
	}

	// Dispute windows are priority-adjusted rather than denied.
	switch req.Priority {
	case PriorityEmergency:
		if a.AdjustedWindowSecs > EmergencyMaxDisputeSecs {
			a.AdjustedWindowSecs = EmergencyMaxDisputeSecs
			a.Warnings = append(a.Warnings, Violation{
				Rule:   "dispute_window",
				Detail: "clamped to the emergency maximum",
			})
		}
	default:
		if a.AdjustedWindowSecs < NormalMinDisputeSecs {
			a.AdjustedWindowSecs = NormalMinDisputeSecs
			a.Warnings = append(a.Warnings, Violation{
				Rule:   "dispute_window",
				Detail: "raised to the non-emergency minimum",
			})
		}
	}

	if attempts > 0 && attempts < p.MaxAttemptsPerEpoch {
		// Repeat attempts proceed but cool down harder each time.
		a.CooldownMultiplier = 1 << attempts
		a.Warnings = append(a.Warnings, Violation{
			Rule:   "repeat_attempt",
			Detail: fmt.Sprintf("cooldown multiplier %d", a.CooldownMultiplier),
		})
	}
	return a
}

// DenialError converts violations into the typed capability error.
func (a *Assessment) DenialError() error {
	if !a.Denied() {
		return nil
	}
	return types.NewError(types.ErrCapability, "recovery denied: %v", a.Violations)
}
