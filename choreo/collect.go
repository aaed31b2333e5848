// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package choreo

import (
	"bytes"
	"context"
	"time"

	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// Provider supplies the typed hooks Threshold-Collect runs through its
// four phases: context agreement, material exchange, aggregation, and
// result verification.
type Provider interface {
	// ValidateContext checks the agreed context bytes before material
	// generation.
	ValidateContext(context []byte) error
	// GenerateMaterial produces this participant's contribution.
	GenerateMaterial(self ids.Role) ([]byte, error)
	// ValidateMaterial checks a peer's contribution.
	ValidateMaterial(from ids.Role, material []byte) error
	// Aggregate folds the contributions, keyed by role index, into the
	// local result. Must be deterministic over the sorted key order.
	Aggregate(materials map[uint16][]byte) ([]byte, error)
	// VerifyResult checks the aggregated result before commit-reveal.
	VerifyResult(result []byte) error
}

// CollectConfig tunes Threshold-Collect.
type CollectConfig struct {
	Threshold        int
	PhaseTimeout     time.Duration
	AbortOnByzantine bool
}

// CollectResult reports a Threshold-Collect round.
type CollectResult struct {
	Result      []byte
	Contributed int
	Byzantine   []ids.DeviceID
	Consistency *ConsistencyResult
}

// ThresholdCollect runs the generic four-phase collection. Any
// context-hash or material mismatch marks the participant Byzantine, or
// aborts the round when AbortOnByzantine is set.
func (s *Session) ThresholdCollect(
	ctx context.Context,
	contextBytes []byte,
	provider Provider,
	cfg CollectConfig,
) (*CollectResult, error) {
	if cfg.PhaseTimeout == 0 {
		cfg.PhaseTimeout = DefaultPhaseTimeout
	}
	out := &CollectResult{}

	// Phase 1: context agreement by hash equality.
	if err := provider.ValidateContext(contextBytes); err != nil {
		return nil, types.WrapError(types.ErrProtocolViolation, err, "local context")
	}
	ctxHash := types.HashBytes(contextBytes)
	round, err := s.BroadcastAndGatherTyped(ctx, MsgContext, ctxHash[:], cfg.PhaseTimeout)
	if err != nil {
		return nil, err
	}
	for index, payload := range round.Messages {
		if index == s.Self.Index {
			continue
		}
		if !bytes.Equal(payload, ctxHash[:]) {
			device := round.Roles[index].Device
			if cfg.AbortOnByzantine {
				return nil, types.NewError(types.ErrByzantine, "context mismatch from %s", device)
			}
			out.Byzantine = append(out.Byzantine, device)
		}
	}

	// Phase 2: material exchange.
	mine, err := provider.GenerateMaterial(s.Self)
	if err != nil {
		return nil, err
	}
	materials, err := s.BroadcastAndGatherTyped(ctx, MsgMaterial, mine, cfg.PhaseTimeout)
	if err != nil {
		return nil, err
	}
	accepted := make(map[uint16][]byte, len(materials.Messages))
	for index, material := range materials.Messages {
		role := materials.Roles[index]
		if index != s.Self.Index {
			if err := provider.ValidateMaterial(role, material); err != nil {
				if cfg.AbortOnByzantine {
					return nil, types.WrapError(types.ErrByzantine, err, "material from %s", role.Device)
				}
				out.Byzantine = append(out.Byzantine, role.Device)
				continue
			}
		}
		accepted[index] = material
	}
	out.Contributed = len(accepted)
	if out.Contributed < cfg.Threshold {
		return nil, types.NewError(types.ErrTimeout,
			"collected %d contributions, threshold %d", out.Contributed, cfg.Threshold)
	}

	// Phase 3: local aggregation.
	result, err := provider.Aggregate(accepted)
	if err != nil {
		return nil, types.WrapError(types.ErrCrypto, err, "aggregate")
	}
	if err := provider.VerifyResult(result); err != nil {
		return nil, types.WrapError(types.ErrCrypto, err, "verify result")
	}
	out.Result = result

	// Phase 4: result verification via commit-reveal.
	consistency, err := s.VerifyConsistentResult(ctx, result, cfg.Threshold, cfg.PhaseTimeout)
	if err != nil {
		return nil, err
	}
	out.Consistency = consistency
	out.Byzantine = append(out.Byzantine, consistency.Byzantine...)
	ids.SortDeviceIDs(out.Byzantine)
	if !consistency.Agreed {
		return nil, types.NewError(types.ErrByzantine,
			"consistency threshold not met: %d/%d", consistency.AgreeCount, cfg.Threshold)
	}
	return out, nil
}
