// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package choreo

import (
	"context"
	"sort"
	"time"

	"github.com/hxrts/aura/ids"
)

// GatherResult holds peers' messages keyed by role index, in sorted
// order. The primitive returns on timeout with whatever arrived;
// callers check for threshold.
type GatherResult struct {
	Messages map[uint16][]byte
	Roles    map[uint16]ids.Role
}

// Indexes returns the responding role indexes in ascending order.
func (r *GatherResult) Indexes() []uint16 {
	idx := make([]uint16, 0, len(r.Messages))
	for i := range r.Messages {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })
	return idx
}

// Count returns the number of distinct responders, self included.
func (r *GatherResult) Count() int {
	return len(r.Messages)
}

// BroadcastAndGather generates this participant's message via the
// injected closure, broadcasts it, and gathers peers' messages keyed by
// role. Epoch, operation id, and payload hash are enforced on receipt.
func (s *Session) BroadcastAndGather(
	ctx context.Context,
	generate func(self ids.Role) ([]byte, error),
	timeout time.Duration,
) (*GatherResult, error) {
	mine, err := generate(s.Self)
	if err != nil {
		return nil, err
	}
	if err := s.broadcast(ctx, MsgBroadcast, mine); err != nil {
		return nil, err
	}

	result := &GatherResult{
		Messages: map[uint16][]byte{s.Self.Index: mine},
		Roles:    map[uint16]ids.Role{s.Self.Index: s.Self},
	}
	for device, env := range s.collect(ctx, MsgBroadcast, timeout) {
		role, ok := s.roleFor(device)
		if !ok {
			continue
		}
		result.Messages[role.Index] = env.Payload
		result.Roles[role.Index] = role
	}
	return result, nil
}
