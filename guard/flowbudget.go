// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package guard

import (
	"sync"

	"github.com/hxrts/aura/types"
	safemath "github.com/hxrts/aura/utils/math"
)

// FlowBudget meters bytes per relationship per period. Within one
// period spent is monotone non-decreasing and never exceeds the limit;
// it resets exactly at period_start + period_seconds.
type FlowBudget struct {
	mu sync.Mutex

	Limit         uint64
	Spent         uint64
	PeriodSeconds uint64
	PeriodStart   uint64 // seconds
}

// NewFlowBudget creates a budget starting its first period at nowSecs.
func NewFlowBudget(limit, periodSeconds, nowSecs uint64) *FlowBudget {
	return &FlowBudget{
		Limit:         limit,
		PeriodSeconds: periodSeconds,
		PeriodStart:   nowSecs,
	}
}

func (b *FlowBudget) rolloverLocked(nowSecs uint64) {
	if b.PeriodSeconds == 0 {
		return
	}
	if nowSecs >= b.PeriodStart+b.PeriodSeconds {
		elapsed := (nowSecs - b.PeriodStart) / b.PeriodSeconds
		b.PeriodStart += elapsed * b.PeriodSeconds
		b.Spent = 0
	}
}

// CanSpend reports whether n bytes fit in the current period.
func (b *FlowBudget) CanSpend(n, nowSecs uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked(nowSecs)
	total, err := safemath.Add64(b.Spent, n)
	return err == nil && total <= b.Limit
}

// Spend charges n bytes, failing if the budget is exhausted.
func (b *FlowBudget) Spend(n, nowSecs uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked(nowSecs)
	total, err := safemath.Add64(b.Spent, n)
	if err != nil || total > b.Limit {
		return types.NewError(types.ErrCapability, "flow budget exhausted: spent %d + %d > limit %d",
			b.Spent, n, b.Limit)
	}
	b.Spent = total
	return nil
}

// Remaining returns the bytes left in the current period.
func (b *FlowBudget) Remaining(nowSecs uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked(nowSecs)
	if b.Spent > b.Limit {
		return 0
	}
	return b.Limit - b.Spent
}

// Utilization returns spent/limit in [0, 1].
func (b *FlowBudget) Utilization(nowSecs uint64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked(nowSecs)
	if b.Limit == 0 {
		return 1
	}
	return float64(b.Spent) / float64(b.Limit)
}
