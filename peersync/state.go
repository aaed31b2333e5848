// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package peersync implements per-peer anti-entropy state: backoff,
// sync priority, session metrics, and the manager that schedules
// synchronization across peers.
package peersync

import (
	"time"

	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
	"github.com/hxrts/aura/utils/set"
)

// Backoff tuning. The exponent is capped so the shift can never
// overflow, and the delay is capped by MaxDelay.
const (
	maxBackoffExponent = 10
)

// PeerInfo identifies a sync peer.
type PeerInfo struct {
	PeerID           ids.DeviceID
	Authority        ids.AuthorityID
	ReliabilityScore uint32 // 0..100
}

// SessionMetrics tracks one sync session.
type SessionMetrics struct {
	StartedMS   uint64
	OpsSent     uint64
	OpsReceived uint64
	RoundTrips  uint64
	CompletedMS uint64
}

// PeerSyncState is everything the manager tracks per peer.
type PeerSyncState struct {
	Info                PeerInfo
	LastSuccessfulSync  uint64 // ms, 0 = never
	LastAttempt         uint64
	ConsecutiveFailures uint32
	BackoffUntil        uint64
	PendingOps          set.Set[types.Hash32]
	ExpectedOps         set.Set[types.Hash32]
	Session             *SessionMetrics
}

// NewPeerSyncState initializes state for a fresh peer.
func NewPeerSyncState(info PeerInfo) *PeerSyncState {
	return &PeerSyncState{
		Info:        info,
		PendingOps:  set.NewSet[types.Hash32](4),
		ExpectedOps: set.NewSet[types.Hash32](4),
	}
}

// InBackoff reports whether the peer is cooling down at nowMS.
func (s *PeerSyncState) InBackoff(nowMS uint64) bool {
	return nowMS < s.BackoffUntil
}

// NeedsSync: not in backoff, and work is pending or the interval
// elapsed.
func (s *PeerSyncState) NeedsSync(nowMS uint64, minInterval time.Duration) bool {
	if s.InBackoff(nowMS) {
		return false
	}
	if s.PendingOps.Len() > 0 || s.ExpectedOps.Len() > 0 {
		return true
	}
	if s.LastSuccessfulSync == 0 {
		return true
	}
	return nowMS-s.LastSuccessfulSync >= uint64(minInterval.Milliseconds())
}

// BackoffDuration computes base_delay * 2^(failures-1), capped by
// maxDelay and 2^10, plus deterministic jitter in
// [0, jitterFactor*backoff) derived from the peer id so that peers
// never align into a thundering herd.
func (s *PeerSyncState) BackoffDuration(base, maxDelay time.Duration, jitterFactor float64) time.Duration {
	if s.ConsecutiveFailures == 0 {
		return 0
	}
	exponent := s.ConsecutiveFailures - 1
	if exponent > maxBackoffExponent {
		exponent = maxBackoffExponent
	}
	backoff := base * time.Duration(uint64(1)<<exponent)
	if backoff > maxDelay {
		backoff = maxDelay
	}
	if jitterFactor > 0 {
		seed := types.HashBytes(s.Info.PeerID.Bytes())
		num := uint64(seed[0])<<8 | uint64(seed[1])
		frac := float64(num%1000) / 1000.0
		backoff += time.Duration(float64(backoff) * jitterFactor * frac)
	}
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	return backoff
}

// RecordFailure applies backoff after a failed attempt.
func (s *PeerSyncState) RecordFailure(nowMS uint64, base, maxDelay time.Duration, jitterFactor float64) {
	s.ConsecutiveFailures++
	s.LastAttempt = nowMS
	s.BackoffUntil = nowMS + uint64(s.BackoffDuration(base, maxDelay, jitterFactor).Milliseconds())
	s.Session = nil
}

// RecordSuccess clears failure state after a completed sync.
func (s *PeerSyncState) RecordSuccess(nowMS uint64) {
	s.ConsecutiveFailures = 0
	s.BackoffUntil = 0
	s.LastSuccessfulSync = nowMS
	s.LastAttempt = nowMS
}

// Priority scores sync urgency: 10 per pending op (cap 100), 5 per
// expected op (cap 50), hours since last sync (cap 50, or 100 if never
// synced), minus 5 per consecutive failure, scaled by reliability/100.
func (s *PeerSyncState) Priority(nowMS uint64) uint32 {
	score := int64(0)

	pending := int64(s.PendingOps.Len()) * 10
	if pending > 100 {
		pending = 100
	}
	score += pending

	expected := int64(s.ExpectedOps.Len()) * 5
	if expected > 50 {
		expected = 50
	}
	score += expected

	if s.LastSuccessfulSync == 0 {
		score += 100
	} else {
		hours := int64((nowMS - s.LastSuccessfulSync) / 3_600_000)
		if hours > 50 {
			hours = 50
		}
		score += hours
	}

	score -= int64(s.ConsecutiveFailures) * 5
	if score < 0 {
		score = 0
	}

	reliability := int64(s.Info.ReliabilityScore)
	if reliability > 100 {
		reliability = 100
	}
	return uint32(score * reliability / 100)
}

// AddPending queues ops to push to this peer.
func (s *PeerSyncState) AddPending(ops ...types.Hash32) {
	s.PendingOps.Add(ops...)
}

// AddExpected records ops this peer should deliver to us.
func (s *PeerSyncState) AddExpected(ops ...types.Hash32) {
	s.ExpectedOps.Add(ops...)
}

// MarkSent clears a pending op once delivered.
func (s *PeerSyncState) MarkSent(op types.Hash32) {
	s.PendingOps.Remove(op)
	if s.Session != nil {
		s.Session.OpsSent++
	}
}

// MarkReceived clears an expected op once it arrives.
func (s *PeerSyncState) MarkReceived(op types.Hash32) {
	s.ExpectedOps.Remove(op)
	if s.Session != nil {
		s.Session.OpsReceived++
	}
}
