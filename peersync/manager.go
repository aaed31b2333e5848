// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package peersync

import (
	"sort"
	"sync"
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// Config tunes the manager.
type Config struct {
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	JitterFactor    float64
	MinSyncInterval time.Duration
	SessionTimeout  time.Duration
}

// DefaultConfig matches the anti-entropy defaults.
func DefaultConfig() Config {
	return Config{
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        5 * time.Minute,
		JitterFactor:    0.25,
		MinSyncInterval: 30 * time.Second,
		SessionTimeout:  2 * time.Minute,
	}
}

// Manager owns every PeerSyncState. A single task drives it; the lock
// only guards against observer reads.
type Manager struct {
	mu sync.Mutex

	cfg     Config
	clock   effects.Clock
	log     log.Logger
	metrics *managerMetrics
	peers   map[ids.DeviceID]*PeerSyncState
}

// NewManager builds an empty manager.
func NewManager(cfg Config, clock effects.Clock, logger log.Logger, metrics *managerMetrics) *Manager {
	if metrics == nil {
		metrics = newNoopMetrics()
	}
	return &Manager{
		cfg:     cfg,
		clock:   clock,
		log:     logger,
		metrics: metrics,
		peers:   make(map[ids.DeviceID]*PeerSyncState),
	}
}

// AddPeer registers a peer.
func (m *Manager) AddPeer(info PeerInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[info.PeerID]; !ok {
		m.peers[info.PeerID] = NewPeerSyncState(info)
		m.metrics.peers.Inc()
	}
}

// RemovePeer drops a peer.
func (m *Manager) RemovePeer(peer ids.DeviceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[peer]; ok {
		delete(m.peers, peer)
		m.metrics.peers.Dec()
	}
}

// UpdatePeer replaces a peer's info, keeping its sync state.
func (m *Manager) UpdatePeer(info PeerInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.peers[info.PeerID]; ok {
		state.Info = info
	}
}

// PeerState returns a peer's state.
func (m *Manager) PeerState(peer ids.DeviceID) (*PeerSyncState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.peers[peer]
	return s, ok
}

// PeersNeedingSync returns peers due for a sync round, in id order.
func (m *Manager) PeersNeedingSync(minInterval time.Duration) []ids.DeviceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.NowMS()
	var due []ids.DeviceID
	for id, state := range m.peers {
		if state.NeedsSync(now, minInterval) {
			due = append(due, id)
		}
	}
	ids.SortDeviceIDs(due)
	return due
}

// PeersByPriority returns due peers ordered by descending priority,
// ties broken by id so the order is deterministic.
func (m *Manager) PeersByPriority(minInterval time.Duration) []ids.DeviceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.NowMS()
	type scored struct {
		id       ids.DeviceID
		priority uint32
	}
	var due []scored
	for id, state := range m.peers {
		if state.NeedsSync(now, minInterval) {
			due = append(due, scored{id: id, priority: state.Priority(now)})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].priority != due[j].priority {
			return due[i].priority > due[j].priority
		}
		return due[i].id.Compare(due[j].id) < 0
	})
	out := make([]ids.DeviceID, len(due))
	for i, s := range due {
		out[i] = s.id
	}
	return out
}

// StartSync opens a sync session with a peer.
func (m *Manager) StartSync(peer ids.DeviceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.peers[peer]
	if !ok {
		return types.NewError(types.ErrProtocolViolation, "unknown peer %s", peer)
	}
	now := m.clock.NowMS()
	if state.InBackoff(now) {
		return types.NewError(types.ErrNetwork, "peer %s in backoff", peer)
	}
	state.LastAttempt = now
	state.Session = &SessionMetrics{StartedMS: now}
	m.metrics.sessionsStarted.Inc()
	return nil
}

// HandleSyncMessage records op traffic inside an active session.
func (m *Manager) HandleSyncMessage(peer ids.DeviceID, sent, received []types.Hash32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.peers[peer]
	if !ok {
		return
	}
	for _, op := range sent {
		state.MarkSent(op)
	}
	for _, op := range received {
		state.MarkReceived(op)
	}
	if state.Session != nil {
		state.Session.RoundTrips++
	}
}

// CompleteSync closes the session successfully. A success after
// failures is logged as a partition heal: backoff clears and queued ops
// stay in PendingOps, so the peer is due on the next scheduling pass.
// The heal itself adds nothing to the peer's Priority.
func (m *Manager) CompleteSync(peer ids.DeviceID, sent, received uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.peers[peer]
	if !ok {
		return
	}
	now := m.clock.NowMS()
	healed := state.ConsecutiveFailures > 0
	state.RecordSuccess(now)
	if state.Session != nil {
		state.Session.OpsSent += sent
		state.Session.OpsReceived += received
		state.Session.CompletedMS = now
		state.Session = nil
	}
	m.metrics.sessionsCompleted.Inc()
	if healed {
		m.log.Info("partition healed; flushing queued operations",
			zap.Stringer("peer", ids.ID(peer)),
			zap.Int("pending", state.PendingOps.Len()),
		)
	}
}

// FailSync applies backoff after a failed session.
func (m *Manager) FailSync(peer ids.DeviceID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.peers[peer]
	if !ok {
		return
	}
	state.RecordFailure(m.clock.NowMS(), m.cfg.BaseDelay, m.cfg.MaxDelay, m.cfg.JitterFactor)
	m.metrics.sessionsFailed.Inc()
	m.log.Debug("sync failed",
		zap.Stringer("peer", ids.ID(peer)),
		zap.String("reason", reason),
		zap.Uint32("consecutiveFailures", state.ConsecutiveFailures),
	)
}

// QueueOps queues pending ops for a peer, for flushing after heal.
func (m *Manager) QueueOps(peer ids.DeviceID, ops ...types.Hash32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.peers[peer]; ok {
		state.AddPending(ops...)
	}
}

// ExpectOps records ops a peer owes us.
func (m *Manager) ExpectOps(peer ids.DeviceID, ops ...types.Hash32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.peers[peer]; ok {
		state.AddExpected(ops...)
	}
}

// CleanupStaleSessions aborts sessions older than the timeout.
func (m *Manager) CleanupStaleSessions(timeout time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.NowMS()
	cleaned := 0
	for _, state := range m.peers {
		if state.Session != nil && now-state.Session.StartedMS > uint64(timeout.Milliseconds()) {
			state.Session = nil
			cleaned++
		}
	}
	return cleaned
}

// ActiveSyncCount reports open sessions.
func (m *Manager) ActiveSyncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, state := range m.peers {
		if state.Session != nil {
			count++
		}
	}
	return count
}
