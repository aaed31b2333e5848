// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/journal"
	"github.com/hxrts/aura/types"
)

// Config tunes the engine.
type Config struct {
	Threshold         uint16
	TimeoutMS         uint64
	PipeliningEnabled bool
	GossipEnabled     bool
	MaxSignRetries    int
}

// DefaultConfig returns production defaults.
func DefaultConfig(threshold uint16) Config {
	return Config{
		Threshold:         threshold,
		TimeoutMS:         30_000,
		PipeliningEnabled: true,
		GossipEnabled:     true,
		MaxSignRetries:    2,
	}
}

// Request asks the engine to commit an operation against a prestate.
type Request struct {
	PrestateHash   types.Hash32
	OperationHash  types.Hash32
	OperationBytes []byte
}

// Response reports the outcome of one consensus run.
type Response struct {
	ConsensusID types.Hash32
	Commit      *journal.CommitFact
	Err         error
	DurationMS  uint64
	FastPath    bool
}

// Engine runs pipelined FROST consensus over a witness roster.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	log       log.Logger
	metrics   *engineMetrics
	clock     effects.Clock
	rand      effects.Random
	groupPK   [32]byte
	witnesses []WitnessClient
	cache     *WitnessSet

	instances    map[types.Hash32]*Instance
	completed    map[types.Hash32]*journal.CommitFact
	equivocation []uint16
}

// NewEngine assembles an engine. The witness-set cache is shared with
// the witness runners by id.
func NewEngine(
	cfg Config,
	groupPK [32]byte,
	witnesses []WitnessClient,
	cache *WitnessSet,
	clock effects.Clock,
	rand effects.Random,
	logger log.Logger,
	metrics *engineMetrics,
) *Engine {
	if metrics == nil {
		metrics = newNoopMetrics()
	}
	sorted := make([]WitnessClient, len(witnesses))
	copy(sorted, witnesses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index() < sorted[j].Index() })
	return &Engine{
		cfg:       cfg,
		log:       logger,
		metrics:   metrics,
		clock:     clock,
		rand:      rand,
		groupPK:   groupPK,
		witnesses: sorted,
		cache:     cache,
		instances: make(map[types.Hash32]*Instance),
		completed: make(map[types.Hash32]*journal.CommitFact),
	}
}

// Epoch returns the engine's current epoch.
func (e *Engine) Epoch() types.Epoch {
	return e.cache.Epoch()
}

// HandleEpochChange advances the epoch, invalidating every cached
// commitment and the completed-id dedup set.
func (e *Engine) HandleEpochChange(epoch types.Epoch) {
	e.cache.AdvanceEpoch(epoch)
	e.mu.Lock()
	e.completed = make(map[types.Hash32]*journal.CommitFact)
	e.mu.Unlock()
	e.log.Info("epoch advanced", zap.Uint64("epoch", uint64(epoch)))
}

// EquivocationLog returns signer indexes flagged across runs.
func (e *Engine) EquivocationLog() []uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]uint16, len(e.equivocation))
	copy(out, e.equivocation)
	return out
}

// sweepStale times out instances older than the configured timeout.
func (e *Engine) sweepStale(nowMS uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, inst := range e.instances {
		if nowMS-inst.StartedMS > e.cfg.TimeoutMS {
			inst.State = TimedOut
			delete(e.instances, id)
			e.metrics.timeouts.Inc()
		}
	}
}

// Execute runs one consensus instance to completion or failure.
func (e *Engine) Execute(ctx context.Context, req Request) *Response {
	start := e.clock.NowMS()
	e.sweepStale(start)

	epoch := e.cache.Epoch()
	consensusID := journal.ConsensusIDFor(req.PrestateHash, req.OperationHash, e.rand.Bytes32())
	resp := &Response{ConsensusID: consensusID}

	if cached := e.dedup(req); cached != nil {
		resp.Commit = cached
		resp.ConsensusID = cached.ConsensusID
		resp.FastPath = cached.FastPath
		return resp
	}

	inst := newInstance(consensusID, req.PrestateHash, req.OperationHash, req.OperationBytes, epoch, start)
	e.mu.Lock()
	e.instances[consensusID] = inst
	e.mu.Unlock()

	deadline, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutMS)*time.Millisecond)
	defer cancel()

	fastPath := e.cfg.PipeliningEnabled && e.cache.HasFastPathQuorum(epoch, int(e.cfg.Threshold))
	var commit *journal.CommitFact
	var err error
	if fastPath {
		commit, err = e.runFastPath(deadline, inst)
		if err != nil && inst.State != Conflicted {
			// Silent fallback within the same request.
			fastPath = false
			e.metrics.fastPathFallbacks.Inc()
		}
	}
	if commit == nil && inst.State != Conflicted {
		if !fastPath {
			commit, err = e.runSlowPath(deadline, inst)
		}
	}
	if commit == nil && inst.State == TimedOut && e.cfg.GossipEnabled {
		commit, err = e.runEpidemicGossip(deadline, inst)
	}

	e.finish(inst, commit)
	resp.Commit = commit
	resp.Err = err
	resp.FastPath = fastPath && commit != nil
	resp.DurationMS = e.clock.NowMS() - start
	if commit != nil {
		commit.FastPath = resp.FastPath
		resp.Err = nil
		e.metrics.commits.Inc()
		if resp.FastPath {
			e.metrics.fastPathCommits.Inc()
		}
	}
	return resp
}

func (e *Engine) dedup(req Request) *journal.CommitFact {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cf := range e.completed {
		if cf.PrestateHash == req.PrestateHash && cf.OperationHash == req.OperationHash {
			return cf
		}
	}
	return nil
}

func (e *Engine) finish(inst *Instance, commit *journal.CommitFact) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.instances, inst.ConsensusID)
	if commit != nil {
		inst.State = Completed
		e.completed[inst.ConsensusID] = commit
	} else if inst.State != Conflicted && inst.State != EpidemicGossip {
		inst.State = TimedOut
	}
	for _, s := range inst.Tracker.Equivocators() {
		e.equivocation = append(e.equivocation, s)
		e.metrics.byzantineEvents.Inc()
	}
}

// runFastPath signs with cached commitments in a single round trip.
// Each witness also stages a fresh nonce for the next round.
func (e *Engine) runFastPath(ctx context.Context, inst *Instance) (*journal.CommitFact, error) {
	commitments := e.cache.SnapshotCommitments(inst.Epoch)
	if len(commitments) < int(e.cfg.Threshold) {
		return nil, types.NewError(types.ErrProtocolViolation, "fast-path quorum lost")
	}
	sort.Slice(commitments, func(i, j int) bool { return commitments[i].Signer < commitments[j].Signer })
	commitments = commitments[:e.cfg.Threshold]

	inst.State = CollectingSignatures
	for _, c := range commitments {
		inst.Tracker.AddNonce(c)
	}
	partials, err := e.collectSignatures(ctx, inst, commitments, true)
	if err != nil {
		return nil, err
	}
	return e.aggregate(inst, partials, commitments)
}

// runSlowPath runs the 2-RTT protocol: nonce collection, then signing.
// Witnesses that fail a signing round are dropped and the round retried
// with the responsive remainder while it still meets threshold.
func (e *Engine) runSlowPath(ctx context.Context, inst *Instance) (*journal.CommitFact, error) {
	available := e.witnesses
	for attempt := 0; attempt <= e.cfg.MaxSignRetries; attempt++ {
		inst.State = CollectingNonces
		commitments, responsive := e.collectNonces(ctx, inst, available)
		if len(commitments) < int(e.cfg.Threshold) {
			inst.State = TimedOut
			return nil, types.NewError(types.ErrTimeout,
				"nonce round: %d/%d witnesses", len(commitments), e.cfg.Threshold)
		}

		inst.State = CollectingSignatures
		for _, c := range commitments {
			inst.Tracker.AddNonce(c)
		}
		partials, err := e.collectSignatures(ctx, inst, commitments, false)
		if err == nil {
			return e.aggregate(inst, partials, commitments)
		}
		if inst.State == Conflicted {
			return nil, err
		}

		// Drop witnesses that failed to sign and retry.
		signed := make(map[uint16]struct{}, len(partials))
		for _, p := range partials {
			signed[p.Signer] = struct{}{}
		}
		var retained []WitnessClient
		for _, w := range responsive {
			if _, ok := signed[w.Index()]; ok {
				retained = append(retained, w)
			}
		}
		if len(retained) < int(e.cfg.Threshold) {
			inst.State = TimedOut
			return nil, types.NewError(types.ErrTimeout,
				"signature round: %d/%d witnesses", len(retained), e.cfg.Threshold)
		}
		available = retained
	}
	inst.State = TimedOut
	return nil, types.NewError(types.ErrTimeout, "sign retries exhausted")
}

func (e *Engine) collectNonces(ctx context.Context, inst *Instance, from []WitnessClient) ([]frost.NonceCommitment, []WitnessClient) {
	var commitments []frost.NonceCommitment
	var responsive []WitnessClient
	for _, w := range from {
		c, err := w.CommitNonce(ctx, inst.ConsensusID, inst.Epoch)
		if err != nil {
			e.log.Debug("witness unreachable in nonce round",
				zap.Uint16("signer", w.Index()),
				zap.Error(err),
			)
			continue
		}
		commitments = append(commitments, c)
		responsive = append(responsive, w)
	}
	return commitments, responsive
}

// collectSignatures asks exactly the committed signers for partials.
// FROST binds every partial to the full commitment set, so a missing
// partial fails the round rather than shrinking it.
func (e *Engine) collectSignatures(ctx context.Context, inst *Instance, commitments []frost.NonceCommitment, useCached bool) ([]frost.PartialSignature, error) {
	byIndex := make(map[uint16]WitnessClient, len(e.witnesses))
	for _, w := range e.witnesses {
		byIndex[w.Index()] = w
	}

	req := SignRequest{
		ConsensusID:    inst.ConsensusID,
		Epoch:          inst.Epoch,
		OperationHash:  inst.OperationHash,
		OperationBytes: inst.OperationBytes,
		Commitments:    commitments,
		UseCached:      useCached,
		Pipeline:       e.cfg.PipeliningEnabled,
	}

	var partials []frost.PartialSignature
	var failed bool
	for _, c := range commitments {
		w, ok := byIndex[c.Signer]
		if !ok {
			failed = true
			continue
		}
		resp, err := w.Sign(ctx, req)
		if err != nil {
			e.log.Debug("witness failed signature round",
				zap.Uint16("signer", c.Signer),
				zap.Error(err),
			)
			failed = true
			continue
		}
		if resp.OperationHash != inst.OperationHash {
			// The witness claims a different operation than it was asked
			// to sign: flag it as an equivocator and drop its partial.
			inst.Tracker.mu.Lock()
			inst.Tracker.equivocators[c.Signer] = struct{}{}
			inst.Tracker.mu.Unlock()
			e.metrics.byzantineEvents.Inc()
			failed = true
			continue
		}
		if addErr := inst.Tracker.AddPartial(resp.Partial, resp.OperationHash); addErr != nil {
			if types.IsKind(addErr, types.ErrByzantine) {
				e.metrics.byzantineEvents.Inc()
			}
			failed = true
			continue
		}
		partials = append(partials, resp.Partial)
	}
	if failed || len(partials) < len(commitments) {
		return partials, types.NewError(types.ErrNetwork,
			"signature round incomplete: %d/%d", len(partials), len(commitments))
	}
	return partials, nil
}

// aggregate builds the CommitFact and re-verifies it from scratch.
func (e *Engine) aggregate(inst *Instance, partials []frost.PartialSignature, commitments []frost.NonceCommitment) (*journal.CommitFact, error) {
	sig, err := frost.Aggregate(partials, inst.OperationBytes, commitments, e.groupPK)
	if err != nil {
		inst.State = Conflicted
		return nil, types.WrapError(types.ErrCrypto, err, "aggregate")
	}
	commit := &journal.CommitFact{
		ConsensusID:    inst.ConsensusID,
		PrestateHash:   inst.PrestateHash,
		OperationHash:  inst.OperationHash,
		OperationBytes: inst.OperationBytes,
		Sig:            *sig,
		GroupPK:        e.groupPK,
		Participants:   e.participantDevices(sig.Signers),
		Threshold:      e.cfg.Threshold,
		Timestamp:      types.Physical(e.clock.NowMS()),
	}
	// Defense in depth: never emit a commit that does not verify.
	if err := commit.Verify(); err != nil {
		inst.State = Conflicted
		return nil, err
	}
	return commit, nil
}

func (e *Engine) participantDevices(signers []uint16) []ids.DeviceID {
	byIndex := make(map[uint16]ids.DeviceID, len(e.witnesses))
	for _, w := range e.witnesses {
		byIndex[w.Index()] = w.Device()
	}
	devices := make([]ids.DeviceID, 0, len(signers))
	for _, s := range signers {
		if d, ok := byIndex[s]; ok {
			devices = append(devices, d)
		}
	}
	ids.SortDeviceIDs(devices)
	return devices
}
