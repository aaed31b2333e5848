// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dkg implements Distributed Key Generation: a coordinator and
// N participants produce a FROST public key package plus per-
// participant shares through Feldman-verified share exchange.
package dkg

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hxrts/aura/choreo"
	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// Config describes the group being generated.
type Config struct {
	Threshold             uint16
	Total                 uint16
	PhaseTimeout          time.Duration
	TrustedDealerFallback bool
}

// Init is the coordinator's round-1 announcement.
type Init struct {
	Threshold uint16
	Total     uint16
	TimeoutAt uint64
}

func (i *Init) marshal() []byte {
	p := codec.NewPacker(16)
	p.PackU16(i.Threshold)
	p.PackU16(i.Total)
	p.PackU64(i.TimeoutAt)
	return p.Bytes
}

func unmarshalInit(b []byte) (*Init, bool) {
	u := codec.NewUnpacker(b)
	i := &Init{Threshold: u.UnpackU16(), Total: u.UnpackU16(), TimeoutAt: u.UnpackU64()}
	return i, u.Done()
}

// Result is one participant's outcome.
type Result struct {
	Share      *frost.Share
	Package    *frost.PublicKeyPackage
	Verified   bool
	Complaints []ids.DeviceID
	UsedDealer bool
}

func marshalCommitments(commitments [][32]byte) []byte {
	p := codec.NewPacker(4 + 32*len(commitments))
	p.PackU32(uint32(len(commitments)))
	for _, c := range commitments {
		p.PackFixed(c[:])
	}
	return p.Bytes
}

func unmarshalCommitments(b []byte) ([][32]byte, bool) {
	u := codec.NewUnpacker(b)
	n := u.UnpackU32()
	if u.Err != nil || n > 1024 {
		return nil, false
	}
	out := make([][32]byte, n)
	for i := range out {
		copy(out[i][:], u.UnpackFixed(32))
	}
	return out, u.Done()
}

func marshalVerdict(verified bool, complaints []ids.DeviceID) []byte {
	p := codec.NewPacker(4 + 16*len(complaints))
	p.PackBool(verified)
	p.PackU32(uint32(len(complaints)))
	for _, d := range complaints {
		p.PackFixed(d.Bytes())
	}
	return p.Bytes
}

func unmarshalVerdict(b []byte) (bool, []ids.DeviceID, bool) {
	u := codec.NewUnpacker(b)
	verified := u.UnpackBool()
	n := u.UnpackU32()
	if u.Err != nil || n > 1024 {
		return false, nil, false
	}
	complaints := make([]ids.DeviceID, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := ids.FromBytes(u.UnpackFixed(16))
		if err != nil {
			return false, nil, false
		}
		complaints = append(complaints, ids.DeviceID(id))
	}
	return verified, complaints, u.Done()
}

// RunCoordinator announces the group parameters, then runs the shared
// participant rounds. When those rounds time out and the fallback is
// enabled, the coordinator generates a group with a local trusted
// dealer and returns its own share of it; the other shares are not sent
// to the participants.
func RunCoordinator(ctx context.Context, sess *choreo.Session, cfg Config) (*Result, error) {
	init := &Init{
		Threshold: cfg.Threshold,
		Total:     cfg.Total,
		TimeoutAt: sess.Effects.Clock.NowMS() + uint64(cfg.PhaseTimeout.Milliseconds()),
	}
	pcfg := choreo.DefaultProposeConfig()
	pcfg.AckTimeout = cfg.PhaseTimeout
	if _, err := sess.Propose(ctx, init.marshal(), nil, pcfg); err != nil {
		return nil, err
	}
	result, err := runRounds(ctx, sess, cfg)
	if err != nil && types.IsKind(err, types.ErrTimeout) && cfg.TrustedDealerFallback {
		return dealerFallback(sess, cfg)
	}
	return result, err
}

// RunParticipant accepts the announcement, then runs the shared rounds.
func RunParticipant(ctx context.Context, sess *choreo.Session, cfg Config) (*Result, error) {
	pcfg := choreo.DefaultProposeConfig()
	pcfg.AckTimeout = cfg.PhaseTimeout
	_, err := sess.AwaitProposal(ctx, func(b []byte) error {
		init, ok := unmarshalInit(b)
		if !ok {
			return types.NewError(types.ErrProtocolViolation, "malformed dkg init")
		}
		if init.Threshold != cfg.Threshold || init.Total != cfg.Total {
			return types.NewError(types.ErrProtocolViolation,
				"dkg parameters disagree: got %d-of-%d", init.Threshold, init.Total)
		}
		return nil
	}, pcfg)
	if err != nil {
		return nil, err
	}
	return runRounds(ctx, sess, cfg)
}

// runRounds executes commitments, revelations, and verification.
func runRounds(ctx context.Context, sess *choreo.Session, cfg Config) (*Result, error) {
	poly := frost.NewVSSPolynomial(sess.Effects.Rand, cfg.Threshold)

	// Round 2: exchange polynomial commitments. Revelations only start
	// once every commitment arrived.
	commitRound, err := sess.BroadcastAndGatherTyped(
		ctx, choreo.MsgCommitment, marshalCommitments(poly.Commitments), cfg.PhaseTimeout)
	if err != nil {
		return nil, err
	}
	if commitRound.Count() < int(cfg.Total) {
		return nil, types.NewError(types.ErrTimeout,
			"dkg commitments: %d/%d", commitRound.Count(), cfg.Total)
	}
	dealerCommitments := make(map[uint16][][32]byte, commitRound.Count())
	for index, payload := range commitRound.Messages {
		commitments, ok := unmarshalCommitments(payload)
		if !ok || len(commitments) != int(cfg.Threshold) {
			return nil, types.NewError(types.ErrByzantine,
				"malformed commitment vector from role %d", index)
		}
		dealerCommitments[index] = commitments
	}

	// Round 3: reveal shares pairwise. Each dealer sends f_i(j) to j
	// alone; no participant sees another's share.
	myIndex := sess.Self.Index
	received := map[uint16][32]byte{myIndex: poly.ShareFor(myIndex)}
	for _, role := range sess.Peers() {
		share := poly.ShareFor(role.Index)
		if err := sess.SendTo(ctx, role.Device, choreo.MsgReveal, marshalShare(role.Index, share)); err != nil {
			return nil, err
		}
	}
	for index, payload := range sess.Collect(ctx, choreo.MsgReveal, cfg.PhaseTimeout) {
		target, share, ok := unmarshalShare(payload)
		if !ok || target != myIndex {
			continue
		}
		received[index] = share
	}

	// Round 4: verify every revealed share against its dealer's
	// commitments and exchange verdicts.
	verified := true
	var complaints []ids.DeviceID
	for index := range dealerCommitments {
		if index == myIndex {
			continue
		}
		share, ok := received[index]
		if !ok || !frost.VerifyVSSShare(myIndex, share, dealerCommitments[index]) {
			verified = false
			complaints = append(complaints, roleDevice(sess, index))
		}
	}
	ids.SortDeviceIDs(complaints)

	verdictRound, err := sess.BroadcastAndGatherTyped(
		ctx, choreo.MsgResult, marshalVerdict(verified, complaints), cfg.PhaseTimeout)
	if err != nil {
		return nil, err
	}
	allVerified := verified
	var allComplaints []ids.DeviceID
	allComplaints = append(allComplaints, complaints...)
	for index, payload := range verdictRound.Messages {
		if index == myIndex {
			continue
		}
		v, c, ok := unmarshalVerdict(payload)
		if !ok {
			allVerified = false
			continue
		}
		allVerified = allVerified && v
		allComplaints = append(allComplaints, c...)
	}
	ids.SortDeviceIDs(allComplaints)

	result := &Result{Verified: allVerified, Complaints: allComplaints}
	if !allVerified || len(allComplaints) > 0 {
		return result, types.NewError(types.ErrByzantine,
			"dkg verification failed with %d complaints", len(allComplaints))
	}

	// Combine into the final share and public key package.
	shares := make([][32]byte, 0, len(received))
	constants := make([][32]byte, 0, len(dealerCommitments))
	vectors := make([][][32]byte, 0, len(dealerCommitments))
	for index := range dealerCommitments {
		shares = append(shares, received[index])
		constants = append(constants, dealerCommitments[index][0])
		vectors = append(vectors, dealerCommitments[index])
	}
	share, err := frost.CombineVSSShares(myIndex, shares, constants)
	if err != nil {
		return result, types.WrapError(types.ErrCrypto, err, "combine shares")
	}
	pkg := &frost.PublicKeyPackage{
		GroupPK:         share.GroupPK,
		VerifyingShares: make(map[uint16][32]byte, cfg.Total),
		Threshold:       cfg.Threshold,
		Total:           cfg.Total,
	}
	for id := uint16(1); id <= cfg.Total; id++ {
		vs, err := frost.VerifyingShareFor(id, vectors)
		if err != nil {
			return result, types.WrapError(types.ErrCrypto, err, "verifying share")
		}
		pkg.VerifyingShares[id] = vs
	}
	result.Share = share
	result.Package = pkg

	sess.Effects.Log.Info("dkg complete",
		zap.Uint16("identifier", myIndex),
		zap.Uint16("threshold", cfg.Threshold),
		zap.Uint16("total", cfg.Total),
	)
	return result, nil
}

// marshalShare encodes one pairwise share addressed to a role index.
func marshalShare(target uint16, share [32]byte) []byte {
	p := codec.NewPacker(34)
	p.PackU16(target)
	p.PackFixed(share[:])
	return p.Bytes
}

func unmarshalShare(b []byte) (uint16, [32]byte, bool) {
	var share [32]byte
	u := codec.NewUnpacker(b)
	target := u.UnpackU16()
	copy(share[:], u.UnpackFixed(32))
	return target, share, u.Done()
}

func roleDevice(sess *choreo.Session, index uint16) ids.DeviceID {
	for _, role := range sess.Participants {
		if role.Index == index {
			return role.Device
		}
	}
	return ids.DeviceID{}
}

// dealerFallback generates the group with a local trusted dealer.
func dealerFallback(sess *choreo.Session, cfg Config) (*Result, error) {
	shares, pkg, err := frost.GenerateWithDealer(sess.Effects.Rand, cfg.Threshold, cfg.Total)
	if err != nil {
		return nil, types.WrapError(types.ErrCrypto, err, "dealer fallback")
	}
	sess.Effects.Log.Warn("dkg timed out; trusted dealer fallback engaged",
		zap.Uint16("threshold", cfg.Threshold),
	)
	return &Result{
		Share:      shares[sess.Self.Index],
		Package:    pkg,
		Verified:   true,
		UsedDealer: true,
	}, nil
}
