// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hxrts/aura/choreo"
	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/journal"
	"github.com/hxrts/aura/types"
)

// GuardianShare is one guardian's slice of the recovery secret.
type GuardianShare struct {
	Guardian ids.GuardianID
	Index    uint16
	Value    [32]byte
}

// Result is the recovery outcome.
type Result struct {
	RecoveredKey       [32]byte
	ThresholdSignature *frost.ThresholdSignature
	GuardianShares     []GuardianShare
	Assessment         *Assessment
	Metrics            types.SessionMetrics
}

// Coordinator runs recoveries for one account.
type Coordinator struct {
	policy   Policy
	journal  *journal.Journal
	attempts map[attemptKey]uint32
}

type attemptKey struct {
	device ids.DeviceID
	epoch  types.Epoch
}

// NewCoordinator builds a coordinator over the account journal.
func NewCoordinator(policy Policy, jrnl *journal.Journal) *Coordinator {
	return &Coordinator{
		policy:   policy,
		journal:  jrnl,
		attempts: make(map[attemptKey]uint32),
	}
}

// provider adapts guardian share collection to Threshold-Collect.
type provider struct {
	context []byte
	share   GuardianShare
	total   uint16
	thresh  uint16
}

func (p *provider) ValidateContext(b []byte) error {
	if string(b) != string(p.context) {
		return types.NewError(types.ErrProtocolViolation, "recovery context mismatch")
	}
	return nil
}

func (p *provider) GenerateMaterial(ids.Role) ([]byte, error) {
	pk := codec.NewPacker(34)
	pk.PackU16(p.share.Index)
	pk.PackFixed(p.share.Value[:])
	return pk.Bytes, nil
}

func (p *provider) ValidateMaterial(from ids.Role, material []byte) error {
	u := codec.NewUnpacker(material)
	index := u.UnpackU16()
	u.UnpackFixed(32)
	if !u.Done() || index == 0 || index > p.total {
		return types.NewError(types.ErrProtocolViolation, "malformed guardian share from %s", from.Device)
	}
	return nil
}

func (p *provider) Aggregate(materials map[uint16][]byte) ([]byte, error) {
	shares := make(map[uint16][32]byte, len(materials))
	for _, material := range materials {
		u := codec.NewUnpacker(material)
		index := u.UnpackU16()
		var value [32]byte
		copy(value[:], u.UnpackFixed(32))
		if u.Done() {
			shares[index] = value
		}
	}
	secret, err := frost.CombineSecretShares(shares)
	if err != nil {
		return nil, err
	}
	return secret[:], nil
}

func (p *provider) VerifyResult(result []byte) error {
	if len(result) != 32 {
		return types.NewError(types.ErrCrypto, "recovered key has length %d", len(result))
	}
	return nil
}

// Execute enforces policy then runs the guardian collection. The
// session roster must hold the guardians as participants; share is this
// participant's guardian share.
func (c *Coordinator) Execute(
	ctx context.Context,
	sess *choreo.Session,
	req *Request,
	share GuardianShare,
	signShare *frost.Share,
	hasOverride bool,
	timeout time.Duration,
) (*Result, error) {
	key := attemptKey{device: req.RequestingDevice, epoch: sess.Epoch}
	assessment := c.policy.Evaluate(req, c.attempts[key], hasOverride)
	if err := assessment.DenialError(); err != nil {
		c.annotate(sess, req, "denied")
		return &Result{Assessment: assessment}, err
	}
	c.attempts[key]++

	start := sess.Effects.Clock.NowMS()
	p := &provider{
		context: req.RecoveryContext,
		share:   share,
		total:   uint16(len(req.AvailableGuardians)),
		thresh:  req.RequiredThreshold,
	}
	collected, err := sess.ThresholdCollect(ctx, req.RecoveryContext, p, choreo.CollectConfig{
		Threshold:    int(req.RequiredThreshold),
		PhaseTimeout: timeout,
	})
	if err != nil {
		c.annotate(sess, req, "aborted")
		return &Result{Assessment: assessment}, err
	}

	result := &Result{Assessment: assessment}
	copy(result.RecoveredKey[:], collected.Result)
	result.GuardianShares = append(result.GuardianShares, share)
	result.Metrics.DurationMS = sess.Effects.Clock.NowMS() - start
	result.Metrics.ByzantineEvents = uint64(len(collected.Byzantine))

	// The guardians attest the recovery by threshold-signing its
	// context under the account recovery group key.
	if signShare != nil {
		sig, err := c.attest(ctx, sess, req, signShare, timeout)
		if err != nil {
			c.annotate(sess, req, "aborted")
			return result, err
		}
		result.ThresholdSignature = sig
	}

	c.annotate(sess, req, "recovered")
	sess.Effects.Log.Info("guardian recovery complete",
		zap.Stringer("account", ids.ID(req.AccountID)),
		zap.Uint16("threshold", req.RequiredThreshold),
		zap.Uint64("duration_ms", result.Metrics.DurationMS),
	)
	return result, nil
}

// attest runs one FROST round among the guardians over the recovery
// context.
func (c *Coordinator) attest(
	ctx context.Context,
	sess *choreo.Session,
	req *Request,
	signShare *frost.Share,
	timeout time.Duration,
) (*frost.ThresholdSignature, error) {
	commitment, token, err := frost.GenerateNonce(signShare, sess.Effects.Rand)
	if err != nil {
		return nil, types.WrapError(types.ErrCrypto, err, "attest nonce")
	}
	raw := commitment.Bytes()
	payload := codec.NewPacker(66)
	payload.PackU16(commitment.Signer)
	payload.PackFixed(raw[:])

	round, err := sess.BroadcastAndGatherTyped(ctx, choreo.MsgCommitment, payload.Bytes, timeout)
	if err != nil {
		return nil, err
	}
	commitments := make([]frost.NonceCommitment, 0, round.Count())
	for _, b := range round.Messages {
		u := codec.NewUnpacker(b)
		nc := frost.NonceCommitment{Signer: u.UnpackU16()}
		copy(nc.Hiding[:], u.UnpackFixed(32))
		copy(nc.Binding[:], u.UnpackFixed(32))
		if u.Done() {
			commitments = append(commitments, nc)
		}
	}
	if len(commitments) < int(req.RequiredThreshold) {
		return nil, types.NewError(types.ErrTimeout, "attestation commitments: %d/%d",
			len(commitments), req.RequiredThreshold)
	}

	partial, err := frost.SignWithNonce(req.RecoveryContext, signShare, token, commitments)
	if err != nil {
		return nil, types.WrapError(types.ErrCrypto, err, "attest sign")
	}
	partialPayload := codec.NewPacker(34)
	partialPayload.PackU16(partial.Signer)
	partialPayload.PackFixed(partial.Z[:])

	sigRound, err := sess.BroadcastAndGatherTyped(ctx, choreo.MsgResult, partialPayload.Bytes, timeout)
	if err != nil {
		return nil, err
	}
	partials := make([]frost.PartialSignature, 0, sigRound.Count())
	for _, b := range sigRound.Messages {
		u := codec.NewUnpacker(b)
		ps := frost.PartialSignature{Signer: u.UnpackU16()}
		copy(ps.Z[:], u.UnpackFixed(32))
		if u.Done() {
			partials = append(partials, ps)
		}
	}
	if len(partials) < len(commitments) {
		return nil, types.NewError(types.ErrTimeout, "attestation partials: %d/%d",
			len(partials), len(commitments))
	}
	sig, err := frost.Aggregate(partials, req.RecoveryContext, commitments, signShare.GroupPK)
	if err != nil {
		return nil, types.WrapError(types.ErrCrypto, err, "attest aggregate")
	}
	return sig, nil
}

func (c *Coordinator) annotate(sess *choreo.Session, req *Request, status string) {
	c.journal.Append(&journal.Fact{
		ID:           ids.ID(req.AccountID),
		Kind:         journal.FactAccountStatusChange,
		Value:        []byte("recovery:" + status),
		Timestamp:    types.ProvenancedTime{Stamp: sess.Effects.PhysicalNow()},
		AuthorDevice: sess.Self.Device,
		Epoch:        sess.Epoch,
	})
}
