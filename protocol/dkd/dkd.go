// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dkd implements Distributed Key Derivation: the account's
// identity keypair is derived from the XOR of participant-contributed
// shares. Every share is revealed to every participant, so each
// participant that completes a run holds the whole seed.
package dkd

import (
	"context"
	"crypto/ed25519"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hxrts/aura/choreo"
	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/guard"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/journal"
	"github.com/hxrts/aura/types"
)

// Config tunes a DKD run.
type Config struct {
	Threshold    int
	PhaseTimeout time.Duration
	TTLEpochs    uint64
}

// DefaultConfig covers the common all-devices derivation.
func DefaultConfig(threshold int) Config {
	return Config{
		Threshold:    threshold,
		PhaseTimeout: choreo.DefaultPhaseTimeout,
		TTLEpochs:    1,
	}
}

// Result is one participant's outcome.
type Result struct {
	Seed         [32]byte
	VerifyingKey ed25519.PublicKey
	Fingerprint  types.Hash32
	MerkleRoot   types.Hash32
	Byzantine    []ids.DeviceID
	Session      *types.Session
}

type contribution struct {
	share [32]byte
	nonce [32]byte
}

func commitTo(share, nonce [32]byte) types.Hash32 {
	return types.HashConcat(share[:], nonce[:])
}

func marshalReveal(c contribution) []byte {
	p := codec.NewPacker(72)
	p.PackFixed(c.share[:])
	p.PackFixed(c.nonce[:])
	return p.Bytes
}

func unmarshalReveal(b []byte) (contribution, bool) {
	u := codec.NewUnpacker(b)
	var c contribution
	copy(c.share[:], u.UnpackFixed(32))
	copy(c.nonce[:], u.UnpackFixed(32))
	return c, u.Done()
}

// Run executes the four DKD rounds for one participant: commit,
// reveal, aggregate by XOR, and a consistency finalization over the
// derived seed fingerprint. Every participant calls Run; there is no
// distinguished coordinator after initiation.
func Run(
	ctx context.Context,
	sess *choreo.Session,
	g *guard.Guard,
	jrnl *journal.Journal,
	token []byte,
	authority ids.AuthorityID,
	cfg Config,
) (*Result, error) {
	if err := g.Authorize(guard.Request{
		Operation:         guard.OpAdmin,
		Resource:          guard.ResourceStorage(authority, "identity/derive"),
		ExpectedAuthority: authority,
		Token:             token,
	}); err != nil {
		return nil, err
	}

	session := newSession(sess, cfg)
	result, err := run(ctx, sess, cfg)
	finishSession(sess, jrnl, session, result, err)
	if result != nil {
		result.Session = session
	}
	return result, err
}

func newSession(sess *choreo.Session, cfg Config) *types.Session {
	participants := make([]ids.DeviceID, 0, len(sess.Participants))
	for _, r := range sess.Participants {
		participants = append(participants, r.Device)
	}
	s := types.NewSession(types.SessionDKD, participants, sess.Effects.PhysicalNow(), cfg.TTLEpochs)
	s.State = types.SessionActive
	return s
}

func finishSession(sess *choreo.Session, jrnl *journal.Journal, session *types.Session, result *Result, err error) {
	switch {
	case err == nil:
		session.State = types.SessionComplete
	case types.IsKind(err, types.ErrTimeout):
		session.State = types.SessionTimedOut
	default:
		session.State = types.SessionAborted
	}
	value := []byte(session.State.String())
	if result != nil {
		value = append(value, result.Fingerprint[:]...)
	}
	jrnl.Append(&journal.Fact{
		ID:           ids.ID(session.ID),
		Kind:         journal.FactSessionAnnotation,
		Value:        value,
		Timestamp:    types.ProvenancedTime{Stamp: sess.Effects.PhysicalNow()},
		AuthorDevice: sess.Self.Device,
		Epoch:        sess.Epoch,
	})
}

func run(ctx context.Context, sess *choreo.Session, cfg Config) (*Result, error) {
	// Round 1+2: commit then reveal the contribution.
	var mine contribution
	sess.Effects.Rand.Fill(mine.share[:])
	sess.Effects.Rand.Fill(mine.nonce[:])
	myCommit := commitTo(mine.share, mine.nonce)

	commits, err := sess.BroadcastAndGatherTyped(ctx, choreo.MsgCommitment, myCommit[:], cfg.PhaseTimeout)
	if err != nil {
		return nil, err
	}
	reveals, err := sess.BroadcastAndGatherTyped(ctx, choreo.MsgReveal, marshalReveal(mine), cfg.PhaseTimeout)
	if err != nil {
		return nil, err
	}

	// Round 3: verify reveals against commits and aggregate by XOR.
	result := &Result{}
	accepted := make(map[uint16]contribution)
	seenShares := make(map[[32]byte]uint16)
	for index, payload := range reveals.Messages {
		role := reveals.Roles[index]
		c, ok := unmarshalReveal(payload)
		if !ok {
			result.Byzantine = append(result.Byzantine, role.Device)
			continue
		}
		committed, ok := commits.Messages[index]
		if !ok || len(committed) != 32 {
			result.Byzantine = append(result.Byzantine, role.Device)
			continue
		}
		expect := commitTo(c.share, c.nonce)
		if types.Hash32(committed) != expect {
			result.Byzantine = append(result.Byzantine, role.Device)
			continue
		}
		if prev, dup := seenShares[c.share]; dup && prev != index {
			// Duplicate reveal: a copied contribution biases the seed.
			result.Byzantine = append(result.Byzantine, role.Device)
			continue
		}
		seenShares[c.share] = index
		accepted[index] = c
	}
	ids.SortDeviceIDs(result.Byzantine)

	if len(accepted) < cfg.Threshold {
		return result, types.NewError(types.ErrByzantine,
			"only %d valid contributions, threshold %d", len(accepted), cfg.Threshold)
	}

	for _, c := range accepted {
		for i := range result.Seed {
			result.Seed[i] ^= c.share[i]
		}
	}

	key := ed25519.NewKeyFromSeed(result.Seed[:])
	result.VerifyingKey = key.Public().(ed25519.PublicKey)
	result.Fingerprint = types.HashBytes(result.VerifyingKey)
	result.MerkleRoot = merkleRoot(commits.Messages)

	// Round 4: confirm every participant derived the same fingerprint.
	consistency, err := sess.VerifyConsistentResult(ctx, result.Fingerprint[:], cfg.Threshold, cfg.PhaseTimeout)
	if err != nil {
		return result, err
	}
	result.Byzantine = append(result.Byzantine, consistency.Byzantine...)
	ids.SortDeviceIDs(result.Byzantine)
	if !consistency.Agreed {
		return result, types.NewError(types.ErrByzantine,
			"seed fingerprint disagreement: %d/%d", consistency.AgreeCount, cfg.Threshold)
	}

	sess.Effects.Log.Info("dkd complete",
		zap.Stringer("fingerprint", result.Fingerprint),
		zap.Int("contributions", len(accepted)),
		zap.Int("byzantine", len(result.Byzantine)),
	)
	return result, nil
}

// merkleRoot digests the sorted commitment bytes.
func merkleRoot(commits map[uint16][]byte) types.Hash32 {
	leaves := make([][]byte, 0, len(commits))
	for _, c := range commits {
		leaves = append(leaves, c)
	}
	sort.Slice(leaves, func(i, j int) bool {
		return string(leaves[i]) < string(leaves[j])
	})
	p := codec.NewPacker(32 * len(leaves))
	for _, l := range leaves {
		p.PackFixed(l)
	}
	return codec.HashCanonical(p)
}
