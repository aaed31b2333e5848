// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ota implements over-the-air upgrade consensus: a proposer
// collects majority approval for a change set, then all devices confirm
// they applied the same change set.
package ota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hxrts/aura/choreo"
	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/journal"
	"github.com/hxrts/aura/types"
)

// Proposal describes an upgrade.
type Proposal struct {
	Version           string
	BinaryHash        types.Hash32
	ChangeSet         []byte
	DisputeWindowSecs uint64
}

// Marshal encodes the proposal canonically.
func (p *Proposal) Marshal() []byte {
	pk := codec.NewPacker(64 + len(p.ChangeSet))
	pk.PackString(p.Version)
	pk.PackFixed(p.BinaryHash[:])
	pk.PackBytes(p.ChangeSet)
	pk.PackU64(p.DisputeWindowSecs)
	return pk.Bytes
}

// UnmarshalProposal decodes a proposal.
func UnmarshalProposal(b []byte) (*Proposal, error) {
	u := codec.NewUnpacker(b)
	p := &Proposal{}
	p.Version = u.UnpackString()
	copy(p.BinaryHash[:], u.UnpackFixed(32))
	p.ChangeSet = u.UnpackBytes()
	p.DisputeWindowSecs = u.UnpackU64()
	if !u.Done() {
		return nil, types.NewError(types.ErrProtocolViolation, "malformed ota proposal")
	}
	return p, nil
}

// Result reports an OTA round.
type Result struct {
	Approved  bool
	Approvals int
	Required  int
	Applied   bool
	Byzantine []ids.DeviceID
}

// MajorityFor returns the approval quorum for n devices.
func MajorityFor(n int) int {
	return (n + 1 + 1) / 2 // ceil((n+1)/2)
}

// Propose runs the proposer side: collect explicit approvals, then
// confirm consistent application. apply installs the change set
// locally once approval passes.
func Propose(
	ctx context.Context,
	sess *choreo.Session,
	jrnl *journal.Journal,
	proposal *Proposal,
	apply func(*Proposal) error,
	timeout time.Duration,
) (*Result, error) {
	cfg := choreo.DefaultProposeConfig()
	cfg.RequireExplicitAcks = true
	cfg.AckTimeout = timeout

	ack, err := sess.Propose(ctx, proposal.Marshal(), nil, cfg)
	if err != nil {
		return nil, err
	}

	n := len(sess.Participants)
	result := &Result{
		Approvals: ack.Count + 1, // proposer approves its own proposal
		Required:  MajorityFor(n),
	}
	result.Approved = result.Approvals >= result.Required
	if !result.Approved {
		annotate(sess, jrnl, proposal, "rejected")
		return result, types.NewError(types.ErrProtocolViolation,
			"upgrade rejected: %d/%d approvals", result.Approvals, result.Required)
	}

	if err := apply(proposal); err != nil {
		annotate(sess, jrnl, proposal, "apply_failed")
		return result, types.WrapError(types.ErrInternal, err, "apply change set")
	}
	return confirm(ctx, sess, jrnl, proposal, result, timeout)
}

// Participate runs a device through approval and application. approve
// decides whether this device acks; apply installs the change set.
func Participate(
	ctx context.Context,
	sess *choreo.Session,
	jrnl *journal.Journal,
	approve func(*Proposal) error,
	apply func(*Proposal) error,
	timeout time.Duration,
) (*Result, error) {
	cfg := choreo.DefaultProposeConfig()
	cfg.RequireExplicitAcks = true
	cfg.AckTimeout = timeout

	var proposal *Proposal
	_, err := sess.AwaitProposal(ctx, func(b []byte) error {
		p, err := UnmarshalProposal(b)
		if err != nil {
			return err
		}
		if err := approve(p); err != nil {
			return err
		}
		proposal = p
		return nil
	}, cfg)
	if err != nil {
		return nil, err
	}

	if err := apply(proposal); err != nil {
		annotate(sess, jrnl, proposal, "apply_failed")
		return nil, types.WrapError(types.ErrInternal, err, "apply change set")
	}
	n := len(sess.Participants)
	result := &Result{Approved: true, Required: MajorityFor(n)}
	return confirm(ctx, sess, jrnl, proposal, result, timeout)
}

// confirm runs the commit-reveal check that every device applied the
// same change set.
func confirm(
	ctx context.Context,
	sess *choreo.Session,
	jrnl *journal.Journal,
	proposal *Proposal,
	result *Result,
	timeout time.Duration,
) (*Result, error) {
	applied := types.HashConcat(proposal.BinaryHash[:], proposal.ChangeSet)
	consistency, err := sess.VerifyConsistentResult(ctx, applied[:], result.Required, timeout)
	if err != nil {
		annotate(sess, jrnl, proposal, "confirm_failed")
		return result, err
	}
	result.Byzantine = consistency.Byzantine
	result.Applied = consistency.Agreed
	if !consistency.Agreed {
		annotate(sess, jrnl, proposal, "diverged")
		return result, types.NewError(types.ErrByzantine,
			"applied change sets diverge: %d/%d", consistency.AgreeCount, result.Required)
	}

	annotate(sess, jrnl, proposal, "applied")
	sess.Effects.Log.Info("ota upgrade applied",
		zap.String("version", proposal.Version),
		zap.Int("approvals", result.Approvals),
	)
	return result, nil
}

func annotate(sess *choreo.Session, jrnl *journal.Journal, proposal *Proposal, status string) {
	digest := types.HashBytes(proposal.Marshal())
	var factID ids.ID
	copy(factID[:], digest[:16])
	jrnl.Append(&journal.Fact{
		ID:           factID,
		Kind:         journal.FactSessionAnnotation,
		Value:        []byte("ota:" + proposal.Version + ":" + status),
		Timestamp:    types.ProvenancedTime{Stamp: sess.Effects.PhysicalNow()},
		AuthorDevice: sess.Self.Device,
		Epoch:        sess.Epoch,
	})
}
