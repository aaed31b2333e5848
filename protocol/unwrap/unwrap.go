// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package unwrap implements threshold unwrapping of a wrapped secret:
// M-of-N participants exchange commitment-verified shares and each
// reconstructs the secret locally and deterministically.
package unwrap

import (
	"context"
	"time"

	"github.com/hxrts/aura/choreo"
	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/frost"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// ThresholdContext binds one unwrap round to its secret and epoch.
type ThresholdContext struct {
	SecretID  ids.ID
	Threshold uint16
	Total     uint16
	Epoch     types.Epoch
	Nonce     [32]byte
}

// Marshal produces the canonical context bytes every participant must
// agree on before revealing anything.
func (c *ThresholdContext) Marshal() []byte {
	p := codec.NewPacker(64)
	p.PackFixed(c.SecretID.Bytes())
	p.PackU16(c.Threshold)
	p.PackU16(c.Total)
	p.PackU64(uint64(c.Epoch))
	p.PackFixed(c.Nonce[:])
	return p.Bytes
}

// Result is one participant's outcome.
type Result struct {
	Secret      [32]byte
	Contributed int
	Byzantine   []ids.DeviceID
}

// provider adapts share reconstruction to Threshold-Collect.
type provider struct {
	context *ThresholdContext
	myShare [32]byte
	myIndex uint16
}

func (p *provider) ValidateContext(b []byte) error {
	expect := p.context.Marshal()
	if len(b) != len(expect) || string(b) != string(expect) {
		return types.NewError(types.ErrProtocolViolation, "threshold context mismatch")
	}
	return nil
}

func (p *provider) GenerateMaterial(self ids.Role) ([]byte, error) {
	pk := codec.NewPacker(34)
	pk.PackU16(p.myIndex)
	pk.PackFixed(p.myShare[:])
	return pk.Bytes, nil
}

func (p *provider) ValidateMaterial(from ids.Role, material []byte) error {
	index, _, ok := decodeShare(material)
	if !ok {
		return types.NewError(types.ErrProtocolViolation, "malformed share from %s", from.Device)
	}
	if index == 0 || index > p.context.Total {
		return types.NewError(types.ErrProtocolViolation, "share index %d out of range", index)
	}
	return nil
}

// Aggregate reconstructs the secret from the lowest threshold share
// indexes; determinism follows from the sorted fold inside
// CombineSecretShares.
func (p *provider) Aggregate(materials map[uint16][]byte) ([]byte, error) {
	shares := make(map[uint16][32]byte, len(materials))
	for _, material := range materials {
		index, value, ok := decodeShare(material)
		if !ok {
			continue
		}
		shares[index] = value
	}
	if len(shares) > int(p.context.Threshold) {
		indexes := make([]uint16, 0, len(shares))
		for i := range shares {
			indexes = append(indexes, i)
		}
		sortU16(indexes)
		trimmed := make(map[uint16][32]byte, p.context.Threshold)
		for _, i := range indexes[:p.context.Threshold] {
			trimmed[i] = shares[i]
		}
		shares = trimmed
	}
	secret, err := frost.CombineSecretShares(shares)
	if err != nil {
		return nil, err
	}
	return secret[:], nil
}

func (p *provider) VerifyResult(result []byte) error {
	if len(result) != 32 {
		return types.NewError(types.ErrCrypto, "reconstructed secret has length %d", len(result))
	}
	return nil
}

func decodeShare(b []byte) (uint16, [32]byte, bool) {
	var value [32]byte
	u := codec.NewUnpacker(b)
	index := u.UnpackU16()
	copy(value[:], u.UnpackFixed(32))
	return index, value, u.Done()
}

func sortU16(v []uint16) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// Run executes one unwrap round for a participant holding shareIndex
// and share of the wrapped secret.
func Run(
	ctx context.Context,
	sess *choreo.Session,
	tctx *ThresholdContext,
	shareIndex uint16,
	share [32]byte,
	timeout time.Duration,
) (*Result, error) {
	p := &provider{context: tctx, myShare: share, myIndex: shareIndex}
	collected, err := sess.ThresholdCollect(ctx, tctx.Marshal(), p, choreo.CollectConfig{
		Threshold:    int(tctx.Threshold),
		PhaseTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	result := &Result{
		Contributed: collected.Contributed,
		Byzantine:   collected.Byzantine,
	}
	copy(result.Secret[:], collected.Result)
	return result, nil
}
