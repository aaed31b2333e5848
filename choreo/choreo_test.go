// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package choreo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/effects/effectstest"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

func testRoster(t *testing.T, n int, seed uint64) ([]*Session, *effectstest.Hub) {
	t.Helper()
	hub := effectstest.NewHub()
	roles := make([]ids.Role, n)
	for i := range roles {
		roles[i] = ids.Role{Device: ids.NewDeviceID(), Index: uint16(i + 1)}
	}
	opID := types.HashBytes([]byte("test-op"))
	sessions := make([]*Session, n)
	for i := range sessions {
		bundle := effectstest.NewBundle(seed+uint64(i), hub, roles[i].Device)
		sessions[i] = NewSession(roles[i], roles, 1, opID, bundle)
	}
	return sessions, hub
}

func TestProposeImplicitAck(t *testing.T) {
	require := require.New(t)
	sessions, _ := testRoster(t, 3, 42)
	cfg := DefaultProposeConfig()
	cfg.AckTimeout = 2 * time.Second

	var wg sync.WaitGroup
	for _, s := range sessions[1:] {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			p, err := s.AwaitProposal(context.Background(), nil, cfg)
			require.NoError(err)
			require.Equal([]byte("upgrade-v2"), p.Payload)
		}(s)
	}

	result, err := sessions[0].Propose(context.Background(), []byte("upgrade-v2"), nil, cfg)
	require.NoError(err)
	require.True(result.Success)
	require.True(result.AllAcknowledged)
	wg.Wait()
}

func TestProposeExplicitAcks(t *testing.T) {
	require := require.New(t)
	sessions, _ := testRoster(t, 3, 7)
	cfg := DefaultProposeConfig()
	cfg.RequireExplicitAcks = true
	cfg.AckTimeout = 2 * time.Second

	var wg sync.WaitGroup
	for _, s := range sessions[1:] {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			_, err := s.AwaitProposal(context.Background(), nil, cfg)
			require.NoError(err)
		}(s)
	}

	result, err := sessions[0].Propose(context.Background(), []byte("payload"), nil, cfg)
	require.NoError(err)
	require.True(result.Success)
	require.Equal(2, result.Count)
	wg.Wait()
}

func TestProposeSizeCap(t *testing.T) {
	require := require.New(t)
	sessions, _ := testRoster(t, 2, 9)
	cfg := DefaultProposeConfig()
	cfg.MaxProposalSize = 4

	_, err := sessions[0].Propose(context.Background(), []byte("too large"), nil, cfg)
	require.Error(err)
	require.True(types.IsKind(err, types.ErrProtocolViolation))
}

func TestBroadcastAndGather(t *testing.T) {
	require := require.New(t)
	sessions, _ := testRoster(t, 3, 11)

	var wg sync.WaitGroup
	results := make([]*GatherResult, len(sessions))
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			r, err := s.BroadcastAndGather(context.Background(), func(self ids.Role) ([]byte, error) {
				return []byte{byte(self.Index)}, nil
			}, 2*time.Second)
			require.NoError(err)
			results[i] = r
		}(i, s)
	}
	wg.Wait()

	for _, r := range results {
		require.Equal(3, r.Count())
		require.Equal([]uint16{1, 2, 3}, r.Indexes())
		for _, idx := range r.Indexes() {
			require.Equal([]byte{byte(idx)}, r.Messages[idx])
		}
	}
}

func TestVerifyConsistentResultAgreement(t *testing.T) {
	require := require.New(t)
	sessions, _ := testRoster(t, 3, 13)

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			r, err := s.VerifyConsistentResult(context.Background(), []byte("same-result"), 2, 2*time.Second)
			require.NoError(err)
			require.True(r.Agreed)
			require.Empty(r.Byzantine)
			require.Equal(3, r.AgreeCount)
		}(s)
	}
	wg.Wait()
}

func TestVerifyConsistentResultDetectsDivergence(t *testing.T) {
	require := require.New(t)
	sessions, _ := testRoster(t, 3, 17)

	var wg sync.WaitGroup
	results := make([]*ConsistencyResult, len(sessions))
	for i, s := range sessions {
		wg.Add(1)
		value := []byte("agreed")
		if i == 2 {
			value = []byte("divergent")
		}
		go func(i int, s *Session, value []byte) {
			defer wg.Done()
			r, err := s.VerifyConsistentResult(context.Background(), value, 2, 2*time.Second)
			require.NoError(err)
			results[i] = r
		}(i, s, value)
	}
	wg.Wait()

	// The two honest participants still reach threshold; the divergent
	// one does not.
	require.True(results[0].Agreed)
	require.True(results[1].Agreed)
	require.False(results[2].Agreed)
	require.Equal(2, results[0].AgreeCount)
}

// xorProvider aggregates materials by byte-wise XOR.
type xorProvider struct {
	contribution []byte
}

func (p *xorProvider) ValidateContext([]byte) error { return nil }

func (p *xorProvider) GenerateMaterial(ids.Role) ([]byte, error) {
	return p.contribution, nil
}

func (p *xorProvider) ValidateMaterial(_ ids.Role, material []byte) error {
	if len(material) != 32 {
		return types.NewError(types.ErrProtocolViolation, "bad material length %d", len(material))
	}
	return nil
}

func (p *xorProvider) Aggregate(materials map[uint16][]byte) ([]byte, error) {
	out := make([]byte, 32)
	for _, m := range materials {
		for i := range out {
			out[i] ^= m[i]
		}
	}
	return out, nil
}

func (p *xorProvider) VerifyResult(result []byte) error {
	if len(result) != 32 {
		return types.NewError(types.ErrCrypto, "bad result length")
	}
	return nil
}

func TestThresholdCollect(t *testing.T) {
	require := require.New(t)
	sessions, _ := testRoster(t, 3, 19)

	contributions := make([][]byte, 3)
	for i := range contributions {
		c := make([]byte, 32)
		for j := range c {
			c[j] = byte(i + 1)
		}
		contributions[i] = c
	}

	var wg sync.WaitGroup
	results := make([]*CollectResult, len(sessions))
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			r, err := s.ThresholdCollect(context.Background(), []byte("shared-context"), &xorProvider{
				contribution: contributions[i],
			}, CollectConfig{Threshold: 3, PhaseTimeout: 2 * time.Second})
			require.NoError(err)
			results[i] = r
		}(i, s)
	}
	wg.Wait()

	for _, r := range results {
		require.Equal(results[0].Result, r.Result)
		require.Equal(3, r.Contributed)
		require.Empty(r.Byzantine)
	}
}
