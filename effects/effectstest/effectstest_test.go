// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package effectstest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/ids"
)

func TestRandDeterministicBySeed(t *testing.T) {
	require := require.New(t)
	a, b := NewRand(42), NewRand(42)
	for i := 0; i < 32; i++ {
		require.Equal(a.Uint64(), b.Uint64())
	}
	require.NotEqual(NewRand(1).Uint64(), NewRand(2).Uint64())

	var buf1, buf2 [37]byte
	NewRand(9).Fill(buf1[:])
	NewRand(9).Fill(buf2[:])
	require.Equal(buf1, buf2)
}

func TestClockMonotone(t *testing.T) {
	require := require.New(t)
	c := NewClock(100)
	first := c.NowMS()
	second := c.NowMS()
	require.Greater(second, first)
	c.Advance(5000)
	require.GreaterOrEqual(c.NowMS(), first+5000)
}

func TestMemStorageRoundTrip(t *testing.T) {
	require := require.New(t)
	s := NewMemStorage()
	ctx := context.Background()

	require.NoError(s.Store(ctx, "k", []byte("v")))
	got, err := s.Retrieve(ctx, "k")
	require.NoError(err)
	require.Equal([]byte("v"), got)

	// Mutating the returned slice never corrupts the store.
	got[0] = 'x'
	again, err := s.Retrieve(ctx, "k")
	require.NoError(err)
	require.Equal([]byte("v"), again)

	keys, err := s.List(ctx, "")
	require.NoError(err)
	require.Len(keys, 1)

	require.NoError(s.Batch(ctx, []effects.BatchOp{{Key: "k", Delete: true}}))
	_, err = s.Retrieve(ctx, "k")
	require.Error(err)
}

func TestHubDeliversAndPartitions(t *testing.T) {
	require := require.New(t)
	hub := NewHub()
	a, b := ids.NewDeviceID(), ids.NewDeviceID()
	epA := hub.Join(a)
	epB := hub.Join(b)

	require.NoError(epA.SendToPeer(context.Background(), b, []byte("hello")))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	in, err := epB.Receive(ctx)
	require.NoError(err)
	require.Equal(a, in.From)
	require.Equal([]byte("hello"), in.Bytes)

	// Drop hook suppresses delivery without a send error.
	hub.SetDropFunc(func(from, to ids.DeviceID, msg []byte) bool { return true })
	require.NoError(epA.SendToPeer(context.Background(), b, []byte("lost")))
	short, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	_, err = epB.Receive(short)
	require.Error(err)
}

func TestHubPeerEvents(t *testing.T) {
	require := require.New(t)
	hub := NewHub()
	a := ids.NewDeviceID()
	epA := hub.Join(a)

	b := ids.NewDeviceID()
	hub.Join(b)
	select {
	case ev := <-epA.SubscribeToPeerEvents():
		require.Equal(b, ev.Peer)
		require.Equal(effects.PeerConnected, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no peer event")
	}

	hub.Leave(b)
	select {
	case ev := <-epA.SubscribeToPeerEvents():
		require.Equal(effects.PeerDisconnected, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no disconnect event")
	}
}
