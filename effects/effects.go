// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package effects defines the single impurity seam of the Aura core:
// injectable sources of time, randomness, hashing, persistent storage,
// and network I/O. Every other component depends only on this package;
// test builds inject a deterministic implementation keyed by a u64
// seed (see effects/effectstest).
package effects

import (
	"context"

	"github.com/luxfi/log"

	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// Clock supplies monotone physical time in milliseconds, with optional
// uncertainty bounds.
type Clock interface {
	// NowMS returns the current time in milliseconds since the epoch.
	NowMS() uint64
	// Uncertainty returns the clock's error bound in milliseconds, or
	// 0 if unknown.
	Uncertainty() uint64
}

// Random supplies random bytes. Production implementations draw from
// the OS; deterministic implementations derive from a seed.
type Random interface {
	// Fill fills b with random bytes.
	Fill(b []byte)
	// Bytes32 returns a fresh 32-byte random array.
	Bytes32() [32]byte
	// Uint64 returns a random u64.
	Uint64() uint64
	// Seed returns a u64 suitable for seeding a derived deterministic
	// generator. Scoped acquisition keeps test runs reproducible.
	Seed() uint64
}

// Hasher computes BLAKE3 digests over arbitrary byte slices.
type Hasher interface {
	Hash(b []byte) types.Hash32
}

// BatchOp is one mutation in a storage batch.
type BatchOp struct {
	Key    string
	Value  []byte
	Delete bool
}

// StorageStats summarizes a storage namespace.
type StorageStats struct {
	Keys       uint64
	TotalBytes uint64
}

// Storage is the key-value persistence surface.
type Storage interface {
	Store(ctx context.Context, key string, value []byte) error
	Retrieve(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Batch(ctx context.Context, ops []BatchOp) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (StorageStats, error)
}

// Inbound is a message received from a peer.
type Inbound struct {
	From  ids.DeviceID
	Bytes []byte
}

// PeerEventKind discriminates peer connectivity events.
type PeerEventKind uint8

const (
	PeerConnected PeerEventKind = iota
	PeerDisconnected
)

// PeerEvent reports a peer connecting or disconnecting.
type PeerEvent struct {
	Peer ids.DeviceID
	Kind PeerEventKind
}

// Network is the message transport surface. FIFO delivery per
// (sender, receiver) pair is assumed from the transport.
type Network interface {
	SendToPeer(ctx context.Context, peer ids.DeviceID, msg []byte) error
	Broadcast(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) (Inbound, error)
	ReceiveFrom(ctx context.Context, peer ids.DeviceID) ([]byte, error)
	ConnectedPeers() []ids.DeviceID
	SubscribeToPeerEvents() <-chan PeerEvent
}

// Bundle is the per-authority capability bundle constructed at startup
// and passed explicitly. Never module-level.
type Bundle struct {
	Clock Clock
	Rand  Random
	Hash  Hasher
	Store Storage
	Net   Network
	Log   log.Logger
}

// PhysicalNow reads the bundle clock into a provenance-free timestamp.
func (b *Bundle) PhysicalNow() types.TimeStamp {
	ts := types.Physical(b.Clock.NowMS())
	ts.UncertaintyMS = b.Clock.Uncertainty()
	return ts
}
