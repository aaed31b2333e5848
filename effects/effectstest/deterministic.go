// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package effectstest provides the deterministic effects bundle used by
// protocol tests and the simulator. Every source of impurity is keyed
// by a u64 seed so runs replay exactly.
package effectstest

import (
	"context"
	"sync"

	"github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// Clock is a manually-advanced millisecond clock.
type Clock struct {
	mu sync.Mutex
	ms uint64
}

// NewClock starts a clock at the given millisecond reading.
func NewClock(startMS uint64) *Clock {
	return &Clock{ms: startMS}
}

func (c *Clock) NowMS() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Monotone even without explicit Advance calls so that repeated
	// reads within one step still order.
	c.ms++
	return c.ms
}

func (c *Clock) Uncertainty() uint64 { return 0 }

// Advance moves the clock forward by d milliseconds.
func (c *Clock) Advance(d uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += d
}

// Rand is a splitmix64 generator. Deterministic given its seed.
type Rand struct {
	mu    sync.Mutex
	state uint64
}

// NewRand seeds a deterministic generator.
func NewRand(seed uint64) *Rand {
	return &Rand{state: seed}
}

func (r *Rand) next() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (r *Rand) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next()
}

func (r *Rand) Fill(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < len(b); i += 8 {
		v := r.next()
		for j := 0; j < 8 && i+j < len(b); j++ {
			b[i+j] = byte(v >> (8 * j))
		}
	}
}

func (r *Rand) Bytes32() [32]byte {
	var out [32]byte
	r.Fill(out[:])
	return out
}

func (r *Rand) Seed() uint64 {
	return r.Uint64()
}

// Hasher is the production BLAKE3 hasher; hashing is already pure.
type Hasher struct{}

func (Hasher) Hash(b []byte) types.Hash32 {
	return types.Hash32(blake3.Sum256(b))
}

// MemStorage is an in-memory effects.Storage.
type MemStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStorage() *MemStorage {
	return &MemStorage{data: make(map[string][]byte)}
}

func (s *MemStorage) Store(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *MemStorage) Retrieve(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, types.NewError(types.ErrStorage, "key not found: %s", key)
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (s *MemStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemStorage) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *MemStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *MemStorage) Batch(ctx context.Context, ops []effects.BatchOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Delete {
			delete(s.data, op.Key)
			continue
		}
		cp := make([]byte, len(op.Value))
		copy(cp, op.Value)
		s.data[op.Key] = cp
	}
	return nil
}

func (s *MemStorage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

func (s *MemStorage) Stats(_ context.Context) (effects.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := effects.StorageStats{Keys: uint64(len(s.data))}
	for _, v := range s.data {
		stats.TotalBytes += uint64(len(v))
	}
	return stats, nil
}

// NewBundle assembles a deterministic bundle for one device.
func NewBundle(seed uint64, hub *Hub, device ids.DeviceID) *effects.Bundle {
	return &effects.Bundle{
		Clock: NewClock(1_700_000_000_000),
		Rand:  NewRand(seed),
		Hash:  Hasher{},
		Store: NewMemStorage(),
		Net:   hub.Join(device),
		Log:   log.NewNoOpLogger(),
	}
}
