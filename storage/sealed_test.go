// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/effects/effectstest"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

func newStore(t *testing.T) (*Sealed, string) {
	t.Helper()
	dir := t.TempDir()
	rand := effectstest.NewRand(42)
	key := make([]byte, 32)
	rand.Fill(key)
	s, err := NewSealed(dir, ids.NewAuthorityID(), key,
		effectstest.NewClock(1_000), rand, effectstest.Hasher{}, log.NewNoOpLogger())
	require.NoError(t, err)
	return s, dir
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	require := require.New(t)
	s, _ := newStore(t)
	ctx := context.Background()

	value := []byte("sealed value")
	require.NoError(s.Store(ctx, "journal/facts/abc", value))
	got, err := s.Retrieve(ctx, "journal/facts/abc")
	require.NoError(err)
	require.Equal(value, got)

	ok, err := s.Exists(ctx, "journal/facts/abc")
	require.NoError(err)
	require.True(ok)
}

func TestValuesAreSealedOnDisk(t *testing.T) {
	require := require.New(t)
	s, dir := newStore(t)
	ctx := context.Background()

	secret := []byte("cleartext never touches disk")
	require.NoError(s.Store(ctx, "sessions/s1", secret))

	var found bool
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		raw, err := os.ReadFile(path)
		require.NoError(err)
		require.NotContains(string(raw), "cleartext")
		found = true
		return nil
	})
	require.NoError(err)
	require.True(found)
}

func TestTamperingTriggersReadOnlyMode(t *testing.T) {
	require := require.New(t)
	s, dir := newStore(t)
	ctx := context.Background()

	require.NoError(s.Store(ctx, "journal/facts/x", []byte("original")))

	// Corrupt the sealed data file.
	var dataPath string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && filepath.Ext(path) == dataSuffix {
			dataPath = path
		}
		return nil
	})
	require.NotEmpty(dataPath)
	raw, err := os.ReadFile(dataPath)
	require.NoError(err)
	raw[0] ^= 0xFF
	require.NoError(os.WriteFile(dataPath, raw, 0o600))

	_, err = s.Retrieve(ctx, "journal/facts/x")
	require.Error(err)
	require.True(types.IsKind(err, types.ErrStorage))
	require.True(s.ReadOnly())

	// Writes are refused in protective mode.
	require.Error(s.Store(ctx, "journal/facts/y", []byte("nope")))
}

func TestListAndPrefix(t *testing.T) {
	require := require.New(t)
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(s.Store(ctx, "journal/facts/a", []byte("1")))
	require.NoError(s.Store(ctx, "journal/facts/b", []byte("2")))
	require.NoError(s.Store(ctx, "sessions/s", []byte("3")))

	keys, err := s.List(ctx, "journal/facts/")
	require.NoError(err)
	require.Len(keys, 2)

	stats, err := s.Stats(ctx)
	require.NoError(err)
	require.EqualValues(3, stats.Keys)
}

func TestBatchAndRemove(t *testing.T) {
	require := require.New(t)
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(s.Batch(ctx, []effects.BatchOp{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	}))
	require.NoError(s.Batch(ctx, []effects.BatchOp{{Key: "a", Delete: true}}))

	ok, err := s.Exists(ctx, "a")
	require.NoError(err)
	require.False(ok)

	got, err := s.Retrieve(ctx, "b")
	require.NoError(err)
	require.Equal([]byte("2"), got)
}

func TestKeyEscapeRejected(t *testing.T) {
	require := require.New(t)
	s, _ := newStore(t)
	require.Error(s.Store(context.Background(), "../outside", []byte("x")))
}

func TestOwnerOnlyPermissions(t *testing.T) {
	require := require.New(t)
	s, dir := newStore(t)
	require.NoError(s.Store(context.Background(), "k", []byte("v")))

	err := filepath.Walk(filepath.Join(dir, "aura"), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		perm := info.Mode().Perm()
		require.Zero(perm&0o077, "group/other bits set on %s", path)
		return nil
	})
	require.NoError(err)
}
