// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage implements the file-backed effects.Storage: every
// value AEAD-sealed under a 256-bit key, integrity-hashed in a sidecar
// metadata file, written atomically via temp-file + rename with
// owner-only permissions.
package storage

import (
	"context"
	"crypto/cipher"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/luxfi/log"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/hxrts/aura/effects"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
	"github.com/hxrts/aura/utils/wrappers"
)

const (
	dataSuffix = ".dat"
	metaSuffix = ".meta"

	dirPerm  = 0o700
	filePerm = 0o600

	defaultWriteAttempts = 4
	writeRetryBase       = 50 * time.Millisecond
)

// Namespace key layout under the root directory.
const (
	KeyFact            = "journal/facts/%s"
	KeyTreeOp          = "journal/tree/%d.op"
	KeyIntent          = "journal/intents/%s"
	KeyCompletedCommit = "consensus/completed/%s"
	KeyWitnessNonce    = "witness/nonces/%d/%d"
	KeySession         = "sessions/%s"
	KeySyncPeer        = "sync/peers/%s"
)

// meta is the sidecar persisted next to each sealed value.
type meta struct {
	Integrity   []byte `cbor:"1,keyasint"`
	OriginalLen uint64 `cbor:"2,keyasint"`
	CreatedMS   uint64 `cbor:"3,keyasint"`
	ModifiedMS  uint64 `cbor:"4,keyasint"`
	Nonce       []byte `cbor:"5,keyasint"`
}

// Sealed is an AEAD-sealing file store rooted at
// <dir>/aura/<authority-uuid>/. An integrity failure flips the store
// into a protective read-only mode.
type Sealed struct {
	mu       sync.RWMutex
	root     string
	aead     cipher.AEAD
	clock    effects.Clock
	rand     effects.Random
	hash     effects.Hasher
	log      log.Logger
	readOnly bool
	attempts int
	encMode  cbor.EncMode
}

// NewSealed opens (creating if needed) the store for one authority.
// The key must be 32 bytes.
func NewSealed(
	dir string,
	authority ids.AuthorityID,
	key []byte,
	clock effects.Clock,
	rand effects.Random,
	hash effects.Hasher,
	logger log.Logger,
) (*Sealed, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "sealing key")
	}
	root := filepath.Join(dir, "aura", authority.String())
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "create storage root")
	}
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "cbor mode")
	}
	return &Sealed{
		root:     root,
		aead:     aead,
		clock:    clock,
		rand:     rand,
		hash:     hash,
		log:      logger,
		attempts: defaultWriteAttempts,
		encMode:  encMode,
	}, nil
}

// ReadOnly reports whether the store has entered protective mode.
func (s *Sealed) ReadOnly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readOnly
}

func (s *Sealed) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", types.NewError(types.ErrStorage, "key escapes namespace: %s", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Sealed) Store(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return types.NewError(types.ErrStorage, "store is read-only after integrity failure")
	}
	return s.storeLocked(ctx, key, value)
}

func (s *Sealed) storeLocked(ctx context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return types.WrapError(types.ErrStorage, err, "mkdir for %s", key)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	s.rand.Fill(nonce)
	sealed := s.aead.Seal(nil, nonce, value, []byte(key))

	integrity := s.hash.Hash(value)
	now := s.clock.NowMS()
	m := meta{
		Integrity:   integrity[:],
		OriginalLen: uint64(len(value)),
		CreatedMS:   now,
		ModifiedMS:  now,
		Nonce:       nonce,
	}
	if prev, err := s.readMeta(path); err == nil {
		m.CreatedMS = prev.CreatedMS
	}
	metaBytes, err := s.encMode.Marshal(&m)
	if err != nil {
		return types.WrapError(types.ErrStorage, err, "encode metadata for %s", key)
	}

	// Write failures retry with exponential backoff up to the attempt
	// cap; integrity never degrades because both files land via rename.
	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return types.WrapError(types.ErrTimeout, ctx.Err(), "store %s", key)
			case <-time.After(writeRetryBase << (attempt - 1)):
			}
		}
		if lastErr = writeAtomic(path+dataSuffix, sealed); lastErr != nil {
			continue
		}
		if lastErr = writeAtomic(path+metaSuffix, metaBytes); lastErr != nil {
			continue
		}
		return nil
	}
	return types.WrapError(types.ErrStorage, lastErr, "store %s", key)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *Sealed) readMeta(path string) (*meta, error) {
	raw, err := os.ReadFile(path + metaSuffix)
	if err != nil {
		return nil, err
	}
	var m meta
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Sealed) Retrieve(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	sealed, err := os.ReadFile(path + dataSuffix)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "read %s", key)
	}
	m, err := s.readMeta(path)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "read metadata %s", key)
	}
	value, err := s.aead.Open(nil, m.Nonce, sealed, []byte(key))
	if err != nil {
		s.enterReadOnly(key)
		return nil, types.NewError(types.ErrStorage, "integrity check failed for %s: unseal", key)
	}
	integrity := s.hash.Hash(value)
	if len(m.Integrity) != 32 || integrity != types.Hash32(m.Integrity) {
		s.enterReadOnly(key)
		return nil, types.NewError(types.ErrStorage, "integrity check failed for %s: digest mismatch", key)
	}
	if uint64(len(value)) != m.OriginalLen {
		s.enterReadOnly(key)
		return nil, types.NewError(types.ErrStorage, "integrity check failed for %s: length", key)
	}
	return value, nil
}

// enterReadOnly flips protective mode. Called with the lock held.
func (s *Sealed) enterReadOnly(key string) {
	if !s.readOnly {
		s.readOnly = true
		s.log.Error("storage integrity failure; entering read-only mode",
			zap.String("key", key),
		)
	}
}

func (s *Sealed) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return types.NewError(types.ErrStorage, "store is read-only after integrity failure")
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path + dataSuffix); err != nil && !os.IsNotExist(err) {
		return types.WrapError(types.ErrStorage, err, "remove %s", key)
	}
	if err := os.Remove(path + metaSuffix); err != nil && !os.IsNotExist(err) {
		return types.WrapError(types.ErrStorage, err, "remove metadata %s", key)
	}
	return nil
}

func (s *Sealed) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, dataSuffix) {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), dataSuffix)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, err, "list %s", prefix)
	}
	return keys, nil
}

func (s *Sealed) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(path + dataSuffix)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, types.WrapError(types.ErrStorage, statErr, "stat %s", key)
}

// Batch applies every op, reporting all failures together. Each entry
// lands in its own file, so a failed op never corrupts the others.
func (s *Sealed) Batch(ctx context.Context, ops []effects.BatchOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return types.NewError(types.ErrStorage, "store is read-only after integrity failure")
	}
	var errs wrappers.Errs
	for _, op := range ops {
		if op.Delete {
			path, err := s.path(op.Key)
			if err != nil {
				errs.Add(err)
				continue
			}
			os.Remove(path + dataSuffix)
			os.Remove(path + metaSuffix)
			continue
		}
		errs.Add(s.storeLocked(ctx, op.Key, op.Value))
	}
	return errs.Err()
}

func (s *Sealed) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return types.NewError(types.ErrStorage, "store is read-only after integrity failure")
	}
	if err := os.RemoveAll(s.root); err != nil {
		return types.WrapError(types.ErrStorage, err, "clear")
	}
	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return types.WrapError(types.ErrStorage, err, "recreate root")
	}
	return nil
}

func (s *Sealed) Stats(ctx context.Context) (effects.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats effects.StorageStats
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, dataSuffix) {
			return err
		}
		stats.Keys++
		stats.TotalBytes += uint64(info.Size())
		return nil
	})
	if err != nil {
		return effects.StorageStats{}, types.WrapError(types.ErrStorage, err, "stats")
	}
	return stats, nil
}

// FactKey formats the storage key for a journal fact.
func FactKey(hash types.Hash32) string {
	return fmt.Sprintf(KeyFact, hash)
}

var _ effects.Storage = (*Sealed)(nil)
