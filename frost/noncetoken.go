// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frost

import (
	"errors"
	"sync"

	"filippo.io/edwards25519"
)

// ErrNonceConsumed is returned when a token is used twice.
var ErrNonceConsumed = errors.New("nonce token already consumed")

// NonceToken holds the secret nonce halves for exactly one signing
// round. Go has no affine types, so the token is an atomically-taken
// cell: the first take wins and every later take fails. A reused nonce
// leaks the share, so double-take is a hard error, never a retry.
type NonceToken struct {
	mu      sync.Mutex
	signer  uint16
	hiding  *edwards25519.Scalar
	binding *edwards25519.Scalar
	taken   bool
}

func newNonceToken(signer uint16, hiding, binding *edwards25519.Scalar) *NonceToken {
	return &NonceToken{signer: signer, hiding: hiding, binding: binding}
}

// Signer returns the identifier the token was generated for.
func (t *NonceToken) Signer() uint16 {
	return t.signer
}

// Consumed reports whether the token has been taken.
func (t *NonceToken) Consumed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.taken
}

// take moves the scalars out of the token. Single-use.
func (t *NonceToken) take() (hiding, binding *edwards25519.Scalar, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.taken {
		return nil, nil, ErrNonceConsumed
	}
	t.taken = true
	hiding, binding = t.hiding, t.binding
	t.hiding, t.binding = nil, nil
	return hiding, binding, nil
}

// Discard destroys the token without signing, for epoch invalidation.
func (t *NonceToken) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.taken = true
	t.hiding, t.binding = nil, nil
}
