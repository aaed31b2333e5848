// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package guard

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/biscuit-auth/biscuit-go/v2"

	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// Minter issues capability tokens under an authority root key.
type Minter struct {
	root ed25519.PrivateKey
}

// NewMinter wraps the root signing key.
func NewMinter(root ed25519.PrivateKey) *Minter {
	return &Minter{root: root}
}

// GenerateRoot creates a fresh token-signing keypair.
func GenerateRoot() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// TokenSpec describes a token to mint: the identity binding plus
// granted capabilities.
type TokenSpec struct {
	AuthorityID  *ids.AuthorityID
	AccountID    *ids.AccountID
	Capabilities []string
}

// Mint builds and serializes a biscuit carrying the spec's facts.
func (m *Minter) Mint(spec TokenSpec) ([]byte, error) {
	builder := biscuit.NewBuilder(m.root)

	addFact := func(name, value string) error {
		return builder.AddAuthorityFact(biscuit.Fact{Predicate: biscuit.Predicate{
			Name: name,
			IDs:  []biscuit.Term{biscuit.String(value)},
		}})
	}

	if spec.AuthorityID != nil {
		if err := addFact("authority_id", spec.AuthorityID.String()); err != nil {
			return nil, types.WrapError(types.ErrCapability, err, "mint authority fact")
		}
	}
	if spec.AccountID != nil {
		if err := addFact("account", spec.AccountID.String()); err != nil {
			return nil, types.WrapError(types.ErrCapability, err, "mint account fact")
		}
	}
	for _, cap := range spec.Capabilities {
		if err := addFact("capability", cap); err != nil {
			return nil, types.WrapError(types.ErrCapability, err, "mint capability fact")
		}
	}

	token, err := builder.Build()
	if err != nil {
		return nil, types.WrapError(types.ErrCapability, err, "build token")
	}
	serialized, err := token.Serialize()
	if err != nil {
		return nil, types.WrapError(types.ErrCapability, err, "serialize token")
	}
	return serialized, nil
}
