// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package journal implements the append-only, causally-ordered fact log
// and the key graph it materializes into views. Merging is commutative,
// associative, and idempotent; facts are keyed by content hash and form
// a DAG through parent hashes.
package journal

import (
	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// FactKind discriminates journal facts. Set-like kinds survive
// conflicting writes; the rest resolve last-writer-wins.
type FactKind uint8

const (
	// FactNodeSet writes a key-graph node's state. LWW.
	FactNodeSet FactKind = iota
	// FactEdgeSet writes a key-graph edge. LWW.
	FactEdgeSet
	// FactMemberAdd records a membership addition. Set-like.
	FactMemberAdd
	// FactMemberRemove tombstones a membership. Set-like.
	FactMemberRemove
	// FactTombstone supersedes an earlier fact.
	FactTombstone
	// FactSessionAnnotation records a protocol session outcome.
	FactSessionAnnotation
	// FactAccountStatusChange records recovery and policy outcomes.
	FactAccountStatusChange
	// FactCommitRecord embeds an accepted CommitFact.
	FactCommitRecord
	// FactAttestedOp is an externally attested operation.
	FactAttestedOp
)

// IsSetLike reports whether conflicting facts of this kind both
// survive a merge instead of resolving last-writer-wins.
func (k FactKind) IsSetLike() bool {
	switch k {
	case FactMemberAdd, FactMemberRemove, FactAttestedOp:
		return true
	default:
		return false
	}
}

// Fact is one signed journal mutation. Facts are immutable once
// created; supersession happens through tombstoning facts.
type Fact struct {
	ID           ids.ID
	Kind         FactKind
	Value        []byte
	Timestamp    types.ProvenancedTime
	AuthorDevice ids.DeviceID
	Epoch        types.Epoch
	ParentHashes []types.Hash32
	Signature    [64]byte
}

// CanonicalBytes encodes every field except the signature, in
// declaration order.
func (f *Fact) CanonicalBytes() []byte {
	p := codec.NewPacker(64 + len(f.Value) + 32*len(f.ParentHashes))
	p.PackFixed(f.ID.Bytes())
	p.PackByte(byte(f.Kind))
	p.PackBytes(f.Value)
	p.PackByte(byte(f.Timestamp.Stamp.Kind))
	p.PackU64(f.Timestamp.Stamp.Value())
	p.PackU64(f.Timestamp.Stamp.UncertaintyMS)
	p.PackFixed(f.AuthorDevice.Bytes())
	p.PackU64(uint64(f.Epoch))
	codec.CanonicalHashSet(p, f.ParentHashes)
	return p.Bytes
}

// ContentHash keys the fact in the journal's content-addressed map.
func (f *Fact) ContentHash() types.Hash32 {
	return types.HashBytes(f.CanonicalBytes())
}

// supersedes implements the last-writer-by-epoch-then-clock-then-id
// rule for two facts addressing the same node key.
func supersedes(a, b *Fact) bool {
	if a.Epoch != b.Epoch {
		return a.Epoch > b.Epoch
	}
	av, bv := a.Timestamp.Stamp.Value(), b.Timestamp.Stamp.Value()
	if av != bv {
		return av > bv
	}
	return ids.ID(a.AuthorDevice).Compare(ids.ID(b.AuthorDevice)) > 0
}
