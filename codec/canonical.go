// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"sort"

	"github.com/hxrts/aura/types"
)

// CanonicalMap encodes a byte-keyed map in sorted key order, each key
// and value u32-length-prefixed. Used wherever a map participates in a
// hash input.
func CanonicalMap(p *Packer, m map[string][]byte) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p.PackU32(uint32(len(keys)))
	for _, k := range keys {
		p.PackBytes([]byte(k))
		p.PackBytes(m[k])
	}
}

// CanonicalHashSet encodes a set of digests sorted byte-lexicographically.
func CanonicalHashSet(p *Packer, hashes []types.Hash32) {
	sorted := make([]types.Hash32, len(hashes))
	copy(sorted, hashes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})
	p.PackU32(uint32(len(sorted)))
	for _, h := range sorted {
		p.PackFixed(h[:])
	}
}

// HashCanonical hashes the packed buffer. A convenience for the
// pack-then-digest pattern every canonical hash in Aura follows.
func HashCanonical(p *Packer) types.Hash32 {
	return types.HashBytes(p.Bytes)
}
