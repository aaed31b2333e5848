// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"github.com/hxrts/aura/codec"
	"github.com/hxrts/aura/ids"
	"github.com/hxrts/aura/types"
)

// EncodeNodeFact encodes a key-graph node into a fact value.
func EncodeNodeFact(n KeyNode) []byte {
	p := codec.NewPacker(32 + len(n.EncMessagingKey))
	p.PackFixed(n.ID.Bytes())
	p.PackByte(byte(n.Kind))
	p.PackByte(byte(n.Policy.Kind))
	p.PackU16(n.Policy.M)
	p.PackU16(n.Policy.N)
	p.PackBytes(n.EncMessagingKey)
	return p.Bytes
}

// DecodeNodeFact decodes a node fact value.
func DecodeNodeFact(b []byte) (KeyNode, error) {
	u := codec.NewUnpacker(b)
	var n KeyNode
	idBytes := u.UnpackFixed(16)
	n.Kind = NodeKind(u.UnpackByte())
	n.Policy.Kind = PolicyKind(u.UnpackByte())
	n.Policy.M = u.UnpackU16()
	n.Policy.N = u.UnpackU16()
	key := u.UnpackBytes()
	if !u.Done() {
		return KeyNode{}, types.NewError(types.ErrProtocolViolation, "malformed node fact")
	}
	id, err := ids.FromBytes(idBytes)
	if err != nil {
		return KeyNode{}, types.NewError(types.ErrProtocolViolation, "malformed node id")
	}
	n.ID = id
	if len(key) > 0 {
		n.EncMessagingKey = key
	}
	return n, nil
}

// EncodeEdgeFact encodes an edge mutation into a fact value.
func EncodeEdgeFact(e KeyEdge, add bool) []byte {
	p := codec.NewPacker(40)
	p.PackFixed(e.From.Bytes())
	p.PackFixed(e.To.Bytes())
	p.PackByte(byte(e.Kind))
	p.PackBool(add)
	return p.Bytes
}

// DecodeEdgeFact decodes an edge fact value.
func DecodeEdgeFact(b []byte) (KeyEdge, bool, error) {
	u := codec.NewUnpacker(b)
	from := u.UnpackFixed(16)
	to := u.UnpackFixed(16)
	kind := EdgeKind(u.UnpackByte())
	add := u.UnpackBool()
	if !u.Done() {
		return KeyEdge{}, false, types.NewError(types.ErrProtocolViolation, "malformed edge fact")
	}
	fromID, err := ids.FromBytes(from)
	if err != nil {
		return KeyEdge{}, false, types.NewError(types.ErrProtocolViolation, "malformed edge from")
	}
	toID, err := ids.FromBytes(to)
	if err != nil {
		return KeyEdge{}, false, types.NewError(types.ErrProtocolViolation, "malformed edge to")
	}
	return KeyEdge{From: fromID, To: toID, Kind: kind}, add, nil
}
