// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec implements the canonical encoding used for hashing and
// the inter-peer wire envelope. All integers are little-endian;
// variable-length items are length-prefixed as u32; sets and maps are
// serialized in sorted byte-lexicographic key order; hash inputs never
// include signatures.
package codec

import (
	"encoding/binary"
	"errors"
)

var (
	ErrShortBuffer   = errors.New("short buffer")
	ErrLengthTooLong = errors.New("length prefix exceeds remaining bytes")
)

// Packer appends canonically-encoded fields to a buffer. Errors are
// sticky so call sites can pack a whole struct and check once.
type Packer struct {
	Bytes []byte
	Err   error
}

// NewPacker returns a packer with the given initial capacity.
func NewPacker(size int) *Packer {
	return &Packer{Bytes: make([]byte, 0, size)}
}

// PackByte packs a single byte.
func (p *Packer) PackByte(b byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b)
}

// PackU16 packs a u16 little-endian.
func (p *Packer) PackU16(v uint16) {
	if p.Err != nil {
		return
	}
	p.Bytes = binary.LittleEndian.AppendUint16(p.Bytes, v)
}

// PackU32 packs a u32 little-endian.
func (p *Packer) PackU32(v uint32) {
	if p.Err != nil {
		return
	}
	p.Bytes = binary.LittleEndian.AppendUint32(p.Bytes, v)
}

// PackU64 packs a u64 little-endian.
func (p *Packer) PackU64(v uint64) {
	if p.Err != nil {
		return
	}
	p.Bytes = binary.LittleEndian.AppendUint64(p.Bytes, v)
}

// PackBool packs a bool as one byte.
func (p *Packer) PackBool(v bool) {
	if v {
		p.PackByte(1)
	} else {
		p.PackByte(0)
	}
}

// PackFixed packs fixed-size bytes with no length prefix.
func (p *Packer) PackFixed(b []byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b...)
}

// PackBytes packs variable-length bytes with a u32 length prefix.
func (p *Packer) PackBytes(b []byte) {
	p.PackU32(uint32(len(b)))
	p.PackFixed(b)
}

// PackString packs a string with a u32 length prefix.
func (p *Packer) PackString(s string) {
	p.PackBytes([]byte(s))
}

// Unpacker reads canonically-encoded fields from a buffer.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

// NewUnpacker wraps a buffer for reading.
func NewUnpacker(b []byte) *Unpacker {
	return &Unpacker{Bytes: b}
}

func (u *Unpacker) ensure(n int) bool {
	if u.Err != nil {
		return false
	}
	if u.Offset+n > len(u.Bytes) {
		u.Err = ErrShortBuffer
		return false
	}
	return true
}

// UnpackByte reads a single byte.
func (u *Unpacker) UnpackByte() byte {
	if !u.ensure(1) {
		return 0
	}
	b := u.Bytes[u.Offset]
	u.Offset++
	return b
}

// UnpackU16 reads a u16 little-endian.
func (u *Unpacker) UnpackU16() uint16 {
	if !u.ensure(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(u.Bytes[u.Offset:])
	u.Offset += 2
	return v
}

// UnpackU32 reads a u32 little-endian.
func (u *Unpacker) UnpackU32() uint32 {
	if !u.ensure(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(u.Bytes[u.Offset:])
	u.Offset += 4
	return v
}

// UnpackU64 reads a u64 little-endian.
func (u *Unpacker) UnpackU64() uint64 {
	if !u.ensure(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(u.Bytes[u.Offset:])
	u.Offset += 8
	return v
}

// UnpackBool reads a bool.
func (u *Unpacker) UnpackBool() bool {
	return u.UnpackByte() != 0
}

// UnpackFixed reads exactly n bytes.
func (u *Unpacker) UnpackFixed(n int) []byte {
	if !u.ensure(n) {
		return nil
	}
	b := u.Bytes[u.Offset : u.Offset+n]
	u.Offset += n
	return b
}

// UnpackBytes reads a u32-length-prefixed byte slice.
func (u *Unpacker) UnpackBytes() []byte {
	n := u.UnpackU32()
	if u.Err != nil {
		return nil
	}
	if int(n) > len(u.Bytes)-u.Offset {
		u.Err = ErrLengthTooLong
		return nil
	}
	return u.UnpackFixed(int(n))
}

// UnpackString reads a u32-length-prefixed string.
func (u *Unpacker) UnpackString() string {
	return string(u.UnpackBytes())
}

// Done reports whether the whole buffer was consumed cleanly.
func (u *Unpacker) Done() bool {
	return u.Err == nil && u.Offset == len(u.Bytes)
}
