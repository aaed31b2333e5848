// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ids defines the domain-tagged 128-bit identifiers used across
// Aura: authorities, accounts, devices, guardians, channels, homes,
// neighborhoods, and protocol sessions.
package ids

import (
	"bytes"
	"errors"
	"sort"

	"github.com/google/uuid"
)

var ErrBadID = errors.New("invalid id")

// ID is a 128-bit UUID. All domain identifiers wrap it so that an
// AuthorityID can never be passed where a DeviceID is expected.
type ID [16]byte

// Empty is the zero ID.
var Empty = ID{}

// NewID returns a fresh random ID.
func NewID() ID {
	return ID(uuid.New())
}

// FromBytes parses an ID from a 16-byte slice.
func FromBytes(b []byte) (ID, error) {
	if len(b) != 16 {
		return Empty, ErrBadID
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// FromString parses an ID from its canonical UUID string form.
func FromString(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Empty, err
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

func (id ID) Bytes() []byte {
	return id[:]
}

func (id ID) IsZero() bool {
	return id == Empty
}

// Compare returns -1, 0, or 1 by byte-lexicographic order. Sorted maps
// keyed by IDs iterate in this order everywhere a deterministic order
// is required.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Domain-tagged identifiers. Each is a distinct type so that mixing
// them up is a compile error.
type (
	AuthorityID    ID
	AccountID      ID
	DeviceID       ID
	GuardianID     ID
	ChannelID      ID
	HomeID         ID
	NeighborhoodID ID
	SessionID      ID
)

func NewAuthorityID() AuthorityID       { return AuthorityID(NewID()) }
func NewAccountID() AccountID           { return AccountID(NewID()) }
func NewDeviceID() DeviceID             { return DeviceID(NewID()) }
func NewGuardianID() GuardianID         { return GuardianID(NewID()) }
func NewChannelID() ChannelID           { return ChannelID(NewID()) }
func NewHomeID() HomeID                 { return HomeID(NewID()) }
func NewNeighborhoodID() NeighborhoodID { return NeighborhoodID(NewID()) }
func NewSessionID() SessionID           { return SessionID(NewID()) }

func (id AuthorityID) String() string    { return ID(id).String() }
func (id AccountID) String() string      { return ID(id).String() }
func (id DeviceID) String() string       { return ID(id).String() }
func (id GuardianID) String() string     { return ID(id).String() }
func (id ChannelID) String() string      { return ID(id).String() }
func (id HomeID) String() string         { return ID(id).String() }
func (id NeighborhoodID) String() string { return ID(id).String() }
func (id SessionID) String() string      { return ID(id).String() }

func (id AuthorityID) Bytes() []byte    { return ID(id).Bytes() }
func (id AccountID) Bytes() []byte      { return ID(id).Bytes() }
func (id DeviceID) Bytes() []byte       { return ID(id).Bytes() }
func (id GuardianID) Bytes() []byte     { return ID(id).Bytes() }
func (id SessionID) Bytes() []byte      { return ID(id).Bytes() }
func (id HomeID) Bytes() []byte         { return ID(id).Bytes() }
func (id NeighborhoodID) Bytes() []byte { return ID(id).Bytes() }
func (id ChannelID) Bytes() []byte      { return ID(id).Bytes() }

func (id DeviceID) Compare(other DeviceID) int       { return ID(id).Compare(ID(other)) }
func (id GuardianID) Compare(other GuardianID) int   { return ID(id).Compare(ID(other)) }
func (id AuthorityID) Compare(other AuthorityID) int { return ID(id).Compare(ID(other)) }

func (id DeviceID) IsZero() bool    { return ID(id).IsZero() }
func (id AuthorityID) IsZero() bool { return ID(id).IsZero() }

// Role identifies a participant slot in a choreography: the device
// filling it and the slot's index in the participant ordering.
type Role struct {
	Device DeviceID
	Index  uint16
}

func (r Role) Compare(other Role) int {
	if c := r.Device.Compare(other.Device); c != 0 {
		return c
	}
	switch {
	case r.Index < other.Index:
		return -1
	case r.Index > other.Index:
		return 1
	default:
		return 0
	}
}

// SortDeviceIDs sorts device ids in place by byte-lexicographic order.
func SortDeviceIDs(devices []DeviceID) {
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Compare(devices[j]) < 0
	})
}

// SortGuardianIDs sorts guardian ids in place by byte-lexicographic order.
func SortGuardianIDs(guardians []GuardianID) {
	sort.Slice(guardians, func(i, j int) bool {
		return guardians[i].Compare(guardians[j]) < 0
	})
}
