// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripString(t *testing.T) {
	require := require.New(t)
	id := NewID()
	parsed, err := FromString(id.String())
	require.NoError(err)
	require.Equal(id, parsed)

	_, err = FromString("not-a-uuid")
	require.Error(err)
}

func TestFromBytes(t *testing.T) {
	require := require.New(t)
	id := NewID()
	parsed, err := FromBytes(id.Bytes())
	require.NoError(err)
	require.Equal(id, parsed)

	_, err = FromBytes([]byte{1, 2, 3})
	require.ErrorIs(err, ErrBadID)
}

func TestCompareAndSort(t *testing.T) {
	require := require.New(t)
	devices := []DeviceID{NewDeviceID(), NewDeviceID(), NewDeviceID()}
	SortDeviceIDs(devices)
	for i := 1; i < len(devices); i++ {
		require.LessOrEqual(devices[i-1].Compare(devices[i]), 0)
	}
}

func TestRoleCompare(t *testing.T) {
	require := require.New(t)
	d := NewDeviceID()
	a := Role{Device: d, Index: 1}
	b := Role{Device: d, Index: 2}
	require.Equal(-1, a.Compare(b))
	require.Equal(1, b.Compare(a))
	require.Equal(0, a.Compare(a))
}

func TestTextMarshalling(t *testing.T) {
	require := require.New(t)
	id := NewID()
	text, err := id.MarshalText()
	require.NoError(err)

	var back ID
	require.NoError(back.UnmarshalText(text))
	require.Equal(id, back)
}
