// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/ids"
)

func TestHashBytesStable(t *testing.T) {
	require := require.New(t)
	a := HashBytes([]byte("input"))
	b := HashBytes([]byte("input"))
	require.Equal(a, b)
	require.NotEqual(a, HashBytes([]byte("other")))
	require.Equal(a, HashConcat([]byte("in"), []byte("put")))
	require.Len(a.String(), 64)
}

func TestTimestampValue(t *testing.T) {
	require := require.New(t)
	require.EqualValues(1234, Physical(1234).Value())
	require.EqualValues(7, Logical(7).Value())
}

func TestErrorTaxonomy(t *testing.T) {
	require := require.New(t)

	inner := errors.New("socket closed")
	err := WrapError(ErrNetwork, inner, "send to peer")
	require.True(IsKind(err, ErrNetwork))
	require.False(IsKind(err, ErrCrypto))
	require.ErrorIs(err, inner)
	require.Equal(ErrNetwork, KindOf(err))

	sid := ids.NewSessionID()
	scoped := NewError(ErrTimeout, "phase expired").WithSession(sid)
	require.Contains(scoped.Error(), sid.String())
	require.Equal(ErrInternal, KindOf(errors.New("untyped")))
}

func TestExitCodes(t *testing.T) {
	require := require.New(t)
	require.Equal(ExitSuccess, ExitCodeFor(nil))
	require.Equal(ExitPolicyDenial, ExitCodeFor(NewError(ErrCapability, "no")))
	require.Equal(ExitThresholdFailure, ExitCodeFor(NewError(ErrCrypto, "agg")))
	require.Equal(ExitTimeout, ExitCodeFor(NewError(ErrTimeout, "late")))
	require.Equal(ExitByzantine, ExitCodeFor(NewError(ErrByzantine, "equivocated")))
	require.Equal(ExitPartition, ExitCodeFor(NewError(ErrNetwork, "split")))
	require.Equal(ExitCorruption, ExitCodeFor(NewError(ErrStorage, "bad digest")))
}

func TestSessionLifecycle(t *testing.T) {
	require := require.New(t)
	devices := []ids.DeviceID{ids.NewDeviceID(), ids.NewDeviceID()}
	s := NewSession(SessionDKG, devices, Physical(100), 2)

	require.Equal(SessionPending, s.State)
	require.False(s.State.Terminal())
	require.Len(s.Participants, 2)
	require.LessOrEqual(s.Participants[0].Compare(s.Participants[1]), 0)

	s.State = SessionComplete
	require.True(s.State.Terminal())
}
