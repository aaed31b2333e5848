// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura/ids"
)

func TestDefaultsValidate(t *testing.T) {
	require := require.New(t)
	c := DefaultConfig()
	require.NoError(c.Validate())
	require.True(c.EnablePipelining)
}

func TestEnvOverrides(t *testing.T) {
	require := require.New(t)

	device := ids.NewDeviceID()
	t.Setenv(EnvStorageDir, "/tmp/aura-test")
	t.Setenv(EnvDeviceID, device.String())
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvEnablePipelining, "false")
	t.Setenv(EnvEpochFloor, "7")

	c, err := Load("")
	require.NoError(err)
	require.Equal("/tmp/aura-test", c.StorageDir)
	require.Equal(device, c.DeviceID)
	require.Equal("debug", c.LogLevel)
	require.False(c.EnablePipelining)
	require.EqualValues(7, c.EpochFloor)
}

func TestYAMLFileOverlay(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "aura.yaml")
	require.NoError(os.WriteFile(path, []byte("threshold: 3\ntotal_witnesses: 5\nlog_level: warn\n"), 0o600))

	c, err := Load(path)
	require.NoError(err)
	require.EqualValues(3, c.Threshold)
	require.EqualValues(5, c.TotalWitnesses)
	require.Equal("warn", c.LogLevel)
}

func TestValidationErrors(t *testing.T) {
	require := require.New(t)

	c := DefaultConfig()
	c.Threshold = 9
	c.TotalWitnesses = 3
	require.ErrorIs(c.Validate(), ErrBadThreshold)

	c = DefaultConfig()
	c.rawDeviceID = "not-a-uuid"
	require.ErrorIs(c.Validate(), ErrBadDeviceID)

	t.Setenv(EnvEpochFloor, "minus-one")
	c = DefaultConfig()
	require.ErrorIs(c.LoadEnv(), ErrBadEpochFloor)
}
