// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the per-authority runtime configuration from
// defaults, an optional YAML file, and AURA_* environment overrides, in
// that order.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hxrts/aura/ids"
)

// Environment variable names.
const (
	EnvStorageDir       = "AURA_STORAGE_DIR"
	EnvDeviceID         = "AURA_DEVICE_ID"
	EnvLogLevel         = "AURA_LOG_LEVEL"
	EnvEnablePipelining = "AURA_ENABLE_PIPELINING"
	EnvEpochFloor       = "AURA_EPOCH_FLOOR"
)

var (
	ErrBadDeviceID   = errors.New("device id must be a uuid")
	ErrBadEpochFloor = errors.New("epoch floor must be a non-negative integer")
	ErrBadThreshold  = errors.New("threshold must be positive and <= total witnesses")
	ErrBadTimeout    = errors.New("timeouts must be positive")
)

// Config is the assembled runtime configuration.
type Config struct {
	StorageDir       string        `yaml:"storage_dir"`
	DeviceID         ids.DeviceID  `yaml:"-"`
	LogLevel         string        `yaml:"log_level"`
	EnablePipelining bool          `yaml:"enable_pipelining"`
	EpochFloor       uint64        `yaml:"epoch_floor"`
	Threshold        uint16        `yaml:"threshold"`
	TotalWitnesses   uint16        `yaml:"total_witnesses"`
	PhaseTimeout     time.Duration `yaml:"phase_timeout"`
	OverallTimeout   time.Duration `yaml:"overall_timeout"`

	rawDeviceID string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		StorageDir:       "/var/lib/aura",
		LogLevel:         "info",
		EnablePipelining: true,
		Threshold:        2,
		TotalWitnesses:   3,
		PhaseTimeout:     30 * time.Second,
		OverallTimeout:   2 * time.Minute,
	}
}

// TestConfig returns small, fast parameters for harnesses.
func TestConfig() Config {
	c := DefaultConfig()
	c.StorageDir = os.TempDir()
	c.PhaseTimeout = 2 * time.Second
	c.OverallTimeout = 10 * time.Second
	return c
}

// LoadFile overlays a YAML file onto the config.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, c)
}

// LoadEnv overlays AURA_* environment variables.
func (c *Config) LoadEnv() error {
	if v := os.Getenv(EnvStorageDir); v != "" {
		c.StorageDir = v
	}
	if v := os.Getenv(EnvDeviceID); v != "" {
		c.rawDeviceID = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvEnablePipelining); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.EnablePipelining = enabled
	}
	if v := os.Getenv(EnvEpochFloor); v != "" {
		floor, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return ErrBadEpochFloor
		}
		c.EpochFloor = floor
	}
	return nil
}

// Validate finalizes and checks the configuration.
func (c *Config) Validate() error {
	if c.rawDeviceID != "" {
		id, err := ids.FromString(c.rawDeviceID)
		if err != nil {
			return ErrBadDeviceID
		}
		c.DeviceID = ids.DeviceID(id)
	}
	if c.Threshold == 0 || c.Threshold > c.TotalWitnesses {
		return ErrBadThreshold
	}
	if c.PhaseTimeout <= 0 || c.OverallTimeout <= 0 {
		return ErrBadTimeout
	}
	return nil
}

// Load assembles defaults, optional file, and environment.
func Load(path string) (Config, error) {
	c := DefaultConfig()
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return c, err
		}
	}
	if err := c.LoadEnv(); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}
