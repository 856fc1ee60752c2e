// Copyright 2018-2019 The logrange Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

type (
	// Config struct defines the record store settings
	Config struct {
		// Type selects the backend: "fs", "pebble" or "mem"
		Type string

		// Dir is the directory where the backend keeps its files
		Dir string

		// Fsync defines when written data is synced to the disk: "always",
		// "interval" or "never"
		Fsync string

		// FsyncIntervalMs is the sync period for the "interval" mode
		FsyncIntervalMs int

		// ClockAccuracySec is the estimated clock accuracy, which is stored
		// with every record timestamp
		ClockAccuracySec float32

		// Options contains backend specific settings. Every backend decodes
		// it into its own structure (see DecodeOptions)
		Options map[string]interface{}
	}

	// FsyncMode defines durability behavior for write operations.
	FsyncMode int
)

const (
	FsyncAlways FsyncMode = iota
	FsyncInterval
	FsyncNever
)

const (
	TypeFs     = "fs"
	TypePebble = "pebble"
	TypeMem    = "mem"
)

var fsyncNames = map[string]FsyncMode{
	"always":   FsyncAlways,
	"interval": FsyncInterval,
	"never":    FsyncNever,
}

// GetDefaultConfig returns the default store settings
func GetDefaultConfig() *Config {
	c := new(Config)
	c.Type = TypeFs
	c.Dir = "/opt/gdp/gcls/"
	c.Fsync = "interval"
	c.FsyncIntervalMs = 100
	c.ClockAccuracySec = 1
	return c
}

// Apply overrides c's properties by non-default values from other
func (c *Config) Apply(other *Config) {
	if other == nil {
		return
	}
	if other.Type != "" {
		c.Type = other.Type
	}
	if other.Dir != "" {
		c.Dir = other.Dir
	}
	if other.Fsync != "" {
		c.Fsync = other.Fsync
	}
	if other.FsyncIntervalMs > 0 {
		c.FsyncIntervalMs = other.FsyncIntervalMs
	}
	if other.ClockAccuracySec > 0 {
		c.ClockAccuracySec = other.ClockAccuracySec
	}
	if len(other.Options) > 0 {
		opts := make(map[string]interface{}, len(c.Options)+len(other.Options))
		for k, v := range c.Options {
			opts[k] = v
		}
		for k, v := range other.Options {
			opts[k] = v
		}
		c.Options = opts
	}
}

// Check validates the config values
func (c *Config) Check() error {
	if c.Type == "" {
		return errors.New("store Type must be specified")
	}
	if c.Type != TypeMem && c.Dir == "" {
		return errors.Errorf("store Dir must be specified for the %s store", c.Type)
	}
	if _, err := c.FsyncMode(); err != nil {
		return err
	}
	if c.ClockAccuracySec < 0 {
		return errors.Errorf("ClockAccuracySec=%f must not be negative", c.ClockAccuracySec)
	}
	return nil
}

// FsyncMode returns the parsed Fsync value, the empty string means "always"
func (c *Config) FsyncMode() (FsyncMode, error) {
	if c.Fsync == "" {
		return FsyncAlways, nil
	}
	if m, ok := fsyncNames[c.Fsync]; ok {
		return m, nil
	}
	return FsyncAlways, errors.Errorf("unknown Fsync=%q, expected always, interval or never", c.Fsync)
}

// FsyncInterval returns the sync period for the interval mode
func (c *Config) FsyncInterval() time.Duration {
	if c.FsyncIntervalMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.FsyncIntervalMs) * time.Millisecond
}

// DecodeOptions decodes Options into the backend specific structure pointed
// by out
func (c *Config) DecodeOptions(out interface{}) error {
	if len(c.Options) == 0 {
		return nil
	}
	if err := mapstructure.Decode(c.Options, out); err != nil {
		return errors.Wrapf(err, "unable to decode store Options=%v", c.Options)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprint(
		"\n\t\tType=", c.Type,
		"\n\t\tDir=", c.Dir,
		"\n\t\tFsync=", c.Fsync,
		"\n\t\tFsyncIntervalMs=", c.FsyncIntervalMs,
		"\n\t\tClockAccuracySec=", c.ClockAccuracySec,
		"\n\t\tOptions=", c.Options,
	)
}

func (m FsyncMode) String() string {
	for k, v := range fsyncNames {
		if v == m {
			return k
		}
	}
	return fmt.Sprintf("FsyncMode(%d)", int(m))
}
