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

package gcl

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type (
	// Config defines the Service settings
	Config struct {
		// ReclaimIntervalSec defines how often the open logs without
		// handles are checked for reclaiming
		ReclaimIntervalSec int
		// ReclaimAgeSec defines how long a log without handles stays open
		ReclaimAgeSec int
	}
)

// GetDefaultConfig returns the default Service settings
func GetDefaultConfig() *Config {
	c := new(Config)
	c.ReclaimIntervalSec = 15
	c.ReclaimAgeSec = 300
	return c
}

// Apply sets the non-zero values of other into c
func (c *Config) Apply(other *Config) {
	if other == nil {
		return
	}
	if other.ReclaimIntervalSec > 0 {
		c.ReclaimIntervalSec = other.ReclaimIntervalSec
	}
	if other.ReclaimAgeSec > 0 {
		c.ReclaimAgeSec = other.ReclaimAgeSec
	}
}

// Check validates the config values
func (c *Config) Check() error {
	if c.ReclaimIntervalSec < 1 {
		return errors.Errorf("ReclaimIntervalSec=%d must be positive", c.ReclaimIntervalSec)
	}
	if c.ReclaimAgeSec < 0 {
		return errors.Errorf("ReclaimAgeSec=%d must not be negative", c.ReclaimAgeSec)
	}
	return nil
}

func (c *Config) reclaimInterval() time.Duration {
	return time.Duration(c.ReclaimIntervalSec) * time.Second
}

func (c *Config) reclaimAge() time.Duration {
	return time.Duration(c.ReclaimAgeSec) * time.Second
}

func (c Config) String() string {
	return fmt.Sprint(
		"\n\t\tReclaimIntervalSec=", c.ReclaimIntervalSec,
		"\n\t\tReclaimAgeSec=", c.ReclaimAgeSec,
	)
}
