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

package event

import (
	"fmt"

	"github.com/pkg/errors"
)

type (
	// Config defines the engine settings
	Config struct {
		// QueueSize is the number of unreleased events a stream can have
		QueueSize int
	}
)

// GetDefaultConfig returns the default engine settings
func GetDefaultConfig() *Config {
	c := new(Config)
	c.QueueSize = 64
	return c
}

// Apply sets the non-zero values of other into c
func (c *Config) Apply(other *Config) {
	if other == nil {
		return
	}
	if other.QueueSize > 0 {
		c.QueueSize = other.QueueSize
	}
}

// Check validates the config values
func (c *Config) Check() error {
	if c.QueueSize < 1 {
		return errors.Errorf("QueueSize=%d must be positive", c.QueueSize)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprint("\n\t\tQueueSize=", c.QueueSize)
}
