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

package client

import (
	"encoding/json"
	"fmt"
	"io/ioutil"

	"github.com/jugador87/gdp/api"
	"github.com/jugador87/gdp/api/rpc"
	"github.com/logrange/range/pkg/transport"
	"github.com/pkg/errors"
)

type (
	// Config contains the gdp client settings
	Config struct {
		// Transport defines the daemon RPC address and TLS settings
		Transport *transport.Config
	}
)

func NewDefaultConfig() *Config {
	return &Config{Transport: &transport.Config{ListenAddr: "127.0.0.1:8009"}}
}

// Apply override c's properties by non-default values from other
func (c *Config) Apply(other *Config) {
	if other == nil || other.Transport == nil {
		return
	}
	c.Transport.Apply(other.Transport)
}

// LoadCfgFromFile reads the JSON config from the file fn
func LoadCfgFromFile(fn string) (*Config, error) {
	data, err := ioutil.ReadFile(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %s", fn)
	}
	c := &Config{}
	if err = json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "could not unmarshal config file %s", fn)
	}
	return c, nil
}

func (c *Config) String() string {
	return fmt.Sprint("\n\tTransport=", c.Transport)
}

// NewClient connects to the daemon by RPC
func NewClient(cfg transport.Config) (api.Client, error) {
	cli, err := rpc.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client, err=%v", err)
	}
	return cli, err
}
