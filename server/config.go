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

package server

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/pkg/event"
	"github.com/jugador87/gdp/pkg/gcl"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/logrange/range/pkg/transport"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
)

// Config struct defines the log daemon settings
type Config struct {
	// Store contains the record store settings, including the backend type
	// and the directory where logs are kept
	Store *store.Config

	// Gcl defines how the open logs cache is reclaimed
	Gcl *gcl.Config

	// Event contains the subscription engine settings
	Event *event.Config

	// RpcTransport defines the RPC listener address and its TLS settings
	RpcTransport *transport.Config

	// RestAddr is the REST listener address, the empty value disables REST
	RestAddr string
}

var configLog = log4g.GetLogger("Config")

func GetDefaultConfig() *Config {
	c := new(Config)
	c.Store = store.GetDefaultConfig()
	c.Gcl = gcl.GetDefaultConfig()
	c.Event = event.GetDefaultConfig()
	c.RpcTransport = &transport.Config{ListenAddr: "127.0.0.1:8009"}
	c.RestAddr = "127.0.0.1:8080"
	return c
}

// Apply override c's properties by non-default values from cfg
func (c *Config) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	c.Store.Apply(cfg.Store)
	c.Gcl.Apply(cfg.Gcl)
	c.Event.Apply(cfg.Event)
	if cfg.RpcTransport != nil {
		c.RpcTransport.Apply(cfg.RpcTransport)
	}
	if cfg.RestAddr != "" {
		c.RestAddr = cfg.RestAddr
	}
}

// Check returns an error if the config could not be used for starting the
// daemon
func (c *Config) Check() error {
	if err := c.Store.Check(); err != nil {
		return errors.Wrapf(err, "invalid Store config")
	}
	if err := c.Gcl.Check(); err != nil {
		return errors.Wrapf(err, "invalid Gcl config")
	}
	if err := c.Event.Check(); err != nil {
		return errors.Wrapf(err, "invalid Event config")
	}
	if err := c.RpcTransport.Check(); err != nil {
		return errors.Wrapf(err, "invalid RpcTransport config")
	}
	return nil
}

// Copy returns a deep copy of c
func (c *Config) Copy() *Config {
	return deepcopy.Copy(c).(*Config)
}

func (c *Config) String() string {
	return fmt.Sprint(
		"\n\tStore=", c.Store,
		"\n\tGcl=", c.Gcl,
		"\n\tEvent=", c.Event,
		"\n\tRpcTransport=", c.RpcTransport,
		"\n\tRestAddr=", c.RestAddr,
	)
}

// ReadConfigFromFile read config file from filename. It returns nil, if filename
// is empty or not found. It will panic if the file exists, but could not be
// read properly
func ReadConfigFromFile(filename string) *Config {
	if filename == "" {
		return nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		configLog.Warn("There is no file ", filename, " for reading gdp config, will use default configuration.")
		return nil
	}

	cfgData, err := ioutil.ReadFile(filename)
	if err != nil {
		configLog.Fatal("Could not read configuration file ", filename, ": ", err)
		panic(errors.Wrapf(err, "Could not read data from config file %s", filename))
	}

	c := &Config{}
	err = json.Unmarshal(cfgData, c)
	if err != nil {
		configLog.Fatal("Could not unmarshal data from ", filename, ", err=", err)
		panic(errors.Wrapf(err, "Could not unmarshal json data from config file %s", filename))
	}

	configLog.Info("Configuration read from ", filename)
	return c
}
