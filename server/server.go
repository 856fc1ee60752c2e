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
	"context"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/api/rest"
	"github.com/jugador87/gdp/api/rpc"
	"github.com/jugador87/gdp/pkg/event"
	"github.com/jugador87/gdp/pkg/gcl"
	"github.com/jugador87/gdp/pkg/store"
	_ "github.com/jugador87/gdp/pkg/store/fsstore"
	_ "github.com/jugador87/gdp/pkg/store/memstore"
	_ "github.com/jugador87/gdp/pkg/store/pebblestore"
	"github.com/logrange/linker"
	"github.com/pkg/errors"
)

// Start starts the log daemon using the configuration provided. It will
// stop it as soon as ctx is closed
func Start(ctx context.Context, cfg *Config) error {
	cfg = cfg.Copy()
	if err := cfg.Check(); err != nil {
		return err
	}

	log := log4g.GetLogger("server")
	log.Info("Start with config:", cfg)

	st, err := store.New(cfg.Store)
	if err != nil {
		return errors.Wrapf(err, "could not create %s store", cfg.Store.Type)
	}

	injector := linker.New()
	injector.SetLogger(log4g.GetLogger("injector"))
	injector.Register(
		linker.Component{Name: "mainCtx", Value: ctx},
		linker.Component{Name: "eventConfig", Value: cfg.Event},
		linker.Component{Name: "gclConfig", Value: cfg.Gcl},
		linker.Component{Name: "rpcTransport", Value: *cfg.RpcTransport},
		linker.Component{Name: "restAddr", Value: cfg.RestAddr},
		linker.Component{Name: "", Value: st},
		linker.Component{Name: "", Value: event.NewEngine()},
		linker.Component{Name: "", Value: gcl.NewService()},
		linker.Component{Name: "", Value: rpc.NewServerLogs()},
		linker.Component{Name: "", Value: rpc.NewServer()},
		linker.Component{Name: "", Value: rest.NewServer()},
	)
	injector.Init(ctx)

	<-ctx.Done()
	injector.Shutdown()

	return nil
}
