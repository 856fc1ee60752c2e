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
	"context"
	"sync"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/pkg/status"
	rctx "github.com/logrange/range/pkg/context"
	"github.com/pkg/errors"
)

type (
	// Engine creates streams and tracks them, so all of them are stopped
	// on Shutdown.
	Engine struct {
		Config *Config `inject:"eventConfig"`

		logger   log4g.Logger
		lock     sync.Mutex
		streams  map[*Stream]struct{}
		closedCh chan struct{}
		ctx      context.Context
		closed   bool
		wg       sync.WaitGroup
	}
)

// NewEngine creates new Engine. The config is expected to be injected,
// or provided before Init() is called.
func NewEngine() *Engine {
	e := new(Engine)
	e.logger = log4g.GetLogger("event.Engine")
	e.streams = make(map[*Stream]struct{})
	e.closedCh = make(chan struct{})
	e.ctx = rctx.WrapChannel(e.closedCh)
	return e
}

// Init is part of linker.Initializer
func (e *Engine) Init(ctx context.Context) error {
	if e.Config == nil {
		e.Config = GetDefaultConfig()
	}
	if err := e.Config.Check(); err != nil {
		return errors.Wrapf(err, "wrong event engine config")
	}
	e.logger.Info("Init(): config=", e.Config)
	return nil
}

// Shutdown stops all the streams. Live subscriptions receive Shutdown
// event as the last one.
func (e *Engine) Shutdown() {
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return
	}
	e.closed = true
	for s := range e.streams {
		s.shutdown = true
	}
	cnt := len(e.streams)
	close(e.closedCh)
	e.lock.Unlock()

	e.logger.Info("Shutdown(): waiting for ", cnt, " stream(s) to stop")
	e.wg.Wait()
	e.logger.Info("Shutdown(): done")
}

// Multiread starts a stream which delivers up to numrecs existing records
// starting from firstrec. numrecs <= 0 means all the records till the end
// of the log. The stream ends with EndOfSubscription event.
func (e *Engine) Multiread(src Source, firstrec, numrecs int64) (*Stream, error) {
	if numrecs < 0 {
		numrecs = 0
	}
	return e.newStream(src, firstrec, numrecs, false)
}

// Subscribe starts a stream which delivers records starting from firstrec,
// then waits for new records. firstrec 0 means the next record appended
// to the log. numrecs <= 0 means the stream never ends by itself, positive
// numrecs ends the stream with EndOfSubscription after numrecs records are
// delivered.
func (e *Engine) Subscribe(src Source, firstrec, numrecs int64) (*Stream, error) {
	if numrecs < 0 {
		numrecs = 0
	}
	if firstrec == 0 {
		last, err := src.LastRecno(e.ctx)
		if err != nil {
			return nil, err
		}
		firstrec = last + 1
	}
	return e.newStream(src, firstrec, numrecs, true)
}

func (e *Engine) newStream(src Source, firstrec, numrecs int64, live bool) (*Stream, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return nil, status.NotOpen
	}

	qs := GetDefaultConfig().QueueSize
	if e.Config != nil {
		qs = e.Config.QueueSize
	}
	s := newStream(e, src, firstrec, numrecs, live, qs)
	e.streams[s] = struct{}{}
	e.wg.Add(1)
	go s.produce()
	return s, nil
}

// Streams returns the number of running streams
func (e *Engine) Streams() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.streams)
}
