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

/*
gcl package provides access to logs for clients. Service keeps the logs
opened through it in a cache, so many handles of one log share the same
store.Log. A log which has no handles stays open for the reclaim age and
then it is closed by the reclaim loop.
*/
package gcl

import (
	"context"
	"sync"
	"time"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/pkg/event"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/jugador87/gdp/pkg/util"
	"github.com/pkg/errors"
)

type (
	// Service manages open logs and creates handles for them
	Service struct {
		Store  store.Store   `inject:""`
		Engine *event.Engine `inject:""`
		Config *Config       `inject:"gclConfig"`

		logger   log4g.Logger
		lock     sync.Mutex
		logs     map[name.Name]*openLog
		closed   bool
		closedCh chan struct{}
		wg       sync.WaitGroup
	}

	// openLog is a cached store.Log with its handles counter and the data
	// waiters list
	openLog struct {
		sl       store.Log
		refs     int
		released time.Time

		wLock   sync.Mutex
		waiters []chan bool
	}
)

// NewService creates new Service. The dependencies are injected, or they
// must be assigned before Init() is called.
func NewService() *Service {
	s := new(Service)
	s.logger = log4g.GetLogger("gcl.Service")
	s.logs = make(map[name.Name]*openLog)
	s.closedCh = make(chan struct{})
	return s
}

// Init is part of linker.Initializer
func (s *Service) Init(ctx context.Context) error {
	if s.Store == nil || s.Engine == nil {
		return errors.New("gcl.Service requires Store and Engine")
	}
	if s.Config == nil {
		s.Config = GetDefaultConfig()
	}
	if err := s.Config.Check(); err != nil {
		return errors.Wrapf(err, "wrong gcl config")
	}

	s.logger.Info("Init(): config=", s.Config)
	s.wg.Add(1)
	go s.reclaimLoop()
	return nil
}

// Shutdown closes all open logs and the store. Handles which are not
// closed yet start to return status.NotOpen.
func (s *Service) Shutdown() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	close(s.closedCh)
	logs := s.logs
	s.logs = make(map[name.Name]*openLog)
	s.lock.Unlock()

	s.wg.Wait()
	s.logger.Info("Shutdown(): closing ", len(logs), " open log(s)")
	for _, ol := range logs {
		ol.sl.Close()
		ol.notify()
	}
	if err := s.Store.Close(); err != nil {
		s.logger.Warn("Shutdown(): store close err=", err)
	}
}

// Create creates new log and returns the handle for it in ModeAny
func (s *Service) Create(ctx context.Context, n name.Name, md store.Metadata) (*Handle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, status.NotOpen
	}

	sl, err := s.Store.Create(ctx, n, md)
	if err != nil {
		return nil, err
	}
	ol := &openLog{sl: sl}
	s.logs[n] = ol
	s.logger.Info("Create(): log ", n, " created, metadata=", sl.Metadata())
	return s.newHandleUnsafe(ol, ModeAny), nil
}

// Open returns the handle of an existing log in the mode provided
func (s *Service) Open(ctx context.Context, n name.Name, mode Mode) (*Handle, error) {
	if !mode.valid() {
		return nil, errors.Wrapf(status.BadIOMode, "unknown mode %d", mode)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, status.NotOpen
	}

	ol, ok := s.logs[n]
	if !ok {
		sl, err := s.Store.Open(ctx, n)
		if err != nil {
			return nil, err
		}
		ol = &openLog{sl: sl}
		s.logs[n] = ol
		s.logger.Debug("Open(): log ", n, " opened, last record is ", sl.LastRecno())
	}
	return s.newHandleUnsafe(ol, mode), nil
}

// List returns names of all logs in the store
func (s *Service) List(ctx context.Context) ([]name.Name, error) {
	s.lock.Lock()
	closed := s.closed
	s.lock.Unlock()
	if closed {
		return nil, status.NotOpen
	}
	return s.Store.List(ctx)
}

// OpenLogs returns the number of logs in the cache
func (s *Service) OpenLogs() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.logs)
}

func (s *Service) newHandleUnsafe(ol *openLog, mode Mode) *Handle {
	ol.refs++
	return newHandle(s, ol, mode)
}

func (s *Service) release(ol *openLog) {
	s.lock.Lock()
	ol.refs--
	if ol.refs == 0 {
		ol.released = time.Now()
	}
	s.lock.Unlock()
}

func (s *Service) reclaimLoop() {
	defer s.wg.Done()
	s.logger.Info("reclaimLoop(): start, interval=", s.Config.reclaimInterval())
	defer s.logger.Info("reclaimLoop(): stop")

	ticker := time.NewTicker(s.Config.reclaimInterval())
	defer ticker.Stop()
	for {
		select {
		case <-s.closedCh:
			return
		case now := <-ticker.C:
			s.reclaim(now)
		}
	}
}

// reclaim closes logs which have no handles for more than the reclaim age.
// The logs are closed under the service lock, so Open and Create of the
// same name wait until the store releases the log.
func (s *Service) reclaim(now time.Time) int {
	age := s.Config.reclaimAge()
	cnt := 0
	s.lock.Lock()
	defer s.lock.Unlock()
	for n, ol := range s.logs {
		if ol.refs != 0 || now.Sub(ol.released) < age {
			continue
		}
		delete(s.logs, n)
		cnt++
		s.logger.Debug("reclaim(): closing ", n)
		if err := ol.sl.Close(); err != nil && err != util.ErrWrongState {
			s.logger.Warn("reclaim(): could not close ", n, ", err=", err)
		}
	}
	if cnt > 0 {
		s.logger.Info("reclaim(): ", cnt, " log(s) reclaimed")
	}
	return cnt
}

// notify wakes up all the goroutines waiting for new data in the log
func (ol *openLog) notify() {
	ol.wLock.Lock()
	for _, ch := range ol.waiters {
		close(ch)
	}
	ol.waiters = nil
	ol.wLock.Unlock()
}

// wait blocks until the log has a record after the one provided
func (ol *openLog) wait(ctx context.Context, after int64, closed func() bool) (int64, error) {
	for {
		ol.wLock.Lock()
		last := ol.sl.LastRecno()
		if last > after {
			ol.wLock.Unlock()
			return last, nil
		}
		if closed() {
			ol.wLock.Unlock()
			return last, status.NotOpen
		}
		ch := make(chan bool)
		ol.waiters = append(ol.waiters, ch)
		ol.wLock.Unlock()

		select {
		case <-ctx.Done():
			ol.removeWaiter(ch)
			return last, ctx.Err()
		case <-ch:
		}
	}
}

func (ol *openLog) removeWaiter(ch chan bool) {
	ol.wLock.Lock()
	defer ol.wLock.Unlock()
	ln := len(ol.waiters)
	for i, c := range ol.waiters {
		if c == ch {
			ol.waiters[i] = ol.waiters[ln-1]
			ol.waiters[ln-1] = nil
			ol.waiters = ol.waiters[:ln-1]
			return
		}
	}
}

func (s *Service) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}
