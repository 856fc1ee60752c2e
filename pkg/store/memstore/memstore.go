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

// Package memstore contains store.Store which keeps logs in memory. Logs
// live as long as the Store object, so the backend is good for tests and
// for short living setups only.
package memstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/jugador87/gdp/pkg/util"
)

type (
	// Store implements store.Store in memory
	Store struct {
		accuracy float32

		lock   sync.Mutex
		logs   map[name.Name]*memLog
		open   map[name.Name]*logHandle
		closed bool
	}

	memLog struct {
		name name.Name
		md   store.Metadata

		lock sync.RWMutex
		recs []records.Record
	}

	// logHandle is the store.Log returned to clients. Closing it doesn't
	// drop the data.
	logHandle struct {
		s      *Store
		ml     *memLog
		closed int32
	}
)

func init() {
	store.RegisterBackend(store.TypeMem, func(cfg *store.Config) (store.Store, error) {
		return New(cfg), nil
	})
}

func New(cfg *store.Config) *Store {
	s := new(Store)
	s.accuracy = cfg.ClockAccuracySec
	s.logs = make(map[name.Name]*memLog)
	s.open = make(map[name.Name]*logHandle)
	return s
}

func (s *Store) Create(ctx context.Context, n name.Name, md store.Metadata) (store.Log, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, status.NotOpen
	}
	if _, ok := s.logs[n]; ok {
		return nil, status.AlreadyExists
	}

	ml := new(memLog)
	ml.name = n
	ml.md = md.Copy(1)
	ml.md[store.MdCreationTime] = time.Now().UTC().Format(time.RFC3339Nano)
	s.logs[n] = ml
	return s.openUnsafe(n)
}

func (s *Store) Open(ctx context.Context, n name.Name) (store.Log, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, status.NotOpen
	}
	return s.openUnsafe(n)
}

func (s *Store) List(ctx context.Context) ([]name.Name, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := make([]name.Name, 0, len(s.logs))
	for n := range s.logs {
		res = append(res, n)
	}
	return res, nil
}

func (s *Store) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return util.ErrWrongState
	}
	s.closed = true
	open := s.open
	s.open = make(map[name.Name]*logHandle)
	s.lock.Unlock()

	for _, lh := range open {
		lh.Close()
	}
	return nil
}

func (s *Store) openUnsafe(n name.Name) (*logHandle, error) {
	ml, ok := s.logs[n]
	if !ok {
		return nil, status.NotFound
	}
	if _, ok := s.open[n]; ok {
		return nil, store.ErrAlreadyOpened
	}
	lh := &logHandle{s: s, ml: ml}
	s.open[n] = lh
	return lh, nil
}

func (s *Store) String() string {
	return "memstore{}"
}

func (lh *logHandle) Name() name.Name {
	return lh.ml.name
}

func (lh *logHandle) Metadata() store.Metadata {
	return lh.ml.md
}

func (lh *logHandle) LastRecno() int64 {
	lh.ml.lock.RLock()
	defer lh.ml.lock.RUnlock()
	return int64(len(lh.ml.recs))
}

func (lh *logHandle) Append(ctx context.Context, data []byte) (records.Record, error) {
	if atomic.LoadInt32(&lh.closed) != 0 {
		return records.Record{}, status.NotOpen
	}
	ml := lh.ml
	ml.lock.Lock()
	rec := records.Record{Recno: int64(len(ml.recs)) + 1, Ts: records.Now(lh.s.accuracy), Data: util.BytesCopy(data)}
	ml.recs = append(ml.recs, rec)
	ml.lock.Unlock()
	return rec, nil
}

func (lh *logHandle) Read(ctx context.Context, recno int64) (records.Record, error) {
	if atomic.LoadInt32(&lh.closed) != 0 {
		return records.Record{}, status.NotOpen
	}
	ml := lh.ml
	ml.lock.RLock()
	defer ml.lock.RUnlock()
	if recno < 1 || recno > int64(len(ml.recs)) {
		return records.Record{}, status.NotFound
	}
	return ml.recs[recno-1].Copy(), nil
}

func (lh *logHandle) Close() error {
	if !atomic.CompareAndSwapInt32(&lh.closed, 0, 1) {
		return status.NotOpen
	}
	s := lh.s
	s.lock.Lock()
	if s.open[lh.ml.name] == lh {
		delete(s.open, lh.ml.name)
	}
	s.lock.Unlock()
	return nil
}
