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
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jugador87/gdp/pkg/event"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
)

type (
	// Mode defines which operations are allowed for a Handle
	Mode int

	// Handle is the client's access to an open log. Handle implements
	// event.Source, so it can be used for multiread and subscriptions
	// directly.
	Handle struct {
		svc    *Service
		ol     *openLog
		mode   Mode
		closed int32

		lock    sync.Mutex
		streams map[*event.Stream]struct{}
	}

	// Reader reads records of a log one by one
	Reader struct {
		h     *Handle
		first int64
		num   int64
		recno int64
		cnt   int64
	}
)

const (
	// ModeAny allows reading and appending
	ModeAny Mode = iota
	// ModeReadOnly allows reading only
	ModeReadOnly
	// ModeAppendOnly allows appending only
	ModeAppendOnly
)

var modeNames = map[Mode]string{
	ModeAny:        "ANY",
	ModeReadOnly:   "RO",
	ModeAppendOnly: "AO",
}

func (m Mode) valid() bool {
	_, ok := modeNames[m]
	return ok
}

func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode returns the mode by its name, "ANY", "RO" or "AO"
func ParseMode(s string) (Mode, error) {
	for m, n := range modeNames {
		if n == s {
			return m, nil
		}
	}
	return ModeAny, status.BadIOMode
}

var _ event.Source = (*Handle)(nil)

func newHandle(svc *Service, ol *openLog, mode Mode) *Handle {
	h := new(Handle)
	h.svc = svc
	h.ol = ol
	h.mode = mode
	h.streams = make(map[*event.Stream]struct{})
	return h
}

// Name returns the log name
func (h *Handle) Name() name.Name {
	return h.ol.sl.Name()
}

// Mode returns the mode the handle was opened in
func (h *Handle) Mode() Mode {
	return h.mode
}

// Metadata returns the log metadata
func (h *Handle) Metadata() store.Metadata {
	return h.ol.sl.Metadata()
}

// LastRecno returns the number of the last record in the log
func (h *Handle) LastRecno(ctx context.Context) (int64, error) {
	if h.isClosed() {
		return 0, status.NotOpen
	}
	return h.ol.sl.LastRecno(), nil
}

// Append writes data as the next record of the log and wakes up everyone
// waiting for new records.
func (h *Handle) Append(ctx context.Context, data []byte) (records.Record, error) {
	if h.isClosed() {
		return records.Record{}, status.NotOpen
	}
	if h.mode == ModeReadOnly {
		return records.Record{}, status.ReadOnly
	}
	rec, err := h.ol.sl.Append(ctx, data)
	if err != nil {
		return rec, err
	}
	h.ol.notify()
	return rec, nil
}

// Read returns the record by its number. 0 means the first record,
// negative numbers count from the end of the log.
func (h *Handle) Read(ctx context.Context, recno int64) (records.Record, error) {
	if err := h.checkRead(); err != nil {
		return records.Record{}, err
	}
	return h.ol.sl.Read(ctx, records.ResolveRecno(recno, h.ol.sl.LastRecno()))
}

// Reader returns the Reader of numrecs records starting from firstrec.
// numrecs <= 0 means reading till the end of the log.
func (h *Handle) Reader(firstrec, numrecs int64) *Reader {
	return &Reader{h: h, first: firstrec, num: numrecs}
}

// ReadAll reads numrecs records starting from firstrec. Reading stops
// without an error at the end of the log.
func (h *Handle) ReadAll(ctx context.Context, firstrec, numrecs int64) ([]records.Record, error) {
	r := h.Reader(firstrec, numrecs)
	var res []records.Record
	for {
		rec, err := r.Next(ctx)
		if err == status.EndOfFile {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res = append(res, rec)
	}
}

// Multiread starts the stream of numrecs existing records starting from
// firstrec. The stream is cancelled when the handle is closed.
func (h *Handle) Multiread(ctx context.Context, firstrec, numrecs int64) (*event.Stream, error) {
	if err := h.checkRead(); err != nil {
		return nil, err
	}
	s, err := h.svc.Engine.Multiread(h, firstrec, numrecs)
	return h.track(s, err)
}

// Subscribe starts the stream of records starting from firstrec which
// follows the log until numrecs records are delivered, numrecs <= 0 means
// forever. firstrec 0 starts from the next appended record. The stream is
// cancelled when the handle is closed.
func (h *Handle) Subscribe(ctx context.Context, firstrec, numrecs int64) (*event.Stream, error) {
	if err := h.checkRead(); err != nil {
		return nil, err
	}
	s, err := h.svc.Engine.Subscribe(h, firstrec, numrecs)
	return h.track(s, err)
}

// Wait blocks until the log has a record after the record number
// provided, or ctx is closed. It returns the last record number.
func (h *Handle) Wait(ctx context.Context, after int64) (int64, error) {
	if h.isClosed() {
		return 0, status.NotOpen
	}
	return h.ol.wait(ctx, after, h.isClosed)
}

// Close releases the handle. Streams started through the handle are
// cancelled. The second call returns status.NotOpen.
func (h *Handle) Close() error {
	if !atomic.CompareAndSwapInt32(&h.closed, 0, 1) {
		return status.NotOpen
	}

	h.lock.Lock()
	streams := h.streams
	h.streams = nil
	h.lock.Unlock()
	for s := range streams {
		s.Cancel()
	}

	h.ol.notify()
	h.svc.release(h.ol)
	return nil
}

func (h *Handle) String() string {
	return fmt.Sprintf("{log=%s, mode=%s, closed=%t}", h.Name(), h.mode, h.isClosed())
}

func (h *Handle) isClosed() bool {
	return atomic.LoadInt32(&h.closed) != 0 || h.svc.isClosed()
}

func (h *Handle) checkRead() error {
	if h.isClosed() {
		return status.NotOpen
	}
	if h.mode == ModeAppendOnly {
		return status.BadIOMode
	}
	return nil
}

func (h *Handle) track(s *event.Stream, err error) (*event.Stream, error) {
	if err != nil {
		return nil, err
	}

	h.lock.Lock()
	if h.streams == nil {
		h.lock.Unlock()
		s.Cancel()
		return nil, status.NotOpen
	}
	for s1 := range h.streams {
		if s1.State() >= event.Draining {
			delete(h.streams, s1)
		}
	}
	h.streams[s] = struct{}{}
	h.lock.Unlock()
	return s, nil
}

// Next returns the next record, or status.EndOfFile if there are no more
// records to read.
func (r *Reader) Next(ctx context.Context) (records.Record, error) {
	if r.num > 0 && r.cnt >= r.num {
		return records.Record{}, status.EndOfFile
	}
	if r.recno == 0 {
		last, err := r.h.LastRecno(ctx)
		if err != nil {
			return records.Record{}, err
		}
		r.recno = records.ResolveRecno(r.first, last)
	}

	rec, err := r.h.Read(ctx, r.recno)
	if err != nil {
		if status.FromError(err) == status.NotFound {
			return records.Record{}, status.EndOfFile
		}
		return records.Record{}, err
	}
	r.recno++
	r.cnt++
	return rec, nil
}
