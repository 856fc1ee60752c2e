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
	"fmt"
	"sync/atomic"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
)

type (
	// State is the stream lifecycle state
	State int32

	// Stream is a queue of events for one multiread or subscription
	// request. Next, TryNext and ForEach are expected to be called from
	// one goroutine, Cancel can be called from any one.
	Stream struct {
		e        *Engine
		src      Source
		firstrec int64
		numrecs  int64
		live     bool
		// shutdown is set by the engine under its lock before the producer
		// context is closed
		shutdown bool

		ctx     context.Context
		cancel  context.CancelFunc
		events  chan *Event
		credits chan struct{}
		state   int32
		logger  log4g.Logger
	}
)

const (
	// Idle is the state of a stream which producer is not started yet
	Idle State = iota
	// Active stream produces events
	Active
	// Draining stream doesn't produce events anymore, but it has some
	// queued ones
	Draining
	// Closed stream has nothing to return
	Closed
)

var stateNames = map[State]string{
	Idle:     "IDLE",
	Active:   "ACTIVE",
	Draining: "DRAINING",
	Closed:   "CLOSED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

func newStream(e *Engine, src Source, firstrec, numrecs int64, live bool, queueSize int) *Stream {
	s := new(Stream)
	s.e = e
	s.src = src
	s.firstrec = firstrec
	s.numrecs = numrecs
	s.live = live
	s.ctx, s.cancel = context.WithCancel(e.ctx)
	// one extra slot for the Shutdown event, which doesn't take a credit
	s.events = make(chan *Event, queueSize+1)
	s.credits = make(chan struct{}, queueSize)
	s.logger = log4g.GetLogger("event.Stream").WithId(fmt.Sprintf("{%s:%d:%d:%t}", src.Name(), firstrec, numrecs, live)).(log4g.Logger)
	return s
}

// Next returns the next event. It blocks until an event is available or
// ctx is closed. When the stream is finished and all its events are
// returned, Next returns status.EndOfFile.
func (s *Stream) Next(ctx context.Context) (*Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			atomic.StoreInt32(&s.state, int32(Closed))
			return nil, status.EndOfFile
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryNext returns the next event if it is queued already, or nil otherwise
func (s *Stream) TryNext() *Event {
	select {
	case ev, ok := <-s.events:
		if !ok {
			atomic.StoreInt32(&s.state, int32(Closed))
			return nil
		}
		return ev
	default:
		return nil
	}
}

// Cancel stops the stream producer. The events queued before the call can
// still be read.
func (s *Stream) Cancel() {
	s.cancel()
}

// ForEach reads events and calls fn for each of them until the stream is
// over, ctx is closed or fn returns an error. Every event is released
// after fn returns. Events of unknown types are skipped.
func (s *Stream) ForEach(ctx context.Context, fn func(ev *Event) error) error {
	for {
		ev, err := s.Next(ctx)
		if err != nil {
			if err == status.EndOfFile {
				return nil
			}
			return err
		}

		tp := ev.Type
		switch tp {
		case Data, EndOfSubscription, Shutdown:
			err = fn(ev)
		default:
			s.logger.Warn("ForEach(): skipping unknown event ", ev)
		}
		ev.Release()

		if err != nil {
			return err
		}
		if tp == EndOfSubscription || tp == Shutdown {
			return nil
		}
	}
}

// State returns the current stream state
func (s *Stream) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Stream) String() string {
	return fmt.Sprintf("{log=%s, firstrec=%d, numrecs=%d, live=%t, state=%s, queued=%d}",
		s.src.Name(), s.firstrec, s.numrecs, s.live, s.State(), len(s.events))
}

func (s *Stream) produce() {
	atomic.StoreInt32(&s.state, int32(Active))
	s.logger.Debug("produce(): start")
	st := s.run()
	s.finish(st)
}

// run delivers the records and returns the status of EndOfSubscription
// event, or nil if the stream was stopped without it.
func (s *Stream) run() *status.Status {
	last, err := s.src.LastRecno(s.ctx)
	if err != nil {
		return s.stopped(err)
	}

	recno := records.ResolveRecno(s.firstrec, last)
	for cnt := int64(0); s.numrecs == 0 || cnt < s.numrecs; {
		if recno > last {
			if s.live {
				last, err = s.src.Wait(s.ctx, recno-1)
			} else {
				last, err = s.src.LastRecno(s.ctx)
			}
			if err != nil {
				return s.stopped(err)
			}
			if recno > last {
				if s.live {
					continue
				}
				break
			}
		}

		rec, err := s.src.Read(s.ctx, recno)
		if err != nil {
			return s.stopped(err)
		}
		if !s.send(&Event{Type: Data, Log: s.src.Name(), Record: &rec, Status: status.OK}) {
			return nil
		}
		recno++
		cnt++
	}

	ok := status.OK
	return &ok
}

// stopped returns the EndOfSubscription status for the error, or nil if
// the stream was cancelled.
func (s *Stream) stopped(err error) *status.Status {
	if s.ctx.Err() != nil {
		return nil
	}
	s.logger.Warn("run(): stopped by err=", err)
	st := status.FromError(err)
	return &st
}

func (s *Stream) send(ev *Event) bool {
	select {
	case s.credits <- struct{}{}:
	case <-s.ctx.Done():
		return false
	}
	ev.s = s
	s.events <- ev
	return true
}

func (s *Stream) finish(st *status.Status) {
	if st != nil && !s.send(&Event{Type: EndOfSubscription, Log: s.src.Name(), Status: *st}) {
		st = nil
	}

	s.e.lock.Lock()
	shutdown := s.shutdown
	delete(s.e.streams, s)
	s.e.lock.Unlock()
	if st == nil && shutdown && s.live {
		s.events <- &Event{Type: Shutdown, Log: s.src.Name(), Status: status.OK}
	}

	atomic.StoreInt32(&s.state, int32(Draining))
	close(s.events)
	s.cancel()
	s.e.wg.Done()
	s.logger.Debug("produce(): done, eos=", st != nil)
}

func (s *Stream) release() {
	select {
	case <-s.credits:
	default:
		s.logger.Error("release(): no credits taken, bug?")
	}
}
