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
	"sync"
	"testing"
	"time"

	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/stretchr/testify/assert"
)

type testSource struct {
	n     name.Name
	lock  sync.Mutex
	recs  []records.Record
	wchs  []chan struct{}
	rdErr error
}

func newTestSource(cnt int) *testSource {
	ts := &testSource{n: name.New()}
	for i := 0; i < cnt; i++ {
		ts.append(fmt.Sprintf("rec%d", i+1))
	}
	return ts
}

func (ts *testSource) append(s string) {
	ts.lock.Lock()
	ts.recs = append(ts.recs, records.Record{Recno: int64(len(ts.recs) + 1), Ts: records.Now(1), Data: []byte(s)})
	for _, ch := range ts.wchs {
		close(ch)
	}
	ts.wchs = nil
	ts.lock.Unlock()
}

func (ts *testSource) Name() name.Name {
	return ts.n
}

func (ts *testSource) Read(ctx context.Context, recno int64) (records.Record, error) {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	if ts.rdErr != nil {
		return records.Record{}, ts.rdErr
	}
	if recno < 1 || recno > int64(len(ts.recs)) {
		return records.Record{}, status.NotFound
	}
	return ts.recs[recno-1], nil
}

func (ts *testSource) LastRecno(ctx context.Context) (int64, error) {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return int64(len(ts.recs)), nil
}

func (ts *testSource) Wait(ctx context.Context, after int64) (int64, error) {
	for {
		ts.lock.Lock()
		last := int64(len(ts.recs))
		if last > after {
			ts.lock.Unlock()
			return last, nil
		}
		ch := make(chan struct{})
		ts.wchs = append(ts.wchs, ch)
		ts.lock.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
}

func newTestEngine(t *testing.T, queueSize int) *Engine {
	e := NewEngine()
	e.Config = &Config{QueueSize: queueSize}
	if err := e.Init(context.Background()); err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	return e
}

func nextEvent(t *testing.T, s *Stream) *Event {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := s.Next(ctx)
	if err != nil {
		t.Fatal("Expecting an event, but err=", err)
	}
	return ev
}

func TestMultireadBounded(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()
	src := newTestSource(5)

	s, err := e.Multiread(src, 1, 3)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	for i := int64(1); i <= 3; i++ {
		ev := nextEvent(t, s)
		if ev.Type != Data || ev.Record.Recno != i || string(ev.Record.Data) != fmt.Sprintf("rec%d", i) {
			t.Fatal("Expecting data event for record ", i, ", but got ", ev)
		}
		ev.Release()
	}
	ev := nextEvent(t, s)
	if ev.Type != EndOfSubscription || !ev.Status.IsOK() {
		t.Fatal("Expecting EOS, but got ", ev)
	}
	ev.Release()

	if _, err := s.Next(context.Background()); err != status.EndOfFile {
		t.Fatal("Expecting EndOfFile after EOS, but err=", err)
	}
	assert.Nil(t, s.TryNext())
	assert.Equal(t, Closed, s.State())
}

func TestMultireadToTheEnd(t *testing.T) {
	e := newTestEngine(t, 2)
	defer e.Shutdown()
	src := newTestSource(7)

	for _, tc := range []struct {
		first, num int64
		exp        []int64
	}{
		{0, 0, []int64{1, 2, 3, 4, 5, 6, 7}},
		{5, 100, []int64{5, 6, 7}},
		{-2, 0, []int64{6, 7}},
		{-100, 2, []int64{1, 2}},
		{8, 0, nil},
		{3, -1, []int64{3, 4, 5, 6, 7}},
	} {
		s, err := e.Multiread(src, tc.first, tc.num)
		if err != nil {
			t.Fatal("Expecting no error, but err=", err)
		}
		var got []int64
		eos := 0
		err = s.ForEach(context.Background(), func(ev *Event) error {
			if ev.Type == Data {
				got = append(got, ev.Record.Recno)
			} else if ev.Type == EndOfSubscription {
				eos++
			}
			return nil
		})
		assert.Nil(t, err)
		assert.Equal(t, tc.exp, got, "first=%d, num=%d", tc.first, tc.num)
		assert.Equal(t, 1, eos)
	}
}

func TestSubscribeLive(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()
	src := newTestSource(0)

	s, err := e.Subscribe(src, 0, 0)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer s.Cancel()

	src.append("a")
	src.append("b")

	for _, exp := range []string{"a", "b"} {
		ev := nextEvent(t, s)
		if ev.Type != Data || string(ev.Record.Data) != exp {
			t.Fatal("Expecting data event with ", exp, ", but got ", ev)
		}
		ev.Release()
	}
	time.Sleep(20 * time.Millisecond)
	if ev := s.TryNext(); ev != nil {
		t.Fatal("Expecting nothing queued, but got ", ev)
	}
	assert.Equal(t, Active, s.State())
}

func TestSubscribeReplayThenLive(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()
	src := newTestSource(3)

	s, err := e.Subscribe(src, 2, 4)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		src.append("rec4")
		src.append("rec5")
		src.append("rec6")
	}()

	var got []int64
	var last *Event
	err = s.ForEach(context.Background(), func(ev *Event) error {
		if ev.Type == Data {
			got = append(got, ev.Record.Recno)
		}
		last = ev
		return nil
	})
	assert.Nil(t, err)
	assert.Equal(t, []int64{2, 3, 4, 5}, got)
	assert.Equal(t, EndOfSubscription, last.Type)
}

func TestSubscribeNegativeCount(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()
	src := newTestSource(1)

	s, err := e.Subscribe(src, 1, -1)
	if err != nil {
		t.Fatal("Expecting negative count is unbounded, but err=", err)
	}
	assert.Equal(t, int64(1), nextEvent(t, s).Record.Recno)
	src.append("r2")
	assert.Equal(t, int64(2), nextEvent(t, s).Record.Recno)
	s.Cancel()
}

func TestSubscribeFromNow(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()
	src := newTestSource(2)

	s, err := e.Subscribe(src, 0, 0)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer s.Cancel()

	src.append("rec3")
	ev := nextEvent(t, s)
	if ev.Type != Data || ev.Record.Recno != 3 || string(ev.Record.Data) != "rec3" {
		t.Fatal("Expecting the first event is the record appended after subscribe, but got ", ev)
	}
	ev.Release()
	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, s.TryNext())
}

func TestCreditsBackpressure(t *testing.T) {
	e := newTestEngine(t, 2)
	defer e.Shutdown()
	src := newTestSource(5)

	s, _ := e.Multiread(src, 1, 0)
	time.Sleep(20 * time.Millisecond)
	if len(s.events) != 2 {
		t.Fatal("Expecting 2 events queued, but it is ", len(s.events))
	}

	ev1 := nextEvent(t, s)
	ev2 := nextEvent(t, s)
	time.Sleep(20 * time.Millisecond)
	if ev := s.TryNext(); ev != nil {
		t.Fatal("Expecting no events until a credit returned, but got ", ev)
	}

	ev1.Release()
	ev1.Release()
	ev3 := nextEvent(t, s)
	assert.Equal(t, int64(3), ev3.Record.Recno)
	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, s.TryNext())

	ev2.Release()
	ev3.Release()
	var got []int64
	s.ForEach(context.Background(), func(ev *Event) error {
		if ev.Type == Data {
			got = append(got, ev.Record.Recno)
		}
		return nil
	})
	assert.Equal(t, []int64{4, 5}, got)
}

func TestCancel(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()
	src := newTestSource(2)

	s, _ := e.Subscribe(src, 1, 0)
	ev := nextEvent(t, s)
	ev.Release()
	ev = nextEvent(t, s)
	ev.Release()

	s.Cancel()
	if _, err := s.Next(context.Background()); err != status.EndOfFile {
		t.Fatal("Expecting EndOfFile for the cancelled stream, but err=", err)
	}
	assert.Equal(t, 0, e.Streams())
}

func TestQueuedEventsSurviveCancel(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()
	src := newTestSource(3)

	s, _ := e.Subscribe(src, 1, 0)
	time.Sleep(20 * time.Millisecond)
	s.Cancel()

	var got []int64
	err := s.ForEach(context.Background(), func(ev *Event) error {
		got = append(got, ev.Record.Recno)
		return nil
	})
	assert.Nil(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestReadErrorEndsStream(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()
	src := newTestSource(3)
	src.rdErr = status.CorruptLog

	s, _ := e.Multiread(src, 1, 0)
	ev := nextEvent(t, s)
	if ev.Type != EndOfSubscription || ev.Status != status.CorruptLog {
		t.Fatal("Expecting EOS with CorruptLog, but got ", ev)
	}
	ev.Release()
}

func TestEngineShutdown(t *testing.T) {
	e := newTestEngine(t, 10)
	src := newTestSource(1)

	sub, _ := e.Subscribe(src, 1, 0)
	ev := nextEvent(t, sub)
	ev.Release()

	e.Shutdown()
	ev = nextEvent(t, sub)
	if ev.Type != Shutdown {
		t.Fatal("Expecting Shutdown event, but got ", ev)
	}
	ev.Release()
	if _, err := sub.Next(context.Background()); err != status.EndOfFile {
		t.Fatal("Expecting EndOfFile, but err=", err)
	}

	if _, err := e.Multiread(src, 1, 0); status.FromError(err) != status.NotOpen {
		t.Fatal("Expecting NotOpen after shutdown, but err=", err)
	}
	e.Shutdown()
}

func TestForEachStopsOnError(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()
	src := newTestSource(5)

	s, _ := e.Multiread(src, 1, 0)
	defer s.Cancel()
	cnt := 0
	stop := fmt.Errorf("stop")
	err := s.ForEach(context.Background(), func(ev *Event) error {
		cnt++
		if cnt == 2 {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 2, cnt)
}

func TestNextContextDone(t *testing.T) {
	e := newTestEngine(t, 10)
	defer e.Shutdown()

	s, _ := e.Subscribe(newTestSource(0), 0, 0)
	defer s.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); err != context.DeadlineExceeded {
		t.Fatal("Expecting DeadlineExceeded, but err=", err)
	}
}

func TestConfig(t *testing.T) {
	c := GetDefaultConfig()
	c.Apply(&Config{QueueSize: 5})
	assert.Equal(t, 5, c.QueueSize)
	c.Apply(&Config{})
	assert.Equal(t, 5, c.QueueSize)
	assert.NotNil(t, (&Config{}).Check())
}
