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

package rpc

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jugador87/gdp/pkg/event"
	"github.com/jugador87/gdp/pkg/gcl"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/jugador87/gdp/pkg/store/memstore"
	"github.com/logrange/range/pkg/transport"
	"github.com/logrange/range/pkg/utils/encoding/xbinary"
	"github.com/stretchr/testify/assert"
)

type testEnv struct {
	eng *event.Engine
	svc *gcl.Service
	srv *Server
	clt *Client
}

func newTestEnv(t *testing.T) *testEnv {
	ctx := context.Background()
	te := new(testEnv)
	te.eng = event.NewEngine()
	te.eng.Init(ctx)

	te.svc = gcl.NewService()
	te.svc.Store = memstore.New(store.GetDefaultConfig())
	te.svc.Engine = te.eng
	if err := te.svc.Init(ctx); err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}

	sl := NewServerLogs()
	sl.Gcl = te.svc
	sl.MainCtx = ctx

	te.srv = NewServer()
	te.srv.SrvLogs = sl
	te.srv.ConnConfig = transport.Config{ListenAddr: "127.0.0.1:0"}
	if err := te.srv.Init(ctx); err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}

	var err error
	te.clt, err = NewClient(transport.Config{ListenAddr: te.srv.Addr().String()})
	if err != nil {
		te.close()
		t.Fatal("Expecting no error, but err=", err)
	}
	return te
}

func (te *testEnv) close() {
	if te.clt != nil {
		te.clt.Close()
	}
	te.srv.Shutdown()
	te.svc.Shutdown()
	te.eng.Shutdown()
}

func TestCreateInfoList(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	ctx := context.Background()
	n := name.New()
	li, err := te.clt.Create(ctx, n, store.Metadata{"xid": "rpc"})
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	assert.Equal(t, n, li.Name)
	assert.Equal(t, int64(0), li.LastRecno)
	assert.Equal(t, "rpc", li.Metadata["xid"])
	assert.NotEmpty(t, li.Metadata[store.MdCreationTime])

	if _, err := te.clt.Create(ctx, n, nil); err != status.AlreadyExists {
		t.Fatal("Expecting AlreadyExists, but err=", err)
	}
	if _, err := te.clt.Info(ctx, name.New()); err != status.NotFound {
		t.Fatal("Expecting NotFound, but err=", err)
	}

	names, err := te.clt.List(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []name.Name{n}, names)
}

func TestAppendRead(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	ctx := context.Background()
	n := name.New()
	te.clt.Create(ctx, n, nil)

	payloads := []string{"a", "", "\x00\x01\x02", "last"}
	for i, p := range payloads {
		rec, err := te.clt.Append(ctx, n, []byte(p))
		if err != nil || rec.Recno != int64(i+1) || rec.Ts.IsZero() {
			t.Fatal("Expecting record ", i+1, ", but got ", rec, ", err=", err)
		}
	}

	recs, err := te.clt.Read(ctx, n, 1, 10)
	assert.Nil(t, err)
	assert.Len(t, recs, 4)
	for i, p := range payloads {
		assert.Equal(t, int64(i+1), recs[i].Recno)
		assert.Equal(t, p, string(recs[i].Data))
	}

	recs, err = te.clt.Read(ctx, n, -1, 1)
	assert.Nil(t, err)
	assert.Equal(t, "last", string(recs[0].Data))

	if _, err := te.clt.Read(ctx, n, 5, 1); err != status.NotFound {
		t.Fatal("Expecting NotFound, but err=", err)
	}

	li, err := te.clt.Info(ctx, n)
	assert.Nil(t, err)
	assert.Equal(t, int64(4), li.LastRecno)
}

func TestWait(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	ctx := context.Background()
	n := name.New()
	te.clt.Create(ctx, n, nil)

	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	_, err := te.clt.Wait(tctx, n, 0)
	cancel()
	assert.NotNil(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		te.clt.Append(ctx, n, []byte("a"))
	}()
	tctx, cancel = context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	last, err := te.clt.Wait(tctx, n, 0)
	assert.Nil(t, err)
	assert.Equal(t, int64(1), last)
}

func TestWaitExpiredDeadline(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	ctx := context.Background()
	n := name.New()
	te.clt.Create(ctx, n, nil)

	dctx, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel()
	start := time.Now()
	_, err := te.clt.Wait(dctx, n, 0)
	if err != context.DeadlineExceeded {
		t.Fatal("Expecting DeadlineExceeded, but err=", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Expecting Wait returns immediately for the expired context")
	}
}

func TestRemoteSubscribe(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	ctx := context.Background()
	n := name.New()
	te.clt.Create(ctx, n, nil)
	te.clt.Append(ctx, n, []byte("1"))

	// the client side engine
	eng := event.NewEngine()
	eng.Init(ctx)
	defer eng.Shutdown()

	s, err := eng.Subscribe(te.clt.Log(n), 1, 3)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		te.clt.Append(ctx, n, []byte("2"))
		te.clt.Append(ctx, n, []byte("3"))
	}()

	tctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var got []string
	err = s.ForEach(tctx, func(ev *event.Event) error {
		if ev.Type == event.Data {
			got = append(got, string(ev.Record.Data))
		}
		return nil
	})
	assert.Nil(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestRemoteMultiread(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	ctx := context.Background()
	n := name.New()
	te.clt.Create(ctx, n, nil)
	for _, s := range []string{"a", "b", "c", "d"} {
		te.clt.Append(ctx, n, []byte(s))
	}

	eng := event.NewEngine()
	eng.Init(ctx)
	defer eng.Shutdown()

	s, _ := eng.Multiread(te.clt.Log(n), 2, 0)
	var got []string
	eos := false
	err := s.ForEach(ctx, func(ev *event.Event) error {
		switch ev.Type {
		case event.Data:
			got = append(got, string(ev.Record.Data))
		case event.EndOfSubscription:
			eos = true
		}
		return nil
	})
	assert.Nil(t, err)
	assert.True(t, eos)
	assert.Equal(t, []string{"b", "c", "d"}, got)
}

func TestLogReqEncoding(t *testing.T) {
	lr := &logReq{n: name.New(), num1: -5, num2: 100, data: []byte("payload")}
	var bb bytes.Buffer
	ow := &xbinary.ObjectsWriter{Writer: &bb}
	if _, err := lr.WriteTo(ow); err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	buf := bb.Bytes()
	assert.Equal(t, lr.WritableSize(), len(buf))

	var lr2 logReq
	n, err := unmarshalLogReq(buf, &lr2, true)
	assert.Nil(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, *lr, lr2)
}
