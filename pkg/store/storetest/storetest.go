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

// Package storetest contains the behavior checks every store.Store backend
// must pass. Backend tests call Run with a factory of the store under test.
package storetest

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
)

// Factory returns a new store and a function which releases it. The store
// is closed by the tests.
type Factory func(t *testing.T) (store.Store, func())

// Run executes all the checks against stores made by f
func Run(t *testing.T, f Factory) {
	t.Run("CreateOpen", func(t *testing.T) { testCreateOpen(t, f) })
	t.Run("AppendRead", func(t *testing.T) { testAppendRead(t, f) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, f) })
	t.Run("CloseTwice", func(t *testing.T) { testCloseTwice(t, f) })
	t.Run("List", func(t *testing.T) { testList(t, f) })
}

func testCreateOpen(t *testing.T, f Factory) {
	s, release := f(t)
	defer release()
	defer s.Close()

	ctx := context.Background()
	n := name.New()
	if _, err := s.Open(ctx, n); status.FromError(err) != status.NotFound {
		t.Fatal("Expecting NotFound for a log which doesn't exist, but err=", err)
	}

	l, err := s.Create(ctx, n, store.Metadata{store.MdExternalName: "test"})
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	if l.Name() != n || l.LastRecno() != 0 {
		t.Fatal("Expecting empty log ", n, ", but got ", l.Name(), " with last=", l.LastRecno())
	}
	md := l.Metadata()
	if md[store.MdExternalName] != "test" || md[store.MdCreationTime] == "" {
		t.Fatal("Expecting xid and ctim in metadata, but it is ", md)
	}

	if _, err := s.Create(ctx, n, nil); status.FromError(err) != status.AlreadyExists {
		t.Fatal("Expecting AlreadyExists, but err=", err)
	}
	l.Close()

	l, err = s.Open(ctx, n)
	if err != nil {
		t.Fatal("Expecting the log could be opened, but err=", err)
	}
	if l.Metadata()[store.MdExternalName] != "test" {
		t.Fatal("Expecting metadata after reopen, but it is ", l.Metadata())
	}
	l.Close()
}

func testAppendRead(t *testing.T, f Factory) {
	s, release := f(t)
	defer release()
	defer s.Close()

	ctx := context.Background()
	l, err := s.Create(ctx, name.New(), nil)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer l.Close()

	if _, err := l.Read(ctx, 1); status.FromError(err) != status.NotFound {
		t.Fatal("Expecting NotFound in the empty log, but err=", err)
	}

	payloads := [][]byte{[]byte("first"), {}, {0, 1, 2, 255}, bytes.Repeat([]byte("x"), 10000)}
	for i, p := range payloads {
		rec, err := l.Append(ctx, p)
		if err != nil {
			t.Fatal("Expecting no error on append, but err=", err)
		}
		if rec.Recno != int64(i+1) || rec.Ts.IsZero() {
			t.Fatal("Expecting record ", i+1, " with a timestamp, but got ", rec)
		}
	}

	if l.LastRecno() != int64(len(payloads)) {
		t.Fatal("Expecting last=", len(payloads), ", but it is ", l.LastRecno())
	}

	for i, p := range payloads {
		rec, err := l.Read(ctx, int64(i+1))
		if err != nil || rec.Recno != int64(i+1) || !bytes.Equal(rec.Data, p) {
			t.Fatal("Expecting record ", i+1, " with the payload written, but got ", rec, ", err=", err)
		}
	}

	for _, rn := range []int64{0, -1, int64(len(payloads) + 1)} {
		if _, err := l.Read(ctx, rn); status.FromError(err) != status.NotFound {
			t.Fatal("Expecting NotFound for recno=", rn, ", but err=", err)
		}
	}
}

func testConcurrentAppends(t *testing.T, f Factory) {
	s, release := f(t)
	defer release()
	defer s.Close()

	ctx := context.Background()
	l, err := s.Create(ctx, name.New(), nil)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer l.Close()

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	var lock sync.Mutex
	seen := make(map[int64]bool)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec, err := l.Append(ctx, []byte(fmt.Sprintf("%d-%d", w, i)))
				if err != nil {
					t.Error("append failed err=", err)
					return
				}
				lock.Lock()
				seen[rec.Recno] = true
				lock.Unlock()
			}
		}(w)
	}
	wg.Wait()

	total := int64(writers * perWriter)
	if l.LastRecno() != total || int64(len(seen)) != total {
		t.Fatal("Expecting ", total, " records, but last=", l.LastRecno(), ", seen=", len(seen))
	}
	for rn := int64(1); rn <= total; rn++ {
		if !seen[rn] {
			t.Fatal("Expecting record ", rn, " to be assigned")
		}
	}
}

func testCloseTwice(t *testing.T, f Factory) {
	s, release := f(t)
	defer release()
	defer s.Close()

	ctx := context.Background()
	n := name.New()
	l, err := s.Create(ctx, n, nil)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	l.Append(ctx, []byte("a"))
	if err := l.Close(); err != nil {
		t.Fatal("Expecting first close is ok, but err=", err)
	}
	if err := l.Close(); status.FromError(err) != status.NotOpen {
		t.Fatal("Expecting NotOpen for the second close, but err=", err)
	}
	if _, err := l.Append(ctx, []byte("b")); status.FromError(err) != status.NotOpen {
		t.Fatal("Expecting NotOpen for append to the closed log, but err=", err)
	}
	if _, err := l.Read(ctx, 1); status.FromError(err) != status.NotOpen {
		t.Fatal("Expecting NotOpen for read of the closed log, but err=", err)
	}

	l, err = s.Open(ctx, n)
	if err != nil {
		t.Fatal("Expecting the log could be opened, but err=", err)
	}
	defer l.Close()
	rec, err := l.Read(ctx, 1)
	if err != nil || string(rec.Data) != "a" || l.LastRecno() != 1 {
		t.Fatal("Expecting the log is intact, but rec=", rec, ", err=", err)
	}
}

func testList(t *testing.T, f Factory) {
	s, release := f(t)
	defer release()
	defer s.Close()

	ctx := context.Background()
	names := map[name.Name]bool{name.New(): true, name.New(): true, name.New(): true}
	for n := range names {
		l, err := s.Create(ctx, n, nil)
		if err != nil {
			t.Fatal("Expecting no error, but err=", err)
		}
		l.Close()
	}

	res, err := s.List(ctx)
	if err != nil || len(res) != len(names) {
		t.Fatal("Expecting ", len(names), " logs, but got ", res, ", err=", err)
	}
	for _, n := range res {
		if !names[n] {
			t.Fatal("Unexpected log ", n)
		}
	}
}
