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

package pebblestore

import (
	"context"
	"io/ioutil"
	"os"
	"sync"
	"testing"

	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/jugador87/gdp/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
)

func newTestConfig(t *testing.T, fsync string) *store.Config {
	dir, err := ioutil.TempDir("", "pebblestoreTest")
	if err != nil {
		t.Fatal("Could not create new dir err=", err)
	}
	cfg := store.GetDefaultConfig()
	cfg.Type = store.TypePebble
	cfg.Dir = dir
	cfg.Fsync = fsync
	cfg.FsyncIntervalMs = 5
	cfg.Options = map[string]interface{}{"MemTableSizeMb": 4, "MaxRecordSize": 1 << 20}
	return cfg
}

func TestStoreConformance(t *testing.T) {
	for _, fsync := range []string{"always", "interval", "never"} {
		t.Run(fsync, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) (store.Store, func()) {
				cfg := newTestConfig(t, fsync)
				s, err := New(cfg)
				if err != nil {
					os.RemoveAll(cfg.Dir)
					t.Fatal("Expecting no error, but err=", err)
				}
				return s, func() { os.RemoveAll(cfg.Dir) }
			})
		})
	}
}

func TestStoreReopen(t *testing.T) {
	cfg := newTestConfig(t, "always")
	defer os.RemoveAll(cfg.Dir)

	s, err := store.New(cfg)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}

	ctx := context.Background()
	n1, n2 := name.New(), name.New()
	l1, _ := s.Create(ctx, n1, store.Metadata{store.MdExternalName: "one"})
	l2, _ := s.Create(ctx, n2, nil)
	for i := 0; i < 300; i++ {
		l1.Append(ctx, []byte("l1"))
		if i%3 == 0 {
			l2.Append(ctx, []byte("l2"))
		}
	}
	assert.Nil(t, s.Close())

	s, err = store.New(cfg)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer s.Close()

	l1, err = s.Open(ctx, n1)
	assert.Nil(t, err)
	l2, err = s.Open(ctx, n2)
	assert.Nil(t, err)
	assert.Equal(t, int64(300), l1.LastRecno())
	assert.Equal(t, int64(100), l2.LastRecno())
	assert.Equal(t, "one", l1.Metadata()[store.MdExternalName])

	rec, err := l2.Read(ctx, 100)
	assert.Nil(t, err)
	assert.Equal(t, "l2", string(rec.Data))
	rec, err = l1.Append(ctx, []byte("next"))
	assert.Nil(t, err)
	assert.Equal(t, int64(301), rec.Recno)

	res, err := s.List(ctx)
	assert.Nil(t, err)
	assert.Len(t, res, 2)
}

func TestStoreMaxRecordSize(t *testing.T) {
	cfg := newTestConfig(t, "never")
	defer os.RemoveAll(cfg.Dir)
	cfg.Options["MaxRecordSize"] = 3

	s, err := New(cfg)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer s.Close()

	ctx := context.Background()
	l, _ := s.Create(ctx, name.New(), nil)
	if _, err := l.Append(ctx, []byte("abcd")); status.FromError(err) != status.InvalidArgument {
		t.Fatal("Expecting InvalidArgument, but err=", err)
	}
	assert.Equal(t, int64(0), l.LastRecno())
}

func TestCloseWithActiveLogs(t *testing.T) {
	cfg := newTestConfig(t, "never")
	defer os.RemoveAll(cfg.Dir)
	s, err := New(cfg)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}

	ctx := context.Background()
	l, _ := s.Create(ctx, name.New(), nil)
	l.Append(ctx, []byte("first"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for {
				if _, err := l.Read(ctx, 1); err != nil {
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for {
				if _, err := l.Append(ctx, []byte("x")); err != nil {
					return
				}
			}
		}()
	}

	assert.Nil(t, s.Close())
	wg.Wait()
	if _, err := l.Read(ctx, 1); err != status.NotOpen {
		t.Fatal("Expecting NotOpen after the store is closed, but err=", err)
	}
	if _, err := l.Append(ctx, []byte("y")); err != status.NotOpen {
		t.Fatal("Expecting NotOpen after the store is closed, but err=", err)
	}
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("g0"), prefixEnd([]byte("g/")))
	assert.Equal(t, []byte{1}, prefixEnd([]byte{0, 255}))
	assert.Nil(t, prefixEnd([]byte{255, 255}))
}
