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

package fsstore

import (
	"context"
	"io/ioutil"
	"os"
	"path"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/jugador87/gdp/pkg/store/storetest"
	"github.com/jugador87/gdp/pkg/util"
	"github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T, fsync string) (*Store, string) {
	dir, err := ioutil.TempDir("", "fsstoreTest")
	if err != nil {
		t.Fatal("Could not create new dir err=", err)
	}
	cfg := store.GetDefaultConfig()
	cfg.Dir = dir
	cfg.Fsync = fsync
	cfg.FsyncIntervalMs = 10
	cfg.Options = map[string]interface{}{"IdleTimeoutMs": 50}
	s, err := New(cfg)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatal("Expecting no error, but err=", err)
	}
	return s, dir
}

func TestStoreConformance(t *testing.T) {
	for _, fsync := range []string{"always", "interval", "never"} {
		t.Run(fsync, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) (store.Store, func()) {
				s, dir := newTestStore(t, fsync)
				return s, func() { os.RemoveAll(dir) }
			})
		})
	}
}

func TestStoreBackendRegistered(t *testing.T) {
	dir, err := ioutil.TempDir("", "fsstoreBackendTest")
	if err != nil {
		t.Fatal("Could not create new dir err=", err)
	}
	defer os.RemoveAll(dir)

	cfg := store.GetDefaultConfig()
	cfg.Dir = dir
	s, err := store.New(cfg)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer s.Close()
	if _, ok := s.(*Store); !ok {
		t.Fatal("Expecting *fsstore.Store, but got ", s)
	}
}

func TestStoreReopen(t *testing.T) {
	s, dir := newTestStore(t, "interval")
	defer os.RemoveAll(dir)

	ctx := context.Background()
	n := name.New()
	l, err := s.Create(ctx, n, store.Metadata{store.MdExternalName: "reopen"})
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	for i := 0; i < 100; i++ {
		l.Append(ctx, []byte("record"))
	}
	s.Close()

	s, err = New(&s.cfg)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer s.Close()

	l, err = s.Open(ctx, n)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	assert.Equal(t, int64(100), l.LastRecno())
	assert.Equal(t, "reopen", l.Metadata()[store.MdExternalName])

	rec, err := l.Append(ctx, []byte("next"))
	assert.Nil(t, err)
	assert.Equal(t, int64(101), rec.Recno)
}

func TestStoreRecoverTruncatedData(t *testing.T) {
	s, dir := newTestStore(t, "always")
	defer os.RemoveAll(dir)

	ctx := context.Background()
	n := name.New()
	l, _ := s.Create(ctx, n, nil)
	l.Append(ctx, []byte("aaaa"))
	l.Append(ctx, []byte("bbbb"))
	l.Append(ctx, []byte("cccc"))
	l.Close()

	// cut the last record in the middle
	fn := path.Join(s.logDir(n), cDataFileName)
	fi, _ := os.Stat(fn)
	if err := os.Truncate(fn, fi.Size()-3); err != nil {
		t.Fatal("Could not truncate err=", err)
	}

	l, err := s.Open(ctx, n)
	if err != nil {
		t.Fatal("Expecting recovery, but err=", err)
	}
	defer l.Close()
	assert.Equal(t, int64(2), l.LastRecno())
	if _, err := l.Read(ctx, 3); status.FromError(err) != status.NotFound {
		t.Fatal("Expecting NotFound for the dropped record, but err=", err)
	}

	rec, err := l.Append(ctx, []byte("dddd"))
	assert.Nil(t, err)
	assert.Equal(t, int64(3), rec.Recno)
	rec, err = l.Read(ctx, 3)
	assert.Nil(t, err)
	assert.Equal(t, "dddd", string(rec.Data))
	rec, err = l.Read(ctx, 2)
	assert.Nil(t, err)
	assert.Equal(t, "bbbb", string(rec.Data))
}

func TestStoreRecoverGarbageTail(t *testing.T) {
	s, dir := newTestStore(t, "always")
	defer os.RemoveAll(dir)

	ctx := context.Background()
	n := name.New()
	l, _ := s.Create(ctx, n, nil)
	l.Append(ctx, []byte("aaaa"))
	l.Close()

	// a write which reached the data file, but not the index
	f, err := os.OpenFile(path.Join(s.logDir(n), cDataFileName), os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		t.Fatal("Could not open err=", err)
	}
	f.Write([]byte{0, 0, 0, 100, 1, 2, 3})
	f.Close()

	// and a partially written index entry
	f, err = os.OpenFile(path.Join(s.logDir(n), cIndexFileName), os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		t.Fatal("Could not open err=", err)
	}
	f.Write([]byte{0, 0, 0})
	f.Close()

	l, err = s.Open(ctx, n)
	if err != nil {
		t.Fatal("Expecting recovery, but err=", err)
	}
	defer l.Close()
	assert.Equal(t, int64(1), l.LastRecno())

	rec, err := l.Append(ctx, []byte("bbbb"))
	assert.Nil(t, err)
	assert.Equal(t, int64(2), rec.Recno)
	rec, err = l.Read(ctx, 2)
	assert.Nil(t, err)
	assert.Equal(t, "bbbb", string(rec.Data))
}

func TestStoreCorruptIndex(t *testing.T) {
	s, dir := newTestStore(t, "always")
	defer os.RemoveAll(dir)
	defer s.Close()

	ctx := context.Background()
	n := name.New()
	l, _ := s.Create(ctx, n, nil)
	l.Close()

	if err := ioutil.WriteFile(path.Join(s.logDir(n), cIndexFileName), []byte("garbage garbage garbage"), 0640); err != nil {
		t.Fatal("Could not write err=", err)
	}
	if _, err := s.Open(ctx, n); status.FromError(err) != status.CorruptIndex {
		t.Fatal("Expecting CorruptIndex, but err=", err)
	}

	// the log must not stay locked after the failure
	fl := flock.New(path.Join(s.logDir(n), cLockFileName))
	locked, err := fl.TryLock()
	assert.True(t, locked)
	assert.Nil(t, err)
	fl.Unlock()
}

func TestStoreOpenTwice(t *testing.T) {
	s, dir := newTestStore(t, "never")
	defer os.RemoveAll(dir)
	defer s.Close()

	ctx := context.Background()
	n := name.New()
	l, err := s.Create(ctx, n, nil)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer l.Close()

	if _, err := s.Open(ctx, n); err != store.ErrAlreadyOpened {
		t.Fatal("Expecting ErrAlreadyOpened, but err=", err)
	}
}

func TestStoreLockedByOther(t *testing.T) {
	s, dir := newTestStore(t, "never")
	defer os.RemoveAll(dir)
	defer s.Close()

	ctx := context.Background()
	n := name.New()
	l, _ := s.Create(ctx, n, nil)
	l.Close()

	fl := flock.New(path.Join(s.logDir(n), cLockFileName))
	if ok, err := fl.TryLock(); !ok || err != nil {
		t.Fatal("Expecting the lock is acquired, but err=", err)
	}
	defer fl.Unlock()

	// flock locks are per file descriptor, so another store sees it locked
	s2, err := New(&s.cfg)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer s2.Close()
	if _, err := s2.Open(ctx, n); status.FromError(err) != status.IOFailure {
		t.Fatal("Expecting IOFailure for the locked log, but err=", err)
	}
}

func TestStoreMaxRecordSize(t *testing.T) {
	s, dir := newTestStore(t, "never")
	defer os.RemoveAll(dir)
	defer s.Close()
	s.opts.MaxRecordSize = 10

	ctx := context.Background()
	l, _ := s.Create(ctx, name.New(), nil)
	defer l.Close()

	if _, err := l.Append(ctx, make([]byte, 11)); status.FromError(err) != status.InvalidArgument {
		t.Fatal("Expecting InvalidArgument, but err=", err)
	}
	_, err := l.Append(ctx, make([]byte, 10))
	assert.Nil(t, err)
	assert.Equal(t, int64(1), l.LastRecno())
}

func TestStoreIntervalSync(t *testing.T) {
	s, dir := newTestStore(t, "interval")
	defer os.RemoveAll(dir)
	defer s.Close()

	ctx := context.Background()
	l, _ := s.Create(ctx, name.New(), nil)
	defer l.Close()
	fl := l.(*fsLog)

	l.Append(ctx, []byte("a"))
	time.Sleep(50 * time.Millisecond)
	fl.lock.Lock()
	dirty := fl.dirty
	fl.lock.Unlock()
	if dirty != 0 {
		t.Fatal("Expecting the log is synced")
	}

	// the sync goroutine stops after the idle timeout
	time.Sleep(150 * time.Millisecond)
	fl.lock.Lock()
	stopped := fl.sgnlCh == nil
	fl.lock.Unlock()
	if !stopped {
		t.Fatal("Expecting the sync goroutine is stopped")
	}

	l.Append(ctx, []byte("b"))
	assert.Equal(t, int64(2), l.LastRecno())
}

func TestStoreListSkipsForeignDirs(t *testing.T) {
	s, dir := newTestStore(t, "never")
	defer os.RemoveAll(dir)
	defer s.Close()

	os.Mkdir(path.Join(dir, "not-a-log"), 0740)
	os.Mkdir(path.Join(dir, name.New().String()), 0740)
	ioutil.WriteFile(path.Join(dir, "file"), []byte("abc"), 0640)

	ctx := context.Background()
	n := name.New()
	l, _ := s.Create(ctx, n, nil)
	l.Close()

	res, err := s.List(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []name.Name{n}, res)
}

func TestStoreClosed(t *testing.T) {
	s, dir := newTestStore(t, "never")
	defer os.RemoveAll(dir)

	ctx := context.Background()
	l, _ := s.Create(ctx, name.New(), nil)
	assert.Nil(t, s.Close())
	assert.Equal(t, util.ErrWrongState, s.Close())

	if _, err := l.Append(ctx, []byte("a")); status.FromError(err) != status.NotOpen {
		t.Fatal("Expecting the log is closed with the store, but err=", err)
	}
	if _, err := s.Create(ctx, name.New(), nil); status.FromError(err) != status.NotOpen {
		t.Fatal("Expecting NotOpen, but err=", err)
	}
}
