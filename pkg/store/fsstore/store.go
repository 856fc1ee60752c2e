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

// Package fsstore is the file-system Record Store backend. Every log lives in
// its own directory under the store Dir, the directory name is the printable
// log name. The log directory contains:
//
//	gcl.meta - JSON encoded metadata
//	gcl.dat  - data file: header, then records each prefixed by its length
//	gcl.idx  - index file: header, then the data offset of every record
//	gcl.lock - the lock file, which guarantees one writer process per log
package fsstore

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path"
	"sync"
	"time"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/jugador87/gdp/pkg/util"
	"github.com/logrange/range/pkg/utils/fileutil"
	"github.com/pkg/errors"
)

type (
	// Store implements store.Store over the local file-system
	Store struct {
		dir    string
		cfg    store.Config
		opts   Options
		fsync  store.FsyncMode
		logger log4g.Logger

		lock   sync.Mutex
		logs   map[name.Name]*fsLog
		closed bool
	}

	// Options are fs store specific settings, which are decoded from
	// store.Config.Options
	Options struct {
		// IdleTimeoutMs defines how long the sync goroutine of a log lives
		// without writes
		IdleTimeoutMs int
		// MaxRecordSize limits the payload size, 0 means no limit
		MaxRecordSize int
	}
)

const (
	cMetaFileName  = "gcl.meta"
	cDataFileName  = "gcl.dat"
	cIndexFileName = "gcl.idx"
	cLockFileName  = "gcl.lock"

	cDefaultIdleTimeout = 10 * time.Second
)

func init() {
	store.RegisterBackend(store.TypeFs, func(cfg *store.Config) (store.Store, error) {
		return New(cfg)
	})
}

// New creates the fs Store by the config provided. The store directory is
// created if it doesn't exist.
func New(cfg *store.Config) (*Store, error) {
	s := new(Store)
	s.cfg = *cfg
	s.dir = cfg.Dir
	if err := cfg.DecodeOptions(&s.opts); err != nil {
		return nil, err
	}

	var err error
	s.fsync, err = cfg.FsyncMode()
	if err != nil {
		return nil, err
	}

	if err := fileutil.EnsureDirExists(s.dir); err != nil {
		return nil, errors.Wrapf(err, "could not create the store dir %s", s.dir)
	}

	s.logs = make(map[name.Name]*fsLog)
	s.logger = log4g.GetLogger("fsstore").WithId("{" + s.dir + "}").(log4g.Logger)
	s.logger.Info("New(): fsync=", s.fsync, ", options=", s.opts)
	return s, nil
}

// Create is a part of store.Store
func (s *Store) Create(ctx context.Context, n name.Name, md store.Metadata) (store.Log, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, status.NotOpen
	}

	dir := s.logDir(n)
	if err := os.Mkdir(dir, 0740); err != nil {
		if os.IsExist(err) {
			return nil, status.AlreadyExists
		}
		return nil, errors.Wrapf(err, "could not create dir for the log %s", n)
	}

	md = md.Copy(1)
	md[store.MdCreationTime] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := initLogFiles(dir, md); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	s.logger.Info("Create(): new log ", n, ", metadata=", md)
	return s.openUnsafe(n)
}

// Open is a part of store.Store
func (s *Store) Open(ctx context.Context, n name.Name) (store.Log, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, status.NotOpen
	}
	return s.openUnsafe(n)
}

// List is a part of store.Store
func (s *Store) List(ctx context.Context) ([]name.Name, error) {
	fis, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read the store dir %s", s.dir)
	}

	res := make([]name.Name, 0, len(fis))
	for _, fi := range fis {
		if !fi.IsDir() {
			continue
		}
		n, err := name.FromPrintable(fi.Name())
		if err != nil {
			continue
		}
		if _, err := os.Stat(path.Join(s.dir, fi.Name(), cIndexFileName)); err != nil {
			continue
		}
		res = append(res, n)
	}
	return res, nil
}

// Close is a part of store.Store. It closes all logs that are still open.
func (s *Store) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return util.ErrWrongState
	}
	s.closed = true
	logs := s.logs
	s.logs = make(map[name.Name]*fsLog)
	s.lock.Unlock()

	s.logger.Info("Close(): closing ", len(logs), " open log(s)")
	for _, l := range logs {
		l.Close()
	}
	return nil
}

func (s *Store) openUnsafe(n name.Name) (*fsLog, error) {
	if _, ok := s.logs[n]; ok {
		return nil, store.ErrAlreadyOpened
	}

	dir := s.logDir(n)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, status.NotFound
		}
		return nil, errors.Wrapf(err, "could not access the log dir %s", dir)
	}

	l, err := openLog(s, n, dir)
	if err != nil {
		return nil, err
	}
	s.logs[n] = l
	return l, nil
}

func (s *Store) onClose(l *fsLog) {
	s.lock.Lock()
	if s.logs[l.name] == l {
		delete(s.logs, l.name)
	}
	s.lock.Unlock()
}

func (s *Store) idleTimeout() time.Duration {
	if s.opts.IdleTimeoutMs <= 0 {
		return cDefaultIdleTimeout
	}
	return time.Duration(s.opts.IdleTimeoutMs) * time.Millisecond
}

func (s *Store) logDir(n name.Name) string {
	return path.Join(s.dir, n.String())
}

func readMetadata(dir string) (store.Metadata, error) {
	data, err := ioutil.ReadFile(path.Join(dir, cMetaFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read metadata in %s", dir)
	}
	var md store.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, errors.Wrapf(status.CorruptLog, "could not unmarshal metadata in %s: %s", dir, err)
	}
	return md, nil
}

func (s *Store) String() string {
	return "fsstore{dir=" + s.dir + ", fsync=" + s.fsync.String() + "}"
}
