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

// Package pebblestore contains store.Store which keeps all logs in one
// Pebble database. A log metadata is stored under g/<name>/m key and the
// records under g/<name>/r/<recno> keys, where recno is 8 bytes big-endian,
// so the records are ordered by their numbers.
package pebblestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/jugador87/gdp/pkg/util"
	"github.com/logrange/range/pkg/utils/fileutil"
	"github.com/pkg/errors"
)

type (
	// Store implements store.Store over a Pebble database
	Store struct {
		db        *pebble.DB
		dir       string
		accuracy  float32
		writeSync bool
		opts      Options
		logger    log4g.Logger

		lock   sync.Mutex
		logs   map[name.Name]*pLog
		closed bool

		// dbLock is held for reading by the logs' reads and appends, so
		// Close doesn't release the db under them
		dbLock sync.RWMutex
	}

	// Options are Pebble specific settings decoded from store.Config.Options
	Options struct {
		// MemTableSizeMb is the Pebble memtable size, 0 means Pebble default
		MemTableSizeMb int
		// MaxOpenFiles limits the number of files Pebble keeps open
		MaxOpenFiles int
		// MaxRecordSize limits the payload size, 0 means no limit
		MaxRecordSize int
	}

	pLog struct {
		s    *Store
		name name.Name
		md   store.Metadata
		pfx  []byte

		// wLock serializes appends
		wLock  sync.Mutex
		last   int64
		closed int32
	}
)

const (
	cKeyPrefix  = "g/"
	cMetaSuffix = "/m"
	cRecsSuffix = "/r/"
)

func init() {
	store.RegisterBackend(store.TypePebble, func(cfg *store.Config) (store.Store, error) {
		return New(cfg)
	})
}

func New(cfg *store.Config) (*Store, error) {
	s := new(Store)
	s.dir = cfg.Dir
	s.accuracy = cfg.ClockAccuracySec
	if err := cfg.DecodeOptions(&s.opts); err != nil {
		return nil, err
	}

	fsync, err := cfg.FsyncMode()
	if err != nil {
		return nil, err
	}

	po := &pebble.Options{}
	if s.opts.MemTableSizeMb > 0 {
		po.MemTableSize = uint64(s.opts.MemTableSizeMb) << 20
	}
	if s.opts.MaxOpenFiles > 0 {
		po.MaxOpenFiles = s.opts.MaxOpenFiles
	}
	switch fsync {
	case store.FsyncAlways:
		s.writeSync = true
	case store.FsyncInterval:
		iv := cfg.FsyncInterval()
		po.WALMinSyncInterval = func() time.Duration { return iv }
		s.writeSync = true
	}

	if err := fileutil.EnsureDirExists(s.dir); err != nil {
		return nil, errors.Wrapf(err, "could not create the store dir %s", s.dir)
	}
	s.db, err = pebble.Open(s.dir, po)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open pebble database in %s", s.dir)
	}

	s.logs = make(map[name.Name]*pLog)
	s.logger = log4g.GetLogger("pebblestore").WithId("{" + s.dir + "}").(log4g.Logger)
	s.logger.Info("New(): fsync=", fsync, ", options=", s.opts)
	return s, nil
}

func (s *Store) Create(ctx context.Context, n name.Name, md store.Metadata) (store.Log, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, status.NotOpen
	}

	mk := metaKey(n)
	_, cl, err := s.db.Get(mk)
	if err == nil {
		cl.Close()
		return nil, status.AlreadyExists
	}
	if err != pebble.ErrNotFound {
		return nil, errors.Wrapf(err, "could not check the log %s", n)
	}

	md = md.Copy(1)
	md[store.MdCreationTime] = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(md)
	if err != nil {
		return nil, errors.Wrapf(err, "could not marshal metadata %s", md)
	}
	if err := s.db.Set(mk, data, pebble.Sync); err != nil {
		return nil, errors.Wrapf(err, "could not write metadata of %s", n)
	}

	s.logger.Info("Create(): new log ", n, ", metadata=", md)
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

// List scans metadata keys. Record keys of a log go after its metadata
// key, so the scan skips them by seeking to the next log prefix.
func (s *Store) List(ctx context.Context) ([]name.Name, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: []byte(cKeyPrefix), UpperBound: prefixEnd([]byte(cKeyPrefix))})
	if err != nil {
		return nil, errors.Wrapf(err, "could not iterate logs")
	}
	defer it.Close()

	var res []name.Name
	for valid := it.First(); valid; {
		k := it.Key()
		if bytes.HasSuffix(k, []byte(cMetaSuffix)) {
			pn := string(k[len(cKeyPrefix) : len(k)-len(cMetaSuffix)])
			if n, err := name.FromPrintable(pn); err == nil {
				res = append(res, n)
			}
		}
		end := bytes.IndexByte(k[len(cKeyPrefix):], '/')
		if end < 0 {
			valid = it.Next()
			continue
		}
		valid = it.SeekGE(prefixEnd(k[:len(cKeyPrefix)+end+1]))
	}
	return res, nil
}

func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return util.ErrWrongState
	}
	s.closed = true

	s.dbLock.Lock()
	defer s.dbLock.Unlock()
	for _, l := range s.logs {
		atomic.StoreInt32(&l.closed, 1)
	}
	s.logs = nil
	s.logger.Info("Close()")
	return s.db.Close()
}

func (s *Store) openUnsafe(n name.Name) (*pLog, error) {
	if _, ok := s.logs[n]; ok {
		return nil, store.ErrAlreadyOpened
	}

	val, cl, err := s.db.Get(metaKey(n))
	if err == pebble.ErrNotFound {
		return nil, status.NotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not read metadata of %s", n)
	}
	var md store.Metadata
	err = json.Unmarshal(val, &md)
	cl.Close()
	if err != nil {
		return nil, errors.Wrapf(status.CorruptLog, "could not unmarshal metadata of %s: %s", n, err)
	}

	l := new(pLog)
	l.s = s
	l.name = n
	l.md = md
	l.pfx = recsPrefix(n)
	if l.last, err = l.readLastRecno(); err != nil {
		return nil, err
	}
	s.logs[n] = l
	return l, nil
}

func (s *Store) onClose(l *pLog) {
	s.lock.Lock()
	if s.logs[l.name] == l {
		delete(s.logs, l.name)
	}
	s.lock.Unlock()
}

func (s *Store) String() string {
	return fmt.Sprintf("pebblestore{dir=%s, writeSync=%t}", s.dir, s.writeSync)
}

func (l *pLog) readLastRecno() (int64, error) {
	it, err := l.s.db.NewIter(&pebble.IterOptions{LowerBound: l.pfx, UpperBound: prefixEnd(l.pfx)})
	if err != nil {
		return 0, errors.Wrapf(err, "could not iterate records of %s", l.name)
	}
	defer it.Close()
	if !it.Last() {
		return 0, nil
	}
	k := it.Key()
	if len(k) != len(l.pfx)+8 {
		return 0, errors.Wrapf(status.CorruptIndex, "unexpected key %q in %s", k, l.name)
	}
	return int64(binary.BigEndian.Uint64(k[len(l.pfx):])), nil
}

func (l *pLog) Name() name.Name {
	return l.name
}

func (l *pLog) Metadata() store.Metadata {
	return l.md
}

func (l *pLog) LastRecno() int64 {
	return atomic.LoadInt64(&l.last)
}

func (l *pLog) Append(ctx context.Context, data []byte) (records.Record, error) {
	if lim := l.s.opts.MaxRecordSize; lim > 0 && len(data) > lim {
		return records.Record{}, errors.Wrapf(status.InvalidArgument, "the record size %d exceeds the maximum %d", len(data), lim)
	}

	l.wLock.Lock()
	defer l.wLock.Unlock()
	l.s.dbLock.RLock()
	defer l.s.dbLock.RUnlock()
	if atomic.LoadInt32(&l.closed) != 0 {
		return records.Record{}, status.NotOpen
	}

	rec := records.Record{Recno: atomic.LoadInt64(&l.last) + 1, Ts: records.Now(l.s.accuracy), Data: data}
	b := l.s.db.NewBatch()
	defer b.Close()
	if err := b.Set(l.recKey(rec.Recno), records.MarshalRecord(rec), nil); err != nil {
		return records.Record{}, errors.Wrapf(err, "could not put the record %d of %s", rec.Recno, l.name)
	}
	wo := pebble.NoSync
	if l.s.writeSync {
		wo = pebble.Sync
	}
	if err := b.Commit(wo); err != nil {
		return records.Record{}, errors.Wrapf(err, "could not commit the record %d of %s", rec.Recno, l.name)
	}

	atomic.StoreInt64(&l.last, rec.Recno)
	return rec, nil
}

func (l *pLog) Read(ctx context.Context, recno int64) (records.Record, error) {
	l.s.dbLock.RLock()
	defer l.s.dbLock.RUnlock()
	if atomic.LoadInt32(&l.closed) != 0 {
		return records.Record{}, status.NotOpen
	}
	if recno < 1 || recno > atomic.LoadInt64(&l.last) {
		return records.Record{}, status.NotFound
	}

	val, cl, err := l.s.db.Get(l.recKey(recno))
	if err == pebble.ErrNotFound {
		return records.Record{}, errors.Wrapf(status.CorruptIndex, "the record %d of %s is missing", recno, l.name)
	}
	if err != nil {
		return records.Record{}, errors.Wrapf(err, "could not read the record %d of %s", recno, l.name)
	}
	defer cl.Close()

	_, rec, err := records.Unmarshal(val, true)
	if err != nil {
		return records.Record{}, errors.Wrapf(status.CorruptLog, "could not unmarshal the record %d of %s: %s", recno, l.name, err)
	}
	if rec.Recno != recno {
		return records.Record{}, errors.Wrapf(status.CorruptLog, "the record %d of %s has number %d", recno, l.name, rec.Recno)
	}
	return rec, nil
}

func (l *pLog) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return status.NotOpen
	}
	l.s.onClose(l)
	return nil
}

func (l *pLog) recKey(recno int64) []byte {
	k := make([]byte, len(l.pfx)+8)
	copy(k, l.pfx)
	binary.BigEndian.PutUint64(k[len(l.pfx):], uint64(recno))
	return k
}

func metaKey(n name.Name) []byte {
	return []byte(cKeyPrefix + n.String() + cMetaSuffix)
}

func recsPrefix(n name.Name) []byte {
	return []byte(cKeyPrefix + n.String() + cRecsSuffix)
}

// prefixEnd returns the smallest key which is greater than all keys with
// the prefix p
func prefixEnd(p []byte) []byte {
	end := make([]byte, len(p))
	copy(end, p)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
