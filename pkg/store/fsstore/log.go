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
	"fmt"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/logrange/range/pkg/utils/encoding/xbinary"
	"github.com/pkg/errors"
)

type (
	// fsLog is an open log of the fs store. Appends are serialized by the
	// lock, reads hold it for reading, so they can go in parallel.
	//
	// Written data is synced according to the store fsync mode. For the
	// interval mode the log starts the sync goroutine, which syncs files
	// in the interval after a write. The goroutine is stopped if no writes
	// happen during the idle timeout.
	fsLog struct {
		store    *Store
		name     name.Name
		md       store.Metadata
		dir      string
		accuracy float32
		maxSize  int

		lock sync.RWMutex
		dat  *os.File
		idx  *os.File
		flk  *flock.Flock
		// offs[i] contains the data offset of the record i+1
		offs    []int64
		datSize int64
		last    int64
		closed  int32

		dirty  int32
		sgnlCh chan bool
		done   chan struct{}
		syncTO time.Duration
		idleTO time.Duration

		logger log4g.Logger
	}
)

func openLog(s *Store, n name.Name, dir string) (*fsLog, error) {
	l := new(fsLog)
	l.store = s
	l.name = n
	l.dir = dir
	l.accuracy = s.cfg.ClockAccuracySec
	l.maxSize = s.opts.MaxRecordSize
	l.syncTO = s.cfg.FsyncInterval()
	l.idleTO = s.idleTimeout()
	l.done = make(chan struct{})
	l.logger = log4g.GetLogger("fsstore.log").WithId("{" + n.String() + "}").(log4g.Logger)

	l.flk = flock.New(path.Join(dir, cLockFileName))
	locked, err := l.flk.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "could not lock the log %s", n)
	}
	if !locked {
		return nil, errors.Wrapf(status.IOFailure, "the log %s is locked by another process", n)
	}

	l.md, err = readMetadata(dir)
	if err == nil {
		err = l.openFiles()
	}
	if err != nil {
		l.closeFiles()
		l.flk.Unlock()
		return nil, err
	}

	l.logger.Debug("opened, last record is ", l.last)
	return l, nil
}

func (l *fsLog) openFiles() (err error) {
	l.dat, err = os.OpenFile(path.Join(l.dir, cDataFileName), os.O_RDWR, 0640)
	if err != nil {
		return errors.Wrapf(err, "could not open data file of %s", l.name)
	}
	l.idx, err = os.OpenFile(path.Join(l.dir, cIndexFileName), os.O_RDWR, 0640)
	if err != nil {
		return errors.Wrapf(err, "could not open index file of %s", l.name)
	}

	if err = checkDataHeader(l.dat); err != nil {
		return err
	}
	minRecno, err := checkIndexHeader(l.idx)
	if err != nil {
		return err
	}
	if minRecno != 1 {
		return errors.Wrapf(status.CorruptIndex, "unexpected first record %d in the index of %s", minRecno, l.name)
	}
	return l.recover()
}

// recover loads the index and cuts the records which were not completely
// written. The data is written before the index entry, so the index may only
// point to the data which is shorter than expected if the write was
// interrupted.
func (l *fsLog) recover() error {
	dfi, err := l.dat.Stat()
	if err != nil {
		return errors.Wrapf(err, "could not stat the data file of %s", l.name)
	}
	ifi, err := l.idx.Stat()
	if err != nil {
		return errors.Wrapf(err, "could not stat the index file of %s", l.name)
	}

	datSize := dfi.Size()
	cnt := (ifi.Size() - cIndexHdrSize) / cIndexEntrySize
	buf := make([]byte, cnt*cIndexEntrySize)
	if cnt > 0 {
		if _, err := l.idx.ReadAt(buf, cIndexHdrSize); err != nil {
			return errors.Wrapf(status.CorruptIndex, "could not read the index of %s: %s", l.name, err)
		}
	}

	offs := make([]int64, 0, cnt+1024)
	prev := int64(0)
	for i := int64(0); i < cnt; i++ {
		_, v, _ := xbinary.UnmarshalUint64(buf[i*cIndexEntrySize:])
		off := int64(v)
		if off < cDataHdrSize || off <= prev {
			return errors.Wrapf(status.CorruptIndex, "wrong offset %d for the record %d of %s", off, i+1, l.name)
		}
		offs = append(offs, off)
		prev = off
	}

	end := int64(cDataHdrSize)
	for len(offs) > 0 {
		off := offs[len(offs)-1]
		sz, err := l.frameSize(off, datSize)
		if err == nil {
			end = off + sz
			break
		}
		l.logger.Warn("recover(): dropping the record ", len(offs), ", err=", err)
		offs = offs[:len(offs)-1]
	}

	if datSize > end {
		l.logger.Warn("recover(): truncating the data file from ", datSize, " to ", end, " bytes")
		if err := l.dat.Truncate(end); err != nil {
			return errors.Wrapf(err, "could not truncate the data file of %s", l.name)
		}
	}
	if idxSize := int64(cIndexHdrSize + len(offs)*cIndexEntrySize); ifi.Size() != idxSize {
		l.logger.Warn("recover(): truncating the index file from ", ifi.Size(), " to ", idxSize, " bytes")
		if err := l.idx.Truncate(idxSize); err != nil {
			return errors.Wrapf(err, "could not truncate the index file of %s", l.name)
		}
	}

	l.offs = offs
	l.datSize = end
	atomic.StoreInt64(&l.last, int64(len(offs)))
	return nil
}

// frameSize returns the size of the record stored at off, including its
// size prefix
func (l *fsLog) frameSize(off, datSize int64) (int64, error) {
	if off+cFrameHdrSize > datSize {
		return 0, status.CorruptLog
	}
	var hdr [cFrameHdrSize]byte
	if _, err := l.dat.ReadAt(hdr[:], off); err != nil {
		return 0, err
	}
	_, sz, _ := xbinary.UnmarshalUint32(hdr[:])
	res := int64(sz) + cFrameHdrSize
	if off+res > datSize {
		return 0, status.CorruptLog
	}
	return res, nil
}

// Name is a part of store.Log
func (l *fsLog) Name() name.Name {
	return l.name
}

// Metadata is a part of store.Log
func (l *fsLog) Metadata() store.Metadata {
	return l.md
}

// LastRecno is a part of store.Log
func (l *fsLog) LastRecno() int64 {
	return atomic.LoadInt64(&l.last)
}

// Append is a part of store.Log
func (l *fsLog) Append(ctx context.Context, data []byte) (records.Record, error) {
	if l.maxSize > 0 && len(data) > l.maxSize {
		return records.Record{}, errors.Wrapf(status.InvalidArgument, "the record size %d exceeds the maximum %d", len(data), l.maxSize)
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	if atomic.LoadInt32(&l.closed) != 0 {
		return records.Record{}, status.NotOpen
	}

	rec := records.Record{Recno: int64(len(l.offs)) + 1, Ts: records.Now(l.accuracy), Data: data}
	sz := rec.WritableSize()
	buf := make([]byte, cFrameHdrSize+sz)
	xbinary.MarshalUint32(uint32(sz), buf)
	if _, err := rec.Marshal(buf[cFrameHdrSize:]); err != nil {
		return records.Record{}, errors.Wrapf(err, "could not marshal the record %d", rec.Recno)
	}

	off := l.datSize
	if _, err := l.dat.WriteAt(buf, off); err != nil {
		return records.Record{}, errors.Wrapf(err, "could not write the record %d into %s", rec.Recno, l.name)
	}

	var ie [cIndexEntrySize]byte
	xbinary.MarshalUint64(uint64(off), ie[:])
	if _, err := l.idx.WriteAt(ie[:], cIndexHdrSize+int64(len(l.offs))*cIndexEntrySize); err != nil {
		return records.Record{}, errors.Wrapf(err, "could not write the index entry %d of %s", rec.Recno, l.name)
	}

	if err := l.syncIfNeeded(); err != nil {
		return records.Record{}, errors.Wrapf(err, "could not sync the record %d of %s", rec.Recno, l.name)
	}

	l.offs = append(l.offs, off)
	l.datSize += int64(len(buf))
	atomic.StoreInt64(&l.last, rec.Recno)
	return rec, nil
}

// Read is a part of store.Log
func (l *fsLog) Read(ctx context.Context, recno int64) (records.Record, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	if atomic.LoadInt32(&l.closed) != 0 {
		return records.Record{}, status.NotOpen
	}

	if recno < 1 || recno > int64(len(l.offs)) {
		return records.Record{}, status.NotFound
	}

	off := l.offs[recno-1]
	end := l.datSize
	if recno < int64(len(l.offs)) {
		end = l.offs[recno]
	}

	buf := make([]byte, end-off)
	if _, err := l.dat.ReadAt(buf, off); err != nil {
		return records.Record{}, errors.Wrapf(err, "could not read the record %d of %s", recno, l.name)
	}

	_, sz, _ := xbinary.UnmarshalUint32(buf)
	if int(sz)+cFrameHdrSize != len(buf) {
		return records.Record{}, errors.Wrapf(status.CorruptLog, "the record %d of %s has size %d, but %d expected", recno, l.name, sz, len(buf)-cFrameHdrSize)
	}

	_, rec, err := records.Unmarshal(buf[cFrameHdrSize:], false)
	if err != nil {
		return records.Record{}, errors.Wrapf(status.CorruptLog, "could not unmarshal the record %d of %s: %s", recno, l.name, err)
	}
	if rec.Recno != recno {
		return records.Record{}, errors.Wrapf(status.CorruptLog, "the record %d of %s has number %d", recno, l.name, rec.Recno)
	}
	return rec, nil
}

// Close is a part of store.Log
func (l *fsLog) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return status.NotOpen
	}

	l.lock.Lock()
	close(l.done)
	var err error
	if atomic.LoadInt32(&l.dirty) != 0 {
		err = l.syncFiles()
	}
	l.closeFiles()
	l.flk.Unlock()
	l.lock.Unlock()

	l.store.onClose(l)
	l.logger.Debug("closed")
	return err
}

func (l *fsLog) closeFiles() {
	if l.dat != nil {
		l.dat.Close()
	}
	if l.idx != nil {
		l.idx.Close()
	}
}

// syncIfNeeded must be called holding the write lock
func (l *fsLog) syncIfNeeded() error {
	switch l.store.fsync {
	case store.FsyncAlways:
		return l.syncFiles()
	case store.FsyncInterval:
		atomic.StoreInt32(&l.dirty, 1)
		l.ensureSyncer()
		select {
		case l.sgnlCh <- true:
		default:
		}
	}
	return nil
}

func (l *fsLog) syncFiles() error {
	if err := l.dat.Sync(); err != nil {
		return err
	}
	return l.idx.Sync()
}

func (l *fsLog) ensureSyncer() {
	if l.sgnlCh != nil {
		return
	}
	l.sgnlCh = make(chan bool, 1)
	go l.syncLoop(l.sgnlCh)
}

func (l *fsLog) syncLoop(sc chan bool) {
	l.logger.Debug("syncLoop(): start")
	defer l.logger.Debug("syncLoop(): stop")
	for {
		select {
		case <-sc:
			select {
			case <-time.After(l.syncTO):
			case <-l.done:
				return
			}
			l.sync()
		case <-time.After(l.idleTO):
			l.lock.Lock()
			if len(sc) == 0 {
				l.sgnlCh = nil
				l.lock.Unlock()
				return
			}
			l.lock.Unlock()
		case <-l.done:
			return
		}
	}
}

func (l *fsLog) sync() {
	l.lock.RLock()
	defer l.lock.RUnlock()
	if atomic.LoadInt32(&l.closed) != 0 || atomic.SwapInt32(&l.dirty, 0) == 0 {
		return
	}
	if err := l.syncFiles(); err != nil {
		l.logger.Error("sync(): could not sync files, err=", err)
	}
}

func (l *fsLog) String() string {
	return fmt.Sprintf("{name=%s, last=%d, datSize=%d, closed=%d}", l.name, l.LastRecno(), l.datSize, atomic.LoadInt32(&l.closed))
}
