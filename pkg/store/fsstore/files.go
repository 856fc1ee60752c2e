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
	"encoding/json"
	"io/ioutil"
	"os"
	"path"

	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/logrange/range/pkg/utils/encoding/xbinary"
	"github.com/pkg/errors"
)

const (
	cDataMagic  = "GDPD"
	cIndexMagic = "GDPX"
	cVersion    = 1

	// data file header: magic and version
	cDataHdrSize = 8
	// index file header: magic, version and the first record number
	cIndexHdrSize = 16
	// every index entry is the data offset of a record
	cIndexEntrySize = 8
	// every record in the data file is prefixed by its size
	cFrameHdrSize = 4
)

func initLogFiles(dir string, md store.Metadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return errors.Wrapf(err, "could not marshal metadata %s", md)
	}
	if err := ioutil.WriteFile(path.Join(dir, cMetaFileName), data, 0640); err != nil {
		return errors.Wrapf(err, "could not write metadata into %s", dir)
	}

	if err := writeNewFile(path.Join(dir, cDataFileName), dataHeader()); err != nil {
		return err
	}
	return writeNewFile(path.Join(dir, cIndexFileName), indexHeader(1))
}

func writeNewFile(fn string, hdr []byte) error {
	f, err := os.OpenFile(fn, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", fn)
	}
	defer f.Close()

	if _, err = f.Write(hdr); err != nil {
		return errors.Wrapf(err, "could not write header into %s", fn)
	}
	return f.Sync()
}

func dataHeader() []byte {
	buf := make([]byte, cDataHdrSize)
	copy(buf, cDataMagic)
	xbinary.MarshalUint32(cVersion, buf[4:])
	return buf
}

func indexHeader(minRecno int64) []byte {
	buf := make([]byte, cIndexHdrSize)
	copy(buf, cIndexMagic)
	xbinary.MarshalUint32(cVersion, buf[4:])
	xbinary.MarshalUint64(uint64(minRecno), buf[8:])
	return buf
}

func checkDataHeader(f *os.File) error {
	buf := make([]byte, cDataHdrSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return errors.Wrapf(status.CorruptLog, "could not read data header of %s: %s", f.Name(), err)
	}
	_, ver, _ := xbinary.UnmarshalUint32(buf[4:])
	if string(buf[:4]) != cDataMagic || ver != cVersion {
		return errors.Wrapf(status.CorruptLog, "wrong data header of %s", f.Name())
	}
	return nil
}

// checkIndexHeader returns the first record number stored in the index
func checkIndexHeader(f *os.File) (int64, error) {
	buf := make([]byte, cIndexHdrSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, errors.Wrapf(status.CorruptIndex, "could not read index header of %s: %s", f.Name(), err)
	}
	_, ver, _ := xbinary.UnmarshalUint32(buf[4:])
	if string(buf[:4]) != cIndexMagic || ver != cVersion {
		return 0, errors.Wrapf(status.CorruptIndex, "wrong index header of %s", f.Name())
	}
	_, minRecno, _ := xbinary.UnmarshalUint64(buf[8:])
	return int64(minRecno), nil
}
