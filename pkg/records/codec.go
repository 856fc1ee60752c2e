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

package records

import (
	"math"

	"github.com/logrange/range/pkg/utils/encoding/xbinary"
)

// cRecHeaderSize is the fixed part of a marshaled record: recno, seconds,
// nanoseconds and the accuracy
const cRecHeaderSize = 8 + 8 + 4 + 4

// WritableSize is a part of xbinary.Writable
func (r Record) WritableSize() int {
	return cRecHeaderSize + xbinary.WritebleBytesSize(r.Data)
}

// WriteTo is a part of xbinary.Writable
func (r Record) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	n, err := ow.WriteUint64(uint64(r.Recno))
	nn := n
	if err != nil {
		return nn, err
	}

	n, err = ow.WriteUint64(uint64(r.Ts.Sec))
	nn += n
	if err != nil {
		return nn, err
	}

	n, err = ow.WriteUint32(uint32(r.Ts.Nsec))
	nn += n
	if err != nil {
		return nn, err
	}

	n, err = ow.WriteUint32(math.Float32bits(r.Ts.Accuracy))
	nn += n
	if err != nil {
		return nn, err
	}

	n, err = ow.WriteBytes(r.Data)
	nn += n
	return nn, err
}

// Marshal writes the record into buf, which must have at least
// WritableSize() bytes. Returns number of bytes written.
func (r Record) Marshal(buf []byte) (int, error) {
	n, err := xbinary.MarshalUint64(uint64(r.Recno), buf)
	if err != nil {
		return 0, err
	}
	idx := n

	n, err = xbinary.MarshalUint64(uint64(r.Ts.Sec), buf[idx:])
	if err != nil {
		return 0, err
	}
	idx += n

	n, err = xbinary.MarshalUint32(uint32(r.Ts.Nsec), buf[idx:])
	if err != nil {
		return 0, err
	}
	idx += n

	n, err = xbinary.MarshalUint32(math.Float32bits(r.Ts.Accuracy), buf[idx:])
	if err != nil {
		return 0, err
	}
	idx += n

	n, err = xbinary.MarshalBytes(r.Data, buf[idx:])
	if err != nil {
		return 0, err
	}
	return idx + n, nil
}

// Unmarshal reads a record written by Marshal or WriteTo from buf. If newBuf
// is false the record payload refers to buf. Returns number of bytes read.
func Unmarshal(buf []byte, newBuf bool) (int, Record, error) {
	var r Record
	n, v64, err := xbinary.UnmarshalUint64(buf)
	if err != nil {
		return 0, r, err
	}
	r.Recno = int64(v64)
	idx := n

	n, v64, err = xbinary.UnmarshalUint64(buf[idx:])
	if err != nil {
		return 0, r, err
	}
	r.Ts.Sec = int64(v64)
	idx += n

	n, v32, err := xbinary.UnmarshalUint32(buf[idx:])
	if err != nil {
		return 0, r, err
	}
	r.Ts.Nsec = int32(v32)
	idx += n

	n, v32, err = xbinary.UnmarshalUint32(buf[idx:])
	if err != nil {
		return 0, r, err
	}
	r.Ts.Accuracy = math.Float32frombits(v32)
	idx += n

	n, r.Data, err = xbinary.UnmarshalBytes(buf[idx:], newBuf)
	if err != nil {
		return 0, r, err
	}
	return idx + n, r, nil
}

// MarshalRecord returns the record marshaled into a new slice
func MarshalRecord(r Record) []byte {
	buf := make([]byte, r.WritableSize())
	n, err := r.Marshal(buf)
	if err != nil {
		// the buffer is allocated by WritableSize, so it cannot be short
		panic(err)
	}
	return buf[:n]
}
