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
	"github.com/jugador87/gdp/api"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/logrange/range/pkg/utils/encoding/xbinary"
	"github.com/pkg/errors"
)

type (
	emptyResponse int

	// logReq is a request which refers to a log and carries two optional
	// numbers and an optional payload. Endpoints use the fields they need.
	logReq struct {
		n    name.Name
		num1 int64
		num2 int64
		data []byte
	}

	createReq struct {
		n  name.Name
		md store.Metadata
	}

	writableLogInfo api.LogInfo

	writableRecords []records.Record

	writableNames []name.Name

	writableInt64 int64
)

const cEmptyResponse = emptyResponse(0)

func (er emptyResponse) WritableSize() int {
	return 0
}

func (er emptyResponse) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	return 0, nil
}

// logReq
func (lr *logReq) WritableSize() int {
	return name.Len + 16 + xbinary.WritebleBytesSize(lr.data)
}

func (lr *logReq) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	nn, err := ow.WritePureBytes(lr.n[:])
	if err != nil {
		return nn, err
	}

	n, err := ow.WriteUint64(uint64(lr.num1))
	nn += n
	if err != nil {
		return nn, err
	}

	n, err = ow.WriteUint64(uint64(lr.num2))
	nn += n
	if err != nil {
		return nn, err
	}

	n, err = ow.WriteBytes(lr.data)
	nn += n
	return nn, err
}

func unmarshalLogReq(buf []byte, lr *logReq, newBuf bool) (int, error) {
	nn, err := unmarshalName(buf, &lr.n)
	if err != nil {
		return 0, err
	}

	n, v, err := xbinary.UnmarshalUint64(buf[nn:])
	nn += n
	if err != nil {
		return nn, err
	}
	lr.num1 = int64(v)

	n, v, err = xbinary.UnmarshalUint64(buf[nn:])
	nn += n
	if err != nil {
		return nn, err
	}
	lr.num2 = int64(v)

	n, lr.data, err = xbinary.UnmarshalBytes(buf[nn:], newBuf)
	nn += n
	return nn, err
}

// createReq
func (cr *createReq) WritableSize() int {
	return name.Len + getMetadataSize(cr.md)
}

func (cr *createReq) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	nn, err := ow.WritePureBytes(cr.n[:])
	if err != nil {
		return nn, err
	}
	n, err := writeMetadata(cr.md, ow)
	return nn + n, err
}

func unmarshalCreateReq(buf []byte, cr *createReq) (int, error) {
	nn, err := unmarshalName(buf, &cr.n)
	if err != nil {
		return 0, err
	}
	n, err := unmarshalMetadata(buf[nn:], &cr.md)
	return nn + n, err
}

// api.LogInfo
func (li *writableLogInfo) WritableSize() int {
	return name.Len + 8 + getMetadataSize(li.Metadata)
}

func (li *writableLogInfo) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	nn, err := ow.WritePureBytes(li.Name[:])
	if err != nil {
		return nn, err
	}

	n, err := ow.WriteUint64(uint64(li.LastRecno))
	nn += n
	if err != nil {
		return nn, err
	}

	n, err = writeMetadata(li.Metadata, ow)
	return nn + n, err
}

func unmarshalLogInfo(buf []byte, li *api.LogInfo) (int, error) {
	nn, err := unmarshalName(buf, &li.Name)
	if err != nil {
		return 0, err
	}

	n, v, err := xbinary.UnmarshalUint64(buf[nn:])
	nn += n
	if err != nil {
		return nn, err
	}
	li.LastRecno = int64(v)

	n, err = unmarshalMetadata(buf[nn:], &li.Metadata)
	return nn + n, err
}

// records
func (wr writableRecords) WritableSize() int {
	res := 4
	for _, r := range wr {
		res += r.WritableSize()
	}
	return res
}

func (wr writableRecords) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	nn, err := ow.WriteUint32(uint32(len(wr)))
	if err != nil {
		return nn, err
	}
	for _, r := range wr {
		n, err := r.WriteTo(ow)
		nn += n
		if err != nil {
			return nn, err
		}
	}
	return nn, nil
}

// unmarshalRecords always copies the payloads, so buf can be collected
// after the call
func unmarshalRecords(buf []byte) ([]records.Record, error) {
	nn, cnt, err := xbinary.UnmarshalUint32(buf)
	if err != nil {
		return nil, err
	}
	res := make([]records.Record, 0, cnt)
	for i := uint32(0); i < cnt; i++ {
		n, r, err := records.Unmarshal(buf[nn:], true)
		if err != nil {
			return nil, err
		}
		nn += n
		res = append(res, r)
	}
	return res, nil
}

// names
func (wn writableNames) WritableSize() int {
	return 4 + len(wn)*name.Len
}

func (wn writableNames) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	nn, err := ow.WriteUint32(uint32(len(wn)))
	if err != nil {
		return nn, err
	}
	for _, n := range wn {
		n1, err := ow.WritePureBytes(n[:])
		nn += n1
		if err != nil {
			return nn, err
		}
	}
	return nn, nil
}

func unmarshalNames(buf []byte) ([]name.Name, error) {
	nn, cnt, err := xbinary.UnmarshalUint32(buf)
	if err != nil {
		return nil, err
	}
	res := make([]name.Name, cnt)
	for i := range res {
		n, err := unmarshalName(buf[nn:], &res[i])
		if err != nil {
			return nil, err
		}
		nn += n
	}
	return res, nil
}

// int64
func (wi writableInt64) WritableSize() int {
	return 8
}

func (wi writableInt64) WriteTo(ow *xbinary.ObjectsWriter) (int, error) {
	return ow.WriteUint64(uint64(wi))
}

func unmarshalInt64(buf []byte) (int64, error) {
	_, v, err := xbinary.UnmarshalUint64(buf)
	return int64(v), err
}

// helpers
func unmarshalName(buf []byte, n *name.Name) (int, error) {
	if len(buf) < name.Len {
		return 0, errors.Errorf("not enough bytes for a name, expected %d, but %d", name.Len, len(buf))
	}
	copy(n[:], buf)
	return name.Len, nil
}

func getMetadataSize(md store.Metadata) int {
	res := 4
	for k, v := range md {
		res += xbinary.WritableStringSize(k) + xbinary.WritableStringSize(v)
	}
	return res
}

func writeMetadata(md store.Metadata, ow *xbinary.ObjectsWriter) (int, error) {
	nn, err := ow.WriteUint32(uint32(len(md)))
	if err != nil {
		return nn, err
	}
	for k, v := range md {
		n, err := ow.WriteString(k)
		nn += n
		if err != nil {
			return nn, err
		}
		n, err = ow.WriteString(v)
		nn += n
		if err != nil {
			return nn, err
		}
	}
	return nn, nil
}

func unmarshalMetadata(buf []byte, md *store.Metadata) (int, error) {
	nn, cnt, err := xbinary.UnmarshalUint32(buf)
	if err != nil {
		return nn, err
	}
	res := make(store.Metadata, cnt)
	for i := uint32(0); i < cnt; i++ {
		n, k, err := xbinary.UnmarshalString(buf[nn:], true)
		nn += n
		if err != nil {
			return nn, err
		}
		n, v, err := xbinary.UnmarshalString(buf[nn:], true)
		nn += n
		if err != nil {
			return nn, err
		}
		res[k] = v
	}
	*md = res
	return nn, nil
}
