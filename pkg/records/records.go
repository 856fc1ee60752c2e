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
	"fmt"
	"time"
)

type (
	// Timestamp is the moment a record was committed to a log. Accuracy
	// contains the estimated clock accuracy in seconds at the moment the
	// timestamp was taken.
	Timestamp struct {
		Sec      int64
		Nsec     int32
		Accuracy float32
	}

	// Record is one immutable entry of a log. Recno is assigned by the
	// store when the record is appended and it is never changed after that.
	Record struct {
		Recno int64
		Ts    Timestamp
		Data  []byte
	}
)

// TimeLayout is used for the textual form of a Timestamp
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewTimestamp makes the Timestamp from t with the accuracy provided
func NewTimestamp(t time.Time, accuracy float32) Timestamp {
	return Timestamp{Sec: t.Unix(), Nsec: int32(t.Nanosecond()), Accuracy: accuracy}
}

// Now returns the current Timestamp with the accuracy provided
func Now(accuracy float32) Timestamp {
	return NewTimestamp(time.Now(), accuracy)
}

// Time returns the timestamp as time.Time
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Sec, int64(ts.Nsec))
}

// IsZero returns true if the timestamp is not set
func (ts Timestamp) IsZero() bool {
	return ts.Sec == 0 && ts.Nsec == 0
}

func (ts Timestamp) String() string {
	if ts.IsZero() {
		return "(none)"
	}
	return ts.Time().UTC().Format(TimeLayout)
}

// Copy returns the record with its own copy of the payload
func (r Record) Copy() Record {
	if r.Data != nil {
		d := make([]byte, len(r.Data))
		copy(d, r.Data)
		r.Data = d
	}
	return r
}

func (r Record) String() string {
	return fmt.Sprintf("{recno=%d, ts=%s, accuracy=%g, len=%d}", r.Recno, r.Ts, r.Ts.Accuracy, len(r.Data))
}
