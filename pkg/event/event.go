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

/*
event package delivers records of a log as a queue of typed events. A
Stream is created either by Multiread, which delivers a bounded range of
the existing records, or by Subscribe, which delivers existing records and
then follows the log as new records are appended.

Each Stream is served by one producer goroutine. The producer takes a
credit for every event it queues and the consumer returns the credit by
Event.Release(), so a consumer which doesn't release events stalls only
its own stream.
*/
package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
)

type (
	// Type defines the kind of an event
	Type int

	// Event is one item of a Stream. The event belongs to the consumer
	// after it is returned by Next or TryNext, and it must be released
	// by Release() exactly once.
	Event struct {
		Type Type
		Log  name.Name
		// Record is set for Data events only
		Record *records.Record
		// Status is OK unless the stream was stopped by an error
		Status status.Status

		s        *Stream
		released int32
	}

	// Source is the view of a log the engine reads records from. It is
	// implemented by local log handles and by remote logs of the RPC client.
	Source interface {
		// Name returns the log name
		Name() name.Name

		// Read returns the record by its absolute number, status.NotFound
		// is returned for a record which is not written yet.
		Read(ctx context.Context, recno int64) (records.Record, error)

		// LastRecno returns the last record number of the log
		LastRecno(ctx context.Context) (int64, error)

		// Wait blocks until the log has a record after the record number
		// provided, or the ctx is closed. It returns the last record number.
		Wait(ctx context.Context, after int64) (int64, error)
	}
)

const (
	// Data event carries a record
	Data Type = iota + 1
	// EndOfSubscription is the last event of a stream which delivered all
	// the records it was requested for
	EndOfSubscription
	// Shutdown is the last event of a subscription which was stopped by
	// the engine shutdown
	Shutdown
)

var typeNames = map[Type]string{
	Data:              "DATA",
	EndOfSubscription: "EOS",
	Shutdown:          "SHUTDOWN",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// Release returns the event credit to its stream. Calls after the first
// one are ignored.
func (e *Event) Release() {
	if !atomic.CompareAndSwapInt32(&e.released, 0, 1) {
		return
	}
	if e.s != nil {
		e.s.release()
	}
}

func (e *Event) String() string {
	if e.Record != nil {
		return fmt.Sprintf("{type=%s, log=%s, rec=%s}", e.Type, e.Log, e.Record)
	}
	return fmt.Sprintf("{type=%s, log=%s, status=%s}", e.Type, e.Log, e.Status)
}
