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
store package contains interfaces for the durable storage of logs. A Store
keeps many logs, each log is an append-only sequence of records numbered
from 1 without gaps.

Backends register themselves by RegisterBackend() and are selected by the
Config.Type value in New().
*/
package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/pkg/errors"
)

type (
	// Store manages logs of one backend.
	Store interface {
		// Close closes the store and all logs opened through it
		io.Closer

		// Create allocates a new empty log with the metadata provided. It
		// returns status.AlreadyExists if the log with the name exists.
		Create(ctx context.Context, n name.Name, md Metadata) (Log, error)

		// Open opens an existing log. It returns status.NotFound if there
		// is no such log.
		Open(ctx context.Context, n name.Name) (Log, error)

		// List returns names of all logs known by the store
		List(ctx context.Context) ([]name.Name, error)
	}

	// Log is an open log of a Store. Append operations are serialized by
	// the implementation, Read can be called concurrently with Append and
	// other reads.
	Log interface {
		// Close releases the log resources. All operations after the call
		// return status.NotOpen
		io.Closer

		// Name returns the log name
		Name() name.Name

		// Metadata returns the metadata the log was created with
		Metadata() Metadata

		// LastRecno returns the number of the last record written, 0 if
		// the log is empty
		LastRecno() int64

		// Append assigns the next record number to data, stamps it by the
		// current time and persists it. It returns the record stored.
		Append(ctx context.Context, data []byte) (records.Record, error)

		// Read returns the record by its number. It returns status.NotFound
		// if recno is out of [1..LastRecno()] range.
		Read(ctx context.Context, recno int64) (records.Record, error)
	}

	// Metadata is a set of key-value pairs associated with a log when it
	// is created. Keys are 4 letter ids by convention.
	Metadata map[string]string

	// Backend creates a Store by the config provided
	Backend func(cfg *Config) (Store, error)
)

const (
	// MdExternalName contains the human readable name the log name was
	// derived from
	MdExternalName = "xid"
	// MdCreationTime is set by the store when a log is created
	MdCreationTime = "ctim"
)

// ErrAlreadyOpened is returned by Store.Open() when the log is opened
// already and not closed yet
var ErrAlreadyOpened = errors.New("the log is already opened")

var (
	bLock    sync.Mutex
	backends = make(map[string]Backend)
)

// RegisterBackend makes the backend available by the name for New
func RegisterBackend(tp string, b Backend) {
	bLock.Lock()
	defer bLock.Unlock()
	if _, ok := backends[tp]; ok {
		panic(fmt.Sprintf("backend %s is registered twice", tp))
	}
	backends[tp] = b
}

// Backends returns the names of registered backends
func Backends() []string {
	bLock.Lock()
	defer bLock.Unlock()
	res := make([]string, 0, len(backends))
	for k := range backends {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// New creates the Store by cfg.Type
func New(cfg *Config) (Store, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	bLock.Lock()
	b, ok := backends[cfg.Type]
	bLock.Unlock()
	if !ok {
		return nil, errors.Errorf("unknown store type %q, known ones are %v", cfg.Type, Backends())
	}
	return b(cfg)
}

// Copy returns a copy of md with an extra space for n more keys
func (md Metadata) Copy(n int) Metadata {
	res := make(Metadata, len(md)+n)
	for k, v := range md {
		res[k] = v
	}
	return res
}

func (md Metadata) String() string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	res := "{"
	for i, k := range keys {
		if i > 0 {
			res += ", "
		}
		res += k + "=" + md[k]
	}
	return res + "}"
}
