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

package api

import (
	"context"
	"io"

	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/store"
)

type (
	// Client allows to access logs of a remote daemon. The errors returned
	// by operations are status.Status values if the server reported the
	// operation failure, or transport errors otherwise.
	Client interface {
		io.Closer

		// Create creates new log with the metadata provided
		Create(ctx context.Context, n name.Name, md store.Metadata) (LogInfo, error)

		// Info returns the log description
		Info(ctx context.Context, n name.Name) (LogInfo, error)

		// List returns names of all logs of the daemon
		List(ctx context.Context) ([]name.Name, error)

		// Append adds data as the next record of the log and returns the
		// record written
		Append(ctx context.Context, n name.Name, data []byte) (records.Record, error)

		// Read returns up to nrecs (but not more than MaxReadRecords) records
		// starting from recno. Negative recno counts from the end of the log.
		// status.NotFound is returned if the first record doesn't exist, the
		// result is shorter than nrecs if the log ends earlier.
		Read(ctx context.Context, n name.Name, recno int64, nrecs int) ([]records.Record, error)

		// Wait blocks until the log has a record after the one provided, or
		// the ctx is done. It returns the last record number of the log.
		Wait(ctx context.Context, n name.Name, after int64) (int64, error)
	}
)
