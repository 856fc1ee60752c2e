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
	"context"
	"fmt"

	"github.com/jugador87/gdp/api"
	"github.com/jugador87/gdp/pkg/event"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
)

type (
	// RemoteLog is a log of the server accessed through api.Client. It
	// implements event.Source.
	RemoteLog struct {
		c api.Client
		n name.Name
	}
)

var _ event.Source = (*RemoteLog)(nil)

// NewRemoteLog returns the log n of the server c is connected to
func NewRemoteLog(c api.Client, n name.Name) *RemoteLog {
	return &RemoteLog{c: c, n: n}
}

func (rl *RemoteLog) Name() name.Name {
	return rl.n
}

func (rl *RemoteLog) Read(ctx context.Context, recno int64) (records.Record, error) {
	recs, err := rl.c.Read(ctx, rl.n, recno, 1)
	if err != nil {
		return records.Record{}, err
	}
	if len(recs) == 0 {
		return records.Record{}, status.NotFound
	}
	return recs[0], nil
}

func (rl *RemoteLog) LastRecno(ctx context.Context) (int64, error) {
	li, err := rl.c.Info(ctx, rl.n)
	return li.LastRecno, err
}

func (rl *RemoteLog) Wait(ctx context.Context, after int64) (int64, error) {
	return rl.c.Wait(ctx, rl.n, after)
}

func (rl *RemoteLog) String() string {
	return fmt.Sprintf("{remote log %s}", rl.n)
}
