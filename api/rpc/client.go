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
	"net"
	"sync"
	"time"

	"github.com/jugador87/gdp/api"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/store"
	rrpc "github.com/logrange/range/pkg/rpc"
	"github.com/logrange/range/pkg/transport"
	"github.com/logrange/range/pkg/utils/encoding/xbinary"
)

type (
	// Client is rpc client which implements api.Client
	Client struct {
		lock sync.Mutex
		rc   rrpc.Client
		cfg  transport.Config
	}
)

var _ api.Client = (*Client)(nil)

// NewClient creates new Client for connecting to the server, using the transport config tcfg
func NewClient(tcfg transport.Config) (*Client, error) {
	if err := tcfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config; %v", err)
	}

	c := new(Client)
	c.cfg = tcfg

	err := c.connect()
	return c, err
}

func (c *Client) Close() error {
	c.lock.Lock()
	var err error
	if c.rc != nil {
		err = c.rc.Close()
		c.rc = nil
	}
	c.lock.Unlock()
	return err
}

func (c *Client) connect() error {
	if c.rc != nil {
		return nil
	}

	var (
		conn net.Conn
		err  error
	)

	maxRetry := 3
	for {
		maxRetry--
		conn, err = transport.NewClientConn(c.cfg)
		if err == nil || maxRetry <= 0 {
			break
		}
	}

	if err != nil {
		return err
	}

	c.rc = rrpc.NewClient(conn)
	return nil
}

// call makes the remote call. The connection is dropped if the call fails
// with a transport error, so the next call reconnects. The response buffer
// must be collected by the caller.
func (c *Client) call(ctx context.Context, funcId int, msg xbinary.Writable) ([]byte, error) {
	c.lock.Lock()
	if err := c.connect(); err != nil {
		c.lock.Unlock()
		return nil, err
	}
	rc := c.rc
	c.lock.Unlock()

	resp, opErr, err := rc.Call(ctx, funcId, msg)
	if err != nil {
		if ctx.Err() == nil {
			c.lock.Lock()
			if c.rc == rc {
				rc.Close()
				c.rc = nil
			}
			c.lock.Unlock()
		}
		return nil, err
	}
	if opErr != nil {
		rc.Collect(resp)
		return nil, opErr
	}
	return resp, nil
}

func (c *Client) collect(buf []byte) {
	c.lock.Lock()
	rc := c.rc
	c.lock.Unlock()
	if rc != nil {
		rc.Collect(buf)
	}
}

func (c *Client) Create(ctx context.Context, n name.Name, md store.Metadata) (api.LogInfo, error) {
	return c.logInfo(ctx, cRpcEpLogsCreate, &createReq{n: n, md: md})
}

func (c *Client) Info(ctx context.Context, n name.Name) (api.LogInfo, error) {
	return c.logInfo(ctx, cRpcEpLogsInfo, &logReq{n: n})
}

func (c *Client) logInfo(ctx context.Context, funcId int, msg xbinary.Writable) (api.LogInfo, error) {
	resp, err := c.call(ctx, funcId, msg)
	if err != nil {
		return api.LogInfo{}, err
	}
	var li api.LogInfo
	_, err = unmarshalLogInfo(resp, &li)
	c.collect(resp)
	return li, err
}

func (c *Client) List(ctx context.Context) ([]name.Name, error) {
	resp, err := c.call(ctx, cRpcEpLogsList, cEmptyResponse)
	if err != nil {
		return nil, err
	}
	res, err := unmarshalNames(resp)
	c.collect(resp)
	return res, err
}

func (c *Client) Append(ctx context.Context, n name.Name, data []byte) (records.Record, error) {
	resp, err := c.call(ctx, cRpcEpLogsAppend, &logReq{n: n, data: data})
	if err != nil {
		return records.Record{}, err
	}
	recs, err := unmarshalRecords(resp)
	c.collect(resp)
	if err != nil {
		return records.Record{}, err
	}
	if len(recs) != 1 {
		return records.Record{}, fmt.Errorf("expected one record in the append response, but got %d", len(recs))
	}
	rec := recs[0]
	rec.Data = data
	return rec, nil
}

func (c *Client) Read(ctx context.Context, n name.Name, recno int64, nrecs int) ([]records.Record, error) {
	resp, err := c.call(ctx, cRpcEpLogsRead, &logReq{n: n, num1: recno, num2: int64(nrecs)})
	if err != nil {
		return nil, err
	}
	res, err := unmarshalRecords(resp)
	c.collect(resp)
	return res, err
}

func (c *Client) Wait(ctx context.Context, n name.Name, after int64) (int64, error) {
	for {
		// the server bounds every wait, so the request is repeated until
		// the data comes or ctx is done
		to := int64(api.MaxWaitTimeoutMs)
		if dl, ok := ctx.Deadline(); ok {
			ms := int64(time.Until(dl) / time.Millisecond)
			if ms < 0 {
				return 0, context.DeadlineExceeded
			}
			if ms < to {
				to = ms + 1
			}
		}
		resp, err := c.call(ctx, cRpcEpLogsWait, &logReq{n: n, num1: after, num2: to})
		if err != nil {
			return 0, err
		}
		last, err := unmarshalInt64(resp)
		c.collect(resp)
		if err != nil || last > after {
			return last, err
		}
		if err = ctx.Err(); err != nil {
			return last, err
		}
	}
}

// Log returns the remote log as event.Source, so it can be used for
// multiread and subscriptions through the local event.Engine
func (c *Client) Log(n name.Name) *RemoteLog {
	return NewRemoteLog(c, n)
}
