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
	"time"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/api"
	"github.com/jugador87/gdp/pkg/gcl"
	"github.com/jugador87/gdp/pkg/status"
	rrpc "github.com/logrange/range/pkg/rpc"
)

type (
	// ServerLogs implements the logs endpoints over gcl.Service. Every
	// request opens a handle of the log and closes it when it is done,
	// the service cache keeps the log open between requests.
	ServerLogs struct {
		Gcl     *gcl.Service    `inject:""`
		MainCtx context.Context `inject:"mainCtx"`

		logger log4g.Logger
	}
)

func NewServerLogs() *ServerLogs {
	sl := new(ServerLogs)
	sl.logger = log4g.GetLogger("rpc.logs")
	return sl
}

func (sl *ServerLogs) create(reqId int32, reqBody []byte, sc *rrpc.ServerConn) {
	var cr createReq
	_, err := unmarshalCreateReq(reqBody, &cr)
	sc.Collect(reqBody)
	if err != nil {
		sl.logger.Warn("create(): could not unmarshal the request err=", err)
		sc.SendResponse(reqId, status.InvalidArgument, cEmptyResponse)
		return
	}

	h, err := sl.Gcl.Create(sl.MainCtx, cr.n, cr.md)
	if err != nil {
		sl.sendError(reqId, "create", err, sc)
		return
	}
	li := logInfo(h)
	h.Close()
	sc.SendResponse(reqId, nil, &li)
}

func (sl *ServerLogs) info(reqId int32, reqBody []byte, sc *rrpc.ServerConn) {
	h, _, ok := sl.openLog(reqId, reqBody, gcl.ModeReadOnly, sc)
	if !ok {
		return
	}
	li := logInfo(h)
	h.Close()
	sc.SendResponse(reqId, nil, &li)
}

func (sl *ServerLogs) list(reqId int32, reqBody []byte, sc *rrpc.ServerConn) {
	sc.Collect(reqBody)
	names, err := sl.Gcl.List(sl.MainCtx)
	if err != nil {
		sl.sendError(reqId, "list", err, sc)
		return
	}
	sc.SendResponse(reqId, nil, writableNames(names))
}

func (sl *ServerLogs) append(reqId int32, reqBody []byte, sc *rrpc.ServerConn) {
	h, lr, ok := sl.openLog(reqId, reqBody, gcl.ModeAppendOnly, sc)
	if !ok {
		return
	}
	defer h.Close()

	rec, err := h.Append(sl.MainCtx, lr.data)
	if err != nil {
		sl.sendError(reqId, "append", err, sc)
		return
	}
	// the response carries the record without the payload
	rec.Data = nil
	sc.SendResponse(reqId, nil, writableRecords{rec})
}

func (sl *ServerLogs) read(reqId int32, reqBody []byte, sc *rrpc.ServerConn) {
	h, lr, ok := sl.openLog(reqId, reqBody, gcl.ModeReadOnly, sc)
	if !ok {
		return
	}
	defer h.Close()

	nrecs := lr.num2
	if nrecs <= 0 || nrecs > api.MaxReadRecords {
		nrecs = api.MaxReadRecords
	}
	recs, err := h.ReadAll(sl.MainCtx, lr.num1, nrecs)
	if err == nil && len(recs) == 0 {
		err = status.NotFound
	}
	if err != nil {
		sl.sendError(reqId, "read", err, sc)
		return
	}
	sc.SendResponse(reqId, nil, writableRecords(recs))
}

// wait blocks until new data, so it is served in its own goroutine to not
// hold other requests of the connection
func (sl *ServerLogs) wait(reqId int32, reqBody []byte, sc *rrpc.ServerConn) {
	h, lr, ok := sl.openLog(reqId, reqBody, gcl.ModeReadOnly, sc)
	if !ok {
		return
	}

	to := lr.num2
	if to <= 0 || to > api.MaxWaitTimeoutMs {
		to = api.MaxWaitTimeoutMs
	}
	go func() {
		defer h.Close()
		ctx, cancel := context.WithTimeout(sl.MainCtx, time.Duration(to)*time.Millisecond)
		defer cancel()

		last, err := h.Wait(ctx, lr.num1)
		if err == context.DeadlineExceeded {
			err = nil
		}
		if err != nil {
			sl.sendError(reqId, "wait", err, sc)
			return
		}
		sc.SendResponse(reqId, nil, writableInt64(last))
	}()
}

// openLog unmarshals logReq from reqBody and opens the log. If it fails,
// the response is sent and false is returned.
func (sl *ServerLogs) openLog(reqId int32, reqBody []byte, mode gcl.Mode, sc *rrpc.ServerConn) (*gcl.Handle, logReq, bool) {
	var lr logReq
	_, err := unmarshalLogReq(reqBody, &lr, true)
	sc.Collect(reqBody)
	if err != nil {
		sl.logger.Warn("openLog(): could not unmarshal the request err=", err)
		sc.SendResponse(reqId, status.InvalidArgument, cEmptyResponse)
		return nil, lr, false
	}

	h, err := sl.Gcl.Open(sl.MainCtx, lr.n, mode)
	if err != nil {
		sl.sendError(reqId, "openLog", err, sc)
		return nil, lr, false
	}
	return h, lr, true
}

// sendError reports the error status to the client, the error details
// are logged only
func (sl *ServerLogs) sendError(reqId int32, op string, err error, sc *rrpc.ServerConn) {
	st := status.FromError(err)
	if st.IsError() && st != status.NotFound && st != status.AlreadyExists {
		sl.logger.Warn(op, "(): failed with err=", err)
	} else {
		sl.logger.Debug(op, "(): err=", err)
	}
	sc.SendResponse(reqId, st, cEmptyResponse)
}

func logInfo(h *gcl.Handle) writableLogInfo {
	last, _ := h.LastRecno(context.Background())
	return writableLogInfo{Name: h.Name(), Metadata: h.Metadata(), LastRecno: last}
}
