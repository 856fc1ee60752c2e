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
	"net"
	"sync"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/pkg/status"
	rrpc "github.com/logrange/range/pkg/rpc"
	"github.com/logrange/range/pkg/transport"
	"github.com/pkg/errors"
)

type (
	// Server accepts RPC connections and serves the logs endpoints
	Server struct {
		ConnConfig transport.Config `inject:"rpcTransport"`
		SrvLogs    *ServerLogs      `inject:""`

		rs     rrpc.Server
		ln     net.Listener
		wg     sync.WaitGroup
		logger log4g.Logger
	}
)

// RPC endpoints
const (
	cRpcEpLogsCreate = 1
	cRpcEpLogsInfo   = 2
	cRpcEpLogsList   = 3
	cRpcEpLogsAppend = 4
	cRpcEpLogsRead   = 5
	cRpcEpLogsWait   = 6
)

func init() {
	// statuses travel as text, so the client gets the same values back
	for _, st := range status.Known() {
		rrpc.RegisterError(st)
	}
}

func NewServer() *Server {
	return new(Server)
}

// Init is part of linker.Initializer interface
func (s *Server) Init(ctx context.Context) error {
	l, err := transport.NewServerListener(s.ConnConfig)
	if err != nil {
		return errors.Wrapf(err, "Could not create transport listener for %s", s.ConnConfig)
	}
	s.logger = log4g.GetLogger("rpc.Server").WithId("{" + l.Addr().String() + "}").(log4g.Logger)
	s.rs = rrpc.NewServer()
	s.ln = l

	s.rs.Register(cRpcEpLogsCreate, s.SrvLogs.create)
	s.rs.Register(cRpcEpLogsInfo, s.SrvLogs.info)
	s.rs.Register(cRpcEpLogsList, s.SrvLogs.list)
	s.rs.Register(cRpcEpLogsAppend, s.SrvLogs.append)
	s.rs.Register(cRpcEpLogsRead, s.SrvLogs.read)
	s.rs.Register(cRpcEpLogsWait, s.SrvLogs.wait)

	s.wg.Add(1)
	go s.listen()
	return nil
}

// Shutdown is part of linker.Shutdowner interface
func (s *Server) Shutdown() {
	s.ln.Close()
	s.rs.Close()
	s.wg.Wait()
}

// Addr returns the address the server listens on
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) listen() {
	defer s.wg.Done()
	s.logger.Info("listen(): start")
	defer s.logger.Info("listen(): stop")
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.logger.Warn("listen(): got the error when listen socket err=", err)
			return
		}

		err = s.rs.Serve(conn.RemoteAddr().String(), conn)
		if err != nil {
			s.logger.Warn("listen(): could not create new server connection for ", conn.RemoteAddr(), " err=", err)
			conn.Close()
		}
	}
}
