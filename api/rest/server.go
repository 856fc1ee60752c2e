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

// Package rest contains the HTTP front end of the daemon. Logs are available
// under /gdp/v1/gcl, all responses except subscriptions are JSON envelopes.
// Subscriptions are delivered as Server-Sent Events.
package rest

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp/pkg/gcl"
	"github.com/pkg/errors"
)

type (
	// Server is the REST front end component
	Server struct {
		Gcl  *gcl.Service `inject:""`
		Addr string       `inject:"restAddr"`

		srv    *http.Server
		lis    net.Listener
		done   chan error
		logger log4g.Logger
	}
)

const (
	// PathPrefix is the root of the logs resources
	PathPrefix = "/gdp/v1/gcl"

	cShutdownTimeout = 5 * time.Second
	cMaxBodySize     = 16 << 20
)

func NewServer() *Server {
	s := new(Server)
	s.logger = log4g.GetLogger("rest.Server")
	return s
}

// Init is part of linker.Initializer. The server doesn't listen if the
// address is empty.
func (s *Server) Init(ctx context.Context) error {
	if s.Addr == "" {
		s.logger.Info("Init(): no address, REST is disabled")
		return nil
	}

	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "could not listen REST on %s", s.Addr)
	}
	s.lis = l
	s.srv = &http.Server{Handler: s.Handler()}
	s.logger = s.logger.WithId("{" + l.Addr().String() + "}").(log4g.Logger)
	s.done = make(chan error, 1)
	go func() {
		s.logger.Info("serving")
		s.done <- s.srv.Serve(l)
	}()
	return nil
}

// Shutdown is part of linker.Shutdowner
func (s *Server) Shutdown() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("Shutdown(): err=", err)
		s.srv.Close()
	}
	err := <-s.done
	s.logger.Info("Shutdown(): stopped, err=", err)
}

// ListenAddr returns the address the server listens on, or nil if the
// server is disabled
func (s *Server) ListenAddr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Handler returns the http.Handler which serves the logs resources
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathPrefix, s.handleRoot)
	mux.HandleFunc(PathPrefix+"/", s.handleLog)
	return cors(mux)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
