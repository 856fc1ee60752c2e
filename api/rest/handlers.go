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

package rest

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jugador87/gdp/api"
	"github.com/jugador87/gdp/pkg/event"
	"github.com/jugador87/gdp/pkg/gcl"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/records"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/pkg/errors"
)

type (
	// Envelope is the body of every JSON response
	Envelope struct {
		IsOk    bool     `json:"error_isok"`
		Code    string   `json:"error_code"`
		Msg     string   `json:"error_msg"`
		GclName string   `json:"gcl_name,omitempty"`
		Gcls    []string `json:"gcls,omitempty"`
		Records []Record `json:"records,omitempty"`
	}

	// Record is the JSON form of records.Record
	Record struct {
		Recno     int64   `json:"recno"`
		Timestamp string  `json:"timestamp"`
		Accuracy  float32 `json:"accuracy"`
		Value     string  `json:"value"`
	}

	// CreateRequest is the body of the create request, both fields are
	// optional. A random name is assigned if Name is empty.
	CreateRequest struct {
		Name     string            `json:"name"`
		Metadata map[string]string `json:"metadata"`
	}
)

// GET lists logs, POST creates a new one
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.list(w, r)
	case http.MethodPost:
		s.create(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleLog serves <name>, <name>/<recno> and <name>/subscribe resources
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, PathPrefix), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.handleRoot(w, r)
		return
	}
	if len(parts) > 2 {
		writeStatus(w, status.InvalidArgument, "")
		return
	}

	n, err := name.Parse(parts[0])
	if err != nil {
		writeStatus(w, status.FromError(err), "")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "subscribe" && r.Method == http.MethodGet:
		s.subscribe(w, r, n)
	case len(parts) == 2 && r.Method == http.MethodGet:
		recno, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			writeStatus(w, status.InvalidArgument, "")
			return
		}
		s.read(w, r, n, recno, 1)
	case len(parts) == 1 && r.Method == http.MethodGet:
		q := r.URL.Query()
		recno, err1 := queryInt(q.Get("recno"), -1)
		nrecs, err2 := queryInt(q.Get("nrecs"), 1)
		if err1 != nil || err2 != nil {
			writeStatus(w, status.InvalidArgument, "")
			return
		}
		s.read(w, r, n, recno, nrecs)
	case len(parts) == 1 && r.Method == http.MethodPost:
		s.append(w, r, n)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	names, err := s.Gcl.List(r.Context())
	if err != nil {
		s.writeError(w, "list", err)
		return
	}
	env := okEnvelope()
	env.Gcls = make([]string, len(names))
	for i, n := range names {
		env.Gcls[i] = n.String()
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, cMaxBodySize))
	if err == nil && len(body) > 0 {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeStatus(w, status.InvalidArgument, err.Error())
		return
	}

	md := store.Metadata(req.Metadata).Copy(1)
	var n name.Name
	if req.Name == "" {
		n = name.New()
	} else {
		if n, err = name.Parse(req.Name); err != nil {
			writeStatus(w, status.FromError(err), "")
			return
		}
		if n.String() != req.Name {
			md[store.MdExternalName] = req.Name
		}
	}

	h, err := s.Gcl.Create(r.Context(), n, md)
	if err != nil {
		s.writeError(w, "create", err)
		return
	}
	h.Close()

	env := okEnvelope()
	env.GclName = n.String()
	writeJSON(w, http.StatusCreated, env)
}

func (s *Server) read(w http.ResponseWriter, r *http.Request, n name.Name, recno, nrecs int64) {
	h, err := s.Gcl.Open(r.Context(), n, gcl.ModeReadOnly)
	if err != nil {
		s.writeError(w, "read", err)
		return
	}
	defer h.Close()

	if nrecs < 1 {
		nrecs = 1
	}
	if nrecs > api.MaxReadRecords {
		nrecs = api.MaxReadRecords
	}
	recs, err := h.ReadAll(r.Context(), recno, nrecs)
	if err == nil && len(recs) == 0 {
		err = status.NotFound
	}
	if err != nil {
		s.writeError(w, "read", err)
		return
	}

	env := okEnvelope()
	env.Records = make([]Record, len(recs))
	for i, rec := range recs {
		env.Records[i] = toRecord(rec)
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) append(w http.ResponseWriter, r *http.Request, n name.Name) {
	data, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, cMaxBodySize))
	if err != nil {
		writeStatus(w, status.InvalidArgument, err.Error())
		return
	}

	h, err := s.Gcl.Open(r.Context(), n, gcl.ModeAppendOnly)
	if err != nil {
		s.writeError(w, "append", err)
		return
	}
	defer h.Close()

	rec, err := h.Append(r.Context(), data)
	if err != nil {
		s.writeError(w, "append", err)
		return
	}
	env := okEnvelope()
	env.Records = []Record{toRecord(rec)}
	writeJSON(w, http.StatusOK, env)
}

// subscribe streams records as Server-Sent Events. Without recno the
// subscription starts from the next record appended.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request, n name.Name) {
	fl, ok := w.(http.Flusher)
	if !ok {
		writeStatus(w, status.NotImplemented, "streaming is not supported")
		return
	}

	q := r.URL.Query()
	nrecs, err := queryInt(q.Get("nrecs"), 0)
	if err != nil {
		writeStatus(w, status.InvalidArgument, "")
		return
	}

	h, err := s.Gcl.Open(r.Context(), n, gcl.ModeReadOnly)
	if err != nil {
		s.writeError(w, "subscribe", err)
		return
	}
	defer h.Close()

	last, err := h.LastRecno(r.Context())
	if err != nil {
		s.writeError(w, "subscribe", err)
		return
	}
	recno, err := queryInt(q.Get("recno"), last+1)
	if err != nil {
		writeStatus(w, status.InvalidArgument, "")
		return
	}

	st, err := h.Subscribe(r.Context(), recno, nrecs)
	if err != nil {
		s.writeError(w, "subscribe", err)
		return
	}
	defer st.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	err = st.ForEach(r.Context(), func(ev *event.Event) error {
		switch ev.Type {
		case event.Data:
			return writeSSE(w, fl, "", toRecord(*ev.Record))
		case event.EndOfSubscription:
			return writeSSE(w, fl, "eos", statusEnvelope(ev.Status, ""))
		case event.Shutdown:
			return writeSSE(w, fl, "shutdown", okEnvelope())
		}
		return nil
	})
	if err != nil {
		s.logger.Debug("subscribe(): ", n, " finished, err=", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	st := status.FromError(err)
	if httpCode(st) == http.StatusInternalServerError {
		s.logger.Warn(op, "(): failed, err=", err)
	}
	writeStatus(w, st, "")
}

func writeSSE(w http.ResponseWriter, fl http.Flusher, evType string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if evType != "" {
		if _, err := w.Write([]byte("event: " + evType + "\n")); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return errors.Wrapf(err, "could not write event")
	}
	fl.Flush()
	return nil
}

func writeStatus(w http.ResponseWriter, st status.Status, msg string) {
	writeJSON(w, httpCode(st), statusEnvelope(st, msg))
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func okEnvelope() *Envelope {
	return statusEnvelope(status.OK, "")
}

func statusEnvelope(st status.Status, msg string) *Envelope {
	env := new(Envelope)
	env.IsOk = st.IsOK()
	env.Code = st.Hex()
	env.Msg = st.Message()
	if msg != "" {
		env.Msg += ": " + msg
	}
	return env
}

func httpCode(st status.Status) int {
	switch st {
	case status.NotFound:
		return http.StatusNotFound
	case status.AlreadyExists:
		return http.StatusConflict
	case status.InvalidArgument, status.NameInvalid, status.BadIOMode:
		return http.StatusBadRequest
	case status.NotImplemented:
		return http.StatusNotImplemented
	}
	if st.IsOK() {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func toRecord(rec records.Record) Record {
	return Record{
		Recno:     rec.Recno,
		Timestamp: rec.Ts.Time().UTC().Format(time.RFC3339Nano),
		Accuracy:  rec.Ts.Accuracy,
		Value:     string(rec.Data),
	}
}

func queryInt(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
