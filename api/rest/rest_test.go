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
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jugador87/gdp/api"
	"github.com/jugador87/gdp/pkg/event"
	"github.com/jugador87/gdp/pkg/gcl"
	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/status"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/jugador87/gdp/pkg/store/memstore"
	"github.com/stretchr/testify/assert"
)

type testEnv struct {
	eng *event.Engine
	svc *gcl.Service
	hs  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	ctx := context.Background()
	te := new(testEnv)
	te.eng = event.NewEngine()
	te.eng.Init(ctx)

	te.svc = gcl.NewService()
	te.svc.Store = memstore.New(store.GetDefaultConfig())
	te.svc.Engine = te.eng
	if err := te.svc.Init(ctx); err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}

	s := NewServer()
	s.Gcl = te.svc
	te.hs = httptest.NewServer(s.Handler())
	return te
}

func (te *testEnv) close() {
	te.hs.Close()
	te.svc.Shutdown()
	te.eng.Shutdown()
}

func (te *testEnv) do(t *testing.T, method, path string, body []byte) (int, *Envelope) {
	req, err := http.NewRequest(method, te.hs.URL+PathPrefix+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	defer resp.Body.Close()

	env := new(Envelope)
	if err := json.NewDecoder(resp.Body).Decode(env); err != nil {
		t.Fatal("Expecting JSON envelope, but err=", err)
	}
	return resp.StatusCode, env
}

func TestCreateList(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	code, env := te.do(t, "POST", "", []byte(`{"name":"sensor-1","metadata":{"dsc":"test"}}`))
	assert.Equal(t, http.StatusCreated, code)
	assert.True(t, env.IsOk)
	assert.Equal(t, name.FromHuman("sensor-1").String(), env.GclName)

	h, err := te.svc.Open(context.Background(), name.FromHuman("sensor-1"), gcl.ModeReadOnly)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	assert.Equal(t, "sensor-1", h.Metadata()[store.MdExternalName])
	assert.Equal(t, "test", h.Metadata()["dsc"])
	h.Close()

	code, env = te.do(t, "POST", "", []byte(`{"name":"sensor-1"}`))
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.IsOk)
	assert.Equal(t, status.AlreadyExists.Hex(), env.Code)

	code, env = te.do(t, "POST", "", nil)
	assert.Equal(t, http.StatusCreated, code)
	assert.Len(t, env.GclName, name.PrintableLen)

	code, env = te.do(t, "GET", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, env.Gcls, 2)

	code, _ = te.do(t, "POST", "", []byte(`{"name":`))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAppendRead(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	te.do(t, "POST", "", []byte(`{"name":"abc"}`))
	for _, v := range []string{"one", "two", "three"} {
		code, env := te.do(t, "POST", "/abc", []byte(v))
		assert.Equal(t, http.StatusOK, code)
		if len(env.Records) != 1 {
			t.Fatal("Expecting one record in the response, but got ", env.Records)
		}
		assert.Equal(t, v, env.Records[0].Value)
	}

	code, env := te.do(t, "GET", "/abc", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, len(env.Records))
	assert.Equal(t, int64(3), env.Records[0].Recno)
	assert.Equal(t, "three", env.Records[0].Value)

	_, env = te.do(t, "GET", "/abc?recno=1&nrecs=5", nil)
	if len(env.Records) != 3 {
		t.Fatal("Expecting 3 records, but got ", env.Records)
	}
	assert.Equal(t, "one", env.Records[0].Value)
	assert.Equal(t, "two", env.Records[1].Value)

	_, env = te.do(t, "GET", "/abc/2", nil)
	assert.Equal(t, "two", env.Records[0].Value)
	assert.NotEmpty(t, env.Records[0].Timestamp)

	code, env = te.do(t, "GET", "/abc/4", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, status.NotFound.Hex(), env.Code)

	code, _ = te.do(t, "GET", "/abc/xyz", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = te.do(t, "GET", "/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = te.do(t, "POST", "/unknown", []byte("data"))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestReadLimit(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	ctx := context.Background()
	h, err := te.svc.Create(ctx, name.FromHuman("big"), nil)
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	for i := 0; i < api.MaxReadRecords+10; i++ {
		h.Append(ctx, []byte("r"))
	}
	h.Close()

	code, env := te.do(t, "GET", "/big?recno=1&nrecs=1000000000", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, api.MaxReadRecords, len(env.Records))
	assert.Equal(t, int64(api.MaxReadRecords), env.Records[len(env.Records)-1].Recno)
}

func TestSubscribe(t *testing.T) {
	te := newTestEnv(t)
	defer te.close()

	te.do(t, "POST", "", []byte(`{"name":"sub"}`))
	te.do(t, "POST", "/sub", []byte("r1"))

	done := make(chan string)
	go func() {
		resp, err := http.Get(te.hs.URL + PathPrefix + "/sub/subscribe?recno=1&nrecs=2")
		if err != nil {
			done <- err.Error()
			return
		}
		defer resp.Body.Close()
		body, _ := ioutil.ReadAll(resp.Body)
		done <- string(body)
	}()

	// the subscription starts from recno 1, so the append order doesn't matter
	te.do(t, "POST", "/sub", []byte("r2"))
	body := <-done

	assert.True(t, strings.Contains(body, `"value":"r1"`), body)
	assert.True(t, strings.Contains(body, `"value":"r2"`), body)
	assert.True(t, strings.Contains(body, "event: eos\n"), body)
	assert.True(t, strings.Index(body, `"r1"`) < strings.Index(body, `"r2"`))
}

func TestHttpCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, httpCode(status.OK))
	assert.Equal(t, http.StatusNotFound, httpCode(status.NotFound))
	assert.Equal(t, http.StatusConflict, httpCode(status.AlreadyExists))
	assert.Equal(t, http.StatusBadRequest, httpCode(status.BadIOMode))
	assert.Equal(t, http.StatusInternalServerError, httpCode(status.CorruptLog))
}
