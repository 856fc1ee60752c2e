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

package memstore

import (
	"context"
	"testing"

	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/store"
	"github.com/jugador87/gdp/pkg/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (store.Store, func()) {
		return New(store.GetDefaultConfig()), func() {}
	})
}

func TestAppendCopiesData(t *testing.T) {
	s := New(store.GetDefaultConfig())
	defer s.Close()

	ctx := context.Background()
	l, _ := s.Create(ctx, name.New(), nil)
	buf := []byte("abc")
	l.Append(ctx, buf)
	buf[0] = 'z'

	rec, err := l.Read(ctx, 1)
	if err != nil || string(rec.Data) != "abc" {
		t.Fatal("Expecting abc, but got ", rec, ", err=", err)
	}
}

func TestReadReturnsCopy(t *testing.T) {
	s := New(store.GetDefaultConfig())
	defer s.Close()

	ctx := context.Background()
	l, _ := s.Create(ctx, name.New(), nil)
	l.Append(ctx, []byte("abc"))

	rec, _ := l.Read(ctx, 1)
	rec.Data[0] = 'z'
	rec, err := l.Read(ctx, 1)
	if err != nil || string(rec.Data) != "abc" {
		t.Fatal("Expecting the stored record is not changed, but got ", rec, ", err=", err)
	}
}
