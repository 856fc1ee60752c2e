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

package name

import (
	"crypto/sha256"
	"testing"

	"github.com/jugador87/gdp/pkg/status"
)

func TestPrintableForm(t *testing.T) {
	n := New()
	s := n.String()
	if len(s) != PrintableLen {
		t.Fatal("Expecting printable name of ", PrintableLen, " chars, but got ", s)
	}

	n1, err := Parse(s)
	if err != nil || n1 != n {
		t.Fatal("Expecting same name after parsing ", s, ", but got ", n1, ", err=", err)
	}
}

func TestParseHuman(t *testing.T) {
	n, err := Parse("edu.berkeley.eecs.swarmlab.test")
	if err != nil {
		t.Fatal("Expecting no error, but err=", err)
	}
	if n != Name(sha256.Sum256([]byte("edu.berkeley.eecs.swarmlab.test"))) {
		t.Fatal("Expecting SHA-256 of the human name, but got ", n.Hex())
	}

	// 43 chars, but not a valid base64url string
	s := "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!"
	n, err = Parse(s)
	if err != nil || n != FromHuman(s) {
		t.Fatal("Expecting hashed name for ", s, ", err=", err)
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("")
	if status.FromError(err) != status.NameInvalid {
		t.Fatal("Expecting NameInvalid, but err=", err)
	}
}

func TestFromBytes(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	if err != status.NameInvalid {
		t.Fatal("Expecting NameInvalid, but err=", err)
	}

	n := New()
	n1, err := FromBytes(n[:])
	if err != nil || n1 != n || n1.IsZero() {
		t.Fatal("Expecting ", n, ", but got ", n1, ", err=", err)
	}
	if !Zero.IsZero() {
		t.Fatal("Zero must be zero")
	}
}
