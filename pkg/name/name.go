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
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/jugador87/gdp/pkg/status"
	"github.com/pkg/errors"
)

type (
	// Name is the binary identifier of a log
	Name [Len]byte
)

const (
	// Len is the binary name length
	Len = 32
	// PrintableLen is the length of the printable (base64url) name form
	PrintableLen = 43
)

var encoding = base64.RawURLEncoding

// Zero is the empty name, which never identifies a log
var Zero Name

// Parse turns a string into a Name. A string of PrintableLen characters,
// which is a valid base64url encoding, is decoded directly. Any other
// non-empty string is considered as a human readable name and it is hashed
// with SHA-256 to get the binary form.
func Parse(s string) (Name, error) {
	if len(s) == 0 {
		return Zero, status.NameInvalid
	}
	if len(s) == PrintableLen {
		if n, err := FromPrintable(s); err == nil {
			return n, nil
		}
	}
	return FromHuman(s), nil
}

// FromPrintable decodes the printable form only, it doesn't fall back to
// hashing.
func FromPrintable(s string) (Name, error) {
	var n Name
	if len(s) != PrintableLen {
		return n, status.NameInvalid
	}
	b, err := encoding.DecodeString(s)
	if err != nil || len(b) != Len {
		return n, errors.Wrapf(status.NameInvalid, "could not decode %q", s)
	}
	copy(n[:], b)
	return n, nil
}

// FromHuman returns the SHA-256 of the s as a Name
func FromHuman(s string) Name {
	return Name(sha256.Sum256([]byte(s)))
}

// FromBytes copies the binary name from b, which must be Len bytes long
func FromBytes(b []byte) (Name, error) {
	var n Name
	if len(b) != Len {
		return n, status.NameInvalid
	}
	copy(n[:], b)
	return n, nil
}

// New returns a random name
func New() Name {
	var n Name
	if _, err := rand.Read(n[:]); err != nil {
		panic(errors.Wrapf(err, "could not read random bytes for a new name"))
	}
	return n
}

// IsZero returns true if n is not set
func (n Name) IsZero() bool {
	return n == Zero
}

// Hex returns the hex representation of the name
func (n Name) Hex() string {
	return hex.EncodeToString(n[:])
}

// String returns the printable form of the name
func (n Name) String() string {
	return encoding.EncodeToString(n[:])
}
