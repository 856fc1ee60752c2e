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

// Package util contains small helpers shared by the store backends
package util

import (
	"github.com/pkg/errors"
)

// ErrWrongState is returned by Close() of an object which is closed already
var ErrWrongState = errors.New("wrong state, probably already closed")

// BytesCopy returns a copy of src, which doesn't share memory with it. Empty
// slices are returned as is.
func BytesCopy(src []byte) []byte {
	if len(src) == 0 {
		return src
	}
	b := make([]byte, len(src))
	copy(b, src)
	return b
}
