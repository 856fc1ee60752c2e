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

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesCopy(t *testing.T) {
	e := []byte{0, 1, 2, 3}
	a := BytesCopy(e)
	assert.Equal(t, e, a)
	assert.Equal(t, cap(e), cap(a))

	a[0] = 10
	assert.Equal(t, byte(0), e[0])

	assert.Nil(t, BytesCopy(nil))
}
