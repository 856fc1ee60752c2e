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

package records

// ResolveRecno turns a requested record number into an absolute one for
// the log which last record is last. 0 means the first record, negative
// values count from the end, so -1 is the last record. The result is never
// less than 1, but it can be greater than last.
func ResolveRecno(recno, last int64) int64 {
	switch {
	case recno > 0:
		return recno
	case recno == 0:
		return 1
	}
	recno += last + 1
	if recno < 1 {
		return 1
	}
	return recno
}
