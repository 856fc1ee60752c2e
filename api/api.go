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

// Package api contains the data-types and the Client interface for
// accessing logs of a gdplogd daemon remotely.
//
// This is version v0 of the api and the following rules must be obeyed when
// a change is needed:
//  - Names of existing data-types cannot be changed
//  - Names of struct fields must be capitalized and cannot be changed
//  - Types of already existing fields cannot be changed
//  - Functions params and signatures cannot be changed.
//  - New fields could be added to the existing data structures
//  - New types and structures could be added
//  - New functions could be added either to existing interfaces or to the package
package api

import (
	"fmt"

	"github.com/jugador87/gdp/pkg/name"
	"github.com/jugador87/gdp/pkg/store"
)

type (
	// LogInfo describes a log
	LogInfo struct {
		// Name is the log name
		Name name.Name

		// Metadata contains the key-value pairs the log was created with.
		// Ids like "xid" and "ctim" are described by the store package.
		Metadata store.Metadata

		// LastRecno is the number of the last record, 0 for an empty log
		LastRecno int64
	}
)

const (
	// MaxReadRecords is the maximum number of records returned by one read
	// request
	MaxReadRecords = 1000

	// MaxWaitTimeoutMs is the maximum time the server blocks one wait
	// request
	MaxWaitTimeoutMs = 60000
)

func (li LogInfo) String() string {
	return fmt.Sprintf("{Name: %s, LastRecno: %d, Metadata: %s}", li.Name, li.LastRecno, li.Metadata)
}
