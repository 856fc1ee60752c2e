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

// Package status contains the severity coded result model which is threaded
// through every log operation. A Status is a 32 bit code which holds the
// severity, the registry, the module and the detail of the result. Status
// implements the error interface, so operations return it as a regular error
// and callers recover it by FromError().
package status

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

type (
	// Status is a severity coded operation result. Two statuses are same if
	// their codes are equal.
	Status uint32

	// Severity of a Status. Values below SevWarn are considered successful.
	Severity uint8
)

const (
	SevOK     Severity = 0
	SevWarn   Severity = 4
	SevError  Severity = 5
	SevSevere Severity = 6
	SevAbort  Severity = 7
)

// Code layout: severity(3) | registry(11) | module(8) | detail(10)
const (
	sevBits = 3
	regBits = 11
	modBits = 8
	detBits = 10

	modShift = detBits
	regShift = modShift + modBits
	sevShift = regShift + regBits
)

const (
	// RegistryGeneric is used for the codes shared by all modules
	RegistryGeneric = 0
	// RegistryUCB is the registry the log service codes belong to
	RegistryUCB = 0x0202

	ModGeneric = 0
	ModGDP     = 1
	ModErrno   = 0xFE
)

var (
	OK = New(SevOK, RegistryGeneric, ModGeneric, 0)

	// EndOfFile is the warning reported when a sequence of records is over
	EndOfFile       = New(SevWarn, RegistryGeneric, ModGeneric, 3)
	InvalidArgument = New(SevError, RegistryGeneric, ModGeneric, 2)
	IOFailure       = New(SevError, RegistryGeneric, ModErrno, 5)

	NotImplemented = gdpStatus(SevSevere, 4)
	NotOpen        = gdpStatus(SevError, 10)
	InternalError  = gdpStatus(SevAbort, 12)
	BadIOMode      = gdpStatus(SevError, 13)
	NameInvalid    = gdpStatus(SevError, 14)
	CorruptIndex   = gdpStatus(SevSevere, 18)
	CorruptLog     = gdpStatus(SevSevere, 19)
	ReadOnly       = gdpStatus(SevError, 22)
	// NotFound is returned by reads for a record number which is not
	// written yet. Sequential readers turn it into EndOfFile.
	NotFound      = gdpStatus(SevError, 23)
	AlreadyExists = gdpStatus(SevError, 409)
)

var messages = map[Status]string{
	OK:              "ok",
	EndOfFile:       "end of file",
	InvalidArgument: "invalid argument",
	IOFailure:       "input/output failure",
	NotImplemented:  "not implemented",
	NotOpen:         "log is not open",
	InternalError:   "internal error",
	BadIOMode:       "bad I/O mode",
	NameInvalid:     "invalid log name",
	CorruptIndex:    "corrupt log index",
	CorruptLog:      "corrupt log data",
	ReadOnly:        "log is read-only",
	NotFound:        "not found",
	AlreadyExists:   "already exists",
}

var sevNames = map[Severity]string{
	SevOK:     "OK",
	SevWarn:   "WARN",
	SevError:  "ERROR",
	SevSevere: "SEVERE",
	SevAbort:  "ABORT",
}

// New composes a Status from its parts. Values which don't fit the layout
// are truncated.
func New(sev Severity, registry, module, detail int) Status {
	code := uint32(sev)&(1<<sevBits-1)<<sevShift |
		uint32(registry)&(1<<regBits-1)<<regShift |
		uint32(module)&(1<<modBits-1)<<modShift |
		uint32(detail)&(1<<detBits-1)
	return Status(code)
}

func gdpStatus(sev Severity, detail int) Status {
	return New(sev, RegistryUCB, ModGDP, detail)
}

// Known returns all statuses which have a registered message
func Known() []Status {
	res := make([]Status, 0, len(messages))
	for s := range messages {
		res = append(res, s)
	}
	return res
}

// IsSame returns whether a and b have the same code
func IsSame(a, b Status) bool {
	return a == b
}

// FromError returns the Status carried by err. nil turns to OK, file-system
// not-exist and exist errors are mapped to NotFound and AlreadyExists, any
// other error is reported as IOFailure.
func FromError(err error) Status {
	if err == nil {
		return OK
	}
	c := errors.Cause(err)
	if s, ok := c.(Status); ok {
		return s
	}
	if os.IsNotExist(c) {
		return NotFound
	}
	if os.IsExist(c) {
		return AlreadyExists
	}
	return IOFailure
}

// FromHex parses the code in the form returned by Hex()
func FromHex(s string) (Status, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return InvalidArgument, errors.Wrapf(err, "could not parse status code %q", s)
	}
	return Status(v), nil
}

func (s Status) Severity() Severity {
	return Severity(uint32(s) >> sevShift & (1<<sevBits - 1))
}

func (s Status) Registry() int {
	return int(uint32(s) >> regShift & (1<<regBits - 1))
}

func (s Status) Module() int {
	return int(uint32(s) >> modShift & (1<<modBits - 1))
}

func (s Status) Detail() int {
	return int(uint32(s) & (1<<detBits - 1))
}

// IsOK returns true if the severity is less than a warning
func (s Status) IsOK() bool {
	return s.Severity() < SevWarn
}

func (s Status) IsWarn() bool {
	return s.Severity() == SevWarn
}

// IsFail returns true for warnings and everything worse
func (s Status) IsFail() bool {
	return s.Severity() >= SevWarn
}

// IsError returns true for errors and everything worse
func (s Status) IsError() bool {
	return s.Severity() >= SevError
}

// Message returns the human readable part of the status
func (s Status) Message() string {
	if m, ok := messages[s]; ok {
		return m
	}
	if s.Module() == ModErrno {
		return fmt.Sprintf("errno %d", s.Detail())
	}
	return fmt.Sprintf("status 0x%s", s.Hex())
}

// Hex returns the code as 8 hex digits
func (s Status) Hex() string {
	return fmt.Sprintf("%08x", uint32(s))
}

func (s Status) Error() string {
	return s.String()
}

func (s Status) String() string {
	return fmt.Sprintf("%s: %s [%d:%d:%d]", s.Severity(), s.Message(), s.Registry(), s.Module(), s.Detail())
}

func (sev Severity) String() string {
	if n, ok := sevNames[sev]; ok {
		return n
	}
	if sev < SevWarn {
		return sevNames[SevOK]
	}
	return strconv.Itoa(int(sev))
}
