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

// Package cmd contains helpers shared by the gdp executables
package cmd

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// PidFile is the file which holds the pid of the running daemon. The file
// is locked while the daemon is running.
type PidFile struct {
	fn string
	fl *flock.Flock
}

// ErrNotRunning is returned when there is no process holding the pid file
var ErrNotRunning = errors.New("not running")

// NewPidFile creates new PidFile struct by the file name
func NewPidFile(fn string) *PidFile {
	return &PidFile{fn: fn}
}

// Interrupt reads the pid file and sends SIGINT to the process
func (pf *PidFile) Interrupt() error {
	pid, err := pf.RunningPid()
	if err != nil {
		return err
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return errors.Wrapf(err, "there is a process pid=%d, but could not access to the process", pid)
	}

	if err = p.Signal(os.Interrupt); err != nil {
		return errors.Wrapf(err, "could not send signal to pid=%d", pid)
	}
	fmt.Println("Sending interrupt notification to process pid=", pid)
	return nil
}

// RunningPid returns the pid of the process which holds the pid file. It
// returns ErrNotRunning if the file is absent or it is not locked.
func (pf *PidFile) RunningPid() (int, error) {
	pid, err := pf.ReadPid()
	if err != nil {
		return -1, err
	}
	if pid == -1 {
		return -1, ErrNotRunning
	}

	fl := flock.New(pf.fn)
	locked, err := fl.TryLock()
	if err != nil {
		return -1, errors.Wrapf(err, "could not check lock of %s", pf.fn)
	}
	if locked {
		// nobody holds the file, so it is stale
		fl.Unlock()
		return -1, ErrNotRunning
	}
	return pid, nil
}

// ReadPid reads the pid file, it returns -1 if there is no file
func (pf *PidFile) ReadPid() (int, error) {
	res, err := ioutil.ReadFile(pf.fn)
	if err != nil {
		return -1, nil
	}

	content := strings.TrimSpace(string(res))
	if len(content) > 10 {
		return -1, errors.Errorf("wrong content of %s", pf.fn)
	}

	pid, err := strconv.ParseInt(content, 10, 64)
	if err != nil {
		return -1, errors.Errorf("could not parse content=%q of the file %s", content, pf.fn)
	}
	return int(pid), nil
}

// Lock acquires the pid file and writes the current process id there
func (pf *PidFile) Lock() error {
	if pf.fl != nil {
		panic("Lock() must not be called twice")
	}

	plock := flock.New(pf.fn)
	if l, err := plock.TryLock(); !l || err != nil {
		if err == nil {
			err = errors.Errorf("%s is locked by another process", pf.fn)
		}
		return err
	}

	if err := pf.writePid(); err != nil {
		plock.Unlock()
		return errors.Wrapf(err, "could not write current pid to %s", pf.fn)
	}
	pf.fl = plock
	return nil
}

// Unlock releases resources acquired by Lock.
func (pf *PidFile) Unlock() {
	if pf.fl == nil {
		panic("Must be locked!")
	}
	os.Remove(pf.fn)
	pf.fl.Unlock()
	pf.fl = nil
}

func (pf *PidFile) writePid() error {
	return ioutil.WriteFile(pf.fn, []byte(strconv.Itoa(os.Getpid())), 0640)
}

// RemoveArgsWithName removes all args which contain the word name, it
// returns new slice
func RemoveArgsWithName(args []string, name string) []string {
	name = strings.ToLower(name)
	if len(name) == 0 {
		return args
	}

	res := make([]string, 0, len(args))
	for _, a := range args {
		if strings.Contains(strings.ToLower(a), name) {
			continue
		}
		res = append(res, a)
	}
	return res
}

// RunCommand starts the command c detached, it returns an error if the
// process exits within a second
func RunCommand(c string, params ...string) error {
	fmt.Printf("Starting command %s with params %v ... \n", c, params)
	cmd := exec.Command(c, params...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "could not run command %s with params=%v", c, params)
	}

	sigChan := make(chan os.Signal, 1)
	defer signal.Stop(sigChan)

	signal.Notify(sigChan, syscall.SIGCHLD)
	select {
	case <-sigChan:
		return errors.New("the process could not be started, check its logs")
	case <-time.After(time.Second):
		fmt.Printf("Started. pid=%d\n", cmd.Process.Pid)
	}
	return nil
}
