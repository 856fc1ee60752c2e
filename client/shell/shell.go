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

// Package shell contains the interactive command line of the gdp client
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jugador87/gdp/api"
	"github.com/peterh/liner"
)

type (
	shell struct {
		cfg   *config
		hfile string
	}
)

const (
	shellHistoryFileName = ".gdp_history"
)

// Run starts the interactive shell and returns when the user quits
func Run(cli api.Client) error {
	cfg, err := newConfig(cli, os.Stdout)
	if err != nil {
		return err
	}
	defer cfg.close()

	printLogo()
	newShell(cfg, historyFilePath()).run()
	return nil
}

func historyFilePath() string {
	var fileDir = os.TempDir()
	usr, err := user.Current()
	if err == nil {
		fileDir = usr.HomeDir
	}
	return filepath.Join(fileDir, shellHistoryFileName)
}

func printLogo() {
	fmt.Print("" +
		"           _     \n" +
		"  __ _  __| |_ __  \n" +
		" / _` |/ _` | '_ \\ \n" +
		"| (_| | (_| | |_) |\n" +
		" \\__, |\\__,_| .__/ \n" +
		" |___/      |_|    \n\n" +
		"type 'help' for the list of commands\n\n")
}

func printError(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
}

func isQuit(inp string) bool {
	inp = strings.ToLower(inp)
	return inp == "quit" || inp == "exit"
}

//===================== shell =====================

func newShell(cfg *config, hFile string) *shell {
	s := new(shell)
	s.cfg = cfg
	s.hfile = hFile
	return s
}

func (s *shell) run() {
	lnr := liner.NewLiner()
	lnr.SetCtrlCAborts(true)

	s.loadHistory(lnr)
	defer func() {
		s.saveHistory(lnr)
		_ = lnr.Close()
		fmt.Println("bye!")
	}()

	for {
		inp, err := lnr.Prompt("gdp>")
		if err != nil {
			printError(err)
			if err == io.EOF || err == liner.ErrPromptAborted {
				break
			}
		}

		inp = strings.TrimSpace(inp)
		if inp == "" {
			continue
		}

		lnr.AppendHistory(inp)
		if isQuit(inp) {
			break
		}

		if err = s.exec(inp); err != nil {
			printError(err)
		}
	}
}

// exec runs the command, Ctrl+C interrupts the command but not the shell
func (s *shell) exec(inp string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return execCmd(ctx, inp, s.cfg)
}

func (s *shell) loadHistory(lnr *liner.State) {
	f, err := os.OpenFile(s.hfile, os.O_RDONLY|os.O_CREATE, 0640)
	if err != nil {
		printError(err)
		return
	}
	defer f.Close()
	if _, err = lnr.ReadHistory(f); err != nil {
		printError(err)
	}
}

func (s *shell) saveHistory(lnr *liner.State) {
	f, err := os.OpenFile(s.hfile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		printError(err)
		return
	}
	defer f.Close()
	if _, err = lnr.WriteHistory(f); err != nil {
		printError(err)
	}
}
