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

package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp"
	"github.com/jugador87/gdp/api"
	"github.com/jugador87/gdp/client"
	"github.com/jugador87/gdp/client/shell"
	"github.com/pkg/errors"
	ucli "gopkg.in/urfave/cli.v2"
)

const (
	argCfgFile    = "config-file"
	argLogCfgFile = "log-config-file"
	argServerAddr = "server-addr"

	argMeta  = "meta"
	argFrom  = "from"
	argLimit = "limit"
)

var (
	logger = log4g.GetLogger("gdp")
)

// main is the entry point of the gdp client. Every command connects to the
// gdplogd daemon by RPC, 'shell' runs the interactive command line.
func main() {
	defer log4g.Shutdown()

	cmnFlags := []ucli.Flag{
		&ucli.StringFlag{
			Name:  argServerAddr,
			Usage: "server RPC address",
		},
		&ucli.StringFlag{
			Name:  argCfgFile,
			Usage: "configuration file path",
		},
		&ucli.StringFlag{
			Name:  argLogCfgFile,
			Usage: "log4g configuration file path",
		},
	}

	scanFlags := append([]ucli.Flag{
		&ucli.Int64Flag{
			Name:  argFrom,
			Usage: "the first record number, negative values count from the end",
		},
		&ucli.Int64Flag{
			Name:  argLimit,
			Usage: "the number of records, 0 means no limit",
		},
	}, cmnFlags...)

	app := &ucli.App{
		Name:    "gdp",
		Version: gdp.Version,
		Usage:   "gdp client",
		Commands: []*ucli.Command{
			{
				Name:      "create",
				Usage:     "Create new log",
				ArgsUsage: "[log name]",
				Action:    runCreate,
				Flags: append([]ucli.Flag{
					&ucli.StringFlag{
						Name:  argMeta,
						Usage: "log metadata, e.g. --meta 'dsc=\"room 1\" unit=C'",
					},
				}, cmnFlags...),
			},
			{
				Name:      "append",
				Usage:     "Append a record to the log",
				ArgsUsage: "<log name> [data], the data is read from stdin if omitted",
				Action:    runAppend,
				Flags:     cmnFlags,
			},
			{
				Name:      "read",
				Usage:     "Read records of the log",
				ArgsUsage: "<log name>",
				Action:    scanAction("read"),
				Flags:     scanFlags,
			},
			{
				Name:      "multiread",
				Usage:     "Stream existing records of the log",
				ArgsUsage: "<log name>",
				Action:    scanAction("multiread"),
				Flags:     scanFlags,
			},
			{
				Name:      "subscribe",
				Usage:     "Follow the log",
				ArgsUsage: "<log name>",
				Action:    scanAction("subscribe"),
				Flags:     scanFlags,
			},
			{
				Name:      "info",
				Usage:     "Describe the log",
				ArgsUsage: "<log name>",
				Action:    runInfo,
				Flags:     cmnFlags,
			},
			{
				Name:   "list",
				Usage:  "List all logs",
				Action: runList,
				Flags:  cmnFlags,
			},
			{
				Name:      "shell",
				Usage:     "Run interactive shell",
				UsageText: "gdp shell [command options]",
				Action:    runShell,
				Flags:     cmnFlags,
			},
		},
	}

	sort.Sort(ucli.FlagsByName(app.Flags))
	for _, c := range app.Commands {
		sort.Sort(ucli.FlagsByName(c.Flags))
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initCfg(c *ucli.Context) (*client.Config, error) {
	cfg := client.NewDefaultConfig()

	if logCfgFile := c.String(argLogCfgFile); logCfgFile != "" {
		if err := log4g.ConfigF(logCfgFile); err != nil {
			return nil, err
		}
	}

	if cfgFile := c.String(argCfgFile); cfgFile != "" {
		logger.Info("Loading config from=", cfgFile)
		fc, err := client.LoadCfgFromFile(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg.Apply(fc)
	}

	if sa := c.String(argServerAddr); sa != "" {
		cfg.Transport.ListenAddr = sa
	}
	return cfg, nil
}

func newClient(c *ucli.Context) (api.Client, error) {
	cfg, err := initCfg(c)
	if err != nil {
		return nil, err
	}
	return client.NewClient(*cfg.Transport)
}

func newCtx() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigChan:
			logger.Warn("Handling signal=", s)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func logArg(c *ucli.Context) (string, error) {
	if c.Args().Len() < 1 {
		return "", errors.New("the log name is expected")
	}
	return c.Args().First(), nil
}

// run connects to the server and executes the shell command line
func run(c *ucli.Context, line string) error {
	cli, err := newClient(c)
	if err != nil {
		return err
	}
	defer cli.Close()

	ctx, cancel := newCtx()
	defer cancel()
	return shell.Exec(ctx, cli, line, os.Stdout)
}

func runCreate(c *ucli.Context) error {
	if c.Args().Len() > 1 {
		return fmt.Errorf("at most one argument expected, but %s", c.Args())
	}
	md, err := shell.ParseMeta(c.String(argMeta))
	if err != nil {
		return err
	}

	cli, err := newClient(c)
	if err != nil {
		return err
	}
	defer cli.Close()

	ctx, cancel := newCtx()
	defer cancel()
	return shell.Create(ctx, cli, c.Args().First(), md, os.Stdout)
}

func runAppend(c *ucli.Context) error {
	log, err := logArg(c)
	if err != nil {
		return err
	}

	var data []byte
	if c.Args().Len() > 1 {
		data = []byte(c.Args().Get(1))
	} else if data, err = ioutil.ReadAll(os.Stdin); err != nil {
		return err
	}
	return run(c, "append "+strconv.Quote(log)+" "+strconv.Quote(string(data)))
}

func scanAction(op string) ucli.ActionFunc {
	return func(c *ucli.Context) error {
		log, err := logArg(c)
		if err != nil {
			return err
		}
		line := op + " " + strconv.Quote(log)
		if c.IsSet(argFrom) {
			line += " from " + strconv.FormatInt(c.Int64(argFrom), 10)
		}
		if c.IsSet(argLimit) {
			line += " limit " + strconv.FormatInt(c.Int64(argLimit), 10)
		}
		return run(c, line)
	}
}

func runInfo(c *ucli.Context) error {
	log, err := logArg(c)
	if err != nil {
		return err
	}
	return run(c, "info "+strconv.Quote(log))
}

func runList(c *ucli.Context) error {
	return run(c, "list")
}

func runShell(c *ucli.Context) error {
	cli, err := newClient(c)
	if err != nil {
		return err
	}
	defer cli.Close()
	return shell.Run(cli)
}
