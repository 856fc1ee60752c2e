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
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jrivets/log4g"
	"github.com/jugador87/gdp"
	"github.com/jugador87/gdp/cmd"
	"github.com/jugador87/gdp/server"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v2"
)

const (
	// Common flag names
	argLogCfgFile = "log-config-file"
	argCfgFile    = "config-file"
	argPidFile    = "pid-file"

	// Start command flag names
	argStartDaemon   = "daemon"
	argStartStore    = "store-type"
	argStartStoreDir = "store-dir"
	argStartFsync    = "fsync"
	argStartRpcAddr  = "rpc-address"
	argStartRestAddr = "rest-address"
)

var log = log4g.GetLogger("gdplogd")
var cfg = server.GetDefaultConfig()

func main() {
	defer log4g.Shutdown()

	app := &cli.App{
		Name:    "gdplogd",
		Version: gdp.Version,
		Usage:   "Append-only log service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  argLogCfgFile,
				Usage: "The log4g configuration file name",
				Value: "/opt/gdp/log4g.properties",
			},
			&cli.StringFlag{
				Name:  argCfgFile,
				Usage: "The gdplogd configuration file name",
				Value: "/opt/gdp/config.json",
			},
			&cli.StringFlag{
				Name:  argPidFile,
				Usage: "The file where the daemon pid is kept",
				Value: "/opt/gdp/gdplogd.pid",
			},
		},
		Before: before,
		Commands: []*cli.Command{
			&cli.Command{
				Name:   "start",
				Usage:  "Run the service",
				Action: runServer,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  argStartDaemon,
						Usage: "Start the service detached from the console",
					},
					&cli.StringFlag{
						Name:  argStartStore,
						Usage: "Record store backend: fs, pebble or mem",
						Value: cfg.Store.Type,
					},
					&cli.StringFlag{
						Name:  argStartStoreDir,
						Usage: "Defines path to the logs directory",
						Value: cfg.Store.Dir,
					},
					&cli.StringFlag{
						Name:  argStartFsync,
						Usage: "When the data is synced to the disk: always, interval or never",
						Value: cfg.Store.Fsync,
					},
					&cli.StringFlag{
						Name:  argStartRpcAddr,
						Usage: "The RPC listen address",
						Value: cfg.RpcTransport.ListenAddr,
					},
					&cli.StringFlag{
						Name:  argStartRestAddr,
						Usage: "The REST listen address, empty value disables REST",
						Value: cfg.RestAddr,
					},
				},
			},
			&cli.Command{
				Name:   "stop",
				Usage:  "Stop the running service",
				Action: stopServer,
			},
			&cli.Command{
				Name:   "status",
				Usage:  "Print whether the service is running",
				Action: statusServer,
			},
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.FlagsByName(app.Commands[0].Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		fmt.Println("Error: ", err)
		os.Exit(1)
	}
}

func before(c *cli.Context) error {
	logCfgFile := c.String(argLogCfgFile)
	if logCfgFile != "" {
		if _, err := os.Stat(logCfgFile); os.IsNotExist(err) {
			log.Warn("No file ", logCfgFile, " will use default log4g configuration")
		} else {
			log.Info("Loading log4g config from ", logCfgFile)
			err := log4g.ConfigF(logCfgFile)
			if err != nil {
				err := errors.Wrapf(err, "Could not parse %s file as a log4g configuration, please check syntax ", logCfgFile)
				log.Fatal(err)
				return err
			}
		}
	}

	fc := server.ReadConfigFromFile(c.String(argCfgFile))
	if fc != nil {
		// overwrite default settings from file
		cfg.Apply(fc)
	}

	return nil
}

func runServer(c *cli.Context) error {
	if c.Bool(argStartDaemon) {
		args := cmd.RemoveArgsWithName(os.Args[1:], argStartDaemon)
		return cmd.RunCommand(os.Args[0], args...)
	}

	pf := cmd.NewPidFile(c.String(argPidFile))
	if err := pf.Lock(); err != nil {
		return errors.Wrapf(err, "could not lock the pid file, the service is already running?")
	}
	defer pf.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		s := <-sigChan
		log.Info("Got signal \"", s, "\", cancelling context ")
		cancel()
	}()

	// fill up config
	applyParamsToCfg(c)
	return server.Start(ctx, cfg)
}

func stopServer(c *cli.Context) error {
	return cmd.NewPidFile(c.String(argPidFile)).Interrupt()
}

func statusServer(c *cli.Context) error {
	pid, err := cmd.NewPidFile(c.String(argPidFile)).RunningPid()
	if err == cmd.ErrNotRunning {
		fmt.Println("gdplogd is not running")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("gdplogd is running, pid=", pid)
	return nil
}

func applyParamsToCfg(c *cli.Context) {
	dc := server.GetDefaultConfig()
	if st := c.String(argStartStore); dc.Store.Type != st {
		cfg.Store.Type = st
	}
	if sd := c.String(argStartStoreDir); dc.Store.Dir != sd {
		cfg.Store.Dir = sd
	}
	if fs := c.String(argStartFsync); dc.Store.Fsync != fs {
		cfg.Store.Fsync = fs
	}
	if ra := c.String(argStartRpcAddr); dc.RpcTransport.ListenAddr != ra {
		cfg.RpcTransport.ListenAddr = ra
	}
	if ra := c.String(argStartRestAddr); dc.RestAddr != ra {
		cfg.RestAddr = ra
	}
}
