//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	systemd "github.com/coreos/go-systemd/daemon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/nestybox/resource-tuner/daemon"
	"github.com/nestybox/resource-tuner/internal/pidfile"
)

const (
	runDir  string = "/run/resource-tuner"
	pidPath string = runDir + "/resource-tunerd.pid"
	usage   string = `resource-tunerd

resource-tunerd is a daemon that arbitrates concurrent client requests to
tune host-wide resources (CPU frequency, QoS knobs, scheduler params, ...),
applying each resource's configured policy to resolve conflicts between
simultaneous holders and reverting it to a safe default once every holder
is gone.
`
)

var (
	version  string
	commitId string
	builtAt  string
	builtBy  string
)

func exitHandler(signalChan chan os.Signal, d *daemon.Daemon) {
	s := <-signalChan
	logrus.Warnf("resource-tunerd caught signal: %s", s)
	logrus.Info("Stopping (gracefully) ...")

	systemd.SdNotify(false, systemd.SdNotifyStopping)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		logrus.Warnf("resource-tunerd: shutdown error: %v", err)
	}

	if err := pidfile.Destroy(pidPath); err != nil {
		logrus.Warnf("failed to destroy resource-tunerd pid file: %v", err)
	}

	logrus.Info("Exiting ...")
	os.Exit(0)
}

func setupRunDir() error {
	if err := os.MkdirAll(runDir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %s", runDir, err)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "resource-tunerd"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "resource-config",
			Value: "/etc/resource-tuner/resources.yaml",
			Usage: "resource catalogue YAML path",
		},
		cli.StringFlag{
			Name:  "custom-resource-config",
			Value: "",
			Usage: "optional custom resource catalogue overlay YAML path",
		},
		cli.StringFlag{
			Name:  "target-config",
			Value: "/etc/resource-tuner/target.yaml",
			Usage: "target catalogue YAML path (core/cluster layout)",
		},
		cli.StringFlag{
			Name:  "signal-config",
			Value: "",
			Usage: "signal-to-resource mapping YAML path (optional)",
		},
		cli.StringFlag{
			Name:  "baseline-file",
			Value: "/run/resource-tuner/resource_original_values.txt",
			Usage: "persisted-state file used to restore sysfs defaults after a crash",
		},
		cli.IntFlag{
			Name:  "apply-pool-size",
			Value: 4,
			Usage: "desired concurrency of the apply worker pool",
		},
		cli.IntFlag{
			Name:  "apply-pool-max",
			Value: 8,
			Usage: "maximum burst concurrency of the apply worker pool",
		},
		cli.IntFlag{
			Name:  "timer-pool-size",
			Value: 6,
			Usage: "desired concurrency of the timer worker pool",
		},
		cli.IntFlag{
			Name:  "timer-pool-max",
			Value: 12,
			Usage: "maximum burst concurrency of the timer worker pool",
		},
		cli.IntFlag{
			Name:  "queue-depth",
			Value: 64,
			Usage: "per-pool FIFO queue depth",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "log file path or empty string for stderr output (default: \"\")",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format; must be json or text",
		},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("resource-tunerd\n"+
			"\tversion: \t%s\n"+
			"\tcommit: \t%s\n"+
			"\tbuilt at: \t%s\n"+
			"\tbuilt by: \t%s\n",
			c.App.Version, commitId, builtAt, builtBy)
	}

	app.Before = func(ctx *cli.Context) error {
		if path := ctx.GlobalString("log"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0666)
			if err != nil {
				logrus.Fatalf("Error opening log file %v: %v. Exiting ...", path, err)
				return err
			}
			logrus.SetOutput(f)
			log.SetOutput(f)
		} else {
			logrus.SetOutput(os.Stderr)
			log.SetOutput(os.Stderr)
		}

		if logFormat := ctx.GlobalString("log-format"); logFormat == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
			})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
				FullTimestamp:   true,
			})
		}

		switch logLevel := ctx.GlobalString("log-level"); logLevel {
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "info":
			logrus.SetLevel(logrus.InfoLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.Fatalf("log-level option '%v' not recognized. Exiting ...", logLevel)
		}

		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("Initiating resource-tunerd ...")

		if err := setupRunDir(); err != nil {
			return err
		}
		if err := pidfile.Check("resource-tunerd", pidPath); err != nil {
			return err
		}

		cfg := daemon.Config{
			CatalogueConfigPath:       ctx.GlobalString("resource-config"),
			CustomCatalogueConfigPath: ctx.GlobalString("custom-resource-config"),
			TargetConfigPath:          ctx.GlobalString("target-config"),
			SignalConfigPath:          ctx.GlobalString("signal-config"),
			BaselineFilePath:          ctx.GlobalString("baseline-file"),
			ApplyPoolDesired:          ctx.GlobalInt("apply-pool-size"),
			ApplyPoolMax:              ctx.GlobalInt("apply-pool-max"),
			TimerPoolDesired:          ctx.GlobalInt("timer-pool-size"),
			TimerPoolMax:              ctx.GlobalInt("timer-pool-max"),
			QueueDepth:                ctx.GlobalInt("queue-depth"),
		}

		d := daemon.New(cfg, afero.NewOsFs())

		// Extension registration phase: host-process extensions call
		// d.Extension.RegisterApply/RegisterTear/RegisterConfig here, before
		// the catalogue is loaded and the registry is frozen. resource-tunerd
		// ships with no built-in extensions, so this phase is a no-op for
		// the stock binary.

		if err := d.InitCatalogue(); err != nil {
			return fmt.Errorf("failed to initialize resource-tunerd: %w", err)
		}

		var exitChan = make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		go exitHandler(exitChan, d)

		systemd.SdNotify(false, systemd.SdNotifyReady)

		if err := pidfile.Create(pidPath); err != nil {
			return fmt.Errorf("failed to create resource-tunerd pid file: %s", err)
		}

		logrus.Info("Ready ...")

		// The wire accept loop is an external collaborator; resource-tunerd's
		// job past this point is to keep its services alive for that loop to
		// call into via d.Lifecycle/d.Signal.
		select {}
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
