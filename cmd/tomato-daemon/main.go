// Command tomato-daemon runs the central supervisor of spec §4.1: it
// owns cluster state, serves the control socket, and hosts the driver
// supervisor and job manager background tasks.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/dgbowl/tomato/internal/config"
	"github.com/dgbowl/tomato/internal/daemon"
	"github.com/dgbowl/tomato/internal/daemon/driversup"
	"github.com/dgbowl/tomato/internal/daemon/jobmgr"
	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"

	_ "github.com/dgbowl/tomato/internal/drivers/counter"
	_ "github.com/dgbowl/tomato/internal/drivers/dummy"
)

func main() {
	var (
		port         = flag.Int("port", 0, "control socket port (0 = OS-chosen)")
		appDir       = flag.String("appdir", ".", "application/config directory")
		dataDir      = flag.String("datadir", "", "state data directory (defaults to settings.toml's datadir)")
		driverBin    = flag.String("driver-bin", "tomato-driver", "path to the tomato-driver executable")
		jobWorkerBin = flag.String("job-worker-bin", "tomato-job", "path to the tomato-job executable")
		verbose      = flag.Int("v", 0, "verbosity level (0 info, 1 debug, 2+ trace)")
	)
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "tomato-daemon",
		Level: verbosityLevel(*verbose),
	})

	settings, err := config.LoadSettings(*appDir, *dataDir)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		settings.DataDir = *dataDir
	}

	devicesFile, err := config.LoadDevices(settings.Devices.Config)
	if err != nil {
		logger.Error("failed to load devices", "error", err)
		os.Exit(1)
	}
	devices, pipelines, err := config.Expand(devicesFile)
	if err != nil {
		logger.Error("failed to expand devices", "error", err)
		os.Exit(1)
	}

	d, err := daemon.New(logger, settings.DataDir)
	if err != nil {
		logger.Error("failed to build daemon", "error", err)
		os.Exit(1)
	}

	srv, err := rpc.Listen(fmt.Sprintf("127.0.0.1:%d", *port), d.Handler(), logger)
	if err != nil {
		logger.Error("failed to bind control socket", "error", err)
		os.Exit(1)
	}
	boundPort := srv.Port()

	if err := d.Bootstrap(boundPort); err != nil {
		logger.Error("failed to bootstrap state", "error", err)
		os.Exit(1)
	}

	go d.Run()

	client := rpc.NewClient(fmt.Sprintf("127.0.0.1:%d", boundPort), time.Second)
	setupReply, err := client.Call("setup", map[string]any{
		"devices":   devices,
		"pipelines": pipelines,
		"drivers":   settings.Drivers,
	})
	if err != nil || !setupReply.Success {
		logger.Error("initial setup failed", "error", err, "reply", setupReply.Msg)
		os.Exit(1)
	}

	stopCh := make(chan struct{})
	go driversup.New(driversup.Config{
		Client:        client,
		Logger:        logger,
		DriverBinPath: *driverBin,
		DaemonAddr:    fmt.Sprintf("127.0.0.1:%d", boundPort),
	}).Run(stopCh)

	go jobmgr.New(jobmgr.Config{
		Client:       client,
		Logger:       logger,
		JobsStorage:  settings.Jobs.Storage,
		JobWorkerBin: *jobWorkerBin,
		DaemonAddr:   fmt.Sprintf("127.0.0.1:%d", boundPort),
	}).Run(stopCh)

	logger.Info("tomato-daemon started", "port", boundPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			logger.Info("signal received, stopping")
			shutdown(d, client, srv, stopCh, logger)
			return
		case <-time.After(500 * time.Millisecond):
			if d.Store().Status() == tomato.DaemonStop {
				shutdown(d, client, srv, stopCh, logger)
				return
			}
		}
	}
}

func shutdown(d *daemon.Daemon, client *rpc.Client, srv *rpc.Server, stopCh chan struct{}, logger hclog.Logger) {
	close(stopCh)
	time.Sleep(100 * time.Millisecond) // let background tasks observe stopCh
	if err := d.Persist(); err != nil {
		logger.Error("failed to persist state", "error", err)
	}
	d.Close()
	_ = srv.Close()
}

func verbosityLevel(v int) hclog.Level {
	switch {
	case v >= 2:
		return hclog.Trace
	case v == 1:
		return hclog.Debug
	default:
		return hclog.Info
	}
}
