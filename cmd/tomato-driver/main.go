// Command tomato-driver is the driver-process entry point of spec
// §4.4: it owns one driver's devmap, binds an OS-chosen free port, and
// registers itself with the daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/dgbowl/tomato/internal/driver"
	"github.com/dgbowl/tomato/internal/rpc"

	_ "github.com/dgbowl/tomato/internal/drivers/counter"
	_ "github.com/dgbowl/tomato/internal/drivers/dummy"
)

func main() {
	var (
		name      = flag.String("driver", "", "driver name to run (must be registered)")
		daemonAddr = flag.String("daemon", "", "daemon control socket address, host:port")
		verbose   = flag.Int("v", 0, "verbosity level (0 info, 1 debug, 2+ trace)")
	)
	flag.Parse()

	if *name == "" || *daemonAddr == "" {
		fmt.Fprintln(os.Stderr, "usage: tomato-driver -driver <name> -daemon <host:port>")
		os.Exit(2)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "tomato-driver",
		Level: verbosityLevel(*verbose),
	})

	client := rpc.NewClient(*daemonAddr, time.Second)
	statusReply, err := client.Call("status", map[string]any{"with_data": true})
	if err != nil || !statusReply.Success {
		logger.Error("could not reach daemon", "error", err)
		os.Exit(1)
	}

	var settings map[string]any
	pid := os.Getpid()

	proc, err := driver.NewProcess(*name, settings, logger)
	if err != nil {
		logger.Error("failed to build driver process", "error", err)
		os.Exit(1)
	}

	stopped := make(chan struct{})
	var srv *rpc.Server
	handler := proc.Handler(func() { close(stopped) })

	srv, err = rpc.Listen("127.0.0.1:0", handler, logger)
	if err != nil {
		logger.Error("failed to bind driver socket", "error", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	reply, err := client.Call("driver", map[string]any{
		"name":         *name,
		"port":         srv.Port(),
		"pid":          pid,
		"connected_at": now,
	})
	if err != nil || !reply.Success {
		logger.Error("failed to register with daemon", "error", err, "reply", reply.Msg)
		os.Exit(1)
	}

	logger.Info("driver process started", "driver", *name, "port", srv.Port(), "pid", pid)
	<-stopped
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
