// Package driversup implements the driver supervisor described in spec
// §4.2: a background task, co-resident in the daemon process but
// talking to it only through the same request/reply control socket
// every other client uses, that keeps one driver process alive per
// distinct driver name required by the configured device set.
package driversup

import (
	"fmt"
	"strconv"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/dgbowl/tomato/internal/procutil"
	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

// GraceInterval is how long a driver may sit with a spawned_at recorded
// but no pid before the supervisor gives up waiting and respawns it as
// "late" (spec §4.2 step 3).
const GraceInterval = 10 * time.Second

// Config wires a Supervisor to its daemon and to the means of starting
// a driver process.
type Config struct {
	Client        *rpc.Client
	Logger        hclog.Logger
	DriverBinPath string
	DaemonAddr    string
	Interval      time.Duration
	GraceInterval time.Duration
}

// Supervisor is the driver supervisor's running state.
type Supervisor struct {
	cfg Config
	log hclog.Logger
}

// New builds a Supervisor. Zero-value Interval/GraceInterval fall back
// to the spec's defaults (1 s loop, 10 s grace).
func New(cfg Config) *Supervisor {
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.GraceInterval == 0 {
		cfg.GraceInterval = GraceInterval
	}
	return &Supervisor{cfg: cfg, log: cfg.Logger.Named("driversup")}
}

// Run loops until stopCh is closed, applying one supervisor tick per
// Interval. It never blocks the daemon's own command loop: all state
// access goes through cfg.Client, a normal request/reply client.
func (s *Supervisor) Run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			s.stopKnownDrivers()
			return
		case <-ticker.C:
			if err := s.tick(); err != nil {
				s.log.Warn("supervisor tick failed", "error", err)
			}
		}
	}
}

func (s *Supervisor) tick() error {
	reply, err := s.cfg.Client.Call("status", map[string]any{"with_data": true})
	if err != nil {
		return fmt.Errorf("driversup: status: %w", err)
	}
	if !reply.Success {
		return fmt.Errorf("driversup: status: %s", reply.Msg)
	}
	var snap tomato.Snapshot
	if err := rpc.Decode(reply.Data, &snap); err != nil {
		return fmt.Errorf("driversup: status returned unexpected data type: %w", err)
	}
	if snap.Status == tomato.DaemonStop {
		return nil
	}

	required := map[string]bool{}
	for _, dev := range snap.Devices {
		if dev.Driver != "" {
			required[dev.Driver] = true
		}
	}

	for name := range required {
		drv, present := snap.Drivers[name]
		switch {
		case !present:
			s.spawn(name)
		case drv.PID != 0 && !procutil.Alive(drv.PID):
			s.log.Warn("respawning crashed driver", "driver", name, "pid", drv.PID)
			s.spawn(name)
		case drv.PID == 0 && drv.SpawnedAt == nil:
			s.spawn(name)
		case drv.PID == 0 && drv.SpawnedAt != nil && time.Since(*drv.SpawnedAt) > s.cfg.GraceInterval:
			s.log.Warn("respawning late driver", "driver", name)
			s.spawn(name)
		}
	}
	return nil
}

func (s *Supervisor) spawn(name string) {
	pid, err := procutil.Spawn(s.cfg.DriverBinPath, "-driver", name, "-daemon", s.cfg.DaemonAddr)
	if err != nil {
		s.log.Error("failed to spawn driver", "driver", name, "error", err)
		return
	}
	now := time.Now().UTC()
	reply, err := s.cfg.Client.Call("driver", map[string]any{
		"name":       name,
		"pid":        pid,
		"spawned_at": now,
	})
	if err != nil || !reply.Success {
		s.log.Error("failed to record spawned driver", "driver", name, "pid", pid, "error", err, "reply", reply.Msg)
		return
	}
	s.log.Info("spawned driver", "driver", name, "pid", pid)
}

// stopKnownDrivers sends "stop" to every driver with a recorded port,
// best-effort, on daemon shutdown (spec §4.2 "on daemon stop").
func (s *Supervisor) stopKnownDrivers() {
	reply, err := s.cfg.Client.Call("status", map[string]any{"with_data": true})
	if err != nil || !reply.Success {
		s.log.Warn("could not fetch drivers to stop", "error", err)
		return
	}
	var snap tomato.Snapshot
	if err := rpc.Decode(reply.Data, &snap); err != nil {
		return
	}
	for name, drv := range snap.Drivers {
		if drv.Port == 0 {
			continue
		}
		client := rpc.NewClient("127.0.0.1:"+strconv.Itoa(drv.Port), time.Second)
		if reply, err := client.Call("stop", nil); err != nil || !reply.Success {
			s.log.Warn("driver stop failed", "driver", name, "error", err)
		} else {
			s.log.Info("driver stopped", "driver", name)
		}
	}
}
