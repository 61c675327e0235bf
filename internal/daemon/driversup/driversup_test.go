package driversup

import (
	"strconv"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/dgbowl/tomato/internal/daemon"
	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/testutil"
	"github.com/dgbowl/tomato/internal/tomato"
)

func TestNew_DefaultsIntervals(t *testing.T) {
	s := New(Config{})
	require.Equal(t, time.Second, s.cfg.Interval)
	require.Equal(t, GraceInterval, s.cfg.GraceInterval)
}

func TestSupervisor_TickSpawnsMissingDriver(t *testing.T) {
	log := hclog.NewNullLogger()
	d, err := daemon.New(log, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.Bootstrap(0))
	go d.Run()
	defer d.Close()

	srv, err := rpc.Listen("127.0.0.1:0", d.Handler(), log)
	require.NoError(t, err)
	defer srv.Close()

	client := rpc.NewClient("127.0.0.1:"+strconv.Itoa(srv.Port()), time.Second)
	reply, err := client.Call("setup", map[string]any{
		"devices": map[string]tomato.Device{
			"dev1": {Name: "dev1", Driver: "counter"},
		},
	})
	require.NoError(t, err)
	require.True(t, reply.Success)

	sup := New(Config{
		Client:        client,
		Logger:        log,
		DriverBinPath: "true",
		DaemonAddr:    "127.0.0.1:" + strconv.Itoa(srv.Port()),
		Interval:      10 * time.Millisecond,
	})

	stopCh := make(chan struct{})
	go sup.Run(stopCh)
	defer close(stopCh)

	testutil.WaitFor(func() (bool, error) {
		reply, err := client.Call("status", map[string]any{"with_data": true})
		if err != nil || !reply.Success {
			return false, nil
		}
		var snap tomato.Snapshot
		if err := rpc.Decode(reply.Data, &snap); err != nil {
			return false, nil
		}
		drv, ok := snap.Drivers["counter"]
		return ok && drv.PID != 0, nil
	}, 2*time.Second, 20*time.Millisecond, t)
}

