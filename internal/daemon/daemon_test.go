package daemon

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

func newTestDaemon(t *testing.T) *Daemon {
	d, err := New(hclog.NewNullLogger(), t.TempDir())
	require.NoError(t, err)
	return d
}

func TestDaemon_CmdStatusWithoutData(t *testing.T) {
	d := newTestDaemon(t)
	reply := d.dispatch(rpc.Request{Cmd: "status"})
	require.True(t, reply.Success)
	require.Equal(t, tomato.DaemonBootstrap, reply.Data)
}

func TestDaemon_CmdSetupCreatesPipelinesAndDrivers(t *testing.T) {
	d := newTestDaemon(t)

	reply := d.dispatch(rpc.Request{Cmd: "setup", Params: map[string]any{
		"devices": map[string]tomato.Device{
			"dev1": {Name: "dev1", Driver: "counter"},
		},
		"pipelines": map[string]tomato.Pipeline{
			"pip-c": {Name: "pip-c"},
		},
		"drivers": map[string]map[string]any{
			"counter": {"x": 1},
		},
	}})
	require.True(t, reply.Success)
	require.Equal(t, tomato.DaemonRunning, d.store.Status())

	_, ok := d.store.Pipeline("pip-c")
	require.True(t, ok)
	drv, ok := d.store.Driver("counter")
	require.True(t, ok)
	require.Equal(t, 1, drv.Settings["x"])
}

func TestDaemon_CmdSetupRejectsUnsafeReload(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.store.PutPipeline(tomato.Pipeline{Name: "pip-c", JobID: 5}))
	d.store.SetStatus(tomato.DaemonRunning)

	reply := d.dispatch(rpc.Request{Cmd: "setup", Params: map[string]any{
		"pipelines": map[string]tomato.Pipeline{},
	}})
	require.False(t, reply.Success)
	require.Contains(t, reply.Msg, "delete a running pipeline")
}

func TestDaemon_CmdPipelineEjectForbiddenWithJob(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.store.PutPipeline(tomato.Pipeline{Name: "pip-c", JobID: 5}))

	reply := d.dispatch(rpc.Request{Cmd: "pipeline", Params: map[string]any{
		"name":     "pip-c",
		"sampleid": "",
	}})
	require.False(t, reply.Success)
	require.Contains(t, reply.Msg, "eject forbidden")
}

func TestDaemon_CmdPipelineUpdatesFields(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.store.PutPipeline(tomato.Pipeline{Name: "pip-c"}))

	reply := d.dispatch(rpc.Request{Cmd: "pipeline", Params: map[string]any{
		"name":     "pip-c",
		"sampleid": "s1",
		"ready":    true,
	}})
	require.True(t, reply.Success)

	p, _ := d.store.Pipeline("pip-c")
	require.Equal(t, "s1", p.SampleID)
	require.True(t, p.Ready)
}

func TestDaemon_CmdJobCreateThenTransition(t *testing.T) {
	d := newTestDaemon(t)

	reply := d.dispatch(rpc.Request{Cmd: "job", Params: map[string]any{
		"jobname": "test-job",
	}})
	require.True(t, reply.Success)
	job := reply.Data.(tomato.Job)
	require.Equal(t, tomato.JobQueued, job.Status)

	reply = d.dispatch(rpc.Request{Cmd: "job", Params: map[string]any{
		"id":     job.ID,
		"status": string(tomato.JobQueuedMatched),
	}})
	require.True(t, reply.Success)

	reply = d.dispatch(rpc.Request{Cmd: "job", Params: map[string]any{
		"id":     job.ID,
		"status": string(tomato.JobCompleted),
	}})
	require.False(t, reply.Success)
	require.Contains(t, reply.Msg, "invalid transition")
}

func TestDaemon_CmdDriverUpsert(t *testing.T) {
	d := newTestDaemon(t)

	reply := d.dispatch(rpc.Request{Cmd: "driver", Params: map[string]any{
		"name": "counter",
		"port": 4455,
		"pid":  123,
	}})
	require.True(t, reply.Success)

	drv, ok := d.store.Driver("counter")
	require.True(t, ok)
	require.Equal(t, 4455, drv.Port)
	require.Equal(t, 123, drv.PID)
}

func TestDaemon_CmdStopRejectsWithRunningJobs(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.store.PutJob(tomato.Job{ID: 1, Status: tomato.JobRunning}))

	reply := d.dispatch(rpc.Request{Cmd: "stop"})
	require.False(t, reply.Success)
}

func TestDaemon_UnknownCommand(t *testing.T) {
	d := newTestDaemon(t)
	reply := d.dispatch(rpc.Request{Cmd: "bogus"})
	require.False(t, reply.Success)
}
