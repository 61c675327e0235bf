package jobmgr

import (
	"encoding/json"
	"os"
	"path/filepath"
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

func TestPortFromAddr(t *testing.T) {
	require.Equal(t, 4200, portFromAddr("127.0.0.1:4200"))
	require.Equal(t, 0, portFromAddr("not-an-addr"))
}

func TestQueuedJobsSortedByID(t *testing.T) {
	snap := tomato.Snapshot{
		Jobs: map[int]tomato.Job{
			3: {ID: 3},
			1: {ID: 1},
			2: {ID: 2},
		},
	}
	jobs := queuedJobsSortedByID(snap)
	require.Len(t, jobs, 3)
	require.Equal(t, []int{1, 2, 3}, []int{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}

func TestWriteJobData_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	jobDir := filepath.Join(dir, "7")
	jobPath := filepath.Join(jobDir, "jobdata.json")

	pip := tomato.Pipeline{Name: "pip-c"}
	job := tomato.Job{ID: 7, Payload: tomato.Payload{Method: []tomato.MethodStep{{Device: "worker", Technique: "count"}}}}

	require.NoError(t, writeJobData(jobDir, jobPath, pip, job))

	raw, err := os.ReadFile(jobPath)
	require.NoError(t, err)

	var decoded jobDataFile
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "pip-c", decoded.Pipeline.Name)
	require.Equal(t, 7, decoded.Job.ID)
	require.Equal(t, jobPath, decoded.Job.Path)
	require.Len(t, decoded.Payload.Method, 1)
}

func TestNew_DefaultsInterval(t *testing.T) {
	m := New(Config{})
	require.Equal(t, time.Second, m.cfg.Interval)
}

func newTestDaemonClient(t *testing.T) *rpc.Client {
	t.Helper()
	log := hclog.NewNullLogger()
	d, err := daemon.New(log, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, d.Bootstrap(0))
	go d.Run()
	t.Cleanup(d.Close)

	srv, err := rpc.Listen("127.0.0.1:0", d.Handler(), log)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	return rpc.NewClient("127.0.0.1:"+strconv.Itoa(srv.Port()), time.Second)
}

func TestManager_MatchesAndDispatchesQueuedJob(t *testing.T) {
	client := newTestDaemonClient(t)

	reply, err := client.Call("setup", map[string]any{
		"devices": map[string]tomato.Device{
			"counter-1": {Name: "counter-1", Driver: "counter", Capabilities: []string{"count"}},
		},
		"pipelines": map[string]tomato.Pipeline{
			"pip-c": {Name: "pip-c", Devs: map[string]tomato.Component{
				"worker": {DeviceName: "counter-1", Role: "worker"},
			}},
		},
	})
	require.NoError(t, err)
	require.True(t, reply.Success)

	reply, err = client.Call("pipeline", map[string]any{"name": "pip-c", "sampleid": "s1", "ready": true})
	require.NoError(t, err)
	require.True(t, reply.Success)

	reply, err = client.Call("job", map[string]any{
		"payload": tomato.Payload{
			Method: []tomato.MethodStep{{Device: "worker", Technique: "count"}},
			Sample: tomato.Sample{Name: "s1"},
		},
	})
	require.NoError(t, err)
	require.True(t, reply.Success)

	mgr := New(Config{
		Client:       client,
		Logger:       hclog.NewNullLogger(),
		JobsStorage:  t.TempDir(),
		JobWorkerBin: "true",
		DaemonAddr:   client.Addr,
		Interval:     10 * time.Millisecond,
	})

	stopCh := make(chan struct{})
	go mgr.Run(stopCh)
	defer close(stopCh)

	testutil.WaitFor(func() (bool, error) {
		reply, err := client.Call("status", map[string]any{"with_data": true})
		if err != nil || !reply.Success {
			return false, nil
		}
		var snap tomato.Snapshot
		require.NoError(t, rpc.Decode(reply.Data, &snap))
		for _, j := range snap.Jobs {
			if j.Status == tomato.JobRunning {
				return true, nil
			}
		}
		return false, nil
	}, 2*time.Second, 20*time.Millisecond, t)
}

func TestManager_ReapsJobWhosePIDDied(t *testing.T) {
	client := newTestDaemonClient(t)

	reply, err := client.Call("setup", map[string]any{
		"pipelines": map[string]tomato.Pipeline{
			"pip-c": {Name: "pip-c", Devs: map[string]tomato.Component{}},
		},
	})
	require.NoError(t, err)
	require.True(t, reply.Success)

	reply, err = client.Call("job", map[string]any{"payload": tomato.Payload{}})
	require.NoError(t, err)
	require.True(t, reply.Success)
	var job tomato.Job
	require.NoError(t, rpc.Decode(reply.Data, &job))

	reply, err = client.Call("job", map[string]any{"id": job.ID, "status": string(tomato.JobQueuedMatched)})
	require.NoError(t, err)
	require.True(t, reply.Success)
	reply, err = client.Call("job", map[string]any{"id": job.ID, "status": string(tomato.JobRunning), "pid": 999999})
	require.NoError(t, err)
	require.True(t, reply.Success)

	reply, err = client.Call("pipeline", map[string]any{"name": "pip-c", "jobid": job.ID})
	require.NoError(t, err)
	require.True(t, reply.Success)

	mgr := New(Config{
		Client:   client,
		Logger:   hclog.NewNullLogger(),
		Interval: 10 * time.Millisecond,
	})

	stopCh := make(chan struct{})
	go mgr.Run(stopCh)
	defer close(stopCh)

	testutil.WaitFor(func() (bool, error) {
		reply, err := client.Call("status", map[string]any{"with_data": true})
		if err != nil || !reply.Success {
			return false, nil
		}
		var snap tomato.Snapshot
		require.NoError(t, rpc.Decode(reply.Data, &snap))
		return snap.Jobs[job.ID].Status == tomato.JobCompletedErrors, nil
	}, 2*time.Second, 20*time.Millisecond, t)
}
