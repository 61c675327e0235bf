// Package daemon implements the central supervisor described in spec
// §4.1: the single authoritative holder of cluster state, serving a
// request/reply control socket plus two background tasks (driver
// supervisor, job manager) that mutate state only by feeding the same
// command queue every other client uses.
package daemon

import (
	"fmt"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/dgbowl/tomato/internal/daemon/state"
	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

// envelope pairs an inbound request with the channel its caller is
// waiting on. The command loop is the only goroutine that ever touches
// the Store, satisfying §5's "commands to the daemon are serialised and
// applied in arrival order".
type envelope struct {
	req    rpc.Request
	respCh chan tomato.Reply
}

// Daemon owns the authoritative Store and the serialised command loop
// in front of it.
type Daemon struct {
	logger  hclog.Logger
	store   *state.Store
	dataDir string

	cmds chan envelope
	done chan struct{}
}

// New builds a Daemon around a fresh or restored Store.
func New(logger hclog.Logger, dataDir string) (*Daemon, error) {
	store, err := state.New()
	if err != nil {
		return nil, fmt.Errorf("daemon: new store: %w", err)
	}
	return &Daemon{
		logger:  logger.Named("daemon"),
		store:   store,
		dataDir: dataDir,
		cmds:    make(chan envelope, 64),
		done:    make(chan struct{}),
	}, nil
}

// Store exposes the underlying state store to the hosting process (the
// daemon's main uses it to poll for the stop status). The driver
// supervisor and job manager do not use it: they reach the daemon
// through its control socket like any other client.
func (d *Daemon) Store() *state.Store { return d.store }

// Bootstrap restores persisted state from dataDir if present, otherwise
// starts from an empty Store in bootstrap status (spec §4.1.2).
func (d *Daemon) Bootstrap(port int) error {
	path := state.StatePath(d.dataDir, port)
	found, err := d.store.RestoreFile(path)
	if err != nil {
		return fmt.Errorf("daemon: restore %s: %w", path, err)
	}
	if found {
		d.store.SetStatus(tomato.DaemonBootstrap)
		d.logger.Info("restored state", "path", path)
	} else {
		d.store.SetStatus(tomato.DaemonBootstrap)
	}
	d.store.SetPort(port)
	return nil
}

// Persist snapshots the live state to disk, called once background
// tasks have joined during graceful stop (spec §4.1.2).
func (d *Daemon) Persist() error {
	path := state.StatePath(d.dataDir, d.store.Port())
	return d.store.Persist(path)
}

// Handler returns the rpc.Handler to register with rpc.Listen. Every
// call is funneled through the single command-loop goroutine.
func (d *Daemon) Handler() rpc.Handler {
	return func(req rpc.Request) tomato.Reply {
		sender, _ := uuid.GenerateUUID()
		env := envelope{req: req, respCh: make(chan tomato.Reply, 1)}
		select {
		case d.cmds <- env:
		case <-d.done:
			return tomato.Fail("daemon is shutting down", nil)
		}
		reply := <-env.respCh
		d.logger.Trace("handled command", "cmd", req.Cmd, "sender", sender, "success", reply.Success)
		return reply
	}
}

// Run drains the command queue until Close is called. It must run in
// its own goroutine; it is the only goroutine allowed to mutate d.store.
func (d *Daemon) Run() {
	for {
		select {
		case env := <-d.cmds:
			env.respCh <- d.dispatch(env.req)
		case <-d.done:
			// Drain anyone already queued so they don't block forever.
			for {
				select {
				case env := <-d.cmds:
					env.respCh <- tomato.Fail("daemon is shutting down", nil)
				default:
					return
				}
			}
		}
	}
}

// Close stops the command loop. Safe to call once.
func (d *Daemon) Close() { close(d.done) }

func (d *Daemon) dispatch(req rpc.Request) tomato.Reply {
	switch req.Cmd {
	case "status":
		return d.cmdStatus(req.Params)
	case "stop":
		return d.cmdStop()
	case "setup":
		return d.cmdSetup(req.Params)
	case "pipeline":
		return d.cmdPipeline(req.Params)
	case "job":
		return d.cmdJob(req.Params)
	case "driver":
		return d.cmdDriver(req.Params)
	default:
		return tomato.Fail(fmt.Sprintf("unknown command %q", req.Cmd), nil)
	}
}

func (d *Daemon) cmdStatus(params map[string]any) tomato.Reply {
	withData, _ := params["with_data"].(bool)
	if !withData {
		return tomato.Ok("status", d.store.Status())
	}
	return tomato.Ok("status", d.store.Snapshot())
}

func (d *Daemon) cmdStop() tomato.Reply {
	for _, j := range d.store.Jobs() {
		if j.Status == tomato.JobRunning {
			return tomato.Fail("jobs are running", nil)
		}
	}
	d.store.SetStatus(tomato.DaemonStop)
	return tomato.Ok("stopping", nil)
}

func (d *Daemon) cmdSetup(params map[string]any) tomato.Reply {
	var devices map[string]tomato.Device
	var pipelines map[string]tomato.Pipeline
	var drivers map[string]map[string]any
	if v, ok := params["devices"]; ok {
		if err := rpc.Decode(v, &devices); err != nil {
			return tomato.Fail(fmt.Sprintf("setup: decode devices: %v", err), nil)
		}
	}
	if v, ok := params["pipelines"]; ok {
		if err := rpc.Decode(v, &pipelines); err != nil {
			return tomato.Fail(fmt.Sprintf("setup: decode pipelines: %v", err), nil)
		}
	}
	if v, ok := params["drivers"]; ok {
		if err := rpc.Decode(v, &drivers); err != nil {
			return tomato.Fail(fmt.Sprintf("setup: decode drivers: %v", err), nil)
		}
	}

	snap := d.store.Snapshot()

	if snap.Status == tomato.DaemonRunning {
		if err := checkReloadSafety(snap, pipelines, drivers); err != nil {
			return tomato.Fail(err.Error(), nil)
		}
	}

	merged := mergePipelines(snap.Pipelines, pipelines)
	for _, p := range merged {
		if err := d.store.PutPipeline(p); err != nil {
			return tomato.Fail(fmt.Sprintf("setup: store pipeline %q: %v", p.Name, err), nil)
		}
	}
	for name := range snap.Pipelines {
		if _, ok := merged[name]; !ok {
			if err := d.store.DeletePipeline(name); err != nil {
				return tomato.Fail(fmt.Sprintf("setup: delete pipeline %q: %v", name, err), nil)
			}
		}
	}

	for _, dev := range devices {
		if err := d.store.PutDevice(dev); err != nil {
			return tomato.Fail(fmt.Sprintf("setup: store device %q: %v", dev.Name, err), nil)
		}
	}

	for name, settings := range drivers {
		drv, ok := d.store.Driver(name)
		if !ok {
			drv = tomato.Driver{Name: name}
		}
		drv.Settings = settings
		if err := d.store.PutDriver(drv); err != nil {
			return tomato.Fail(fmt.Sprintf("setup: store driver %q: %v", name, err), nil)
		}
	}

	if d.store.Status() == tomato.DaemonBootstrap {
		d.store.SetStatus(tomato.DaemonRunning)
	}
	return tomato.Ok("setup applied", nil)
}

func (d *Daemon) cmdPipeline(params map[string]any) tomato.Reply {
	name, _ := params["name"].(string)
	if name == "" {
		return tomato.Fail("pipeline: name is required", nil)
	}
	p, ok := d.store.Pipeline(name)
	if !ok {
		return tomato.Fail(fmt.Sprintf("pipeline: unknown pipeline %q", name), nil)
	}

	if v, ok := params["sampleid"]; ok {
		sampleID, _ := v.(string)
		if sampleID == "" && p.JobID != 0 {
			return tomato.Fail("pipeline: eject forbidden while a job is assigned", nil)
		}
		p.SampleID = sampleID
	}
	if v, ok := params["ready"]; ok {
		ready, _ := v.(bool)
		if ready && p.JobID != 0 {
			return tomato.Fail("pipeline: cannot mark ready while a job is assigned", nil)
		}
		p.Ready = ready
	}
	if v, ok := params["jobid"]; ok {
		jobID, _ := toInt(v)
		p.JobID = jobID
	}
	if v, ok := params["pid"]; ok {
		pid, _ := toInt(v)
		p.PID = pid
	}

	if err := d.store.PutPipeline(p); err != nil {
		return tomato.Fail(fmt.Sprintf("pipeline: %v", err), nil)
	}
	return tomato.Ok("pipeline updated", p)
}

func (d *Daemon) cmdJob(params map[string]any) tomato.Reply {
	rawID, hasID := params["id"]
	if !hasID {
		var payload tomato.Payload
		if v, ok := params["payload"]; ok {
			if err := rpc.Decode(v, &payload); err != nil {
				return tomato.Fail(fmt.Sprintf("job: decode payload: %v", err), nil)
			}
		}
		jobname, _ := params["jobname"].(string)
		id := d.store.AllocateJobID()
		job := tomato.Job{
			ID:          id,
			JobName:     jobname,
			Payload:     payload,
			Status:      tomato.JobQueued,
			SubmittedAt: time.Now().UTC(),
		}
		if err := d.store.PutJob(job); err != nil {
			return tomato.Fail(fmt.Sprintf("job: %v", err), nil)
		}
		return tomato.Ok("job created", job)
	}

	id, ok := toInt(rawID)
	if !ok {
		return tomato.Fail("job: id must be an integer", nil)
	}
	job, ok := d.store.Job(id)
	if !ok {
		return tomato.Fail(fmt.Sprintf("job: unknown job %d", id), nil)
	}

	if v, ok := params["status"]; ok {
		statusStr, _ := v.(string)
		newStatus := tomato.JobStatus(statusStr)
		if !validJobTransition(job.Status, newStatus) {
			return tomato.Fail(fmt.Sprintf("job: invalid transition %s -> %s", job.Status, newStatus), nil)
		}
		job.Status = newStatus
	}
	if v, ok := params["pid"]; ok {
		job.PID, _ = toInt(v)
	}
	if v, ok := params["executed_at"]; ok {
		var t time.Time
		if err := rpc.Decode(v, &t); err == nil {
			job.ExecutedAt = &t
		}
	}
	if v, ok := params["completed_at"]; ok {
		var t time.Time
		if err := rpc.Decode(v, &t); err == nil {
			job.CompletedAt = &t
		}
	}
	if v, ok := params["jobpath"]; ok {
		job.JobPath, _ = v.(string)
	}
	if v, ok := params["respath"]; ok {
		job.RespPath, _ = v.(string)
	}
	if v, ok := params["snappath"]; ok {
		job.SnapPath, _ = v.(string)
	}

	if err := d.store.PutJob(job); err != nil {
		return tomato.Fail(fmt.Sprintf("job: %v", err), nil)
	}
	return tomato.Ok("job updated", job)
}

func (d *Daemon) cmdDriver(params map[string]any) tomato.Reply {
	name, _ := params["name"].(string)
	if name == "" {
		return tomato.Fail("driver: name is required", nil)
	}
	drv, ok := d.store.Driver(name)
	if !ok {
		drv = tomato.Driver{Name: name}
	}
	if v, ok := params["port"]; ok {
		drv.Port, _ = toInt(v)
	}
	if v, ok := params["pid"]; ok {
		drv.PID, _ = toInt(v)
	}
	if v, ok := params["spawned_at"]; ok {
		var t time.Time
		if err := rpc.Decode(v, &t); err == nil {
			drv.SpawnedAt = &t
		}
	}
	if v, ok := params["connected_at"]; ok {
		var t time.Time
		if err := rpc.Decode(v, &t); err == nil {
			drv.ConnectedAt = &t
		}
	}
	if v, ok := params["settings"]; ok {
		if settings, ok := v.(map[string]any); ok {
			snap := d.store.Snapshot()
			if snap.Status == tomato.DaemonRunning && driversInUse(snap)[name] && !sameSettings(drv.Settings, settings) {
				return tomato.Fail(fmt.Sprintf("reload would modify a driver of a device in a running pipeline: %q", name), nil)
			}
			drv.Settings = settings
		}
	}
	if err := d.store.PutDriver(drv); err != nil {
		return tomato.Fail(fmt.Sprintf("driver: %v", err), nil)
	}
	return tomato.Ok("driver updated", drv)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
