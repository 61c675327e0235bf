// Package jobmgr implements the job manager background task of spec
// §4.3: reaping dead or cancelled jobs, promoting queued jobs that now
// have a matching pipeline, and dispatching matched jobs onto ready
// pipelines by spawning detached job-worker processes.
package jobmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/dgbowl/tomato/internal/daemon/match"
	"github.com/dgbowl/tomato/internal/procutil"
	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

// KillTimeout bounds how long the reaper waits for a cancelled job's
// process tree to exit before giving up (spec §4.3 step 1).
const KillTimeout = 3 * time.Second

// Config wires a Manager to its daemon and to job-worker spawning.
type Config struct {
	Client        *rpc.Client
	Logger        hclog.Logger
	JobsStorage   string
	JobWorkerBin  string
	DaemonAddr    string
	Interval      time.Duration
}

// Manager is the job manager's running state.
type Manager struct {
	cfg Config
	log hclog.Logger
}

// New builds a Manager. A zero Interval falls back to the spec's 1 s
// default loop period.
func New(cfg Config) *Manager {
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	return &Manager{cfg: cfg, log: cfg.Logger.Named("jobmgr")}
}

// Run loops until stopCh closes, applying one manager tick per
// Interval.
func (m *Manager) Run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := m.tick(); err != nil {
				m.log.Warn("job manager tick failed", "error", err)
			}
		}
	}
}

func (m *Manager) tick() error {
	snap, err := m.snapshot()
	if err != nil {
		return err
	}
	if snap.Status != tomato.DaemonRunning {
		return nil
	}

	m.reap(snap)

	// Recompute after reap may have cleared pipelines/jobs.
	snap, err = m.snapshot()
	if err != nil {
		return err
	}
	m.matchQueue(snap)

	snap, err = m.snapshot()
	if err != nil {
		return err
	}
	m.dispatch(snap)

	return nil
}

func (m *Manager) snapshot() (tomato.Snapshot, error) {
	reply, err := m.cfg.Client.Call("status", map[string]any{"with_data": true})
	if err != nil {
		return tomato.Snapshot{}, fmt.Errorf("jobmgr: status: %w", err)
	}
	if !reply.Success {
		return tomato.Snapshot{}, fmt.Errorf("jobmgr: status: %s", reply.Msg)
	}
	var snap tomato.Snapshot
	if err := rpc.Decode(reply.Data, &snap); err != nil {
		return tomato.Snapshot{}, fmt.Errorf("jobmgr: status returned unexpected data type: %w", err)
	}
	return snap, nil
}

// reap implements spec §4.3 step 1: for every Pipeline bound to a job,
// check the job's liveness and clear both sides when it has ended.
func (m *Manager) reap(snap tomato.Snapshot) {
	for _, pip := range snap.Pipelines {
		if pip.JobID == 0 {
			continue
		}
		job, ok := snap.Jobs[pip.JobID]
		if !ok {
			continue
		}

		switch {
		case job.Status == tomato.JobRunDeleteReq && job.PID != 0 && procutil.Alive(job.PID):
			_ = procutil.KillTree(job.PID, KillTimeout, m.log)
			m.finishJob(job, pip, tomato.JobCancelled)
		case job.Status == tomato.JobRunDeleteReq:
			m.finishJob(job, pip, tomato.JobCancelled)
		case job.Status == tomato.JobRunning && !procutil.Alive(job.PID):
			m.finishJob(job, pip, tomato.JobCompletedErrors)
		}
	}
}

func (m *Manager) finishJob(job tomato.Job, pip tomato.Pipeline, final tomato.JobStatus) {
	now := time.Now().UTC()
	reply, err := m.cfg.Client.Call("job", map[string]any{
		"id":           job.ID,
		"status":       string(final),
		"completed_at": now,
	})
	if err != nil || !reply.Success {
		m.log.Error("failed to finalize job", "job", job.ID, "error", err, "reply", reply.Msg)
		return
	}
	reply, err = m.cfg.Client.Call("pipeline", map[string]any{
		"name":  pip.Name,
		"jobid": 0,
		"pid":   0,
	})
	if err != nil || !reply.Success {
		m.log.Error("failed to clear pipeline", "pipeline", pip.Name, "error", err, "reply", reply.Msg)
		return
	}
	m.log.Info("reaped job", "job", job.ID, "status", final, "pipeline", pip.Name)
}

// matchQueue implements spec §4.3 step 2: promote `q` jobs that now
// have at least one matching pipeline to `qw`.
func (m *Manager) matchQueue(snap tomato.Snapshot) {
	for _, job := range queuedJobsSortedByID(snap) {
		if job.Status != tomato.JobQueued {
			continue
		}
		candidates := match.Candidates(snap.Pipelines, snap.Devices, job.Payload.Method)
		if len(candidates) == 0 {
			continue
		}
		reply, err := m.cfg.Client.Call("job", map[string]any{
			"id":     job.ID,
			"status": string(tomato.JobQueuedMatched),
		})
		if err != nil || !reply.Success {
			m.log.Warn("failed to promote job to qw", "job", job.ID, "error", err, "reply", reply.Msg)
		}
	}
}

// dispatch implements spec §4.3 step 3: for every `qw` job, in
// ascending id order, try its matched pipelines in deterministic order
// and assign the first one that is ready with the right sample loaded.
func (m *Manager) dispatch(snap tomato.Snapshot) {
	for _, job := range queuedJobsSortedByID(snap) {
		if job.Status != tomato.JobQueuedMatched {
			continue
		}
		candidates := match.Candidates(snap.Pipelines, snap.Devices, job.Payload.Method)
		for _, name := range candidates {
			pip := snap.Pipelines[name]
			if !match.ReadyForSample(pip, job.Payload.Sample) {
				continue
			}
			if m.dispatchOne(job, pip) {
				break
			}
		}
	}
}

func (m *Manager) dispatchOne(job tomato.Job, pip tomato.Pipeline) bool {
	reply, err := m.cfg.Client.Call("pipeline", map[string]any{
		"name":  pip.Name,
		"jobid": job.ID,
		"ready": false,
	})
	if err != nil || !reply.Success {
		m.log.Warn("dispatch: could not claim pipeline", "pipeline", pip.Name, "job", job.ID, "error", err, "reply", reply.Msg)
		return false
	}

	jobDir := filepath.Join(m.cfg.JobsStorage, fmt.Sprintf("%d", job.ID))
	jobPath := filepath.Join(jobDir, "jobdata.json")
	if err := writeJobData(jobDir, jobPath, pip, job); err != nil {
		m.log.Error("dispatch: could not write jobdata.json", "job", job.ID, "error", err)
		return false
	}

	pid, err := procutil.Spawn(m.cfg.JobWorkerBin, "-port", fmt.Sprintf("%d", portFromAddr(m.cfg.DaemonAddr)), jobPath)
	if err != nil {
		m.log.Error("dispatch: could not spawn job worker", "job", job.ID, "error", err)
		return false
	}

	now := time.Now().UTC()
	reply, err = m.cfg.Client.Call("job", map[string]any{
		"id":          job.ID,
		"status":      string(tomato.JobRunning),
		"pid":         pid,
		"executed_at": now,
		"jobpath":     jobPath,
	})
	if err != nil || !reply.Success {
		m.log.Error("dispatch: could not mark job running", "job", job.ID, "error", err, "reply", reply.Msg)
		return false
	}
	m.log.Info("dispatched job", "job", job.ID, "pipeline", pip.Name, "pid", pid)
	return true
}

// jobDataFile is the on-disk shape of jobdata.json (spec §4.3 step 3,
// §6 "On-disk job layout").
type jobDataFile struct {
	Pipeline tomato.Pipeline `json:"pipeline"`
	Payload  tomato.Payload  `json:"payload"`
	Job      jobRef          `json:"job"`
}

type jobRef struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
}

func writeJobData(dir, path string, pip tomato.Pipeline, job tomato.Job) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data := jobDataFile{
		Pipeline: pip,
		Payload:  job.Payload,
		Job:      jobRef{ID: job.ID, Path: path},
	}
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func queuedJobsSortedByID(snap tomato.Snapshot) []tomato.Job {
	jobs := make([]tomato.Job, 0, len(snap.Jobs))
	for _, j := range snap.Jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

func portFromAddr(addr string) int {
	var port int
	_, err := fmt.Sscanf(addr, "127.0.0.1:%d", &port)
	if err != nil {
		return 0
	}
	return port
}
