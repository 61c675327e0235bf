// Package jobworker implements the transient job-worker process of
// spec §4.6: reads its job spec from disk, resolves pipeline components
// to driver ports via the daemon, fans out one goroutine per
// component-role poller, and on success hands off to the external
// artifact builder.
package jobworker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/dgbowl/tomato/internal/artifact"
	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

// JobData is the on-disk shape of jobdata.json written by the job
// manager (spec §4.3 step 3).
type JobData struct {
	Pipeline tomato.Pipeline `json:"pipeline"`
	Payload  tomato.Payload  `json:"payload"`
	Job      struct {
		ID   int    `json:"id"`
		Path string `json:"path"`
	} `json:"job"`
}

// ReadJobData loads and parses a jobdata.json file.
func ReadJobData(path string) (JobData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return JobData{}, fmt.Errorf("jobworker: read %s: %w", path, err)
	}
	var jd JobData
	if err := json.Unmarshal(raw, &jd); err != nil {
		return JobData{}, fmt.Errorf("jobworker: parse %s: %w", path, err)
	}
	return jd, nil
}

// roleWork is one role's ordered task list plus the resolved component
// it runs against.
type roleWork struct {
	Role      string
	Component tomato.Component
	Driver    tomato.Driver
	Tasks     []tomato.Task
	OutFile   string
}

// Run executes the full job-worker lifecycle against jobData, whose
// sibling files live under dir.
func Run(dir string, jobData JobData, daemonPort int, log hclog.Logger) error {
	client := rpc.NewClient("127.0.0.1:"+strconv.Itoa(daemonPort), time.Second)
	reply, err := client.Call("status", map[string]any{"with_data": true})
	if err != nil {
		return fmt.Errorf("jobworker: status: %w", err)
	}
	if !reply.Success {
		return fmt.Errorf("jobworker: status: %s", reply.Msg)
	}
	var snap tomato.Snapshot
	if err := rpc.Decode(reply.Data, &snap); err != nil {
		return fmt.Errorf("jobworker: status returned unexpected data type: %w", err)
	}

	work, err := resolveRoles(jobData, snap)
	if err != nil {
		return fmt.Errorf("jobworker: %w", err)
	}

	var eg errgroup.Group
	for _, w := range work {
		w := w
		w.OutFile = filepath.Join(dir, fmt.Sprintf("%s.json", w.Role))
		eg.Go(func() error {
			return runRolePoller(w, log)
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("jobworker: role poller failed: %w", err)
	}

	outputs := make(map[string]string, len(work))
	for _, w := range work {
		outputs[w.Role] = w.OutFile
	}
	return artifact.Build(jobData.Payload.Output, outputs, log)
}

func resolveRoles(jobData JobData, snap tomato.Snapshot) (map[string]*roleWork, error) {
	work := map[string]*roleWork{}
	for _, step := range jobData.Payload.Method {
		w, ok := work[step.Device]
		if !ok {
			comp, ok := jobData.Pipeline.Devs[step.Device]
			if !ok {
				return nil, fmt.Errorf("role %q not present in pipeline %q", step.Device, jobData.Pipeline.Name)
			}
			dev, ok := snap.Devices[comp.DeviceName]
			if !ok {
				return nil, fmt.Errorf("device %q not found in daemon snapshot", comp.DeviceName)
			}
			drv, ok := snap.Drivers[dev.Driver]
			if !ok {
				return nil, fmt.Errorf("driver %q not found in daemon snapshot", dev.Driver)
			}
			w = &roleWork{Role: step.Device, Component: comp, Driver: drv}
			work[step.Device] = w
		}
		task := tomato.Task{
			TechniqueName:    step.Technique,
			TaskParams:       step.TaskParams,
			SamplingInterval: step.SamplingInterval,
			MaxDuration:      step.MaxDuration,
		}
		w.Tasks = append(w.Tasks, task)
	}
	return work, nil
}
