package jobworker

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

// runRolePoller implements spec §4.6.1: drive one role's task list
// against its driver process, serially and in payload order, appending
// every polled batch to the role's on-disk file.
func runRolePoller(w *roleWork, log hclog.Logger) error {
	log = log.Named("poller." + w.Role)
	client := rpc.NewClient("127.0.0.1:"+strconv.Itoa(w.Driver.Port), time.Second)
	params := map[string]any{"address": w.Component.Address, "channel": w.Component.Channel}

	var rows []any
	for i, task := range w.Tasks {
		if err := waitIdle(client, params); err != nil {
			return fmt.Errorf("role %q task %d: %w", w.Role, i, err)
		}

		taskParams := map[string]any{}
		for k, v := range params {
			taskParams[k] = v
		}
		taskParams["task"] = task
		reply, err := client.Call("task_start", taskParams)
		if err != nil || !reply.Success {
			return fmt.Errorf("role %q task %d: task_start: %v %s", w.Role, i, err, reply.Msg)
		}

		pollInterval := time.Duration(pollRateSeconds(task) * float64(time.Second))
		for {
			time.Sleep(pollInterval)
			reply, err := client.Call("task_data", params)
			if err == nil && reply.Success {
				if batch, ok := reply.Data.([]any); ok {
					rows = append(rows, batch...)
				}
			}
			status, err := client.Call("task_status", params)
			if err != nil || !status.Success {
				break
			}
			data, ok := status.Data.(map[string]any)
			if !ok {
				break
			}
			running, _ := data["running"].(bool)
			if !running {
				break
			}
		}

		reply, err = client.Call("task_data", params)
		if err == nil && reply.Success {
			if batch, ok := reply.Data.([]any); ok {
				rows = append(rows, batch...)
			}
		}
	}

	return appendRows(w.OutFile, rows)
}

func waitIdle(client *rpc.Client, params map[string]any) error {
	for {
		reply, err := client.Call("task_status", params)
		if err != nil {
			return err
		}
		if !reply.Success {
			return fmt.Errorf(reply.Msg)
		}
		data, ok := reply.Data.(map[string]any)
		if !ok {
			return fmt.Errorf("task_status: unexpected data shape")
		}
		running, _ := data["running"].(bool)
		if !running {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// pollRateSeconds derives a poll cadence from the task's own sampling
// interval: the poller need not poll faster than the component
// samples.
func pollRateSeconds(task tomato.Task) float64 {
	if task.SamplingInterval > 0 {
		return task.SamplingInterval
	}
	return 1
}

// appendRows concatenates rows onto path's existing contents along the
// sample axis (spec §6: "per-role files are append-friendly").
func appendRows(path string, rows []any) error {
	var existing []any
	if raw, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(raw, &existing)
	}
	existing = append(existing, rows...)
	buf, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
