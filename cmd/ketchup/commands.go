package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

// SubmitCommand implements `ketchup submit <payload-file> [--jobname J]`.
type SubmitCommand struct{}

func (c *SubmitCommand) Help() string     { return "Usage: ketchup submit <payload-file> [--jobname J]" }
func (c *SubmitCommand) Synopsis() string { return "Submit a new job" }
func (c *SubmitCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("submit", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Println(c.Help())
		return 1
	}
	raw, err := os.ReadFile(rest[0])
	if err != nil {
		fmt.Println(err)
		return 1
	}
	var payload tomato.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		fmt.Println(err)
		return 1
	}
	reply, err := b.client().Call("job", map[string]any{"payload": payload, "jobname": b.jobname})
	if err != nil {
		reply = tomato.Fail(err.Error(), nil)
	}
	return renderReply(&b, reply)
}

// JobStatusCommand implements `ketchup status [jobid…]`.
type JobStatusCommand struct{}

func (c *JobStatusCommand) Help() string     { return "Usage: ketchup status [jobid…]" }
func (c *JobStatusCommand) Synopsis() string { return "Report job status" }
func (c *JobStatusCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("status", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ids, err := parseIDs(fs.Args())
	if err != nil {
		fmt.Println(err)
		return 1
	}
	snap, reply, ok := fetchSnapshot(&b)
	if !ok {
		return renderReply(&b, reply)
	}
	if len(ids) == 0 {
		return renderReply(&b, tomato.Ok("jobs", snap.Jobs))
	}
	out := map[int]tomato.Job{}
	for _, id := range ids {
		if j, ok := snap.Jobs[id]; ok {
			out[id] = j
		}
	}
	return renderReply(&b, tomato.Ok("jobs", out))
}

// CancelCommand implements `ketchup cancel <jobid>…`.
type CancelCommand struct{}

func (c *CancelCommand) Help() string     { return "Usage: ketchup cancel <jobid>…" }
func (c *CancelCommand) Synopsis() string { return "Cancel one or more jobs" }
func (c *CancelCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("cancel", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ids, err := parseIDs(fs.Args())
	if err != nil || len(ids) == 0 {
		fmt.Println(c.Help())
		return 1
	}
	client := b.client()
	exit := 0
	for _, id := range ids {
		statusReply, err := client.Call("status", map[string]any{"with_data": true})
		if err != nil || !statusReply.Success {
			exit = 1
			continue
		}
		var snap tomato.Snapshot
		if err := rpc.Decode(statusReply.Data, &snap); err != nil {
			exit = 1
			continue
		}
		job, ok := snap.Jobs[id]
		if !ok {
			fmt.Printf("job %d: not found\n", id)
			exit = 1
			continue
		}
		target := tomato.JobCancelled
		if job.Status == tomato.JobRunning {
			target = tomato.JobRunDeleteReq
		}
		reply, err := client.Call("job", map[string]any{"id": id, "status": string(target)})
		if err != nil {
			reply = tomato.Fail(err.Error(), nil)
		}
		if rc := renderReply(&b, reply); rc != 0 {
			exit = rc
		}
	}
	return exit
}

// SnapshotCommand implements `ketchup snapshot <jobid>…`.
type SnapshotCommand struct{}

func (c *SnapshotCommand) Help() string     { return "Usage: ketchup snapshot <jobid>…" }
func (c *SnapshotCommand) Synopsis() string { return "Show full job records" }
func (c *SnapshotCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("snapshot", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ids, err := parseIDs(fs.Args())
	if err != nil {
		fmt.Println(err)
		return 1
	}
	snap, reply, ok := fetchSnapshot(&b)
	if !ok {
		return renderReply(&b, reply)
	}
	out := map[int]tomato.Job{}
	for _, id := range ids {
		if j, ok := snap.Jobs[id]; ok {
			out[id] = j
		}
	}
	return renderReply(&b, tomato.Ok("snapshot", out))
}

// SearchCommand implements `ketchup search <jobname-substring>`
// (SUPPLEMENTED FEATURES #4): a case-sensitive substring scan over
// Job.JobName across every job, not just queued ones.
type SearchCommand struct{}

func (c *SearchCommand) Help() string     { return "Usage: ketchup search <jobname-substring>" }
func (c *SearchCommand) Synopsis() string { return "Search jobs by name substring" }
func (c *SearchCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("search", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Println(c.Help())
		return 1
	}
	snap, reply, ok := fetchSnapshot(&b)
	if !ok {
		return renderReply(&b, reply)
	}
	matches := map[int]tomato.Job{}
	for id, j := range snap.Jobs {
		if strings.Contains(j.JobName, rest[0]) {
			matches[id] = j
		}
	}
	return renderReply(&b, tomato.Ok("matches", matches))
}

func fetchSnapshot(b *baseFlags) (tomato.Snapshot, tomato.Reply, bool) {
	reply, err := b.client().Call("status", map[string]any{"with_data": true})
	if err != nil {
		return tomato.Snapshot{}, tomato.Fail(err.Error(), nil), false
	}
	if !reply.Success {
		return tomato.Snapshot{}, reply, false
	}
	var snap tomato.Snapshot
	if err := rpc.Decode(reply.Data, &snap); err != nil {
		return tomato.Snapshot{}, tomato.Fail("status returned unexpected data type", nil), false
	}
	return snap, tomato.Reply{}, true
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
