// Package tomato defines the wire- and state-level value types shared by
// every process in the orchestration plane: the daemon, driver processes,
// job workers, and the CLIs that talk to them.
package tomato

import (
	"sort"
	"time"
)

// JobStatus is one of the terminal or transitional states a Job moves
// through. See the state machine in internal/daemon/jobsm.go: q -> qw -> r -> {c, cd,
// ce}; r -> rd -> cd; q -> cd.
type JobStatus string

const (
	JobQueued          JobStatus = "q"
	JobQueuedMatched   JobStatus = "qw"
	JobRunning         JobStatus = "r"
	JobRunDeleteReq    JobStatus = "rd"
	JobCompleted       JobStatus = "c"
	JobCancelled       JobStatus = "cd"
	JobCompletedErrors JobStatus = "ce"
)

// DaemonStatus mirrors the lifecycle of the central daemon process.
type DaemonStatus string

const (
	DaemonBootstrap DaemonStatus = "bootstrap"
	DaemonRunning   DaemonStatus = "running"
	DaemonStop      DaemonStatus = "stop"
)

// Reply is the uniform response envelope for every control-socket and
// driver-socket command. Data is intentionally untyped: a structured value
// that crossed a socket arrives as generic maps/slices, so callers convert
// it with rpc.Decode rather than a direct type assertion.
type Reply struct {
	Success bool
	Msg     string
	Data    any
}

// Ok builds a successful Reply.
func Ok(msg string, data any) Reply {
	return Reply{Success: true, Msg: msg, Data: data}
}

// Fail builds a failed Reply.
func Fail(msg string, data any) Reply {
	return Reply{Success: false, Msg: msg, Data: data}
}

// Driver is the daemon's record of one driver-process slot: one entry per
// distinct driver name required by the device set.
type Driver struct {
	Name        string
	Port        int  // 0 until the driver process self-registers
	PID         int  // 0 until the supervisor records the spawned process
	SpawnedAt   *time.Time
	ConnectedAt *time.Time
	Settings    map[string]any
}

func (d Driver) clone() Driver {
	out := d
	if d.SpawnedAt != nil {
		t := *d.SpawnedAt
		out.SpawnedAt = &t
	}
	if d.ConnectedAt != nil {
		t := *d.ConnectedAt
		out.ConnectedAt = &t
	}
	out.Settings = cloneMap(d.Settings)
	return out
}

// Device is one physical unit addressable by a driver, expanded at config
// load time into one or more Components (one per channel).
type Device struct {
	Name         string
	Driver       string
	Address      string
	Channels     []int
	Capabilities []string
	PollRate     int // seconds, >= 1
}

func (d Device) clone() Device {
	out := d
	out.Channels = append([]int(nil), d.Channels...)
	out.Capabilities = append([]string(nil), d.Capabilities...)
	return out
}

// Component identifies one addressable channel of one Device, as used by a
// Pipeline's role map. The pair (Address, Channel) is the key a driver
// process uses internally in its devmap.
type Component struct {
	DeviceName string
	Role       string
	Address    string
	Channel    int
}

// Key returns the (address, channel) pair that identifies this component
// inside its owning driver process.
func (c Component) Key() ComponentKey {
	return ComponentKey{Address: c.Address, Channel: c.Channel}
}

// ComponentKey is the devmap key used by driver processes (§4.4).
type ComponentKey struct {
	Address string
	Channel int
}

// Pipeline is a named, fixed composition of device components reserved
// for one sample at a time.
type Pipeline struct {
	Name     string
	Ready    bool
	SampleID string // empty means "no sample loaded"
	JobID    int    // 0 means "no job assigned"
	PID      int
	Devs     map[string]Component // role -> component
}

func (p Pipeline) clone() Pipeline {
	out := p
	out.Devs = make(map[string]Component, len(p.Devs))
	for k, v := range p.Devs {
		out.Devs[k] = v
	}
	return out
}

// Roles returns the sorted set of role names this pipeline provides.
func (p Pipeline) Roles() []string {
	roles := make([]string, 0, len(p.Devs))
	for r := range p.Devs {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// Equal reports whether two pipelines have identical addressable content
// (name and role -> component map), ignoring the runtime fields
// ready/sampleid/jobid/pid; used by the reload merge (§4.1) to decide
// whether a pipeline changed.
func (p Pipeline) Equal(o Pipeline) bool {
	if p.Name != o.Name || len(p.Devs) != len(o.Devs) {
		return false
	}
	for role, c := range p.Devs {
		oc, ok := o.Devs[role]
		if !ok || oc != c {
			return false
		}
	}
	return true
}

// Task is one invocation of a technique with parameters, sampling cadence
// and a wall-clock budget (§9 "ad-hoc task parameter dicts become typed
// records").
type Task struct {
	TechniqueName     string
	TaskParams        map[string]any
	SamplingInterval  float64 // seconds, > 0
	MaxDuration       float64 // seconds, > 0
}

// MethodStep is one entry of a payload's method list: a role name and the
// technique to run on it, plus whatever task parameters apply.
type MethodStep struct {
	Device           string // role tag, despite the name (source compatibility)
	Technique        string
	TaskParams       map[string]any
	SamplingInterval float64
	MaxDuration      float64
}

func (m MethodStep) toTask() Task {
	return Task{
		TechniqueName:    m.Technique,
		TaskParams:       m.TaskParams,
		SamplingInterval: m.SamplingInterval,
		MaxDuration:      m.MaxDuration,
	}
}

// Sample identifies the physical sample under test.
type Sample struct {
	Name string
}

// Output configures where the job's final artifact should land.
type Output struct {
	Path   string
	Prefix string
}

// Payload is the declarative unit a client submits: a method, a sample,
// and output settings.
type Payload struct {
	Method []MethodStep
	Sample Sample
	Output Output
}

// Job is a queued unit of work: payload, lifecycle, accounting.
type Job struct {
	ID          int
	JobName     string
	Payload     Payload
	Status      JobStatus
	PID         int
	SubmittedAt time.Time
	ExecutedAt  *time.Time
	CompletedAt *time.Time
	JobPath     string
	RespPath    string
	SnapPath    string
}

func (j Job) clone() Job {
	out := j
	out.Payload.Method = append([]MethodStep(nil), j.Payload.Method...)
	if j.ExecutedAt != nil {
		t := *j.ExecutedAt
		out.ExecutedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Snapshot is a deep copy of the daemon's full state, returned by
// `status(with_data=true)` so that callers can operate without holding
// the daemon's lock (§4.1, §9).
type Snapshot struct {
	Status    DaemonStatus
	Port      int
	Pipelines map[string]Pipeline
	Devices   map[string]Device
	Drivers   map[string]Driver
	Jobs      map[int]Job
	NextJobID int
}

// Clone deep-copies a Snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Status:    s.Status,
		Port:      s.Port,
		NextJobID: s.NextJobID,
		Pipelines: make(map[string]Pipeline, len(s.Pipelines)),
		Devices:   make(map[string]Device, len(s.Devices)),
		Drivers:   make(map[string]Driver, len(s.Drivers)),
		Jobs:      make(map[int]Job, len(s.Jobs)),
	}
	for k, v := range s.Pipelines {
		out.Pipelines[k] = v.clone()
	}
	for k, v := range s.Devices {
		out.Devices[k] = v.clone()
	}
	for k, v := range s.Drivers {
		out.Drivers[k] = v.clone()
	}
	for k, v := range s.Jobs {
		out.Jobs[k] = v.clone()
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
