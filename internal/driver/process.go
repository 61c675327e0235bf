package driver

import (
	"fmt"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/dgbowl/tomato/internal/component"
	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

// Process owns one driver's devmap: every Component materialised for
// devices of this driver name, addressed by (address, channel) (spec
// §4.4).
type Process struct {
	Name     string
	factory  Factory
	log      hclog.Logger
	settings map[string]any

	mu     sync.Mutex
	devmap map[tomato.ComponentKey]*component.Worker
}

// NewProcess builds a driver Process for name using its registered
// factory. Returns an error if name was never Register-ed, the Go form
// of the source rejecting an unresolvable driver class.
func NewProcess(name string, settings map[string]any, log hclog.Logger) (*Process, error) {
	factory, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("driver: no factory registered for %q (known: %v)", name, Names())
	}
	return &Process{
		Name:     name,
		factory:  factory,
		settings: settings,
		log:      log.Named("driver." + name),
		devmap:   map[tomato.ComponentKey]*component.Worker{},
	}, nil
}

// Handler returns the rpc.Handler for this driver's command socket
// (spec §4.4's accepted commands, plus the deprecated dev_* aliases
// named in SUPPLEMENTED FEATURES #6).
func (p *Process) Handler(onStop func()) rpc.Handler {
	return func(req rpc.Request) tomato.Reply {
		cmd := req.Cmd
		if alias, ok := legacyAliases[cmd]; ok {
			p.log.Warn("deprecated command name used", "cmd", cmd, "use", alias)
			cmd = alias
		}
		switch cmd {
		case "cmp_register":
			return p.cmpRegister(req.Params)
		case "cmp_teardown":
			return p.cmpTeardown(req.Params)
		case "cmp_reset":
			return p.cmpReset(req.Params)
		case "cmp_set_attr":
			return p.cmpSetAttr(req.Params)
		case "cmp_get_attr":
			return p.cmpGetAttr(req.Params)
		case "cmp_status":
			return p.cmpStatus(req.Params)
		case "cmp_attrs":
			return p.cmpAttrs(req.Params)
		case "cmp_capabilities":
			return p.cmpCapabilities(req.Params)
		case "cmp_constants":
			return p.cmpConstants(req.Params)
		case "cmp_last_data":
			return p.cmpLastData(req.Params)
		case "cmp_measure":
			return p.cmpMeasure(req.Params)
		case "task_start":
			return p.taskStart(req.Params)
		case "task_status":
			return p.taskStatus(req.Params)
		case "task_stop":
			return p.taskStop(req.Params)
		case "task_data":
			return p.taskData(req.Params)
		case "driver_settings":
			return p.driverSettings(req.Params)
		case "status":
			return p.status()
		case "stop":
			p.stopAll()
			if onStop != nil {
				go onStop()
			}
			return tomato.Ok("stopping", nil)
		default:
			return tomato.Fail(fmt.Sprintf("unknown command %q", req.Cmd), nil)
		}
	}
}

// legacyAliases maps the deprecated driverinterface_2_1 `dev_*` command
// names onto their `cmp_*` successors.
var legacyAliases = map[string]string{
	"dev_register":     "cmp_register",
	"dev_teardown":     "cmp_teardown",
	"dev_reset":        "cmp_reset",
	"dev_set_attr":     "cmp_set_attr",
	"dev_get_attr":     "cmp_get_attr",
	"dev_status":       "cmp_status",
	"dev_attrs":        "cmp_attrs",
	"dev_capabilities": "cmp_capabilities",
	"dev_constants":    "cmp_constants",
	"dev_last_data":    "cmp_last_data",
	"dev_measure":      "cmp_measure",
}

func keyFromParams(params map[string]any) (tomato.ComponentKey, error) {
	address, _ := params["address"].(string)
	ch, ok := toInt(params["channel"])
	if !ok {
		if raw, ok := params["key"]; ok {
			var key tomato.ComponentKey
			if err := rpc.Decode(raw, &key); err == nil {
				return key, nil
			}
		}
		return tomato.ComponentKey{}, fmt.Errorf("missing or invalid channel")
	}
	return tomato.ComponentKey{Address: address, Channel: ch}, nil
}

func (p *Process) cmpRegister(params map[string]any) tomato.Reply {
	key, err := keyFromParams(params)
	if err != nil {
		return tomato.Fail(err.Error(), nil)
	}
	backend, err := p.factory(key.Address, key.Channel, p.settings)
	if err != nil {
		return tomato.Fail(fmt.Sprintf("cmp_register: factory failed: %v", err), nil)
	}
	w := component.New(key, backend, p.log)

	p.mu.Lock()
	p.devmap[key] = w
	p.mu.Unlock()

	return tomato.Ok("registered", w.Capabilities())
}

func (p *Process) worker(params map[string]any) (*component.Worker, tomato.Reply, bool) {
	key, err := keyFromParams(params)
	if err != nil {
		return nil, tomato.Fail(err.Error(), nil), false
	}
	p.mu.Lock()
	w, ok := p.devmap[key]
	p.mu.Unlock()
	if !ok {
		return nil, tomato.Fail(fmt.Sprintf("no component registered at %+v", key), nil), false
	}
	return w, tomato.Reply{}, true
}

func (p *Process) cmpTeardown(params map[string]any) tomato.Reply {
	key, err := keyFromParams(params)
	if err != nil {
		return tomato.Fail(err.Error(), nil)
	}
	p.mu.Lock()
	w, ok := p.devmap[key]
	delete(p.devmap, key)
	p.mu.Unlock()
	if ok {
		w.Teardown()
	}
	return tomato.Ok("torn down", nil)
}

func (p *Process) cmpReset(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	w.Reset()
	return tomato.Ok("reset", nil)
}

func (p *Process) cmpSetAttr(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	name, _ := params["attr"].(string)
	if err := w.SetAttr(name, params["val"]); err != nil {
		return tomato.Fail(err.Error(), nil)
	}
	return tomato.Ok("set", nil)
}

func (p *Process) cmpGetAttr(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	name, _ := params["attr"].(string)
	val, err := w.GetAttr(name)
	if err != nil {
		return tomato.Fail(err.Error(), nil)
	}
	return tomato.Ok("get", val)
}

func (p *Process) cmpStatus(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	return tomato.Ok("status", w.Status())
}

func (p *Process) cmpAttrs(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	return tomato.Ok("attrs", w.Attrs())
}

func (p *Process) cmpCapabilities(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	return tomato.Ok("capabilities", w.Capabilities())
}

func (p *Process) cmpConstants(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	return tomato.Ok("constants", w.Constants())
}

func (p *Process) cmpLastData(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	return tomato.Ok("last_data", w.LastData())
}

func (p *Process) cmpMeasure(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	if err := w.Measure(); err != nil {
		return tomato.Fail(err.Error(), nil)
	}
	return tomato.Ok("measuring", nil)
}

func (p *Process) taskStart(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	var task tomato.Task
	raw, ok := params["task"]
	if !ok {
		return tomato.Fail("task_start: missing or invalid task", nil)
	}
	if err := rpc.Decode(raw, &task); err != nil {
		return tomato.Fail(fmt.Sprintf("task_start: decode task: %v", err), nil)
	}
	if err := w.StartTask(task); err != nil {
		return tomato.Fail(err.Error(), nil)
	}
	return tomato.Ok("task started", nil)
}

func (p *Process) taskStatus(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	running, canSubmit, task := w.TaskStatus()
	data := map[string]any{"running": running, "can_submit": canSubmit}
	if task != nil {
		data["task"] = *task
	} else {
		data["task"] = false
	}
	return tomato.Ok("task_status", data)
}

func (p *Process) taskStop(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	return tomato.Ok("task stopped", w.StopTask())
}

func (p *Process) taskData(params map[string]any) tomato.Reply {
	w, fail, ok := p.worker(params)
	if !ok {
		return fail
	}
	return tomato.Ok("task_data", w.DrainData())
}

// driverSettings implements SUPPLEMENTED FEATURES #5: live driver-level
// settings update, applied to every factory call from here on. Existing
// components keep whatever settings they were registered with; only
// components registered after this call see the update.
func (p *Process) driverSettings(params map[string]any) tomato.Reply {
	settings, ok := params["settings"].(map[string]any)
	if !ok {
		return tomato.Fail("driver_settings: missing or invalid settings", nil)
	}
	p.mu.Lock()
	p.settings = settings
	p.mu.Unlock()
	return tomato.Ok("settings updated", nil)
}

func (p *Process) status() tomato.Reply {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]tomato.ComponentKey, 0, len(p.devmap))
	for k := range p.devmap {
		keys = append(keys, k)
	}
	return tomato.Ok("status", keys)
}

func (p *Process) stopAll() {
	p.mu.Lock()
	workers := make([]*component.Worker, 0, len(p.devmap))
	for _, w := range p.devmap {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	for _, w := range workers {
		done := make(chan struct{})
		go func(w *component.Worker) {
			w.Teardown()
			close(done)
		}(w)
		select {
		case <-done:
		case <-time.After(time.Second):
			p.log.Error("component worker did not join within 1s", "key", w.Key)
		}
	}
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
