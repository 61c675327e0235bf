package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"github.com/dgbowl/tomato/internal/tomato"
)

// State names the worker state machine's positions (spec §4.5).
type State string

const (
	StateIdle    State = "idle"
	StatePrepare State = "prepare"
	StateRunning State = "running"
	StateDone    State = "done"
	StateMeasure State = "measure"
)

// Row is one sample: a flat map of column name to value, append-only
// within a task's data cache.
type Row map[string]any

// Backend is the technique-specific behavior a concrete driver
// implements for one Component. The worker drives it through the task
// loop described in spec §4.5; Backend itself never touches the queue,
// cache or lock.
type Backend interface {
	Attrs() map[string]Attr
	Capabilities() []string
	Constants() map[string]any
	SetAttr(name string, val any) error
	GetAttr(name string) (any, error)
	// DoMeasure takes one default sample, used when a technique has no
	// technique-specific sampling function.
	DoMeasure() (Row, error)
	// DoTask takes one technique-specific sample. ok is false when the
	// technique has no specialised sampler and the worker should fall
	// back to DoMeasure.
	DoTask(technique string) (row Row, ok bool, err error)
}

// Worker is the per-Component task engine of spec §4.5: a task queue, a
// single worker goroutine, a data cache, a last-data slot and the
// data-lock guarding both.
type Worker struct {
	Key    tomato.ComponentKey
	backend Backend
	log    hclog.Logger

	queue chan tomato.Task

	mu         sync.Mutex // data-lock
	cache      []Row
	lastData   Row
	state      State
	current    *tomato.Task
	cancelFunc context.CancelFunc

	doRun bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds and starts a Worker's goroutine.
func New(key tomato.ComponentKey, backend Backend, log hclog.Logger) *Worker {
	w := &Worker{
		Key:     key,
		backend: backend,
		log:     log.Named(fmt.Sprintf("component.%s:%d", key.Address, key.Channel)),
		queue:   make(chan tomato.Task, 16),
		state:   StateIdle,
		doRun:   true,
		stopCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Capabilities, Attrs, Constants, SetAttr, GetAttr delegate straight to
// the backend; they're exposed here so driver.go has one thing
// (*Worker) to hold per devmap entry.
func (w *Worker) Capabilities() []string        { return w.backend.Capabilities() }
func (w *Worker) Attrs() map[string]Attr        { return w.backend.Attrs() }
func (w *Worker) Constants() map[string]any     { return w.backend.Constants() }

// SetAttr validates and applies val to attr (spec §4.4 cmp_set_attr).
func (w *Worker) SetAttr(name string, val any) error {
	attr, ok := w.backend.Attrs()[name]
	if !ok {
		return fmt.Errorf("unknown attr %q", name)
	}
	coerced, err := attr.Validate(val)
	if err != nil {
		return err
	}
	return w.backend.SetAttr(name, coerced)
}

// GetAttr reads attr (spec §4.4 cmp_get_attr).
func (w *Worker) GetAttr(name string) (any, error) {
	if _, ok := w.backend.Attrs()[name]; !ok {
		return nil, fmt.Errorf("unknown attr %q", name)
	}
	return w.backend.GetAttr(name)
}

// Status returns the status-tagged attrs plus `running` (spec §4.4
// cmp_status).
func (w *Worker) Status() map[string]any {
	out := map[string]any{}
	for name, attr := range w.backend.Attrs() {
		if !attr.StatusTagged {
			continue
		}
		if v, err := w.backend.GetAttr(name); err == nil {
			out[name] = v
		}
	}
	w.mu.Lock()
	out["running"] = w.state == StateRunning
	w.mu.Unlock()
	return out
}

// LastData returns the last recorded sample without clearing it (spec
// §4.4 cmp_last_data).
func (w *Worker) LastData() Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastData
}

// DrainData returns and clears the accumulated batch (spec §4.4
// task_data).
func (w *Worker) DrainData() []Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.cache
	w.cache = nil
	return out
}

// TaskStatus reports {running, can_submit, task} (spec §4.4
// task_status).
func (w *Worker) TaskStatus() (running bool, canSubmit bool, task *tomato.Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	running = w.state == StateRunning || w.state == StatePrepare
	canSubmit = len(w.queue) < cap(w.queue)
	return running, canSubmit, w.current
}

// ValidateTask implements spec §4.5.1: reject a task whose technique
// isn't a declared capability, or whose task_params fail attribute
// validation. Every failure is accumulated, not just the first.
func (w *Worker) ValidateTask(task tomato.Task) error {
	var result *multierror.Error
	found := false
	for _, c := range w.backend.Capabilities() {
		if c == task.TechniqueName {
			found = true
			break
		}
	}
	if !found {
		result = multierror.Append(result, fmt.Errorf("technique %q is not a declared capability", task.TechniqueName))
	}
	attrs := w.backend.Attrs()
	for name, val := range task.TaskParams {
		attr, ok := attrs[name]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("unknown attr %q", name))
			continue
		}
		if _, err := attr.Validate(val); err != nil {
			result = multierror.Append(result, fmt.Errorf("attr %q: %w", name, err))
		}
	}
	if task.SamplingInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("sampling_interval must be > 0"))
	}
	if task.MaxDuration <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_duration must be > 0"))
	}
	return result.ErrorOrNil()
}

// StartTask enqueues a validated task (spec §4.4 task_start). It
// returns before execution begins.
func (w *Worker) StartTask(task tomato.Task) error {
	if err := w.ValidateTask(task); err != nil {
		return err
	}
	select {
	case w.queue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// StopTask cancels the running task, if any, and returns the
// accumulated batch (spec §4.4 task_stop).
func (w *Worker) StopTask() []Row {
	w.mu.Lock()
	cancel := w.cancelFunc
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return w.DrainData()
}

// Reset implements spec §4.5.2: stop the worker, drain the queue,
// rebuild the data cache, and start a fresh worker goroutine.
func (w *Worker) Reset() {
	close(w.stopCh)
	w.wg.Wait()

	w.mu.Lock()
	w.cache = nil
	w.lastData = nil
	w.state = StateIdle
	w.mu.Unlock()

drain:
	for {
		select {
		case <-w.queue:
		default:
			break drain
		}
	}

	w.doRun = true
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.loop()
}

// Teardown stops the worker goroutine permanently (spec §4.4
// cmp_teardown).
func (w *Worker) Teardown() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case task := <-w.queue:
			w.runTask(task)
		}
	}
}

func (w *Worker) runTask(task tomato.Task) {
	ctx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.state = StatePrepare
	w.current = &task
	w.cancelFunc = cancel
	w.cache = nil
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.state = StateIdle
		w.current = nil
		w.cancelFunc = nil
		w.mu.Unlock()
	}()

	for name, val := range task.TaskParams {
		if err := w.SetAttr(name, val); err != nil {
			w.log.Error("prepare_task failed", "attr", name, "error", err)
			return
		}
	}

	w.mu.Lock()
	w.state = StateRunning
	w.mu.Unlock()

	limiter := rate.NewLimiter(rate.Every(time.Duration(task.SamplingInterval*float64(time.Second))), 1)
	deadline := time.Now().Add(time.Duration(task.MaxDuration * float64(time.Second)))
	sleep := clamp(time.Duration(task.SamplingInterval/20*float64(time.Second)), 10*time.Millisecond, 200*time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}
		if time.Now().After(deadline) {
			return
		}
		if limiter.Allow() {
			w.sampleOnce(task.TechniqueName)
		}
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(sleep):
		}
	}
}

func (w *Worker) sampleOnce(technique string) {
	row, ok, err := w.backend.DoTask(technique)
	if !ok {
		row, err = w.backend.DoMeasure()
	}
	if err != nil {
		w.log.Error("sample failed", "error", err)
		return
	}
	w.mu.Lock()
	w.cache = append(w.cache, row)
	w.lastData = row
	w.mu.Unlock()
}

// Measure takes a one-shot measurement synchronously, on the caller's
// goroutine, if the worker is idle and its queue is empty (spec §4.4
// cmp_measure); nothing is placed on the task queue.
func (w *Worker) Measure() error {
	w.mu.Lock()
	idle := w.state == StateIdle && len(w.queue) == 0
	w.mu.Unlock()
	if !idle {
		return fmt.Errorf("component is busy")
	}
	row, err := w.backend.DoMeasure()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.state = StateMeasure
	w.lastData = row
	w.cache = append(w.cache, row)
	w.state = StateIdle
	w.mu.Unlock()
	return nil
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
