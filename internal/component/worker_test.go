package component

import (
	"fmt"
	"sync"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/dgbowl/tomato/internal/testutil"
	"github.com/dgbowl/tomato/internal/tomato"
)

// fakeBackend is a minimal in-memory Backend for exercising the task
// lifecycle without a real driver.
type fakeBackend struct {
	mu     sync.Mutex
	n      int
	attrs  map[string]Attr
	values map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		attrs: map[string]Attr{
			"gain": {Name: "gain", Kind: KindInt, ReadWrite: true, StatusTagged: true, Min: ptr(0), Max: ptr(10)},
		},
		values: map[string]any{"gain": 1},
	}
}

func (b *fakeBackend) Attrs() map[string]Attr    { return b.attrs }
func (b *fakeBackend) Capabilities() []string    { return []string{"count"} }
func (b *fakeBackend) Constants() map[string]any { return map[string]any{"vendor": "fake"} }

func (b *fakeBackend) SetAttr(name string, val any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[name] = val
	return nil
}

func (b *fakeBackend) GetAttr(name string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[name]
	if !ok {
		return nil, fmt.Errorf("unknown attr %q", name)
	}
	return v, nil
}

func (b *fakeBackend) DoMeasure() (Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	return Row{"n": b.n}, nil
}

func (b *fakeBackend) DoTask(technique string) (Row, bool, error) {
	if technique != "count" {
		return nil, false, nil
	}
	row, err := b.DoMeasure()
	return row, true, err
}

func testLogger() hclog.Logger {
	return hclog.NewNullLogger()
}

func TestWorker_SetGetAttr(t *testing.T) {
	w := New(tomato.ComponentKey{Address: "a", Channel: 1}, newFakeBackend(), testLogger())
	defer w.Teardown()

	require.NoError(t, w.SetAttr("gain", 5))
	v, err := w.GetAttr("gain")
	require.NoError(t, err)
	require.Equal(t, 5, v)

	require.Error(t, w.SetAttr("gain", 99))
	require.Error(t, w.SetAttr("missing", 1))
}

func TestWorker_ValidateTaskRejectsUnknownTechnique(t *testing.T) {
	w := New(tomato.ComponentKey{Address: "a", Channel: 1}, newFakeBackend(), testLogger())
	defer w.Teardown()

	err := w.ValidateTask(tomato.Task{TechniqueName: "bogus", SamplingInterval: 0.1, MaxDuration: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a declared capability")
}

func TestWorker_ValidateTaskRequiresPositiveDurations(t *testing.T) {
	w := New(tomato.ComponentKey{Address: "a", Channel: 1}, newFakeBackend(), testLogger())
	defer w.Teardown()

	err := w.ValidateTask(tomato.Task{TechniqueName: "count"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "sampling_interval")
	require.Contains(t, err.Error(), "max_duration")
}

func TestWorker_StartTaskRunsAndCollectsData(t *testing.T) {
	w := New(tomato.ComponentKey{Address: "a", Channel: 1}, newFakeBackend(), testLogger())
	defer w.Teardown()

	task := tomato.Task{TechniqueName: "count", SamplingInterval: 0.02, MaxDuration: 0.15}
	require.NoError(t, w.StartTask(task))

	testutil.WaitFor(func() (bool, error) {
		running, _, _ := w.TaskStatus()
		return !running, nil
	}, 2*time.Second, 10*time.Millisecond, t)

	rows := w.DrainData()
	require.NotEmpty(t, rows)
}

func TestWorker_StopTaskCancelsEarly(t *testing.T) {
	w := New(tomato.ComponentKey{Address: "a", Channel: 1}, newFakeBackend(), testLogger())
	defer w.Teardown()

	task := tomato.Task{TechniqueName: "count", SamplingInterval: 0.01, MaxDuration: 10}
	require.NoError(t, w.StartTask(task))

	testutil.WaitFor(func() (bool, error) {
		running, _, _ := w.TaskStatus()
		return running, nil
	}, time.Second, 5*time.Millisecond, t)

	rows := w.StopTask()
	require.NotNil(t, rows)

	testutil.WaitFor(func() (bool, error) {
		running, _, _ := w.TaskStatus()
		return !running, nil
	}, time.Second, 5*time.Millisecond, t)
}

func TestWorker_MeasureRejectsWhenBusy(t *testing.T) {
	w := New(tomato.ComponentKey{Address: "a", Channel: 1}, newFakeBackend(), testLogger())
	defer w.Teardown()

	task := tomato.Task{TechniqueName: "count", SamplingInterval: 0.01, MaxDuration: 10}
	require.NoError(t, w.StartTask(task))

	testutil.WaitFor(func() (bool, error) {
		running, _, _ := w.TaskStatus()
		return running, nil
	}, time.Second, 5*time.Millisecond, t)

	require.Error(t, w.Measure())
	w.StopTask()
}

func TestWorker_Reset(t *testing.T) {
	w := New(tomato.ComponentKey{Address: "a", Channel: 1}, newFakeBackend(), testLogger())
	defer w.Teardown()

	task := tomato.Task{TechniqueName: "count", SamplingInterval: 0.01, MaxDuration: 0.1}
	require.NoError(t, w.StartTask(task))
	time.Sleep(20 * time.Millisecond)

	w.Reset()

	running, _, current := w.TaskStatus()
	require.False(t, running)
	require.Nil(t, current)
	require.Empty(t, w.DrainData())

	require.NoError(t, w.Measure())
}
