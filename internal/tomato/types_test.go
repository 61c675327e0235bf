package tomato

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshot_CloneIsIndependentOfSource(t *testing.T) {
	spawned := time.Now()
	snap := Snapshot{
		Status: DaemonRunning,
		Pipelines: map[string]Pipeline{
			"pip-a": {Name: "pip-a", Devs: map[string]Component{"we": {DeviceName: "counter-1", Role: "we"}}},
		},
		Drivers: map[string]Driver{
			"counter": {Name: "counter", SpawnedAt: &spawned, Settings: map[string]any{"x": 1}},
		},
		Jobs: map[int]Job{
			1: {ID: 1, Payload: Payload{Method: []MethodStep{{Device: "we", Technique: "count"}}}},
		},
	}

	clone := snap.Clone()

	clone.Pipelines["pip-a"].Devs["wo"] = Component{DeviceName: "counter-2"}
	require.NotContains(t, snap.Pipelines["pip-a"].Devs, "wo")

	clone.Drivers["counter"].Settings["x"] = 2
	require.Equal(t, 1, snap.Drivers["counter"].Settings["x"])

	*clone.Drivers["counter"].SpawnedAt = spawned.Add(time.Hour)
	require.Equal(t, spawned, *snap.Drivers["counter"].SpawnedAt)

	j := clone.Jobs[1]
	j.Payload.Method[0].Technique = "changed"
	require.Equal(t, "count", snap.Jobs[1].Payload.Method[0].Technique)
}

func TestPipeline_EqualDetectsDevChanges(t *testing.T) {
	a := Pipeline{Name: "pip-a", Devs: map[string]Component{"we": {DeviceName: "counter-1"}}}
	b := Pipeline{Name: "pip-a", Devs: map[string]Component{"we": {DeviceName: "counter-1"}}}
	require.True(t, a.Equal(b))

	b.Devs["we"] = Component{DeviceName: "counter-2"}
	require.False(t, a.Equal(b))
}

func TestPipeline_RolesSorted(t *testing.T) {
	p := Pipeline{Devs: map[string]Component{"wo": {}, "wa": {}, "we": {}}}
	require.Equal(t, []string{"wa", "we", "wo"}, p.Roles())
}

func TestOkFail(t *testing.T) {
	ok := Ok("done", 1)
	require.True(t, ok.Success)
	require.Equal(t, 1, ok.Data)

	fail := Fail("bad", nil)
	require.False(t, fail.Success)
}
