package jobworker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgbowl/tomato/internal/tomato"
)

func testJobData() JobData {
	return JobData{
		Pipeline: tomato.Pipeline{
			Name: "pip-c",
			Devs: map[string]tomato.Component{
				"worker": {DeviceName: "counter1", Role: "worker", Address: "a", Channel: 1},
			},
		},
		Payload: tomato.Payload{
			Method: []tomato.MethodStep{
				{Device: "worker", Technique: "count", SamplingInterval: 0.1, MaxDuration: 1},
				{Device: "worker", Technique: "random", SamplingInterval: 0.1, MaxDuration: 1},
			},
		},
	}
}

func testSnapshot() tomato.Snapshot {
	return tomato.Snapshot{
		Devices: map[string]tomato.Device{
			"counter1": {Name: "counter1", Driver: "counter"},
		},
		Drivers: map[string]tomato.Driver{
			"counter": {Name: "counter", Port: 1234},
		},
	}
}

func TestResolveRoles_GroupsStepsByDevice(t *testing.T) {
	work, err := resolveRoles(testJobData(), testSnapshot())
	require.NoError(t, err)
	require.Len(t, work, 1)
	require.Len(t, work["worker"].Tasks, 2)
	require.Equal(t, "counter", work["worker"].Driver.Name)
}

func TestResolveRoles_MissingRoleInPipeline(t *testing.T) {
	jd := testJobData()
	jd.Payload.Method = []tomato.MethodStep{{Device: "nonexistent", Technique: "count"}}
	_, err := resolveRoles(jd, testSnapshot())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not present in pipeline")
}

func TestResolveRoles_MissingDeviceInSnapshot(t *testing.T) {
	jd := testJobData()
	snap := testSnapshot()
	delete(snap.Devices, "counter1")
	_, err := resolveRoles(jd, snap)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found in daemon snapshot")
}

func TestResolveRoles_MissingDriverInSnapshot(t *testing.T) {
	jd := testJobData()
	snap := testSnapshot()
	delete(snap.Drivers, "counter")
	_, err := resolveRoles(jd, snap)
	require.Error(t, err)
	require.Contains(t, err.Error(), "driver \"counter\" not found")
}
