package match

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgbowl/tomato/internal/tomato"
)

func testDevices() map[string]tomato.Device {
	return map[string]tomato.Device{
		"counter1": {Name: "counter1", Driver: "counter", Capabilities: []string{"count", "random"}},
	}
}

func testPipelines() map[string]tomato.Pipeline {
	return map[string]tomato.Pipeline{
		"pip-c": {
			Name: "pip-c",
			Devs: map[string]tomato.Component{
				"worker": {DeviceName: "counter1", Role: "worker", Address: "addr", Channel: 1},
			},
		},
		"pip-d": {
			Name: "pip-d",
			Devs: map[string]tomato.Component{
				"other": {DeviceName: "counter1", Role: "other", Address: "addr", Channel: 2},
			},
		},
	}
}

func TestCandidates_MatchesByRoleAndCapability(t *testing.T) {
	method := []tomato.MethodStep{{Device: "worker", Technique: "count"}}
	got := Candidates(testPipelines(), testDevices(), method)
	require.Equal(t, []string{"pip-c"}, got)
}

func TestCandidates_NoRoleMatch(t *testing.T) {
	method := []tomato.MethodStep{{Device: "nonexistent-role", Technique: "count"}}
	got := Candidates(testPipelines(), testDevices(), method)
	require.Empty(t, got)
}

func TestCandidates_NoCapabilityMatch(t *testing.T) {
	method := []tomato.MethodStep{{Device: "worker", Technique: "potentiostatic"}}
	got := Candidates(testPipelines(), testDevices(), method)
	require.Empty(t, got)
}

func TestCandidates_SortedDeterministic(t *testing.T) {
	pips := map[string]tomato.Pipeline{
		"pip-b": {Name: "pip-b", Devs: map[string]tomato.Component{"worker": {DeviceName: "counter1"}}},
		"pip-a": {Name: "pip-a", Devs: map[string]tomato.Component{"worker": {DeviceName: "counter1"}}},
	}
	method := []tomato.MethodStep{{Device: "worker", Technique: "count"}}
	got := Candidates(pips, testDevices(), method)
	require.Equal(t, []string{"pip-a", "pip-b"}, got)
}

func TestReadyForSample(t *testing.T) {
	p := tomato.Pipeline{Ready: true, SampleID: "s1"}
	require.True(t, ReadyForSample(p, tomato.Sample{Name: "s1"}))
	require.False(t, ReadyForSample(p, tomato.Sample{Name: "s2"}))

	p.Ready = false
	require.False(t, ReadyForSample(p, tomato.Sample{Name: "s1"}))
}
