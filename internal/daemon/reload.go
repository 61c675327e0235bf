package daemon

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/dgbowl/tomato/internal/tomato"
)

// checkReloadSafety implements spec §4.1.1: while `running`, a `setup`
// call is rejected outright (with every violation reported, not just the
// first) if it would disturb a Pipeline currently bound to a job.
func checkReloadSafety(
	current tomato.Snapshot,
	newPipelines map[string]tomato.Pipeline,
	newDrivers map[string]map[string]any,
) error {
	var result *multierror.Error

	for name, old := range current.Pipelines {
		if old.JobID == 0 {
			continue
		}
		next, ok := newPipelines[name]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("reload would delete a running pipeline %q", name))
			continue
		}
		if !sameComponents(old, next) {
			result = multierror.Append(result, fmt.Errorf("reload would modify components of a running pipeline %q", name))
		}
	}

	if newDrivers != nil {
		busyDrivers := driversInUse(current)
		for driverName, settings := range newDrivers {
			if !busyDrivers[driverName] {
				continue
			}
			old, ok := current.Drivers[driverName]
			if !ok {
				continue
			}
			if !sameSettings(old.Settings, settings) {
				result = multierror.Append(result, fmt.Errorf(
					"reload would modify a driver of a device in a running pipeline: %q", driverName))
			}
		}
	}

	return result.ErrorOrNil()
}

// sameComponents reports whether two pipelines address the same
// role->Component mapping, ignoring mutable runtime fields
// (ready/sampleid/jobid/pid).
func sameComponents(a, b tomato.Pipeline) bool {
	if len(a.Devs) != len(b.Devs) {
		return false
	}
	for role, ca := range a.Devs {
		cb, ok := b.Devs[role]
		if !ok || ca != cb {
			return false
		}
	}
	return true
}

func sameSettings(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// driversInUse returns the set of driver names backing a Device used by
// any Pipeline currently bound to a job.
func driversInUse(snap tomato.Snapshot) map[string]bool {
	inUse := map[string]bool{}
	for _, pip := range snap.Pipelines {
		if pip.JobID == 0 {
			continue
		}
		for _, comp := range pip.Devs {
			if dev, ok := snap.Devices[comp.DeviceName]; ok {
				inUse[dev.Driver] = true
			}
		}
	}
	return inUse
}

// mergePipelines implements the §4.1 `setup` merge rule: pipelines that
// are unchanged, or that are bound to a running job, are preserved
// as-is; everything else is replaced wholesale by the incoming set.
func mergePipelines(current, incoming map[string]tomato.Pipeline) map[string]tomato.Pipeline {
	out := make(map[string]tomato.Pipeline, len(incoming))
	for name, next := range incoming {
		old, existed := current[name]
		if existed && old.JobID != 0 {
			out[name] = old
			continue
		}
		if existed && old.Equal(next) {
			out[name] = old
			continue
		}
		out[name] = next
	}
	return out
}
