// Package match implements the pure pipeline<->job matching predicates
// used by the job manager (§4.3): which pipelines could ever run a given
// payload, and whether a specific pipeline is ready to run it right now.
package match

import (
	"sort"

	"github.com/hashicorp/go-set/v3"

	"github.com/dgbowl/tomato/internal/tomato"
)

// Candidates returns the names, in deterministic (sorted) order, of
// every pipeline whose role set covers the method's required roles and
// whose combined component capabilities cover the method's required
// techniques. Capabilities live on the owning Device (§3's
// Component/Device split), so devices is consulted alongside pipelines.
// Sorted order is required by §5: "within the matching candidates for a
// Job, Pipeline scanning order is deterministic (sorted by name)".
func Candidates(
	pipelines map[string]tomato.Pipeline,
	devices map[string]tomato.Device,
	method []tomato.MethodStep,
) []string {
	reqRoles := set.New[string](len(method))
	reqTechniques := set.New[string](len(method))
	for _, step := range method {
		reqRoles.Insert(step.Device)
		reqTechniques.Insert(step.Technique)
	}

	var matched []string
	for name, pip := range pipelines {
		roles := set.New[string](len(pip.Devs))
		capabs := set.New[string](0)
		for role, comp := range pip.Devs {
			roles.Insert(role)
			if dev, ok := devices[comp.DeviceName]; ok {
				capabs.InsertSlice(dev.Capabilities)
			}
		}
		if !roles.ContainsSlice(reqRoles.Slice()) {
			continue
		}
		if !capabs.ContainsSlice(reqTechniques.Slice()) {
			continue
		}
		matched = append(matched, name)
	}
	sort.Strings(matched)
	return matched
}

// ReadyForSample reports whether a pipeline is ready and currently
// loaded with the sample a job requires, the Go form of
// `_pipeline_ready_sample`.
func ReadyForSample(p tomato.Pipeline, sample tomato.Sample) bool {
	if !p.Ready {
		return false
	}
	return p.SampleID == sample.Name
}
