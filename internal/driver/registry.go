// Package driver implements the driver-process side of spec §4.4: a
// devmap of Component workers keyed by (address, channel), a
// request/reply command loop, and the explicit compile-time driver
// registry that spec §9 substitutes for the source's dynamic driver
// module import.
package driver

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/dgbowl/tomato/internal/component"
)

// Factory builds the Backend for one Component of a given driver,
// address and channel. One entry per shipped driver is registered at
// startup (spec §9: "explicit driver registry: a compile-time or
// startup-time table mapping name -> factory").
type Factory func(address string, channel int, settings map[string]any) (component.Backend, error)

var registry = map[string]Factory{}

// Register adds a driver factory under name. Called from each driver
// package's init, the same pattern Nomad's task driver plugins use to
// self-register with the client's driver manager.
func Register(name string, f Factory) {
	registry[name] = f
}

// Lookup returns the factory registered for name.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// Names returns every registered driver name, for diagnostics.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

// NopLogger is a convenience default for tests that don't care about
// driver-process logging.
var NopLogger = hclog.NewNullLogger()
