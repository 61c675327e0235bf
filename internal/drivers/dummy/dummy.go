// Package dummy implements the fallback "dummy" driver installed by
// internal/config's default-devices-file behavior (SUPPLEMENTED
// FEATURES #2) so a checkout with no devices.yml still has something
// schedulable.
package dummy

import (
	"math/rand"
	"sync"

	"github.com/dgbowl/tomato/internal/component"
	"github.com/dgbowl/tomato/internal/driver"
)

func init() {
	driver.Register("dummy", New)
}

type backend struct {
	mu  sync.Mutex
	n   int
}

// New builds a dummy Backend.
func New(address string, channel int, settings map[string]any) (component.Backend, error) {
	return &backend{}, nil
}

func (b *backend) Capabilities() []string { return []string{"random", "sequential"} }

func (b *backend) Constants() map[string]any { return map[string]any{} }

func (b *backend) Attrs() map[string]component.Attr { return map[string]component.Attr{} }

func (b *backend) SetAttr(name string, val any) error { return nil }

func (b *backend) GetAttr(name string) (any, error) { return nil, nil }

func (b *backend) DoMeasure() (component.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	return component.Row{"value": b.n}, nil
}

func (b *backend) DoTask(technique string) (component.Row, bool, error) {
	switch technique {
	case "sequential":
		b.mu.Lock()
		defer b.mu.Unlock()
		b.n++
		return component.Row{"value": b.n}, true, nil
	case "random":
		return component.Row{"value": rand.Intn(100)}, true, nil
	default:
		return nil, false, nil
	}
}
