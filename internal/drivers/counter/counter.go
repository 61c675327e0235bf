// Package counter implements the "counter" example driver used by the
// end-to-end scenarios of spec §8: two techniques, `count` and
// `random`, and a single read-write attr `max`.
package counter

import (
	"math/rand"
	"sync"

	"github.com/dgbowl/tomato/internal/component"
	"github.com/dgbowl/tomato/internal/driver"
)

func init() {
	driver.Register("counter", New)
}

type backend struct {
	mu  sync.Mutex
	max int
	n   int
}

// New builds a counter Backend. address/channel/settings are accepted
// to satisfy driver.Factory but unused: the counter has no physical
// transport.
func New(address string, channel int, settings map[string]any) (component.Backend, error) {
	return &backend{max: 100}, nil
}

func (b *backend) Capabilities() []string { return []string{"count", "random"} }

func (b *backend) Constants() map[string]any {
	return map[string]any{"channel": "virtual"}
}

func zero() *float64 {
	v := 0.0
	return &v
}

func hundred() *float64 {
	v := 100.0
	return &v
}

func (b *backend) Attrs() map[string]component.Attr {
	return map[string]component.Attr{
		"max": {
			Name:         "max",
			Kind:         component.KindInt,
			ReadWrite:    true,
			StatusTagged: true,
			Min:          zero(),
			Max:          hundred(),
		},
	}
}

func (b *backend) SetAttr(name string, val any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "max" {
		b.max, _ = val.(int)
	}
	return nil
}

func (b *backend) GetAttr(name string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "max" {
		return b.max, nil
	}
	return nil, nil
}

func (b *backend) DoMeasure() (component.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	if b.n > b.max {
		b.n = 0
	}
	return component.Row{"value": b.n}, nil
}

func (b *backend) DoTask(technique string) (component.Row, bool, error) {
	switch technique {
	case "count":
		b.mu.Lock()
		defer b.mu.Unlock()
		b.n++
		if b.n > b.max {
			b.n = 0
		}
		return component.Row{"value": b.n}, true, nil
	case "random":
		b.mu.Lock()
		max := b.max
		b.mu.Unlock()
		return component.Row{"value": rand.Intn(max + 1)}, true, nil
	default:
		return nil, false, nil
	}
}
