package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dgbowl/tomato/internal/tomato"
)

// DeviceSpec is one entry of devices.yml's `devices:` list.
type DeviceSpec struct {
	Name         string   `yaml:"name"`
	Driver       string   `yaml:"driver"`
	Address      string   `yaml:"address"`
	Channels     []int    `yaml:"channels"`
	Capabilities []string `yaml:"capabilities"`
	PollRate     int      `yaml:"pollrate"`
}

// PipelineDeviceSpec is one entry of a pipeline's `devices:` list: the
// role tag this slot is addressed by, the named device it draws from,
// and either a concrete channel or the literal "each" (only valid when
// the pipeline name itself contains a `*`).
type PipelineDeviceSpec struct {
	Tag     string `yaml:"tag"`
	Name    string `yaml:"name"`
	Channel any    `yaml:"channel"`
}

// PipelineSpec is one entry of devices.yml's `pipelines:` list.
type PipelineSpec struct {
	Name    string               `yaml:"name"`
	Devices []PipelineDeviceSpec `yaml:"devices"`
}

// DevicesFile is the parsed shape of devices.yml.
type DevicesFile struct {
	Devices   []DeviceSpec   `yaml:"devices"`
	Pipelines []PipelineSpec `yaml:"pipelines"`
}

// LoadDevices reads a devices.yml at path. If the file is missing, it
// falls back to a single dummy pipeline (`§SUPPLEMENTED FEATURES` #2),
// mirroring `setlib.functions._default_pipelines` so a fresh checkout
// has something to schedule against.
func LoadDevices(path string) (*DevicesFile, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultDevicesFile(), nil
	} else if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var df DevicesFile
	if err := yaml.Unmarshal(raw, &df); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &df, nil
}

func defaultDevicesFile() *DevicesFile {
	return &DevicesFile{
		Devices: []DeviceSpec{
			{
				Name:         "dummy_device",
				Driver:       "dummy",
				Address:      "",
				Channels:     []int{5, 10},
				Capabilities: []string{"random", "sequential"},
				PollRate:     1,
			},
		},
		Pipelines: []PipelineSpec{
			{
				Name: "dummy-*",
				Devices: []PipelineDeviceSpec{
					{Tag: "worker", Name: "dummy_device", Channel: "each"},
				},
			},
		},
	}
}

// Expand turns a DevicesFile into the Devices map and fully expanded
// Pipelines map the daemon state store wants, performing wildcard
// expansion as a pure function of the file contents (§9: "Pipeline
// wildcard expansion is a pure function of the devices file and runs at
// config load; it is not a runtime feature").
func Expand(df *DevicesFile) (devices map[string]tomato.Device, pipelines map[string]tomato.Pipeline, err error) {
	devices = make(map[string]tomato.Device, len(df.Devices))
	for _, d := range df.Devices {
		if d.PollRate <= 0 {
			d.PollRate = 1
		}
		devices[d.Name] = tomato.Device{
			Name:         d.Name,
			Driver:       d.Driver,
			Address:      d.Address,
			Channels:     append([]int(nil), d.Channels...),
			Capabilities: append([]string(nil), d.Capabilities...),
			PollRate:     d.PollRate,
		}
	}

	pipelines = make(map[string]tomato.Pipeline)
	for _, p := range df.Pipelines {
		expanded, err := expandPipeline(p, devices)
		if err != nil {
			return nil, nil, fmt.Errorf("config: pipeline %q: %w", p.Name, err)
		}
		for name, pip := range expanded {
			pipelines[name] = pip
		}
	}
	return devices, pipelines, nil
}

func expandPipeline(p PipelineSpec, devices map[string]tomato.Device) (map[string]tomato.Pipeline, error) {
	isWildcard := containsStar(p.Name)
	if isWildcard {
		if len(p.Devices) != 1 {
			return nil, fmt.Errorf("wildcard pipeline must reference exactly one device, got %d", len(p.Devices))
		}
		slot := p.Devices[0]
		if ch, ok := slot.Channel.(string); !ok || ch != "each" {
			return nil, fmt.Errorf("wildcard pipeline slot %q must use channel: each", slot.Tag)
		}
		dev, ok := devices[slot.Name]
		if !ok {
			return nil, fmt.Errorf("device %q not found", slot.Name)
		}
		out := make(map[string]tomato.Pipeline, len(dev.Channels))
		for _, ch := range dev.Channels {
			name := replaceStar(p.Name, ch)
			out[name] = tomato.Pipeline{
				Name: name,
				Devs: map[string]tomato.Component{
					slot.Tag: {
						DeviceName: dev.Name,
						Role:       slot.Tag,
						Address:    dev.Address,
						Channel:    ch,
					},
				},
			}
		}
		return out, nil
	}

	devs := make(map[string]tomato.Component, len(p.Devices))
	for _, slot := range p.Devices {
		dev, ok := devices[slot.Name]
		if !ok {
			return nil, fmt.Errorf("device %q not found", slot.Name)
		}
		ch, ok := slot.Channel.(int)
		if !ok {
			if f, ok2 := slot.Channel.(float64); ok2 {
				ch, ok = int(f), true
			}
		}
		if !ok {
			return nil, fmt.Errorf("slot %q needs a concrete integer channel", slot.Tag)
		}
		if !containsInt(dev.Channels, ch) {
			return nil, fmt.Errorf("channel %d not declared on device %q", ch, dev.Name)
		}
		devs[slot.Tag] = tomato.Component{
			DeviceName: dev.Name,
			Role:       slot.Tag,
			Address:    dev.Address,
			Channel:    ch,
		}
	}
	return map[string]tomato.Pipeline{
		p.Name: {Name: p.Name, Devs: devs},
	}, nil
}

func containsStar(s string) bool {
	for _, r := range s {
		if r == '*' {
			return true
		}
	}
	return false
}

func replaceStar(s string, ch int) string {
	out := make([]byte, 0, len(s)+2)
	replaced := false
	for i := 0; i < len(s); i++ {
		if s[i] == '*' && !replaced {
			out = append(out, []byte(fmt.Sprintf("%d", ch))...)
			replaced = true
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// SortedDeviceNames is a small helper for deterministic logging/tests.
func SortedDeviceNames(devices map[string]tomato.Device) []string {
	names := make([]string, 0, len(devices))
	for n := range devices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
