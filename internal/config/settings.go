// Package config loads and validates the two on-disk configuration
// sources named in spec §6: `settings.toml` (daemon/storage settings)
// and `devices.yml` (device and pipeline declarations), including the
// pure pipeline-wildcard-expansion function described in §9.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Settings mirrors `settings.toml`.
type Settings struct {
	DataDir string                    `toml:"datadir"`
	Jobs    JobsSettings              `toml:"jobs"`
	Devices DevicesSettings           `toml:"devices"`
	Drivers map[string]map[string]any `toml:"drivers"`
}

type JobsSettings struct {
	Storage string `toml:"storage"`
}

type DevicesSettings struct {
	Config string `toml:"config"`
}

// LoadSettings reads `<configdir>/settings.toml`, writing a default file
// (mirroring the source's `get_settings` auto-initialization) if one
// does not already exist.
func LoadSettings(configDir, dataDir string) (*Settings, error) {
	path := filepath.Join(configDir, "settings.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultSettings(path, configDir, dataDir); err != nil {
			return nil, err
		}
	}
	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if s.DataDir == "" {
		s.DataDir = dataDir
	}
	if s.Jobs.Storage == "" {
		s.Jobs.Storage = filepath.Join(s.DataDir, "Jobs")
	}
	if s.Devices.Config == "" {
		s.Devices.Config = filepath.Join(configDir, "devices.yml")
	}
	if s.Drivers == nil {
		s.Drivers = map[string]map[string]any{}
	}
	return &s, nil
}

func writeDefaultSettings(path, configDir, dataDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", configDir, err)
	}
	defaults := fmt.Sprintf(`# Default settings for tomato, generated on %s
datadir = %q

[jobs]
storage = %q

[devices]
config = %q

[drivers.dummy]
`,
		time.Now().UTC().Format(time.RFC3339),
		dataDir,
		filepath.Join(dataDir, "Jobs"),
		filepath.Join(configDir, "devices.yml"),
	)
	return os.WriteFile(path, []byte(defaults), 0o644)
}
