package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSettings_WritesDefaultWhenMissing(t *testing.T) {
	configDir := t.TempDir()
	dataDir := t.TempDir()

	s, err := LoadSettings(configDir, dataDir)
	require.NoError(t, err)
	require.Equal(t, dataDir, s.DataDir)
	require.Equal(t, filepath.Join(dataDir, "Jobs"), s.Jobs.Storage)
	require.Equal(t, filepath.Join(configDir, "devices.yml"), s.Devices.Config)
	require.Contains(t, s.Drivers, "dummy")

	_, err = LoadSettings(configDir, dataDir)
	require.NoError(t, err)
}

func TestLoadSettings_FillsDefaultsAroundPartialFile(t *testing.T) {
	configDir := t.TempDir()
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	path := filepath.Join(configDir, "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("datadir = \"/custom\"\n"), 0o644))

	s, err := LoadSettings(configDir, dataDir)
	require.NoError(t, err)
	require.Equal(t, "/custom", s.DataDir)
	require.Equal(t, filepath.Join("/custom", "Jobs"), s.Jobs.Storage)
}
