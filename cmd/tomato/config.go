package main

import (
	"github.com/dgbowl/tomato/internal/config"
	"github.com/dgbowl/tomato/internal/tomato"
)

func loadSettings(b *baseFlags) (*config.Settings, error) {
	return config.LoadSettings(b.appDir, b.dataDir)
}

func loadDevices(settings *config.Settings) (map[string]tomato.Device, map[string]tomato.Pipeline, error) {
	df, err := config.LoadDevices(settings.Devices.Config)
	if err != nil {
		return nil, nil, err
	}
	return config.Expand(df)
}
