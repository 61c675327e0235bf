package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

// StatusCommand implements `tomato status`.
type StatusCommand struct{}

func (c *StatusCommand) Help() string     { return "Usage: tomato status [-yaml]" }
func (c *StatusCommand) Synopsis() string { return "Report daemon status" }
func (c *StatusCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("status", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	reply, err := b.client().Call("status", map[string]any{"with_data": true})
	if err != nil {
		reply = tomato.Fail(err.Error(), nil)
	}
	return renderReply(&b, reply)
}

// StartCommand implements `tomato start`. Starting the daemon process
// itself is a deployment concern (process manager, systemd unit); this
// command only verifies reachability, matching the control CLI's role
// as a thin client over the control socket (spec §6).
type StartCommand struct{}

func (c *StartCommand) Help() string     { return "Usage: tomato start" }
func (c *StartCommand) Synopsis() string { return "Verify the daemon is reachable" }
func (c *StartCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("start", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	reply, err := b.client().Call("status", nil)
	if err != nil {
		reply = tomato.Fail(err.Error(), nil)
	}
	return renderReply(&b, reply)
}

// StopCommand implements `tomato stop`.
type StopCommand struct{}

func (c *StopCommand) Help() string     { return "Usage: tomato stop" }
func (c *StopCommand) Synopsis() string { return "Stop the daemon" }
func (c *StopCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("stop", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	reply, err := b.client().Call("stop", nil)
	if err != nil {
		reply = tomato.Fail(err.Error(), nil)
	}
	return renderReply(&b, reply)
}

// InitCommand implements `tomato init` (SUPPLEMENTED FEATURES #1):
// write a default settings.toml when none exists.
type InitCommand struct{}

func (c *InitCommand) Help() string     { return "Usage: tomato init" }
func (c *InitCommand) Synopsis() string { return "Write a default settings.toml if one is missing" }
func (c *InitCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("init", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	settings, err := loadSettings(&b)
	if err != nil {
		fmt.Println(tomato.Fail(err.Error(), nil).Msg)
		return 1
	}
	return renderReply(&b, tomato.Ok(fmt.Sprintf("settings ready at %s", settings.DataDir), settings))
}

// ReloadCommand implements `tomato reload`: re-read settings.toml and
// devices.yml and send a fresh `setup`.
type ReloadCommand struct{}

func (c *ReloadCommand) Help() string     { return "Usage: tomato reload" }
func (c *ReloadCommand) Synopsis() string { return "Reload devices and pipelines from disk" }
func (c *ReloadCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("reload", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	settings, err := loadSettings(&b)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	devices, pipelines, err := loadDevices(settings)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	reply, err := b.client().Call("setup", map[string]any{
		"devices":   devices,
		"pipelines": pipelines,
		"drivers":   settings.Drivers,
	})
	if err != nil {
		reply = tomato.Fail(err.Error(), nil)
	}
	return renderReply(&b, reply)
}

// PipelineLoadCommand implements `tomato pipeline load <pipeline> <sampleid>`.
type PipelineLoadCommand struct{}

func (c *PipelineLoadCommand) Help() string { return "Usage: tomato pipeline load <pipeline> <sampleid>" }
func (c *PipelineLoadCommand) Synopsis() string { return "Load a sample onto a pipeline" }
func (c *PipelineLoadCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("pipeline load", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) != 2 {
		fmt.Println(c.Help())
		return 1
	}
	reply, err := b.client().Call("pipeline", map[string]any{"name": rest[0], "sampleid": rest[1]})
	if err != nil {
		reply = tomato.Fail(err.Error(), nil)
	}
	return renderReply(&b, reply)
}

// PipelineEjectCommand implements `tomato pipeline eject <pipeline>`.
type PipelineEjectCommand struct{}

func (c *PipelineEjectCommand) Help() string     { return "Usage: tomato pipeline eject <pipeline>" }
func (c *PipelineEjectCommand) Synopsis() string { return "Eject the sample from a pipeline" }
func (c *PipelineEjectCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("pipeline eject", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Println(c.Help())
		return 1
	}
	reply, err := b.client().Call("pipeline", map[string]any{"name": rest[0], "sampleid": ""})
	if err != nil {
		reply = tomato.Fail(err.Error(), nil)
	}
	return renderReply(&b, reply)
}

// PipelineReadyCommand implements `tomato pipeline ready <pipeline>`.
type PipelineReadyCommand struct{}

func (c *PipelineReadyCommand) Help() string     { return "Usage: tomato pipeline ready <pipeline>" }
func (c *PipelineReadyCommand) Synopsis() string { return "Mark a pipeline ready to run" }
func (c *PipelineReadyCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("pipeline ready", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Println(c.Help())
		return 1
	}
	reply, err := b.client().Call("pipeline", map[string]any{"name": rest[0], "ready": true})
	if err != nil {
		reply = tomato.Fail(err.Error(), nil)
	}
	return renderReply(&b, reply)
}

// DriverSettingsCommand implements `tomato driver settings <name> <json>`
// (SUPPLEMENTED FEATURES #5): update a driver's persisted settings and,
// if the driver process is currently alive, push the change live.
type DriverSettingsCommand struct{}

func (c *DriverSettingsCommand) Help() string {
	return "Usage: tomato driver settings <name> <json-object>"
}
func (c *DriverSettingsCommand) Synopsis() string { return "Update a driver's settings" }
func (c *DriverSettingsCommand) Run(args []string) int {
	var b baseFlags
	fs := newFlagSet("driver settings", &b)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) != 2 {
		fmt.Println(c.Help())
		return 1
	}
	var settings map[string]any
	if err := json.Unmarshal([]byte(rest[1]), &settings); err != nil {
		return renderReply(&b, tomato.Fail(fmt.Sprintf("driver settings: invalid json: %v", err), nil))
	}

	client := b.client()
	reply, err := client.Call("driver", map[string]any{"name": rest[0], "settings": settings})
	if err != nil {
		return renderReply(&b, tomato.Fail(err.Error(), nil))
	}
	if !reply.Success {
		return renderReply(&b, reply)
	}

	statusReply, err := client.Call("status", map[string]any{"with_data": true})
	if err == nil && statusReply.Success {
		var snap tomato.Snapshot
		if err := rpc.Decode(statusReply.Data, &snap); err == nil {
			if drv, ok := snap.Drivers[rest[0]]; ok && drv.Port != 0 {
				driverClient := rpc.NewClient(fmt.Sprintf("127.0.0.1:%d", drv.Port), time.Duration(b.timeout)*time.Millisecond)
				if liveReply, err := driverClient.Call("driver_settings", map[string]any{"settings": settings}); err != nil || !liveReply.Success {
					reply = tomato.Ok(fmt.Sprintf("settings persisted; live push failed: %v", err), nil)
				}
			}
		}
	}
	return renderReply(&b, reply)
}
