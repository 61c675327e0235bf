// Command tomato is the control CLI named in spec §6: status, start,
// stop, init, reload, and pipeline load/eject/ready.
package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/cli"
)

func main() {
	c := cli.NewCLI("tomato", "0.1.0")
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"status":          func() (cli.Command, error) { return &StatusCommand{}, nil },
		"start":           func() (cli.Command, error) { return &StartCommand{}, nil },
		"stop":            func() (cli.Command, error) { return &StopCommand{}, nil },
		"init":            func() (cli.Command, error) { return &InitCommand{}, nil },
		"reload":          func() (cli.Command, error) { return &ReloadCommand{}, nil },
		"pipeline load":   func() (cli.Command, error) { return &PipelineLoadCommand{}, nil },
		"pipeline eject":  func() (cli.Command, error) { return &PipelineEjectCommand{}, nil },
		"pipeline ready":  func() (cli.Command, error) { return &PipelineReadyCommand{}, nil },
		"driver settings": func() (cli.Command, error) { return &DriverSettingsCommand{}, nil },
	}

	exitStatus, err := c.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitStatus)
}
