// Command ketchup is the queue CLI named in spec §6: submit, status,
// cancel, snapshot, search.
package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/cli"
)

func main() {
	c := cli.NewCLI("ketchup", "0.1.0")
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"submit":   func() (cli.Command, error) { return &SubmitCommand{}, nil },
		"status":   func() (cli.Command, error) { return &JobStatusCommand{}, nil },
		"cancel":   func() (cli.Command, error) { return &CancelCommand{}, nil },
		"snapshot": func() (cli.Command, error) { return &SnapshotCommand{}, nil },
		"search":   func() (cli.Command, error) { return &SearchCommand{}, nil },
	}

	exitStatus, err := c.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitStatus)
}
