package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dgbowl/tomato/internal/cliutil"
	"github.com/dgbowl/tomato/internal/rpc"
	"github.com/dgbowl/tomato/internal/tomato"
)

type baseFlags struct {
	port    int
	timeout int
	yamlOut bool
	jobname string
}

func newFlagSet(name string, b *baseFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(&b.port, "port", 0, "daemon control socket port")
	fs.IntVar(&b.timeout, "timeout", 1000, "request timeout in ms")
	fs.BoolVar(&b.yamlOut, "yaml", false, "structured YAML output")
	fs.StringVar(&b.jobname, "jobname", "", "optional job name")
	return fs
}

func (b *baseFlags) client() *rpc.Client {
	return rpc.NewClient(fmt.Sprintf("127.0.0.1:%d", b.port), time.Duration(b.timeout)*time.Millisecond)
}

func renderReply(b *baseFlags, reply tomato.Reply) int {
	if err := cliutil.Render(os.Stdout, reply, b.yamlOut); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return cliutil.ExitCode(reply)
}
