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

// baseFlags holds the shared flags every control-CLI subcommand accepts
// (spec §6: "shared flags: port, timeout (ms), app-directory,
// log-directory, data-directory; -v/-q verbosity stacking").
type baseFlags struct {
	port    int
	timeout int
	appDir  string
	logDir  string
	dataDir string
	verbose int
	quiet   bool
	yamlOut bool
}

func newFlagSet(name string, b *baseFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(&b.port, "port", 0, "daemon control socket port")
	fs.IntVar(&b.timeout, "timeout", 1000, "request timeout in ms")
	fs.StringVar(&b.appDir, "appdir", ".", "application/config directory")
	fs.StringVar(&b.logDir, "logdir", ".", "log directory")
	fs.StringVar(&b.dataDir, "datadir", "", "state data directory")
	fs.IntVar(&b.verbose, "v", 0, "verbosity level (accepted; does not change output)")
	fs.BoolVar(&b.quiet, "q", false, "quiet (accepted; does not change output)")
	fs.BoolVar(&b.yamlOut, "yaml", false, "structured YAML output")
	return fs
}

func (b *baseFlags) client() *rpc.Client {
	return rpc.NewClient(fmt.Sprintf("127.0.0.1:%d", b.port), time.Duration(b.timeout)*time.Millisecond)
}

// renderReply prints reply per --yaml and returns the process exit code
// (spec §6: "exit code 0 on success; non-zero on failure").
func renderReply(b *baseFlags, reply tomato.Reply) int {
	if err := cliutil.Render(os.Stdout, reply, b.yamlOut); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return cliutil.ExitCode(reply)
}
