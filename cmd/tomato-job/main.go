// Command tomato-job is the job-worker entry point of spec §4.6:
// `job-worker --port P jobdata.json`.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/dgbowl/tomato/internal/jobworker"
)

func main() {
	var (
		port    = flag.Int("port", 0, "daemon control socket port")
		verbose = flag.Int("v", 0, "verbosity level (0 info, 1 debug, 2+ trace)")
	)
	flag.Parse()

	if *port == 0 || flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tomato-job -port <daemon-port> <jobdata.json>")
		os.Exit(2)
	}
	jobDataPath := flag.Arg(0)
	dir := filepath.Dir(jobDataPath)

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "tomato-job",
		Level: verbosityLevel(*verbose),
	})

	logFile, err := os.OpenFile(filepath.Join(dir, fmt.Sprintf("job-%s.log", filepath.Base(dir))), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err == nil {
		logger.SetLevel(hclog.Trace)
		logger = hclog.New(&hclog.LoggerOptions{Name: "tomato-job", Output: logFile, Level: verbosityLevel(*verbose)})
	}

	jobData, err := jobworker.ReadJobData(jobDataPath)
	if err != nil {
		logger.Error("failed to read jobdata.json", "error", err)
		os.Exit(1)
	}

	if err := jobworker.Run(dir, jobData, *port, logger); err != nil {
		logger.Error("job failed", "error", err)
		os.Exit(1)
	}
}

func verbosityLevel(v int) hclog.Level {
	switch {
	case v >= 2:
		return hclog.Trace
	case v == 1:
		return hclog.Debug
	default:
		return hclog.Info
	}
}
