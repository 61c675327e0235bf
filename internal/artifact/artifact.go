// Package artifact names the contract for the external artifact
// builder that spec §1 explicitly places out of scope ("archive
// post-processing: preset-driven transform of raw polled data into the
// final artifact"). The core only needs to know how to hand off to it;
// the transform itself is a capability the core calls into.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/dgbowl/tomato/internal/tomato"
)

// Builder is the contract an external collaborator implements to turn
// a job's per-role raw files into the final artifact named by
// payload.tomato.output (spec §6). Build is called exactly once per
// successfully completed job, after every role poller has exited zero.
type Builder interface {
	Build(output tomato.Output, roleFiles map[string]string) error
}

// defaultBuilder writes a manifest naming the per-role files it was
// handed, standing in for the real preset-driven transform until a
// Builder implementation is wired in (spec §1 Non-goals explicitly
// excludes writing that transform here).
type defaultBuilder struct {
	log hclog.Logger
}

func (b defaultBuilder) Build(output tomato.Output, roleFiles map[string]string) error {
	dir := output.Path
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("artifact: getwd: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: mkdir %s: %w", dir, err)
	}
	prefix := output.Prefix
	if prefix == "" {
		prefix = "tomato"
	}
	manifestPath := filepath.Join(dir, prefix+".manifest.json")
	buf, err := json.MarshalIndent(roleFiles, "", "  ")
	if err != nil {
		return err
	}
	b.log.Info("wrote artifact manifest", "path", manifestPath)
	return os.WriteFile(manifestPath, buf, 0o644)
}

// active is the Builder actually invoked by the job worker. Replace it
// (e.g. from cmd/tomato-job's main) to plug in a real archive
// post-processor without touching jobworker.
var active Builder = defaultBuilder{log: hclog.NewNullLogger()}

// SetBuilder installs the Builder the job worker hands off to on
// success.
func SetBuilder(b Builder) { active = b }

// Build hands the per-role output files to the active Builder.
func Build(output tomato.Output, roleFiles map[string]string, log hclog.Logger) error {
	if db, ok := active.(defaultBuilder); ok {
		db.log = log
		active = db
	}
	return active.Build(output, roleFiles)
}
