package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/dgbowl/tomato/internal/tomato"
)

func TestDefaultBuilder_WritesManifest(t *testing.T) {
	dir := t.TempDir()
	output := tomato.Output{Path: dir, Prefix: "run1"}
	roleFiles := map[string]string{"worker": filepath.Join(dir, "worker.json")}

	require.NoError(t, Build(output, roleFiles, hclog.NewNullLogger()))

	raw, err := os.ReadFile(filepath.Join(dir, "run1.manifest.json"))
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, roleFiles, decoded)
}

func TestSetBuilder_OverridesActive(t *testing.T) {
	called := false
	SetBuilder(fakeBuilder{fn: func(tomato.Output, map[string]string) error {
		called = true
		return nil
	}})
	defer SetBuilder(defaultBuilder{log: hclog.NewNullLogger()})

	require.NoError(t, Build(tomato.Output{}, nil, hclog.NewNullLogger()))
	require.True(t, called)
}

type fakeBuilder struct {
	fn func(tomato.Output, map[string]string) error
}

func (f fakeBuilder) Build(output tomato.Output, roleFiles map[string]string) error {
	return f.fn(output, roleFiles)
}
