package dummy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgbowl/tomato/internal/driver"
)

func TestDummy_DoTaskSequentialIncrements(t *testing.T) {
	b := &backend{}

	row, ok, err := b.DoTask("sequential")
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, 1, row["value"])

	row, _, _ = b.DoTask("sequential")
	require.Equal(t, 2, row["value"])
}

func TestDummy_DoTaskUnknownTechnique(t *testing.T) {
	b := &backend{}
	_, ok, err := b.DoTask("potentiostatic")
	require.False(t, ok)
	require.NoError(t, err)
}

func TestDummy_RegistersItself(t *testing.T) {
	factory, ok := driver.Lookup("dummy")
	require.True(t, ok)
	backend, err := factory("addr", 1, nil)
	require.NoError(t, err)
	require.Contains(t, backend.Capabilities(), "random")
}
