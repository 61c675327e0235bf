package main

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestVerbosityLevel(t *testing.T) {
	require.Equal(t, hclog.Info, verbosityLevel(0))
	require.Equal(t, hclog.Debug, verbosityLevel(1))
	require.Equal(t, hclog.Trace, verbosityLevel(2))
	require.Equal(t, hclog.Trace, verbosityLevel(5))
}
