package driver

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/dgbowl/tomato/internal/rpc"

	_ "github.com/dgbowl/tomato/internal/drivers/counter"
)

func newTestProcess(t *testing.T) *Process {
	p, err := NewProcess("counter", map[string]any{}, hclog.NewNullLogger())
	require.NoError(t, err)
	return p
}

func TestNewProcess_UnknownDriver(t *testing.T) {
	_, err := NewProcess("does-not-exist", nil, hclog.NewNullLogger())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no factory registered")
}

func TestProcess_RegisterAndGetAttr(t *testing.T) {
	p := newTestProcess(t)
	h := p.Handler(nil)

	reply := h(rpc.Request{Cmd: "cmp_register", Params: map[string]any{"address": "a1", "channel": 1}})
	require.True(t, reply.Success)

	reply = h(rpc.Request{Cmd: "cmp_get_attr", Params: map[string]any{"address": "a1", "channel": 1, "attr": "max"}})
	require.True(t, reply.Success)
	require.Equal(t, 100, reply.Data)
}

func TestProcess_LegacyDevAliasesWork(t *testing.T) {
	p := newTestProcess(t)
	h := p.Handler(nil)

	reply := h(rpc.Request{Cmd: "dev_register", Params: map[string]any{"address": "a1", "channel": 1}})
	require.True(t, reply.Success)

	reply = h(rpc.Request{Cmd: "dev_capabilities", Params: map[string]any{"address": "a1", "channel": 1}})
	require.True(t, reply.Success)
}

func TestProcess_UnknownComponentFails(t *testing.T) {
	p := newTestProcess(t)
	h := p.Handler(nil)

	reply := h(rpc.Request{Cmd: "cmp_status", Params: map[string]any{"address": "missing", "channel": 9}})
	require.False(t, reply.Success)
}

func TestProcess_DriverSettingsUpdatesAppliedToNewRegistrations(t *testing.T) {
	p := newTestProcess(t)
	h := p.Handler(nil)

	reply := h(rpc.Request{Cmd: "driver_settings", Params: map[string]any{
		"settings": map[string]any{"scale": 2},
	}})
	require.True(t, reply.Success)
	require.Equal(t, map[string]any{"scale": 2}, p.settings)
}

func TestProcess_StopInvokesCallback(t *testing.T) {
	p := newTestProcess(t)
	stopped := make(chan struct{})
	h := p.Handler(func() { close(stopped) })

	reply := h(rpc.Request{Cmd: "stop"})
	require.True(t, reply.Success)
	<-stopped
}
