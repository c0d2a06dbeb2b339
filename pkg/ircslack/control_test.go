package ircslack

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func controlRoundtrip(t *testing.T, path string, req ControlRequest) ControlResponse {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, WriteLengthPrefixed(conn, &req))
	var resp ControlResponse
	require.NoError(t, ReadLengthPrefixed(conn, &resp))
	return resp
}

func TestControlGetConfig(t *testing.T) {
	ctx := testContext(t)
	ctx.Config.Token = "xoxc-secret"
	ctx.Config.Cookie = "d=secret;"
	ctx.Config.IgnoredChannels = []string{"#noise"}

	path := filepath.Join(t.TempDir(), "control.sock")
	control, err := StartControl(ctx, path)
	require.NoError(t, err)
	defer control.Stop()

	resp := controlRoundtrip(t, path, ControlRequest{Op: ControlOpGetConfig})
	require.True(t, resp.Ok)
	require.NotNil(t, resp.Config)
	// credentials never cross the socket
	assert.Equal(t, "", resp.Config.Token)
	assert.Equal(t, "", resp.Config.Cookie)
	assert.Equal(t, []string{"#noise"}, resp.Config.IgnoredChannels)
	// the in-memory config is untouched
	assert.Equal(t, "xoxc-secret", ctx.Config.Token)
}

func TestControlUnknownOp(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "control.sock")
	control, err := StartControl(ctx, path)
	require.NoError(t, err)
	defer control.Stop()

	resp := controlRoundtrip(t, path, ControlRequest{Op: "self-destruct"})
	assert.False(t, resp.Ok)
	assert.Contains(t, resp.Error, "unknown op")
}

func TestControlDisabled(t *testing.T) {
	ctx := testContext(t)
	control, err := StartControl(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, control)
	// Stop on a nil server is a no-op
	control.Stop()
}
