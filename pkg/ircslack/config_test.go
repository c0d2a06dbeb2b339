package ircslack

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Port:  9007,
		IP:    "127.0.0.1",
		Token: "xoxp-123",
	}
}

func TestConfigVerify(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Verify())
	// defaults are filled in
	assert.Equal(t, "localhost", cfg.ServerName)
	assert.Equal(t, 512, cfg.ChunkSize)
}

func TestConfigVerifyNoToken(t *testing.T) {
	cfg := validConfig()
	cfg.Token = ""
	assert.Error(t, cfg.Verify())
}

func TestConfigVerifyXoxcNeedsCookie(t *testing.T) {
	cfg := validConfig()
	cfg.Token = "xoxc-123"
	assert.Error(t, cfg.Verify())

	cfg.Cookie = "not-a-cookie"
	assert.Error(t, cfg.Verify())

	cfg.Cookie = "d=abc;"
	assert.NoError(t, cfg.Verify())
}

func TestConfigVerifyBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 0
	assert.Error(t, cfg.Verify())
	cfg.Port = 65536
	assert.Error(t, cfg.Verify())
}

func TestConfigVerifyNonLocalIP(t *testing.T) {
	cfg := validConfig()
	cfg.IP = "192.168.1.10"
	assert.Error(t, cfg.Verify())

	// binding a routable address needs the explicit override
	cfg.OverrideLocalIP = true
	assert.NoError(t, cfg.Verify())

	cfg.IP = "not-an-ip"
	assert.Error(t, cfg.Verify())
}

func TestConfigVerifyCreatesDownloadsDir(t *testing.T) {
	cfg := validConfig()
	cfg.DownloadsDirectory = filepath.Join(t.TempDir(), "downloads")
	require.NoError(t, cfg.Verify())
	assert.DirExists(t, cfg.DownloadsDirectory)
}

func TestConfigIsSilencedYeller(t *testing.T) {
	cfg := Config{SilencedYellers: []string{"#loud", "bob"}}
	assert.True(t, cfg.IsSilencedYeller("#loud"))
	assert.True(t, cfg.IsSilencedYeller("loud"))
	assert.True(t, cfg.IsSilencedYeller("bob"))
	assert.False(t, cfg.IsSilencedYeller("alice"))
}

func TestConfigIsIgnoredChannel(t *testing.T) {
	cfg := Config{IgnoredChannels: []string{"#noise"}}
	assert.True(t, cfg.IsIgnoredChannel("#noise"))
	assert.True(t, cfg.IsIgnoredChannel("noise"))
	assert.False(t, cfg.IsIgnoredChannel("#general"))
}
