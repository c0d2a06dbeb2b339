package ircslack

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// Config is the full configuration record consumed by the bridge. It is
// assembled by the launcher (flags plus environment overrides) and injected
// here; the package keeps no global configuration state.
type Config struct {
	Port                int
	IP                  string
	Token               string
	Cookie              string
	AutoJoin            bool
	NoUserList          bool
	NoRejoinOnMention   bool
	IgnoredChannels     []string
	SilencedYellers     []string
	DownloadsDirectory  string
	FileProxyPrefix     string
	FormattedMaxLines   int
	StatusFile          string
	ControlSocket       string
	OverrideLocalIP     bool
	Debug               bool
	LogSuffix           string
	ServerName          string
	ChunkSize           int
	Pagination          int
}

// Verify checks the configuration for fatal problems. It creates the
// downloads directory if missing.
func (c *Config) Verify() error {
	if c.Token == "" {
		return fmt.Errorf("no Slack token configured")
	}
	if strings.HasPrefix(c.Token, "xoxc-") {
		if c.Cookie == "" {
			return fmt.Errorf("token is of the xoxc- kind, an auth cookie is required")
		}
		if !strings.HasPrefix(c.Cookie, "d=") || !strings.HasSuffix(c.Cookie, ";") {
			return fmt.Errorf("auth cookie must have the format 'd=XXX;'")
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	ip := net.ParseIP(c.IP)
	if ip == nil {
		return fmt.Errorf("invalid IP address to listen on: '%s'", c.IP)
	}
	if !strings.HasPrefix(c.IP, "127.") && !c.OverrideLocalIP {
		return fmt.Errorf("supplied IP isn't local; localslackirc has no encryption or authentication, set OVERRIDE_LOCAL_IP to bind %s anyway", c.IP)
	}
	if c.DownloadsDirectory != "" {
		info, err := os.Stat(c.DownloadsDirectory)
		switch {
		case os.IsNotExist(err):
			if err := os.MkdirAll(c.DownloadsDirectory, 0o755); err != nil {
				return fmt.Errorf("unable to create %s: %v", c.DownloadsDirectory, err)
			}
		case err != nil:
			return fmt.Errorf("cannot stat %s: %v", c.DownloadsDirectory, err)
		case !info.IsDir():
			return fmt.Errorf("%s is not a directory", c.DownloadsDirectory)
		}
	}
	if c.ServerName == "" {
		c.ServerName = "localhost"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 512
	}
	return nil
}

// IsSilencedYeller returns true if the given nick or channel name is in the
// silenced-yellers list.
func (c *Config) IsSilencedYeller(name string) bool {
	name = StripChannelPrefix(name)
	for _, y := range c.SilencedYellers {
		if StripChannelPrefix(y) == name {
			return true
		}
	}
	return false
}

// IsIgnoredChannel returns true if the channel is excluded from autojoin.
func (c *Config) IsIgnoredChannel(name string) bool {
	name = StripChannelPrefix(name)
	for _, ign := range c.IgnoredChannels {
		if StripChannelPrefix(ign) == name {
			return true
		}
	}
	return false
}
