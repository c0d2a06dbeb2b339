package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/insomniacslk/localslackirc/pkg/ircslack"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

// Version information. Will be populated with the git revision and branch
// information when running `make`.
var (
	ProgramName        = "localslackirc"
	Version     string = "unknown (please build with `make`)"
)

// The Slack token is taken from the TOKEN environment variable or from a
// token file; xoxc- tokens additionally need the auth cookie (COOKIE or a
// cookie file). The IRC client may also supply both via PASS as
// "token|cookie".
var (
	port              = flag.IntP("port", "p", 9007, "Local port to listen on")
	host              = flag.StringP("ip", "i", "127.0.0.1", "IP address to listen on")
	serverName        = flag.StringP("server", "s", "", "IRC server name (i.e. the host name to send to clients)")
	chunkSize         = flag.IntP("chunk", "C", 512, "Maximum size of a line to send to the client. Only works for certain reply types")
	tokenFile         = flag.StringP("tokenfile", "t", "", "File containing the Slack token")
	cookieFile        = flag.StringP("cookiefile", "c", "", "File containing the Slack auth cookie (for xoxc- tokens)")
	autojoin          = flag.BoolP("autojoin", "j", true, "Automatically join channels the Slack user is a member of")
	noUserList        = flag.BoolP("nouserlist", "u", false, "Do not fetch per-channel member lists on join")
	noRejoinOnMention = flag.BoolP("no-rejoin-on-mention", "m", false, "Do not rejoin parted channels when mentioned")
	ignoredChannels   = flag.StringSliceP("ignored-channels", "I", nil, "Channels to never join or deliver messages for")
	silencedYellers   = flag.StringSliceP("silenced-yellers", "y", nil, "Nicks and channels whose @here/@channel do not trigger notifications")
	downloadsDir      = flag.StringP("downloads", "d", "", "If set will download attachments to this location")
	fileProxyPrefix   = flag.StringP("fileprefix", "l", "", "If set will overwrite urls to attachments with this prefix and local file name inside the path set with -d")
	formattedMaxLines = flag.IntP("formatted-max-lines", "f", 0, "Preformatted blocks longer than this many lines are stored on disk and replaced with a reference. 0 disables it")
	statusFile        = flag.StringP("status-file", "S", "", "Path of the file persisting delivery cursors and rule tables across restarts")
	controlSocket     = flag.StringP("control-socket", "k", "", "Path of the UNIX socket accepting out-of-band send requests")
	overrideLocalIP   = flag.BoolP("override-local-ip", "O", false, "Allow binding a non-loopback IP address. The gateway has no authentication, use with care")
	logLevel          = flag.StringP("loglevel", "L", "info", fmt.Sprintf("Log level. One of %v", getLogLevels()))
	logSuffix         = flag.StringP("log-suffix", "x", "", "Suffix appended to every log line, to tell apart multiple instances")
	flagSlackDebug    = flag.BoolP("debug", "D", false, "Enable debug logging of the Slack API")
	flagPagination    = flag.IntP("pagination", "P", 0, "Pagination value for API calls. If 0 or unspecified, use the recommended default (currently 200). Larger values can help on large Slack teams")
	flagKey           = flag.String("key", "", "TLS key for the IRC listener. Requires -cert")
	flagCert          = flag.String("cert", "", "TLS certificate for the IRC listener. Requires -key")
	flagVersion       = flag.BoolP("version", "v", false, "Print version and exit")
)

var log = logger.GetLogger("main")

var logLevels = map[string]func(*logrus.Logger){
	"none":    func(l *logrus.Logger) { l.SetOutput(io.Discard) },
	"debug":   func(l *logrus.Logger) { l.SetLevel(logrus.DebugLevel) },
	"info":    func(l *logrus.Logger) { l.SetLevel(logrus.InfoLevel) },
	"warning": func(l *logrus.Logger) { l.SetLevel(logrus.WarnLevel) },
	"error":   func(l *logrus.Logger) { l.SetLevel(logrus.ErrorLevel) },
	"fatal":   func(l *logrus.Logger) { l.SetLevel(logrus.FatalLevel) },
}

func getLogLevels() []string {
	var levels []string
	for k := range logLevels {
		levels = append(levels, k)
	}
	return levels
}

// Environment variables override command line flags, so a systemd unit
// or container can configure everything without a wrapper script.
func envString(name string, val *string) {
	if v, ok := os.LookupEnv(name); ok {
		*val = v
	}
}

func envInt(name string, val *int) {
	if v, ok := os.LookupEnv(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("Invalid value for %s: %q", name, v)
		}
		*val = n
	}
}

func envBool(name string, val *bool) {
	if v, ok := os.LookupEnv(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Fatalf("Invalid value for %s: %q", name, v)
		}
		*val = b
	}
}

func envList(name string, val *[]string) {
	if v, ok := os.LookupEnv(name); ok {
		*val = nil
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				*val = append(*val, item)
			}
		}
	}
}

func readSecretFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func main() {
	flag.Parse()
	if *flagVersion {
		fmt.Printf("%s version %s\n", ProgramName, Version)
		os.Exit(0)
	}

	envInt("PORT", port)
	envString("IP_ADDRESS", host)
	envString("TOKEN_FILE", tokenFile)
	envString("COOKIE_FILE", cookieFile)
	envBool("AUTOJOIN", autojoin)
	envBool("NOUSERLIST", noUserList)
	envBool("NO_REJOIN_ON_MENTION", noRejoinOnMention)
	envList("IGNORED_CHANNELS", ignoredChannels)
	envList("SILENCED_YELLERS", silencedYellers)
	envString("DOWNLOADS_DIRECTORY", downloadsDir)
	envInt("FORMATTED_MAX_LINES", formattedMaxLines)
	envString("STATUS_FILE", statusFile)
	envString("CONTROL_SOCKET", controlSocket)
	envBool("OVERRIDE_LOCAL_IP", overrideLocalIP)
	envString("LOG_SUFFIX", logSuffix)
	envBool("DEBUG", flagSlackDebug)

	fn, ok := logLevels[*logLevel]
	if !ok {
		log.Fatalf("Invalid log level '%s'. Valid log levels are %v", *logLevel, getLogLevels())
	}
	fn(log.Logger)
	if *flagSlackDebug {
		log.Logger.SetLevel(logrus.DebugLevel)
	}
	if *logSuffix != "" {
		log.Logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: false,
			FullTimestamp:    true,
		})
		log.Logger.AddHook(&suffixHook{suffix: *logSuffix})
	}
	log.Infof("Setting log level to '%s'", *logLevel)

	token := os.Getenv("TOKEN")
	if token == "" && *tokenFile != "" {
		var err error
		token, err = readSecretFile(*tokenFile)
		if err != nil {
			log.Errorf("Cannot read token file: %v", err)
			os.Exit(1)
		}
	}
	cookie := os.Getenv("COOKIE")
	if cookie == "" && *cookieFile != "" {
		var err error
		cookie, err = readSecretFile(*cookieFile)
		if err != nil {
			log.Errorf("Cannot read cookie file: %v", err)
			os.Exit(1)
		}
	}

	cfg := ircslack.Config{
		Port:               *port,
		IP:                 *host,
		Token:              token,
		Cookie:             cookie,
		AutoJoin:           *autojoin,
		NoUserList:         *noUserList,
		NoRejoinOnMention:  *noRejoinOnMention,
		IgnoredChannels:    *ignoredChannels,
		SilencedYellers:    *silencedYellers,
		DownloadsDirectory: *downloadsDir,
		FileProxyPrefix:    *fileProxyPrefix,
		FormattedMaxLines:  *formattedMaxLines,
		StatusFile:         *statusFile,
		ControlSocket:      *controlSocket,
		OverrideLocalIP:    *overrideLocalIP,
		Debug:              *flagSlackDebug,
		LogSuffix:          *logSuffix,
		ServerName:         *serverName,
		ChunkSize:          *chunkSize,
		Pagination:         *flagPagination,
	}
	if err := cfg.Verify(); err != nil {
		log.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	var tlsConfig *tls.Config
	if *flagKey != "" || *flagCert != "" {
		if *flagKey == "" || *flagCert == "" {
			log.Errorf("-key and -cert must be specified together")
			os.Exit(1)
		}
		cert, err := tls.LoadX509KeyPair(*flagCert, *flagKey)
		if err != nil {
			log.Errorf("Failed to load TLS key/cert: %v", err)
			os.Exit(1)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	server := ircslack.Server{
		Config:    &cfg,
		TLSConfig: tlsConfig,
	}
	log.Infof("Starting server on %s:%d", cfg.IP, cfg.Port)
	if err := server.Start(); err != nil {
		log.Error(err)
		os.Exit(2)
	}
}

// suffixHook appends a fixed suffix to every log entry.
type suffixHook struct {
	suffix string
}

func (h *suffixHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *suffixHook) Fire(e *logrus.Entry) error {
	e.Message += " " + h.suffix
	return nil
}
