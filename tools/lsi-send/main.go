// lsi-send pushes a message or a file through a running localslackirc
// instance, using its control socket. Useful for notifications from cron
// jobs and scripts without going through an IRC client.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/insomniacslk/localslackirc/pkg/ircslack"

	flag "github.com/spf13/pflag"
)

var (
	flagSocket = flag.StringP("socket", "k", "", "Path of the localslackirc control socket (required)")
	flagTarget = flag.StringP("target", "t", "", "Destination: #channel, &mpim or nick (required for send operations)")
	flagFile   = flag.StringP("file", "f", "", "Path of a file to upload instead of sending text")
	flagConfig = flag.BoolP("config", "c", false, "Print the running instance's configuration and exit")
)

func request(path string, req ircslack.ControlRequest) (*ircslack.ControlResponse, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to control socket: %v", err)
	}
	defer conn.Close()
	if err := ircslack.WriteLengthPrefixed(conn, &req); err != nil {
		return nil, fmt.Errorf("cannot send request: %v", err)
	}
	var resp ircslack.ControlResponse
	if err := ircslack.ReadLengthPrefixed(conn, &resp); err != nil {
		return nil, fmt.Errorf("cannot read response: %v", err)
	}
	return &resp, nil
}

func main() {
	flag.Parse()
	if *flagSocket == "" {
		fmt.Fprintln(os.Stderr, "no control socket specified, use -k")
		os.Exit(2)
	}

	var req ircslack.ControlRequest
	switch {
	case *flagConfig:
		req = ircslack.ControlRequest{Op: ircslack.ControlOpGetConfig}
	case *flagFile != "":
		if *flagTarget == "" {
			fmt.Fprintln(os.Stderr, "no target specified, use -t")
			os.Exit(2)
		}
		req = ircslack.ControlRequest{
			Op:     ircslack.ControlOpSendFile,
			Target: *flagTarget,
			Path:   *flagFile,
		}
	default:
		if *flagTarget == "" {
			fmt.Fprintln(os.Stderr, "no target specified, use -t")
			os.Exit(2)
		}
		// Message text comes from the remaining arguments, or from
		// stdin when none are given.
		text := strings.Join(flag.Args(), " ")
		if text == "" {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "cannot read stdin: %v\n", err)
				os.Exit(1)
			}
			text = strings.TrimRight(string(b), "\n")
		}
		if text == "" {
			fmt.Fprintln(os.Stderr, "nothing to send")
			os.Exit(2)
		}
		req = ircslack.ControlRequest{
			Op:     ircslack.ControlOpSendMessage,
			Target: *flagTarget,
			Text:   text,
		}
	}

	resp, err := request(*flagSocket, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !resp.Ok {
		fmt.Fprintf(os.Stderr, "request failed: %s\n", resp.Error)
		os.Exit(1)
	}
	if *flagConfig {
		b, err := json.MarshalIndent(resp.Config, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot format configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(b))
	}
}
