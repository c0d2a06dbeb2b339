package ircslack

import (
	"fmt"
	"net"
	"os"
)

// Control socket operations.
const (
	ControlOpSendMessage = "send-message"
	ControlOpSendFile    = "send-file"
	ControlOpGetConfig   = "get-config"
)

// ControlRequest is one request on the control socket. Target accepts the
// same forms as an IRC PRIVMSG target: #channel, &mpim, a thread channel
// name, or a bare nick.
type ControlRequest struct {
	Op     string `json:"op"`
	Target string `json:"target,omitempty"`
	Text   string `json:"text,omitempty"`
	Path   string `json:"path,omitempty"`
}

// ControlResponse is the reply to a ControlRequest.
type ControlResponse struct {
	Ok     bool    `json:"ok"`
	Error  string  `json:"error,omitempty"`
	Config *Config `json:"config,omitempty"`
}

// ControlServer accepts out-of-band requests on a UNIX socket. It only
// exists while an IRC client is attached; Server starts it after
// registration and stops it on disconnect.
type ControlServer struct {
	path string
	ln   net.Listener
	ic   *IrcContext
}

// StartControl listens on the configured UNIX socket path. A stale socket
// file from a previous run is removed first.
func StartControl(ic *IrcContext, path string) (*ControlServer, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot remove stale control socket %s: %v", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("cannot listen on control socket %s: %v", path, err)
	}
	cs := &ControlServer{path: path, ln: ln, ic: ic}
	go cs.acceptLoop()
	log.Infof("Control socket listening on %s", path)
	return cs, nil
}

// Stop closes the listener and removes the socket file.
func (cs *ControlServer) Stop() {
	if cs == nil {
		return
	}
	cs.ln.Close()
	os.Remove(cs.path)
}

func (cs *ControlServer) acceptLoop() {
	for {
		conn, err := cs.ln.Accept()
		if err != nil {
			return
		}
		go cs.handleConn(conn)
	}
}

func (cs *ControlServer) handleConn(conn net.Conn) {
	defer conn.Close()
	var req ControlRequest
	if err := ReadLengthPrefixed(conn, &req); err != nil {
		log.Warningf("Control socket: bad request: %v", err)
		return
	}
	resp := cs.dispatch(&req)
	if err := WriteLengthPrefixed(conn, resp); err != nil {
		log.Warningf("Control socket: failed to write response: %v", err)
	}
}

func (cs *ControlServer) dispatch(req *ControlRequest) *ControlResponse {
	switch req.Op {
	case ControlOpSendMessage:
		if err := cs.ic.SendToTarget(req.Target, req.Text); err != nil {
			return &ControlResponse{Error: err.Error()}
		}
		return &ControlResponse{Ok: true}
	case ControlOpSendFile:
		if err := cs.ic.SendFileToTarget(req.Target, req.Path); err != nil {
			return &ControlResponse{Error: err.Error()}
		}
		return &ControlResponse{Ok: true}
	case ControlOpGetConfig:
		// tokens stay out of the reply
		cfg := *cs.ic.Config
		cfg.Token = ""
		cfg.Cookie = ""
		return &ControlResponse{Ok: true, Config: &cfg}
	default:
		return &ControlResponse{Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}
