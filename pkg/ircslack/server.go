package ircslack

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

// Server exposes one Slack workspace with an IRC interface. It accepts a
// single IRC client at a time: the gateway impersonates one Slack user,
// so a second simultaneous client could only cause confusion.
type Server struct {
	Config    *Config
	TLSConfig *tls.Config

	mu      sync.Mutex
	current *IrcContext
}

// Start runs the IRC server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.IP, s.Config.Port)
	var (
		listener net.Listener
		err      error
	)
	if s.TLSConfig != nil {
		listener, err = tls.Listen("tcp", addr, s.TLSConfig)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return err
	}
	defer listener.Close()
	log.Infof("Listening on %v", addr)
	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("Error accepting: %v", err)
		}
		go s.HandleRequest(conn)
	}
}

// attach registers conn as the active session, refusing it if another
// client is already attached.
func (s *Server) attach(conn net.Conn) (*IrcContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil, false
	}
	ctx := NewIrcContext(conn, s.Config)
	ctx.FileHandler = &FileHandler{
		FileDownloadLocation: s.Config.DownloadsDirectory,
		ProxyPrefix:          s.Config.FileProxyPrefix,
	}
	s.current = ctx
	UserContexts[conn.RemoteAddr()] = ctx
	return ctx, true
}

func (s *Server) detach(ctx *IrcContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == ctx {
		s.current = nil
	}
	delete(UserContexts, ctx.Conn.RemoteAddr())
}

// HandleRequest handles one IRC client connection.
func (s *Server) HandleRequest(conn net.Conn) {
	defer conn.Close()
	ctx, ok := s.attach(conn)
	if !ok {
		log.Warningf("Refusing connection from %v: another client is attached", conn.RemoteAddr())
		fmt.Fprintf(conn, "ERROR :Another client is already attached to this gateway\r\n")
		return
	}
	log.Infof("Client %v connected", conn.RemoteAddr())
	ctx.Status = NewStatus(s.Config.StatusFile)

	var control *ControlServer
	if s.Config.ControlSocket != "" {
		var err error
		control, err = StartControl(ctx, s.Config.ControlSocket)
		if err != nil {
			log.Warningf("Control socket unavailable: %v", err)
		}
	}
	defer func() {
		control.Stop()
		if ctx.SlackClient != nil {
			ctx.Status.SaveFrom(ctx)
			ctx.Stop()
			if ctx.SlackRTM != nil {
				if err := ctx.SlackRTM.Disconnect(); err != nil {
					log.Debugf("RTM disconnect: %v", err)
				}
			}
		}
		s.detach(ctx)
		log.Infof("Client %v disconnected", conn.RemoteAddr())
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				log.Warningf("Error handling connection from %v: %v", conn.RemoteAddr(), err)
			}
			return
		}
		s.HandleMsg(ctx, line)
	}
}

// HandleMsg handles one raw IRC line. Both "\r\n" and bare "\n"
// terminators are accepted; some clients and test harnesses use the
// latter.
func (s *Server) HandleMsg(ctx *IrcContext, msg string) {
	msg = strings.TrimRight(msg, "\r\n")
	if msg == "" {
		return
	}
	if strings.HasPrefix(msg, "PASS ") {
		log.Debugf("%v: PASS <redacted>", ctx.Conn.RemoteAddr())
	} else {
		log.Debugf("%v: %v", ctx.Conn.RemoteAddr(), msg)
	}
	var prefix string
	if msg[0] == ':' {
		idx := strings.Index(msg, " ")
		if idx < 0 {
			log.Warningf("Invalid message: '%v'", msg)
			return
		}
		prefix = msg[1:idx]
		msg = msg[idx+1:]
	}

	tokens := strings.Split(msg, " ")
	cmd := strings.ToUpper(tokens[0])
	args := tokens[1:]
	var trailing string
	for idx, arg := range args {
		if strings.HasPrefix(arg, ":") {
			trailing = strings.Join(args[idx:], " ")[1:]
			args = args[:idx]
			break
		}
	}
	handler, ok := IrcCommandHandlers[cmd]
	if !ok {
		log.Debugf("No handler found for %v", cmd)
		// ERR_UNKNOWNCOMMAND
		if err := SendIrcNumeric(ctx, 421, fmt.Sprintf("%s %s", ctx.Nick(), cmd), "Unknown command"); err != nil {
			log.Warningf("Failed to send IRC message: %v", err)
		}
		return
	}
	handler(ctx, prefix, cmd, args, trailing)
}
