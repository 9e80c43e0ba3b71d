package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler is implemented by the tunnel process to answer requests.
// Errors are reported to the caller as a false acknowledgement or an
// empty record; they never cross the boundary as errors.
type Handler interface {
	HandleLogin(ctx context.Context, deviceAuth bool) (LoginResponse, error)
	HandleLoginStatus() LoginDiagnostic
	HandleStatus() StatusSnapshot
	HandleRoutes() RouteSelection
	HandleSelectRoute(id string) error
	HandleDeselectRoute(id string) error
	HandleSetConfig(json string) error
	HandleClearConfig() error
	HandleInitializeConfig() error
}

// Dispatch answers one request message using h.
func Dispatch(ctx context.Context, h Handler, msg string, log *logrus.Entry) Response {
	m, err := ParseMessage(msg)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	log = log.WithField("command", m.Command)

	ack := func(err error) Response {
		if err != nil {
			log.WithError(err).Warn("command failed")
		}
		return Response{OK: true, Data: encodeAck(err == nil)}
	}
	record := func(v any) Response {
		data, err := encodeRecord(v)
		if err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true, Data: data}
	}

	switch m.Command {
	case CmdLogin:
		resp, err := h.HandleLogin(ctx, false)
		if err != nil {
			log.WithError(err).Warn("login failed")
			return Response{OK: true}
		}
		return record(resp.URL)
	case CmdLoginTV:
		resp, err := h.HandleLogin(ctx, true)
		if err != nil {
			log.WithError(err).Warn("device login failed")
			return Response{OK: true}
		}
		return record(resp)
	case CmdIsLoginComplete:
		return record(h.HandleLoginStatus())
	case CmdStatus:
		return record(h.HandleStatus())
	case CmdGetRoutes:
		return record(h.HandleRoutes())
	case CmdSelect:
		return ack(h.HandleSelectRoute(m.Arg))
	case CmdDeselect:
		return ack(h.HandleDeselectRoute(m.Arg))
	case CmdSetConfig:
		return ack(h.HandleSetConfig(m.Arg))
	case CmdClearConfig:
		return ack(h.HandleClearConfig())
	case CmdInitializeConfig:
		return ack(h.HandleInitializeConfig())
	}
	return Response{OK: false, Error: fmt.Sprintf("unhandled command %q", m.Command)}
}

// Server listens on a Unix socket and dispatches requests to a Handler.
type Server struct {
	sockPath string
	handler  Handler
	log      *logrus.Entry
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a new IPC server.
func NewServer(sockPath string, handler Handler, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{sockPath: sockPath, handler: handler, log: log.WithField("component", "ipc-server")}
}

// Start begins accepting connections in the background.
func (s *Server) Start() error {
	// Remove stale socket file if it exists.
	_ = os.Remove(s.sockPath)

	ln, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.sockPath, err)
	}
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return // listener closed
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handle(conn)
			}()
		}
	}()
	s.log.WithField("socket", s.sockPath).Info("listening")
	return nil
}

// Stop closes the listener, waits for in-flight requests and removes the
// socket file.
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	_ = os.Remove(s.sockPath)
}

func (s *Server) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = json.NewEncoder(conn).Encode(Response{OK: false, Error: "invalid request"})
		return
	}
	resp := Dispatch(s.ctx, s.handler, req.Message, s.log)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.WithError(err).Debug("write response")
	}
}
