// Package server exposes the dispatcher to the UI process over a Unix
// socket, speaking the protocol package's line codec.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/lyra-sh/lyrad/dispatch"
	"github.com/lyra-sh/lyrad/internal/config"
	"github.com/lyra-sh/lyrad/protocol"
)

// Server accepts connections on the control socket and executes
// dispatcher operations on behalf of the front end.
type Server struct {
	listener   net.Listener
	dispatcher *dispatch.Dispatcher
	cfg        *config.Config

	mu      sync.RWMutex
	running bool

	log *logrus.Entry
}

// New binds the Unix socket and returns a ready server.
func New(cfg *config.Config, d *dispatch.Dispatcher) (*Server, error) {
	socketPath := cfg.Socket()
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, err
	}
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener:   listener,
		dispatcher: d,
		cfg:        cfg,
		log:        logrus.WithField("component", "server"),
	}, nil
}

// Start accepts connections until the context is cancelled or Stop is
// called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			running := s.running
			s.mu.RUnlock()
			if !running {
				return nil
			}
			continue
		}

		go s.handleConnection(conn)
	}
}

// Stop closes the listener; in-flight connections finish on their own.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return s.listener.Close()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader, err := protocol.NewReader(conn)
	if err != nil {
		s.log.WithError(err).Debug("rejecting connection")
		protocol.WriteError(conn, "", "invalid header", err.Error())
		return
	}

	for {
		req, err := reader.ReadRequest()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.log.WithError(err).Debug("parse error")
			protocol.WriteError(conn, "", "parse error", err.Error())
			continue
		}
		s.execute(conn, req)
	}
}

func (s *Server) execute(conn net.Conn, req *protocol.Request) {
	switch req.Command {
	case "resolve":
		s.handleResolve(conn, req)
	case "search":
		s.handleSearch(conn, req)
	case "run":
		s.handleRun(conn, req)
	case "track":
		s.handleTrack(conn, req)
	case "reindex":
		s.handleReindex(conn)
	case "prune":
		s.handlePrune(conn)
	case "stats":
		s.handleStats(conn)
	default:
		protocol.WriteError(conn, req.Command, "unknown command", "command not recognized")
	}
}

func (s *Server) handleResolve(conn net.Conn, req *protocol.Request) {
	if len(req.Args) != 1 {
		protocol.WriteError(conn, "resolve", "missing argument", "resolve requires the input text")
		return
	}

	trigger, plugin, remainder := s.dispatcher.Resolve(req.Args[0])
	attrs := []protocol.Attr{
		{Key: "cmd", Value: "resolve"},
		{Key: "trigger", Value: trigger},
		{Key: "remainder", Value: remainder},
	}
	if plugin != nil {
		caps := plugin.Capabilities()
		attrs = append(attrs,
			protocol.Attr{Key: "plugin", Value: plugin.Name()},
			protocol.Attr{Key: "handles-enter", Value: strconv.FormatBool(caps.HandlesEnter)},
			protocol.Attr{Key: "handles-tab", Value: strconv.FormatBool(caps.HandlesTab)},
		)
	}
	protocol.WriteResponse(conn, attrs, nil)
}

func (s *Server) handleSearch(conn net.Conn, req *protocol.Request) {
	if len(req.Args) < 1 {
		protocol.WriteError(conn, "search", "missing argument", "search requires a query")
		return
	}
	query := req.Args[0]

	maxResults := s.cfg.MaxResults()
	if len(req.Args) > 1 {
		n, err := strconv.Atoi(req.Args[1])
		if err != nil || n <= 0 {
			protocol.WriteError(conn, "search", "invalid limit", req.Args[1])
			return
		}
		maxResults = n
	}

	apps := s.dispatcher.Search(query, maxResults)
	body := make([]string, len(apps))
	for i, rec := range apps {
		body[i] = strings.Join([]string{rec.Name, rec.Exec, rec.Icon, rec.Description}, "\t")
	}

	protocol.WriteResponse(conn, []protocol.Attr{
		{Key: "cmd", Value: "search"},
		{Key: "query", Value: query},
	}, body)
}

func (s *Server) handleRun(conn net.Conn, req *protocol.Request) {
	if len(req.Args) != 1 {
		protocol.WriteError(conn, "run", "missing argument", "run requires an application name")
		return
	}
	name := req.Args[0]

	rec, ok := s.dispatcher.App(name)
	if !ok {
		protocol.WriteError(conn, "run", "not found", fmt.Sprintf("no application named %q", name))
		return
	}

	parts := strings.Fields(rec.Exec)
	if len(parts) == 0 {
		protocol.WriteError(conn, "run", "invalid exec", "empty exec command")
		return
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		s.log.WithError(err).WithField("name", name).Warn("launch failed")
		protocol.WriteError(conn, "run", "execution failed", err.Error())
		return
	}

	s.dispatcher.TrackLaunch(name)
	s.log.WithFields(logrus.Fields{"name": name, "pid": cmd.Process.Pid}).Info("launched")

	protocol.WriteResponse(conn, []protocol.Attr{
		{Key: "cmd", Value: "run"},
		{Key: "status", Value: "0"},
		{Key: "pid", Value: strconv.Itoa(cmd.Process.Pid)},
	}, nil)
}

func (s *Server) handleTrack(conn net.Conn, req *protocol.Request) {
	if len(req.Args) != 1 {
		protocol.WriteError(conn, "track", "missing argument", "track requires an item name")
		return
	}
	s.dispatcher.TrackLaunch(req.Args[0])
	protocol.WriteResponse(conn, []protocol.Attr{
		{Key: "cmd", Value: "track"},
		{Key: "status", Value: "0"},
	}, nil)
}

func (s *Server) handleReindex(conn net.Conn) {
	s.dispatcher.RefreshIndexAsync(nil)
	protocol.WriteResponse(conn, []protocol.Attr{
		{Key: "cmd", Value: "reindex"},
		{Key: "status", Value: "scheduled"},
	}, nil)
}

func (s *Server) handlePrune(conn net.Conn) {
	pruned := s.dispatcher.PruneHistory()
	protocol.WriteResponse(conn, []protocol.Attr{
		{Key: "cmd", Value: "prune"},
		{Key: "pruned", Value: strconv.Itoa(pruned)},
	}, nil)
}

func (s *Server) handleStats(conn net.Conn) {
	stats := s.dispatcher.CacheStats()
	protocol.WriteResponse(conn, []protocol.Attr{
		{Key: "cmd", Value: "stats"},
		{Key: "cache-hits", Value: strconv.FormatUint(stats.Hits, 10)},
		{Key: "cache-misses", Value: strconv.FormatUint(stats.Misses, 10)},
		{Key: "cache-len", Value: strconv.Itoa(stats.Len)},
		{Key: "generation", Value: strconv.FormatUint(s.dispatcher.Generation(), 10)},
		{Key: "apps", Value: strconv.Itoa(s.dispatcher.AppCount())},
	}, nil)
}
