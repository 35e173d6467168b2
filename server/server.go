// Package server wires the wsconn transport, the authenticated-session
// state machine, the fleet registry, and the update dispatcher into a
// runnable TCP listener.
package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hollowcrest/pixelwire/auth"
	"github.com/hollowcrest/pixelwire/dispatch"
	"github.com/hollowcrest/pixelwire/fleet"
	"github.com/hollowcrest/pixelwire/metrics"
	"github.com/hollowcrest/pixelwire/ratelimit"
	"github.com/hollowcrest/pixelwire/session"
	"github.com/hollowcrest/pixelwire/transport/wsconn"
)

// handshakeTimeout bounds only the time spent writing the HTTP 101
// response; the resulting connection has no further deadline.
const handshakeTimeout = 5 * time.Second

// Config carries everything Run needs to bring the listener up.
type Config struct {
	BindAddr  string
	Users     *auth.Registry
	RateLimit ratelimit.Settings
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	// AllowedOrigins, if non-empty, rejects a handshake whose Origin header
	// names a host not in this list (case-insensitive), or is "null" or
	// malformed. Requests with no Origin header at all (most non-browser
	// WebSocket clients) are admitted whether or not the list is empty;
	// an empty list accepts any origin.
	AllowedOrigins []string
}

// Server accepts WebSocket connections and runs one session per connection.
type Server struct {
	users          *auth.Registry
	registry       *session.Registry
	dispatcher     *dispatch.Dispatcher
	rateLimit      ratelimit.Settings
	logger         *zap.Logger
	metrics        *metrics.Metrics
	allowedOrigins map[string]struct{} // nil means any origin is accepted
}

// New builds a Server from cfg. A nil Logger or Metrics gets a usable
// default so callers (tests included) never have to wire either.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	registry := fleet.NewRegistry[session.Session]()
	dispatcher := dispatch.New(func() []dispatch.Subscriber {
		handles := registry.Snapshot()
		subs := make([]dispatch.Subscriber, len(handles))
		for i, h := range handles {
			subs[i] = h
		}
		return subs
	})
	dispatcher.Hooks = m

	var allowedOrigins map[string]struct{}
	if len(cfg.AllowedOrigins) > 0 {
		allowedOrigins = make(map[string]struct{}, len(cfg.AllowedOrigins))
		for _, host := range cfg.AllowedOrigins {
			allowedOrigins[strings.ToLower(host)] = struct{}{}
		}
	}

	return &Server{
		users:          cfg.Users,
		registry:       registry,
		dispatcher:     dispatcher,
		rateLimit:      cfg.RateLimit,
		logger:         logger,
		metrics:        m,
		allowedOrigins: allowedOrigins,
	}
}

// ServeHTTP completes the WebSocket handshake and hands the connection off
// to a new session. A failed handshake has already written its own HTTP
// error response; ServeHTTP has nothing further to report.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.originAllowed(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := wsconn.Upgrade(w, r, nil, handshakeTimeout)
	if err != nil {
		return
	}
	go s.handleConnection(conn)
}

// originAllowed reports whether r's Origin header names one of the
// server's allowed hosts. A server with no AllowedOrigins configured
// admits every request, matching the original's lack of any origin check.
func (s *Server) originAllowed(r *http.Request) bool {
	if s.allowedOrigins == nil {
		return true
	}
	return wsconn.AllowOrigin(r, func(_ string, o *wsconn.Origin) bool {
		if o == nil {
			return false
		}
		_, ok := s.allowedOrigins[strings.ToLower(o.Host)]
		return ok
	}, true)
}

func (s *Server) handleConnection(conn *wsconn.Conn) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("session panicked", zap.Any("panic", p))
			conn.Close()
		}
	}()

	stream := wsconn.NewMessageStream(conn)
	sess := session.New(stream, s.users, s.registry, s.dispatcher, s.rateLimit, s.logger, s.metrics)

	err := sess.Run()
	if sess.Authenticated() {
		s.metrics.ObserveDisconnect()
	}
	if err != nil {
		s.logger.Warn("session ended", zap.String("session", sess.ID.String()), zap.Error(err))
	}
}

// acceptCounter wraps a net.Listener to distinguish "never accepted a
// connection" from "accepted some, then the listener broke", per §6's
// "could not accept any connections" / "could not accept more" split.
type acceptCounter struct {
	net.Listener
	accepted atomic.Uint64
}

func (l *acceptCounter) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		if l.accepted.Load() == 0 {
			return nil, fmt.Errorf("could not accept any connections: %w", err)
		}
		return nil, fmt.Errorf("could not accept more connections: %w", err)
	}
	l.accepted.Add(1)
	return conn, nil
}

// Run binds bindAddr and serves upgraded connections until the listener
// fails, and returns that failure. It returns nil only if the http.Server
// reports a graceful close, which nothing outside Run can trigger since the
// http.Server is not exposed.
func Run(bindAddr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("could not accept any connections: %w", err)
	}

	httpServer := &http.Server{Handler: handler}
	err = httpServer.Serve(&acceptCounter{Listener: ln})
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
