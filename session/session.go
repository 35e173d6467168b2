// Package session implements one authenticated connection: the handshake
// in C3, the steady-state opcode loop, and the dispatch.Subscriber side of
// fanout delivery.
package session

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hollowcrest/pixelwire/auth"
	"github.com/hollowcrest/pixelwire/canvas"
	"github.com/hollowcrest/pixelwire/dispatch"
	"github.com/hollowcrest/pixelwire/fleet"
	"github.com/hollowcrest/pixelwire/ratelimit"
	"github.com/hollowcrest/pixelwire/wire"
)

// Hooks lets a session report countable events without depending on package
// metrics directly.
type Hooks interface {
	ObserveAuth(result string)
	ObservePut()
	ObservePutDropped()
	ObserveDesync()
}

// NopHooks discards every observation.
type NopHooks struct{}

func (NopHooks) ObserveAuth(string)   {}
func (NopHooks) ObservePut()          {}
func (NopHooks) ObservePutDropped()   {}
func (NopHooks) ObserveDesync()       {}

// Registry is fleet.Registry[Session], the registry sessions are kept in; a
// type alias so signatures here need not spell out the generic
// instantiation.
type Registry = fleet.Registry[Session]

// Session is one authenticated client connection. Implements
// dispatch.Subscriber.
type Session struct {
	ID uuid.UUID

	stream     io.ReadWriteCloser
	users      *auth.Registry
	registry   *Registry
	dispatcher *dispatch.Dispatcher
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
	hooks      Hooks

	mu             sync.Mutex
	userID         auth.UserID
	subscribedArea *canvas.Area
	replaced       bool
	lastAction     time.Time
}

// New returns a Session ready for Run. stream carries the already-upgraded
// binary protocol byte stream (see transport/wsconn.MessageStream).
func New(stream io.ReadWriteCloser, users *auth.Registry, registry *Registry, dispatcher *dispatch.Dispatcher, limiter ratelimit.Settings, logger *zap.Logger, hooks Hooks) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Session{
		ID:         uuid.New(),
		stream:     stream,
		users:      users,
		registry:   registry,
		dispatcher: dispatcher,
		limiter:    limiter.Limiter(),
		logger:     logger,
		hooks:      hooks,
		lastAction: time.Now(),
	}
}

// Run performs the authentication handshake and then the steady-state
// opcode loop until the peer disconnects, is replaced, or a fatal I/O error
// occurs. Only a failed handshake returns an error — an I/O failure while
// reading it, or an authentication rejection. Once authenticated, the
// session ends with a nil error however the loop stops, including a peer
// closing or a read failing mid-frame.
func (s *Session) Run() error {
	defer s.stream.Close()

	if err := s.authenticate(); err != nil {
		return err
	}
	return s.serve()
}

func (s *Session) authenticate() error {
	var header [3]byte
	if _, err := io.ReadFull(s.stream, header[:]); err != nil {
		return err
	}
	usernameLen := int(header[2]) + 1

	payload := make([]byte, usernameLen+4)
	if _, err := io.ReadFull(s.stream, payload); err != nil {
		return err
	}

	usernameBytes := payload[:usernameLen]
	if !utf8.Valid(usernameBytes) {
		s.hooks.ObserveAuth("not_utf8")
		return &auth.Error{Kind: auth.UsernameNotUTF8}
	}

	var otpBytes [4]byte
	copy(otpBytes[:], payload[usernameLen:])
	otp := auth.DecodeOTP(otpBytes)

	id, err := s.users.Verify(time.Now(), string(usernameBytes), otp)
	if err != nil {
		s.hooks.ObserveAuth(authResultLabel(err))
		return err
	}
	s.hooks.ObserveAuth("ok")

	s.userID = id
	s.logger = s.logger.With(zap.String("user", string(id)), zap.String("session", s.ID.String()))

	prev, hadPrev := s.registry.InsertOrReplace(id, s)
	if hadPrev {
		prev.markReplacedAndClose()
	}
	s.logger.Info("session authenticated")
	return nil
}

func authResultLabel(err error) string {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		switch authErr.Kind {
		case auth.NoSuchUser:
			return "no_such_user"
		case auth.InvalidOneTimePassword:
			return "bad_otp"
		}
	}
	return "error"
}

// serve is the steady-state opcode loop described in C3.
func (s *Session) serve() error {
	valid := true
	var opcodeBuf [1]byte

	for {
		if _, err := io.ReadFull(s.stream, opcodeBuf[:]); err != nil {
			return nil
		}
		opcode := opcodeBuf[0]

		if opcode == 0xFF {
			valid = true
			if s.touchAndCheckReplaced() {
				return nil
			}
			continue
		}
		if !valid {
			continue
		}

		switch opcode {
		case 0x00:
			s.disconnect()
			return nil
		case 0xD0:
			ok, err := s.handlePut()
			if err != nil {
				return nil
			}
			valid = ok
		case 0xAF:
			ok, terminate, err := s.handleSub()
			if err != nil {
				return nil
			}
			if terminate {
				return nil
			}
			valid = ok
		default:
			s.hooks.ObserveDesync()
			valid = false
		}
	}
}

func (s *Session) handlePut() (bool, error) {
	if s.limiter.ShouldDrop(time.Now()) {
		s.hooks.ObservePutDropped()
		return false, nil
	}

	coord, ok, err := wire.DecodeCoordinate(s.stream)
	if err != nil {
		return false, err
	}
	if !ok {
		s.hooks.ObserveDesync()
		return false, nil
	}

	color, ok, err := wire.DecodeColor(s.stream)
	if err != nil {
		return false, err
	}
	if !ok {
		s.hooks.ObserveDesync()
		return false, nil
	}

	s.dispatcher.Ingest(coord, color)
	s.hooks.ObservePut()
	return true, nil
}

// handleSub reports (ok, terminate, err). ok false means the payload
// desynced the protocol (caller should set valid=false); terminate true
// means the session was already replaced and must stop.
func (s *Session) handleSub() (ok bool, terminate bool, err error) {
	s.limiter.Wait(time.Now())

	topLeft, gotTL, err := wire.DecodeCoordinate(s.stream)
	if err != nil {
		return false, false, err
	}
	if !gotTL {
		s.hooks.ObserveDesync()
		return false, false, nil
	}
	bottomRight, gotBR, err := wire.DecodeCoordinate(s.stream)
	if err != nil {
		return false, false, err
	}
	if !gotBR {
		s.hooks.ObserveDesync()
		return false, false, nil
	}

	area, validArea := canvas.NewArea(topLeft, bottomRight)

	s.mu.Lock()
	if s.replaced {
		s.mu.Unlock()
		return true, true, nil
	}
	if validArea {
		s.subscribedArea = &area
	} else {
		s.subscribedArea = nil
	}
	s.lastAction = time.Now()
	s.mu.Unlock()

	return true, false, nil
}

func (s *Session) touchAndCheckReplaced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaced {
		return true
	}
	s.lastAction = time.Now()
	return false
}

func (s *Session) disconnect() {
	s.mu.Lock()
	s.stream.Close()
	s.replaced = true
	s.mu.Unlock()

	s.registry.RemoveIfSame(s.userID, s)
}

func (s *Session) markReplacedAndClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced = true
	s.stream.Close()
}

// Deliver implements dispatch.Subscriber: runs whose Area intersects this
// session's subscribed area are concatenated into a single outgoing frame,
// matching the "one binary frame per dispatcher tick" contract in §6 — a
// wsconn.MessageStream.Write call is already one atomic frame, so batching
// into one buffer and writing once is the flush.
func (s *Session) Deliver(runs []dispatch.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.replaced {
		return
	}

	var buf bytes.Buffer
	sentAny := false
	for _, run := range runs {
		if s.subscribedArea != nil && s.subscribedArea.Intersects(run.Area) {
			sentAny = true
			buf.Write(run.Message)
		}
	}
	if !sentAny {
		return
	}

	if _, err := s.stream.Write(buf.Bytes()); err != nil {
		s.replaced = true
	}
}

// Authenticated reports whether the handshake completed before Run
// returned. Callers use this to decide whether a session ever counted
// towards the active-sessions gauge and so needs to be un-counted.
func (s *Session) Authenticated() bool {
	return s.userID != ""
}

// LastAction reports the instant of the session's most recent resync or
// SUB, or of its creation in New if neither has happened yet, for
// idle-session diagnostics.
func (s *Session) LastAction() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAction
}
