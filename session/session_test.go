package session

import (
	"bytes"
	"testing"

	"github.com/hollowcrest/pixelwire/auth"
	"github.com/hollowcrest/pixelwire/canvas"
	"github.com/hollowcrest/pixelwire/dispatch"
	"github.com/hollowcrest/pixelwire/fleet"
	"github.com/hollowcrest/pixelwire/ratelimit"
	"github.com/hollowcrest/pixelwire/wire"
)

// fakeStream is an in-memory io.ReadWriteCloser: reads come from a fixed
// byte slice, writes accumulate for inspection.
type fakeStream struct {
	in     *bytes.Reader
	out    bytes.Buffer
	closed bool
}

func newFakeStream(in []byte) *fakeStream {
	return &fakeStream{in: bytes.NewReader(in)}
}

func (f *fakeStream) Read(p []byte) (int, error)  { return f.in.Read(p) }
func (f *fakeStream) Write(p []byte) (int, error) { return f.out.Write(p) }
func (f *fakeStream) Close() error                { f.closed = true; return nil }

func newUsers(t *testing.T) *auth.Registry {
	t.Helper()
	reg := auth.NewRegistry()
	reg.Add("alice", auth.NewStaticOTP(12345678, auth.DefaultValidityWindow))
	return reg
}

func fastLimiter() ratelimit.Settings {
	return ratelimit.New(0).WithBurst(1000)
}

// TestAuthenticateSuccess is scenario S1 from the design: a client frame
// carrying username "alice" and OTP 12345678 authenticates and registers.
func TestAuthenticateSuccess(t *testing.T) {
	frame := []byte{0x00, 0x00, 0x04, 'a', 'l', 'i', 'c', 'e', 0x12, 0x34, 0x56, 0x78}
	stream := newFakeStream(frame)

	registry := NewRegistryForTest()
	dispatcher := dispatch.New(func() []dispatch.Subscriber { return nil })
	s := New(stream, newUsers(t), registry, dispatcher, fastLimiter(), nil, nil)

	if err := s.Run(); err != nil {
		t.Fatalf("Run returned %v, want nil (peer EOF is not an error)", err)
	}

	if got, want := s.userID, auth.UserID("alice"); got != want {
		t.Fatalf("authenticated userID = %q, want %q", got, want)
	}
	if !stream.closed {
		t.Error("stream was not closed")
	}
}

func TestAuthenticateBadOTPNeverRegisters(t *testing.T) {
	frame := []byte{0x00, 0x00, 0x04, 'a', 'l', 'i', 'c', 'e', 0x00, 0x00, 0x00, 0x00}
	stream := newFakeStream(frame)

	registry := NewRegistryForTest()
	dispatcher := dispatch.New(func() []dispatch.Subscriber { return nil })
	s := New(stream, newUsers(t), registry, dispatcher, fastLimiter(), nil, nil)

	if err := s.Run(); err == nil {
		t.Fatal("Run succeeded with a wrong OTP")
	}
	if got := len(registry.Snapshot()); got != 0 {
		t.Fatalf("registry has %d entries, want 0", got)
	}
}

// TestSubUpdatesAreaAndFiltersDelivery combines a SUB with a subsequent
// Deliver call, confirming intersection-based fanout filtering (S4).
func TestSubUpdatesAreaAndFiltersDelivery(t *testing.T) {
	authFrame := []byte{0x00, 0x00, 0x04, 'a', 'l', 'i', 'c', 'e', 0x12, 0x34, 0x56, 0x78}
	// SUB to Area((0,0),(9,9)): opcode 0xAF, then two encoded coordinates.
	sub := []byte{0xAF}
	sub = append(sub, encodeCoordForTest(t, 0, 0)...)
	sub = append(sub, encodeCoordForTest(t, 9, 9)...)

	stream := newFakeStream(append(append([]byte{}, authFrame...), sub...))
	registry := NewRegistryForTest()
	dispatcher := dispatch.New(func() []dispatch.Subscriber { return nil })
	s := New(stream, newUsers(t), registry, dispatcher, fastLimiter(), nil, nil)

	if err := s.Run(); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	s.mu.Lock()
	area := s.subscribedArea
	s.mu.Unlock()
	if area == nil {
		t.Fatal("subscribedArea is nil after SUB")
	}
	if *area != (canvas.Area{TopLeft: canvas.Coordinate{X: 0, Y: 0}, BottomRight: canvas.Coordinate{X: 9, Y: 9}}) {
		t.Fatalf("subscribedArea = %+v, unexpected", *area)
	}

	near := dispatch.Run{
		Area:    canvas.Area{TopLeft: canvas.Coordinate{X: 1, Y: 1}, BottomRight: canvas.Coordinate{X: 3, Y: 1}},
		Message: []byte{0xFF, 0x03, 0, 0},
	}
	far := dispatch.Run{
		Area:    canvas.Area{TopLeft: canvas.Coordinate{X: 100, Y: 100}, BottomRight: canvas.Coordinate{X: 103, Y: 100}},
		Message: []byte{0xFF, 0x03, 1, 1},
	}

	stream.out.Reset()
	s.Deliver([]dispatch.Run{far, near})

	if !bytes.Equal(stream.out.Bytes(), near.Message) {
		t.Fatalf("delivered bytes = %#x, want only the near run %#x", stream.out.Bytes(), near.Message)
	}
}

// TestDesyncRecovery is scenario S6: a PUT whose color decodes as "no
// value" desyncs the session; a subsequent SUB is ignored until a 0xFF
// resync, after which SUB is honored again.
func TestDesyncRecovery(t *testing.T) {
	authFrame := []byte{0x00, 0x00, 0x04, 'a', 'l', 'i', 'c', 'e', 0x12, 0x34, 0x56, 0x78}

	var body []byte
	body = append(body, 0xD0)                               // PUT
	body = append(body, encodeCoordForTest(t, 1, 1)...)      // valid coordinate
	body = append(body, 0xFF)                                // color decode sees sentinel -> no value
	body = append(body, 0xAF)                                // ignored while desynced
	body = append(body, encodeCoordForTest(t, 5, 5)...)
	body = append(body, encodeCoordForTest(t, 6, 6)...)
	body = append(body, 0xFF)                                // resync
	body = append(body, 0xAF)                                // now honored
	body = append(body, encodeCoordForTest(t, 2, 2)...)
	body = append(body, encodeCoordForTest(t, 4, 4)...)

	stream := newFakeStream(append(append([]byte{}, authFrame...), body...))
	registry := NewRegistryForTest()
	dispatcher := dispatch.New(func() []dispatch.Subscriber { return nil })
	s := New(stream, newUsers(t), registry, dispatcher, fastLimiter(), nil, nil)

	if err := s.Run(); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	s.mu.Lock()
	area := s.subscribedArea
	s.mu.Unlock()
	if area == nil {
		t.Fatal("subscribedArea is nil; resync-then-SUB should have been honored")
	}
	want := canvas.Area{TopLeft: canvas.Coordinate{X: 2, Y: 2}, BottomRight: canvas.Coordinate{X: 4, Y: 4}}
	if *area != want {
		t.Fatalf("subscribedArea = %+v, want %+v (the SUB before resync must be ignored)", *area, want)
	}
}

func TestDisconnectRemovesFromRegistry(t *testing.T) {
	authFrame := []byte{0x00, 0x00, 0x04, 'a', 'l', 'i', 'c', 'e', 0x12, 0x34, 0x56, 0x78}
	frame := append(append([]byte{}, authFrame...), 0x00)

	stream := newFakeStream(frame)
	registry := NewRegistryForTest()
	dispatcher := dispatch.New(func() []dispatch.Subscriber { return nil })
	s := New(stream, newUsers(t), registry, dispatcher, fastLimiter(), nil, nil)

	if err := s.Run(); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got := len(registry.Snapshot()); got != 0 {
		t.Fatalf("registry has %d entries after DISCONNECT, want 0", got)
	}
}

func encodeCoordForTest(t *testing.T, x, y int16) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := wire.EncodeCoordinate(&buf, canvas.Coordinate{X: x, Y: y}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// NewRegistryForTest returns an empty session Registry.
func NewRegistryForTest() *Registry {
	return fleet.NewRegistry[Session]()
}
