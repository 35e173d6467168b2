package wsconn

import "io"

// MessageStream turns a Conn's sequence of WebSocket frames into the
// continuous byte stream pixelwire's application codec reads, answering Ping
// control frames with a Pong inline and surfacing Close as a ClosedError
// that ends the stream instead of a frame the caller has to know about.
type MessageStream struct {
	conn *Conn
}

// NewMessageStream wraps conn, which must already be accepting only Binary
// data frames (see AcceptBinaryAndControl).
func NewMessageStream(conn *Conn) *MessageStream {
	return &MessageStream{conn: conn}
}

// Read fills p with Binary frame payload bytes, blocking through any number
// of intervening Ping/Pong control frames. A Close frame, or any opcode
// other than Binary/Ping/Pong, ends the stream with a ClosedError.
func (s *MessageStream) Read(p []byte) (int, error) {
	for {
		opcode, err := s.conn.peekFrame()
		if err != nil {
			return 0, err
		}

		switch opcode {
		case Binary:
			return s.conn.Read(p)
		case Ping:
			payload := s.conn.consumeControlFrame()
			if err := s.conn.WritePong(payload); err != nil {
				return 0, err
			}
		case Pong:
			s.conn.consumeControlFrame()
		default:
			return 0, s.conn.writeClose(CannotAccept, "unexpected opcode in binary protocol stream")
		}
	}
}

// Write sends p as one complete Binary frame.
func (s *MessageStream) Write(p []byte) (int, error) {
	s.conn.WriteFinal(Binary)
	return s.conn.Write(p)
}

// Close sends a normal-closure Close frame and shuts down the underlying
// connection's write half. Idempotent: closing an already-closed stream is
// not an error.
func (s *MessageStream) Close() error {
	s.conn.writeClose(NormalClose, "")
	return nil
}

var _ io.ReadWriteCloser = (*MessageStream)(nil)
