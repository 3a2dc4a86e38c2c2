package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Telnet command bytes understood by the session.
const (
	iac  = 255
	dont = 254
	do   = 253
	wont = 252
	will = 251
	sb   = 250
	se   = 240
)

var (
	// ErrTerminatorNotSeen is returned by ReadUntil when the timeout elapsed
	// before the terminator appeared at the end of the received text.
	ErrTerminatorNotSeen = errors.New("console: terminator not seen")
)

// Session is a single line-oriented TCP conversation with the server console.
// It is not safe for concurrent use.
type Session struct {
	conn    net.Conn
	pending []byte // bytes received but not yet returned
	inSub   bool
}

// Dial opens a session to addr.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Session, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

// ReadUntil accumulates text until it ends (ignoring trailing whitespace)
// with term or the timeout elapses. A prompt is the last thing a server sends
// before waiting for input, so only a trailing term counts. The text read so
// far is returned in both cases.
func (s *Session) ReadUntil(term byte, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var out bytes.Buffer
	for {
		out.Write(s.pending)
		s.pending = s.pending[:0]
		if endsWith(out.Bytes(), term) {
			return out.String(), nil
		}
		if err := s.fill(deadline); err != nil {
			out.Write(s.pending)
			s.pending = s.pending[:0]
			if endsWith(out.Bytes(), term) {
				return out.String(), nil
			}
			if isTimeout(err) {
				return out.String(), ErrTerminatorNotSeen
			}
			return out.String(), err
		}
	}
}

// ReadFor returns everything that arrives until the window elapses.
// Hitting the window is not an error; EOF ends the read early.
func (s *Session) ReadFor(window time.Duration) (string, error) {
	deadline := time.Now().Add(window)
	var out bytes.Buffer
	out.Write(s.pending)
	s.pending = s.pending[:0]
	for {
		err := s.fill(deadline)
		out.Write(s.pending)
		s.pending = s.pending[:0]
		switch {
		case err == nil:
			continue
		case isTimeout(err), errors.Is(err, io.EOF):
			return out.String(), nil
		default:
			return out.String(), err
		}
	}
}

// WriteLine sends text followed by a newline.
func (s *Session) WriteLine(text string) error {
	_, err := s.conn.Write([]byte(text + "\n"))
	return err
}

func (s *Session) Close() error { return s.conn.Close() }

// fill performs one read, stripping telnet negotiation from the data.
func (s *Session) fill(deadline time.Time) error {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	buf := make([]byte, 4096)
	n, err := s.conn.Read(buf)
	if n > 0 {
		s.pending = append(s.pending, s.filter(buf[:n])...)
	}
	if err != nil {
		return err
	}
	return nil
}

// filter removes IAC sequences and refuses every option the server offers.
// Sequences split across reads are rare on a loopback console and are not
// reassembled.
func (s *Session) filter(in []byte) []byte {
	out := make([]byte, 0, len(in))
	var reply []byte
	for i := 0; i < len(in); i++ {
		b := in[i]
		if s.inSub {
			if b == iac && i+1 < len(in) && in[i+1] == se {
				s.inSub = false
				i++
			}
			continue
		}
		if b != iac {
			if b != 0 {
				out = append(out, b)
			}
			continue
		}
		if i+1 >= len(in) {
			break
		}
		cmd := in[i+1]
		switch cmd {
		case iac:
			out = append(out, iac)
			i++
		case do, dont, will, wont:
			if i+2 < len(in) {
				opt := in[i+2]
				switch cmd {
				case do:
					reply = append(reply, iac, wont, opt)
				case will:
					reply = append(reply, iac, dont, opt)
				}
			}
			i += 2
		case sb:
			s.inSub = true
			i++
		default:
			i++
		}
	}
	if len(reply) > 0 {
		_, _ = s.conn.Write(reply)
	}
	return out
}

func endsWith(b []byte, term byte) bool {
	b = bytes.TrimRight(b, " \t\r\n")
	return len(b) > 0 && b[len(b)-1] == term
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
