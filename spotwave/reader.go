package spotwave

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/vallen-systems/go-waveline/wave"
)

var errReadTimeout = errors.New("spotwave: read timeout")

// lineReader frames newline-terminated response lines and binary payloads on
// top of a serial port. The serial transport signals a read timeout by
// returning zero bytes without an error, so timeouts are detected here, not
// via error values.
//
// Read-ahead is buffered: a chunk read may span a line boundary into the
// following line or binary payload, and the remainder must not be lost.
type lineReader struct {
	port Port
	buf  []byte
	tmp  [512]byte
}

func newLineReader(port Port) *lineReader {
	return &lineReader{port: port}
}

// ReadLine reads one newline-terminated line, including the terminator.
// A timeout before any byte of a new line yields errReadTimeout; a timeout
// mid-line is a protocol error.
func (r *lineReader) ReadLine(timeout time.Duration) ([]byte, error) {
	if err := r.port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("spotwave: set read timeout: %w", err)
	}

	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := r.buf[:i+1]
			r.buf = r.buf[i+1:]

			return line, nil
		}

		n, err := r.port.Read(r.tmp[:])
		if err != nil {
			return nil, fmt.Errorf("spotwave: read line: %w", err)
		}
		if n == 0 { // timeout
			if len(r.buf) > 0 {
				return nil, fmt.Errorf("%w: unterminated line %q", wave.ErrProtocol, r.buf)
			}
			return nil, errReadTimeout
		}

		r.buf = append(r.buf, r.tmp[:n]...)
	}
}

// ReadFull reads exactly len(p) bytes of binary payload, consuming buffered
// read-ahead first. A timeout mid-payload is a framing corruption.
func (r *lineReader) ReadFull(p []byte, timeout time.Duration) error {
	if err := r.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("spotwave: set read timeout: %w", err)
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]

	remaining := p[n:]
	for len(remaining) > 0 {
		n, err := r.port.Read(remaining)
		if err != nil {
			return fmt.Errorf("%w: short binary read, %d bytes missing: %v",
				wave.ErrSampleCountMismatch, len(remaining), err)
		}
		if n == 0 { // timeout
			return fmt.Errorf("%w: short binary read, %d bytes missing",
				wave.ErrSampleCountMismatch, len(remaining))
		}
		remaining = remaining[n:]
	}

	return nil
}

// Drain discards pending input until the port goes quiet.
func (r *lineReader) Drain(timeout time.Duration) error {
	if err := r.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("spotwave: set read timeout: %w", err)
	}

	r.buf = nil
	for {
		n, err := r.port.Read(r.tmp[:])
		if err != nil {
			return fmt.Errorf("spotwave: drain input: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}
