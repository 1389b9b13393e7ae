package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// MaxLineLength bounds a single record line.
const MaxLineLength = 64 << 10

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Reader splits a stream into snapshot records. Single empty lines are skipped; two in a
// row end the current snapshot.
type Reader struct {
	br      *bufio.Reader
	dl      deadliner
	timeout time.Duration

	blank int

	mu          sync.Mutex
	interrupted bool
}

// NewReader reads from r. When r supports read deadlines and timeout is positive, every
// line must arrive within timeout.
func NewReader(r io.Reader, timeout time.Duration) *Reader {
	rd := &Reader{
		br:      bufio.NewReaderSize(r, 16<<10),
		timeout: timeout,
	}
	if dl, ok := r.(deadliner); ok {
		rd.dl = dl
	}
	return rd
}

// Next returns the next record line of the current snapshot, ErrEndOfSnapshot at the
// terminator, or an error. I/O failures are returned as *TransportError.
func (r *Reader) Next() (string, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return "", err
		}
		if line == "" {
			r.blank++
			if r.blank >= 2 {
				r.blank = 0
				return "", ErrEndOfSnapshot
			}
			continue
		}
		r.blank = 0
		return line, nil
	}
}

// Interrupt makes a blocked Next return promptly with a timeout TransportError. It is a
// no-op for streams without deadlines.
func (r *Reader) Interrupt() {
	if r.dl == nil {
		return
	}
	r.mu.Lock()
	r.interrupted = true
	r.mu.Unlock()
	_ = r.dl.SetReadDeadline(time.Now())
}

func (r *Reader) armDeadline() error {
	if r.dl == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.interrupted {
		// keep the expired deadline set by Interrupt
		return nil
	}
	var t time.Time
	if r.timeout > 0 {
		t = time.Now().Add(r.timeout)
	}
	if err := r.dl.SetReadDeadline(t); err != nil {
		return &TransportError{Op: "set deadline", Err: err}
	}
	return nil
}

func (r *Reader) readLine() (string, error) {
	if err := r.armDeadline(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		chunk, err := r.br.ReadSlice('\n')
		sb.Write(chunk)
		if sb.Len() > MaxLineLength {
			return "", &ProtocolError{Line: sb.String(), Reason: "line exceeds maximum length"}
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", &TransportError{Op: "read", Err: err}
	}

	line := sb.String()
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}
