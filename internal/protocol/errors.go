package protocol

import (
	"errors"
	"fmt"
	"net"
)

// ErrEndOfSnapshot is returned by Reader.Next once the snapshot terminator has been read.
var ErrEndOfSnapshot = errors.New("protocol: end of snapshot")

// ProtocolError reports input that does not follow the record format. It is fatal to the
// session that produced it.
type ProtocolError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "protocol: " + e.Reason
	if e.Line != "" {
		msg += fmt.Sprintf(" (line %q)", truncate(e.Line, 80))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// TransportError wraps I/O failures of the underlying stream, including read timeouts.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a read deadline expiring.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// NumericParseError reports a single metric field that could not be parsed. ParseRecord
// recovers from it by substituting the field default.
type NumericParseError struct {
	Field string
	Raw   string
	Err   error
}

func (e *NumericParseError) Error() string {
	return fmt.Sprintf("protocol: metric %s: cannot parse %q: %v", e.Field, e.Raw, e.Err)
}

func (e *NumericParseError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
