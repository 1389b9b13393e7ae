package session

import (
	"errors"
	"fmt"

	"profwatch/internal/model"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StatePaused
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connected reports whether the session owns a live transport.
func (s State) Connected() bool {
	return s == StateStreaming || s == StatePaused
}

var (
	ErrNotConnected     = errors.New("session: not connected")
	ErrAlreadyConnected = errors.New("session: already connected")
	ErrPullInFlight     = errors.New("session: pull already in flight")
)

// ConnectionError is returned by Connect when the profiler endpoint cannot be reached.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type Status struct {
	SessionID    string
	Flavor       model.Flavor
	Addr         string
	State        State
	Epoch        uint64
	Nodes        int
	PullInFlight bool
	// Buffered is the number of records of the in-flight snapshot read but not yet applied.
	Buffered     int
	LastError    error
}
