package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"profwatch/internal/calltree"
	"profwatch/internal/model"
	"profwatch/internal/notify"
	"profwatch/internal/protocol"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultDialTimeout  = 3 * time.Second
	defaultReadTimeout  = 5 * time.Second
)

type Options struct {
	Flavor       model.Flavor
	PollInterval time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	StartPaused  bool
	Logger       *slog.Logger
	// Dial overrides the TCP dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Update is published to subscribers after every applied snapshot and after a teardown.
type Update struct {
	SessionID string
	Flavor    model.Flavor
	Epoch     uint64
	Delta     calltree.Delta
	// Reset means the tree was cleared; subscribers should drop what they hold.
	Reset bool
}

// Session owns one connection to an instrumented process and the call tree built from it.
type Session struct {
	id     string
	flavor model.Flavor
	schema protocol.Schema
	opts   Options
	logger *slog.Logger
	hub    *notify.Hub[Update]

	paused   atomic.Bool
	buffered atomic.Int64

	treeMu sync.RWMutex
	tree   *calltree.Tree

	mu                sync.Mutex
	state             State
	addr              string
	conn              net.Conn
	reader            *protocol.Reader
	pull              *Pull
	connectCancel     context.CancelFunc
	connecting        chan struct{}
	teardownDone      chan struct{}
	pendingDisconnect bool
	lastErr           error
}

func New(opts Options) (*Session, error) {
	schema, err := protocol.SchemaFor(opts.Flavor)
	if err != nil {
		return nil, err
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dial == nil {
		d := &net.Dialer{Timeout: opts.DialTimeout}
		opts.Dial = d.DialContext
	}

	id := uuid.NewString()
	s := &Session{
		id:     id,
		flavor: opts.Flavor,
		schema: schema,
		opts:   opts,
		logger: opts.Logger.With("session_id", id, "flavor", opts.Flavor.String()),
		hub:    notify.NewHub[Update](),
		tree:   calltree.New(),
	}
	s.paused.Store(opts.StartPaused)
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Flavor() model.Flavor {
	return s.flavor
}

func (s *Session) Schema() protocol.Schema {
	return s.schema
}

func (s *Session) Hub() *notify.Hub[Update] {
	return s.hub
}

// Subscribe registers for change notifications.
func (s *Session) Subscribe(capacity int) *notify.Subscription[Update] {
	return s.hub.Subscribe(capacity)
}

// Connect dials addr and moves the session to Streaming, or Paused when paused was
// requested earlier.
func (s *Session) Connect(ctx context.Context, addr string) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.state = StateConnecting
	s.addr = addr
	s.connectCancel = cancel
	s.connecting = make(chan struct{})
	done := s.connecting
	s.mu.Unlock()

	conn, err := s.opts.Dial(cctx, "tcp", addr)

	s.mu.Lock()
	defer close(done)
	defer s.mu.Unlock()
	s.connectCancel = nil
	if err == nil && cctx.Err() != nil {
		// dial won the race against Disconnect
		_ = conn.Close()
		err = cctx.Err()
	}
	if err != nil {
		s.state = StateDisconnected
		cerr := &ConnectionError{Addr: addr, Err: err}
		s.lastErr = cerr
		s.logger.Warn("profiler connect failed", "addr", addr, "error", err)
		return cerr
	}

	s.conn = conn
	s.reader = protocol.NewReader(conn, s.opts.ReadTimeout)
	s.lastErr = nil
	s.state = StateStreaming
	if s.paused.Load() {
		s.state = StatePaused
	}
	s.logger.Info("profiler connected", "addr", addr, "state", s.state.String())
	return nil
}

// Pause keeps draining snapshots without applying them. A snapshot being applied when
// Pause is called is abandoned without pruning.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePaused:
		return nil
	case StateStreaming:
		s.paused.Store(true)
		s.state = StatePaused
		s.logger.Info("session paused")
		return nil
	default:
		return ErrNotConnected
	}
}

// Resume applies snapshots again, starting with the next complete one.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateStreaming:
		return nil
	case StatePaused:
		s.paused.Store(false)
		s.state = StateStreaming
		s.logger.Info("session resumed")
		return nil
	default:
		return ErrNotConnected
	}
}

// Disconnect stops the session: it cancels an in-flight pull, waits for the worker to
// let go of the tree, closes the transport and clears the tree. Calling it on a
// disconnected session is a no-op; concurrent callers wait for the same teardown.
func (s *Session) Disconnect(ctx context.Context) error {
	for {
		s.mu.Lock()
		switch s.state {
		case StateDisconnected:
			s.mu.Unlock()
			return nil

		case StateConnecting:
			done := s.connecting
			if s.connectCancel != nil {
				s.connectCancel()
			}
			s.mu.Unlock()
			if err := wait(ctx, done); err != nil {
				return err
			}

		case StateDisconnecting:
			done := s.teardownDone
			s.mu.Unlock()
			return wait(ctx, done)

		default:
			done := s.beginTeardownLocked()
			p, rd := s.pull, s.reader
			if p != nil {
				s.pendingDisconnect = true
				s.mu.Unlock()
				p.cancel()
				rd.Interrupt()
				return wait(ctx, done)
			}
			s.mu.Unlock()
			s.logger.Info("disconnect requested")
			s.finishTeardown()
			return nil
		}
	}
}

// View runs fn with read access to the tree. fn must not retain the tree.
func (s *Session) View(fn func(t *calltree.Tree)) {
	s.treeMu.RLock()
	defer s.treeMu.RUnlock()
	fn(s.tree)
}

func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		SessionID:    s.id,
		Flavor:       s.flavor,
		Addr:         s.addr,
		State:        s.state,
		PullInFlight: s.pull != nil,
		Buffered:     int(s.buffered.Load()),
		LastError:    s.lastErr,
	}
	s.mu.Unlock()

	s.View(func(t *calltree.Tree) {
		st.Epoch = t.Epoch()
		st.Nodes = t.Len()
	})
	return st
}

func (s *Session) String() string {
	return fmt.Sprintf("%s session %s", s.flavor, s.id)
}

func (s *Session) beginTeardownLocked() chan struct{} {
	if s.state != StateDisconnecting {
		s.state = StateDisconnecting
		s.teardownDone = make(chan struct{})
	}
	return s.teardownDone
}

// finishTeardown releases the transport and the tree. The session must be
// Disconnecting with no worker touching the tree.
func (s *Session) finishTeardown() {
	s.mu.Lock()
	conn, addr := s.conn, s.addr
	s.conn = nil
	s.reader = nil
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("profiler connection close failed", "error", err)
		}
	}

	s.treeMu.Lock()
	s.tree.Reset()
	epoch := s.tree.Epoch()
	s.treeMu.Unlock()

	s.mu.Lock()
	s.state = StateDisconnected
	s.pendingDisconnect = false
	s.pull = nil
	done := s.teardownDone
	s.mu.Unlock()

	s.hub.Publish(Update{SessionID: s.id, Flavor: s.flavor, Epoch: epoch, Reset: true})
	close(done)
	s.logger.Info("session disconnected", "addr", addr)
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
