package agent

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"profwatch/internal/config"
	"profwatch/internal/session"
)

// supervisor keeps one session attached to its profiler port.
type supervisor struct {
	sess      *session.Session
	addr      string
	agent     *Agent
	logger    *slog.Logger
	reconnect bool
	retryWait time.Duration
	maxJitter time.Duration
	randSrc   *rand.Rand
}

func newSupervisor(cfg config.Config, addr string, sess *session.Session, a *Agent, logger *slog.Logger) *supervisor {
	retryWait := cfg.ReconnectInterval
	if retryWait <= 0 {
		retryWait = 3 * time.Second
	}
	maxJitter := cfg.MaxReconnectJitter
	if maxJitter < 0 {
		maxJitter = 0
	}
	return &supervisor{
		sess:      sess,
		addr:      addr,
		agent:     a,
		logger:    logger.With("session_id", sess.ID(), "flavor", sess.Flavor().String(), "addr", addr),
		reconnect: cfg.AutoReconnect,
		retryWait: retryWait,
		maxJitter: maxJitter,
		randSrc:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *supervisor) run(ctx context.Context) error {
	flavor := s.sess.Flavor()
	for {
		if err := s.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.agent.health.SetConnected(flavor, true)

		err := s.sess.Run(ctx, session.PublisherFunc(s.agent.observePull))
		s.agent.health.SetConnected(flavor, false)
		if ctx.Err() != nil {
			s.agent.metrics.ObserveTeardown(flavor, nil)
			return nil
		}
		s.agent.metrics.ObserveTeardown(flavor, err)
		s.agent.health.MarkTeardown(flavor)

		if !s.reconnect {
			s.logger.Error("profiler session ended, auto reconnect disabled", "error", err)
			return nil
		}
		wait := s.retryWait + s.jitter()
		s.logger.Warn("profiler session ended, reconnecting", "error", err, "retry_in", wait)
		if !sleepWithContext(ctx, wait) {
			return nil
		}
	}
}

// connect retries until the profiler accepts or ctx ends.
func (s *supervisor) connect(ctx context.Context) error {
	for {
		err := s.sess.Connect(ctx, s.addr)
		if err == nil || errors.Is(err, session.ErrAlreadyConnected) {
			return nil
		}
		var cerr *session.ConnectionError
		if !errors.As(err, &cerr) {
			return err
		}

		wait := s.retryWait + s.jitter()
		s.logger.Debug("profiler not reachable", "error", err, "retry_in", wait)
		if !sleepWithContext(ctx, wait) {
			return ctx.Err()
		}
	}
}

func (s *supervisor) jitter() time.Duration {
	if s.maxJitter == 0 {
		return 0
	}
	return time.Duration(s.randSrc.Int63n(int64(s.maxJitter)))
}

// sleepWithContext reports false if ctx ended first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
