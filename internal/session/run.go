package session

import (
	"context"
	"errors"
	"time"
)

// Publisher receives every completed pull of a running session.
type Publisher interface {
	Publish(ctx context.Context, s *Session, res Result)
}

type PublisherFunc func(ctx context.Context, s *Session, res Result)

func (f PublisherFunc) Publish(ctx context.Context, s *Session, res Result) {
	f(ctx, s, res)
}

// Run polls the session until it is torn down or ctx ends. It returns the error that tore
// the session down, or nil after a requested disconnect. When ctx ends the session is
// disconnected before Run returns.
func (s *Session) Run(ctx context.Context, pub Publisher) error {
	t := time.NewTicker(s.opts.PollInterval)
	defer t.Stop()

	var inflight *Pull
	for {
		var done <-chan struct{}
		if inflight != nil {
			done = inflight.Done()
		}

		select {
		case <-ctx.Done():
			if err := s.Disconnect(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("disconnect on shutdown failed", "error", err)
			}
			if inflight != nil {
				if res, ok := inflight.Result(); ok && pub != nil {
					pub.Publish(ctx, s, res)
				}
			}
			return nil

		case <-t.C:
			if inflight != nil {
				continue
			}
			p, err := s.TryPull()
			switch {
			case err == nil:
				inflight = p
			case errors.Is(err, ErrPullInFlight):
				// started by another caller
			case errors.Is(err, ErrNotConnected):
				return s.Status().LastError
			default:
				return err
			}

		case <-done:
			res, _ := inflight.Result()
			inflight = nil
			if pub != nil {
				pub.Publish(ctx, s, res)
			}
			if res.Reset {
				return res.Err
			}
		}
	}
}
