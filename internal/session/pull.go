package session

import (
	"context"
	"errors"
	"time"

	"profwatch/internal/calltree"
	"profwatch/internal/model"
	"profwatch/internal/protocol"
)

type Outcome string

const (
	// OutcomeApplied: the snapshot was applied and stale nodes pruned.
	OutcomeApplied Outcome = "applied"
	// OutcomeDrained: the session was paused for the whole snapshot.
	OutcomeDrained Outcome = "drained"
	// OutcomeAborted: the session was paused part way through; the buffered records were
	// dropped and the tree kept the previous snapshot.
	OutcomeAborted Outcome = "aborted"
	OutcomeFailed  Outcome = "failed"
)

// Result describes one completed pull.
type Result struct {
	SessionID string
	Flavor    model.Flavor
	Outcome   Outcome
	Delta     calltree.Delta
	// Records counts the lines read, applied or not.
	Records   int
	Defaulted int
	Nodes     int
	Duration  time.Duration
	// Reset means the session was torn down after this pull.
	Reset bool
	// Err is the failure that tore the session down. It is nil for a requested disconnect.
	Err error
}

// Pull is the future of one asynchronous snapshot pull.
type Pull struct {
	done   chan struct{}
	cancel context.CancelFunc
	res    Result
}

// Done is closed once the pull has finished and the session has settled.
func (p *Pull) Done() <-chan struct{} {
	return p.done
}

// Result returns the outcome if the pull has finished.
func (p *Pull) Result() (Result, bool) {
	select {
	case <-p.done:
		return p.res, true
	default:
		return Result{}, false
	}
}

func (p *Pull) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// TryPull starts reading the next snapshot in the background. At most one pull is in
// flight per session.
func (s *Session) TryPull() (*Pull, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Connected() {
		return nil, ErrNotConnected
	}
	if s.pull != nil {
		return nil, ErrPullInFlight
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pull{done: make(chan struct{}), cancel: cancel}
	s.pull = p
	go s.runPull(ctx, p, s.reader)
	return p, nil
}

func (s *Session) runPull(ctx context.Context, p *Pull, rd *protocol.Reader) {
	start := time.Now()
	res := Result{SessionID: s.id, Flavor: s.flavor}
	err := s.consume(ctx, rd, &res)
	res.Duration = time.Since(start)
	s.complete(p, res, err)
}

// consume reads one snapshot. Records are buffered until the terminator and then applied
// together with the prune under one write lock, so readers only ever see whole snapshots.
func (s *Session) consume(ctx context.Context, rd *protocol.Reader, res *Result) error {
	var recs []protocol.Record
	defer s.buffered.Store(0)

	applying := !s.paused.Load()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := rd.Next()
		if errors.Is(err, protocol.ErrEndOfSnapshot) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		res.Records++

		if applying && s.paused.Load() {
			applying = false
			if len(recs) > 0 {
				res.Outcome = OutcomeAborted
			}
			recs = nil
			s.buffered.Store(0)
		}
		if !applying {
			continue
		}

		rec, err := protocol.ParseRecord(line, s.schema)
		if err != nil {
			return err
		}
		res.Defaulted += rec.Defaulted
		recs = append(recs, rec)
		s.buffered.Store(int64(len(recs)))
	}

	if !applying {
		if res.Outcome == "" {
			res.Outcome = OutcomeDrained
		}
		s.View(func(t *calltree.Tree) {
			res.Delta.Epoch = t.Epoch()
			res.Nodes = t.Len()
		})
		return nil
	}

	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	if len(recs) == 0 {
		res.Delta.Epoch = s.tree.Epoch()
	} else {
		b := s.tree.Begin()
		for _, rec := range recs {
			if err := b.Apply(rec); err != nil {
				b.Abort()
				return err
			}
		}
		d, err := b.Finish()
		if err != nil {
			return err
		}
		res.Delta = d
	}
	res.Outcome = OutcomeApplied
	res.Nodes = s.tree.Len()
	return nil
}

// complete settles the session after a pull: either it stays connected for the next
// pull, or it is torn down because of err or a pending Disconnect.
func (s *Session) complete(p *Pull, res Result, err error) {
	defer close(p.done)
	defer p.cancel()

	s.mu.Lock()
	requested := s.pendingDisconnect
	if err == nil && !requested {
		s.pull = nil
		s.mu.Unlock()
		p.res = res
		s.publishApplied(res)
		return
	}

	switch {
	case requested:
		if err != nil {
			res.Outcome = OutcomeAborted
		}
	default:
		res.Outcome = OutcomeFailed
		res.Err = err
		s.lastErr = err
		s.logger.Error("session torn down", "error", err, "records", res.Records)
	}
	res.Reset = true
	s.beginTeardownLocked()
	s.mu.Unlock()

	p.res = res
	if err == nil {
		s.publishApplied(res)
	}
	s.finishTeardown()
}

func (s *Session) publishApplied(res Result) {
	if res.Outcome != OutcomeApplied || res.Delta.Visited == 0 {
		return
	}
	s.hub.Publish(Update{SessionID: s.id, Flavor: s.flavor, Epoch: res.Delta.Epoch, Delta: res.Delta})
}
