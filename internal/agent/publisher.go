package agent

import (
	"context"
	"time"

	"profwatch/internal/calltree"
	"profwatch/internal/session"
	"profwatch/internal/stream"
)

const sinkSendTimeout = 5 * time.Second

// observePull records every completed pull. Frames are shipped by forwardUpdates.
func (a *Agent) observePull(_ context.Context, s *session.Session, res session.Result) {
	a.metrics.ObservePull(res)
	if res.Outcome == session.OutcomeApplied {
		a.health.MarkSnapshot(s.Flavor(), res.Delta.Epoch, time.Now())
	}
	a.logger.Debug("pull completed",
		"session_id", res.SessionID,
		"flavor", res.Flavor.String(),
		"outcome", string(res.Outcome),
		"records", res.Records,
		"nodes", res.Nodes,
		"duration", res.Duration,
	)
}

// forwardUpdates turns the session's change notifications into tree frames for the sink.
func (a *Agent) forwardUpdates(ctx context.Context, s *session.Session) error {
	sub := s.Subscribe(a.cfg.NotifyBuffer)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-sub.C():
			if !ok {
				return nil
			}
			a.sendFrame(ctx, s, u)
		}
	}
}

func (a *Agent) sendFrame(ctx context.Context, s *session.Session, u session.Update) {
	h := stream.FrameHeader{SessionID: u.SessionID, Flavor: u.Flavor, At: time.Now(), Reset: u.Reset}
	var frame stream.TreeFrame
	if u.Reset {
		frame = stream.NewTreeFrame(h, nil, calltree.Delta{Epoch: u.Epoch})
	} else {
		s.View(func(t *calltree.Tree) {
			frame = stream.NewTreeFrame(h, t, u.Delta)
		})
	}

	sendCtx, cancel := context.WithTimeout(ctx, sinkSendTimeout)
	defer cancel()
	if err := a.sink.SendTree(sendCtx, frame); err != nil {
		a.health.SetStreamConnected(false)
		a.logger.Warn("tree frame send failed", "session_id", u.SessionID, "epoch", u.Epoch, "error", err)
		return
	}
	a.health.SetStreamConnected(true)
}
