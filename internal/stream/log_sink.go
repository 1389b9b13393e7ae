package stream

import (
	"context"
	"log/slog"
)

// LogSink logs one line per frame instead of shipping it anywhere.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) SendTree(ctx context.Context, f TreeFrame) error {
	if f.Reset {
		s.logger.InfoContext(ctx, "call tree reset", "session_id", f.SessionID, "flavor", f.Flavor)
		return nil
	}
	s.logger.InfoContext(ctx, "call tree updated",
		"session_id", f.SessionID,
		"flavor", f.Flavor,
		"epoch", f.Epoch,
		"nodes", len(f.Nodes),
		"added", len(f.Added),
		"updated", len(f.Updated),
		"removed", len(f.Removed),
	)
	return nil
}

func (s *LogSink) Close(context.Context) error {
	return nil
}
