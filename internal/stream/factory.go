package stream

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"profwatch/internal/config"
)

func NewSinkFromConfig(cfg config.Config, tlsCfg *tls.Config, logger *slog.Logger) (Sink, error) {
	switch cfg.SinkMode {
	case config.SinkModeLog:
		return NewLogSink(logger), nil
	case config.SinkModeGRPC:
		return NewGRPCClient(cfg.DisplayGRPCAddr, tlsCfg, cfg.DisplayToken, cfg.DisplayGRPCMethod, logger), nil
	case config.SinkModeWebSocket:
		return NewWebSocketClient(
			cfg.DisplayWSURL,
			cfg.DisplayToken,
			tlsCfg,
			cfg.WebSocketWriteTimeout,
			cfg.WebSocketPingInterval,
			logger,
		), nil
	default:
		return nil, fmt.Errorf("unsupported sink mode %q", cfg.SinkMode)
	}
}
