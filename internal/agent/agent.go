package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"profwatch/internal/config"
	"profwatch/internal/metrics"
	"profwatch/internal/session"
	"profwatch/internal/stream"
)

type Agent struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Ingest
	sink     stream.Sink
	health   *HealthStatus
	sessions []*supervisor
}

func New(cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (*Agent, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	sink, err := stream.NewSinkFromConfig(cfg, tlsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("stream sink: %w", err)
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	ingest := metrics.NewIngest(reg)

	endpoints := cfg.Endpoints()
	health := NewHealthStatus()
	a := &Agent{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  ingest,
		sink:     sink,
		health:   health,
	}
	for _, ep := range endpoints {
		sess, err := session.New(session.Options{
			Flavor:       ep.Flavor,
			PollInterval: cfg.PollInterval,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			StartPaused:  cfg.StartPaused,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%s session: %w", ep.Flavor, err)
		}
		sess.Hub().OnDrop(ingest.NotificationDropped)
		health.Track(ep.Flavor)
		a.sessions = append(a.sessions, newSupervisor(cfg, ep.Addr, sess, a, logger))
	}
	return a, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting profwatch", "sessions", len(a.sessions), "sink_mode", string(a.cfg.SinkMode))
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("profwatch stopped")
	return nil
}

// Sessions returns the sessions the agent supervises, memory first.
func (a *Agent) Sessions() []*session.Session {
	out := make([]*session.Session, len(a.sessions))
	for i, s := range a.sessions {
		out[i] = s.sess
	}
	return out
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}
