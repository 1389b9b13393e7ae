package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func (a *Agent) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sup := range a.sessions {
		g.Go(func() error {
			return sup.run(gctx)
		})
		g.Go(func() error {
			return a.forwardUpdates(gctx, sup.sess)
		})
	}
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	g.Go(func() error {
		return a.runProbeListener(gctx)
	})
	if a.cfg.MetricsListenAddr != "" {
		g.Go(func() error {
			return a.runMetricsServer(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			a.logHealth()
		}
	}
}

func (a *Agent) logHealth() {
	a.logger.Log(context.Background(), slog.LevelDebug, "agent health", "snapshot", a.health.Snapshot())
}

func (a *Agent) runMetricsServer(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.MetricsListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("metrics endpoint listening", "addr", a.cfg.MetricsListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics endpoint %s: %w", a.cfg.MetricsListenAddr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *Agent) shutdown(ctx context.Context) {
	for _, sup := range a.sessions {
		if err := sup.sess.Disconnect(ctx); err != nil {
			a.logger.Warn("session disconnect failed", "session_id", sup.sess.ID(), "error", err)
		}
		sup.sess.Hub().CloseAll()
	}
	if err := a.sink.Close(ctx); err != nil {
		a.logger.Warn("stream sink close failed", "error", err)
	}
	a.health.SetStreamConnected(false)
}
