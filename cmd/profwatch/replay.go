package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"profwatch/internal/protocol"
)

var (
	replayListen   string
	replayFile     string
	replayInterval time.Duration

	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Serve a recorded snapshot file like an instrumented process would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return replay(ctx, slog.New(slog.NewTextHandler(os.Stderr, nil)))
		},
	}
)

func init() {
	replayCmd.Flags().StringVar(&replayListen, "listen", "127.0.0.1:5000", "Address to accept the agent on")
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "Recorded snapshots")
	replayCmd.Flags().DurationVar(&replayInterval, "interval", 500*time.Millisecond, "Pause between snapshots")
	_ = replayCmd.MarkFlagRequired("file")
}

func replay(ctx context.Context, logger *slog.Logger) error {
	f, err := os.Open(replayFile)
	if err != nil {
		return err
	}
	snaps, err := protocol.ReadSnapshots(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", replayFile, err)
	}
	if len(snaps) == 0 {
		return fmt.Errorf("%s holds no snapshots", replayFile)
	}

	ln, err := net.Listen("tcp", replayListen)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	logger.Info("replaying snapshots", "addr", ln.Addr().String(), "snapshots", len(snaps))

	// one client at a time, like the instrumented process
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		logger.Info("client connected", "remote", conn.RemoteAddr().String())
		err = serveReplay(ctx, conn, snaps)
		_ = conn.Close()
		logger.Info("client gone", "error", err)
	}
}

func serveReplay(ctx context.Context, conn net.Conn, snaps [][]string) error {
	t := time.NewTicker(replayInterval)
	defer t.Stop()
	for i := 0; ; i++ {
		if err := protocol.WriteLines(conn, snaps[i%len(snaps)]); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
