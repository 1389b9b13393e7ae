package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"profwatch/internal/agent"
	"profwatch/internal/config"
)

var (
	watchConfigPath string
	watchLogLevel   string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Run the agent against the configured profiler ports",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return watch()
		},
	}
)

func init() {
	watchCmd.Flags().StringVarP(&watchConfigPath, "config", "c", "", "Path to YAML config (defaults to $"+config.PathEnv+")")
	watchCmd.Flags().StringVar(&watchLogLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}

func watch() error {
	cfg, err := config.Load(watchConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if watchLogLevel != "" {
		cfg.LogLevel = strings.ToLower(watchLogLevel)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	logger := agent.BuildLogger(cfg)
	a, err := agent.New(cfg, logger, reg)
	if err != nil {
		logger.Error("agent initialization failed", "error", err)
		return err
	}
	if err := a.Run(context.Background()); err != nil {
		logger.Error("agent runtime failed", "error", err)
		return err
	}
	return nil
}
