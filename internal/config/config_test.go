package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"profwatch/internal/model"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(PathEnv, "")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	require.Equal(t, []Endpoint{
		{Flavor: model.FlavorMemory, Addr: "127.0.0.1:5000"},
		{Flavor: model.FlavorCPU, Addr: "127.0.0.1:5001"},
	}, cfg.Endpoints())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
memory_addr: 10.0.0.5:5000
cpu_addr: ""
poll_interval: 250ms
start_paused: true
sink_mode: websocket
log_level: debug
`)
	t.Setenv("PROFWATCH_POLL_INTERVAL", "1s")
	t.Setenv("PROFWATCH_SINK_MODE", "GRPC")
	t.Setenv("PROFWATCH_NOTIFY_BUFFER", "64")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:5000", cfg.MemoryAddr)
	require.Empty(t, cfg.CPUAddr)
	require.Equal(t, time.Second, cfg.PollInterval)
	require.True(t, cfg.StartPaused)
	require.Equal(t, SinkModeGRPC, cfg.SinkMode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 64, cfg.NotifyBuffer)
	require.Equal(t, []Endpoint{{Flavor: model.FlavorMemory, Addr: "10.0.0.5:5000"}}, cfg.Endpoints())
}

func TestLoad_PathFromEnv(t *testing.T) {
	t.Setenv(PathEnv, writeFile(t, "read_timeout: 2s\n"))
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.ReadTimeout)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "memory_adr: 127.0.0.1:5000\n"))
	require.ErrorContains(t, err, "memory_adr")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_BadEnvValuesFallBack(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("PROFWATCH_READ_TIMEOUT", "soon")
	t.Setenv("PROFWATCH_AUTO_RECONNECT", "maybe")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.ReadTimeout)
	require.True(t, cfg.AutoReconnect)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no endpoints", func(c *Config) { c.MemoryAddr, c.CPUAddr = "", " " }, "at least one"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"zero read timeout", func(c *Config) { c.ReadTimeout = 0 }, "read_timeout"},
		{"negative jitter", func(c *Config) { c.MaxReconnectJitter = -time.Second }, "jitter"},
		{"no probe", func(c *Config) { c.ProbeListenAddr = "" }, "probe_listen_addr"},
		{"bad sink", func(c *Config) { c.SinkMode = "kafka" }, "sink mode"},
		{"grpc without method", func(c *Config) { c.SinkMode = SinkModeGRPC; c.DisplayGRPCMethod = "" }, "display_grpc_method"},
		{"ws without url", func(c *Config) { c.SinkMode = SinkModeWebSocket; c.DisplayWSURL = "" }, "display_ws_url"},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, "log level"},
		{"zero buffer", func(c *Config) { c.NotifyBuffer = 0 }, "notify_buffer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestTLSConfig(t *testing.T) {
	cfg := Default()
	tlsCfg, err := cfg.TLSConfig()
	require.NoError(t, err)
	require.Nil(t, tlsCfg)

	cfg.TLSEnabled = true
	cfg.TLSCertPath = "/only/cert.pem"
	_, err = cfg.TLSConfig()
	require.ErrorContains(t, err, "both TLS cert and key")

	cfg.TLSCertPath = ""
	cfg.TLSSkipVerify = true
	tlsCfg, err = cfg.TLSConfig()
	require.NoError(t, err)
	require.True(t, tlsCfg.InsecureSkipVerify)
}
