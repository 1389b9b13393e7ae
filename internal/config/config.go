package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"profwatch/internal/model"
)

type SinkMode string

const (
	SinkModeLog       SinkMode = "log"
	SinkModeGRPC      SinkMode = "grpc"
	SinkModeWebSocket SinkMode = "websocket"
)

// PathEnv names the environment variable consulted when no config file is given.
const PathEnv = "PROFWATCH_CONFIG"

type Config struct {
	MemoryAddr         string        `yaml:"memory_addr"`
	CPUAddr            string        `yaml:"cpu_addr"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	StartPaused        bool          `yaml:"start_paused"`
	AutoReconnect      bool          `yaml:"auto_reconnect"`
	ReconnectInterval  time.Duration `yaml:"reconnect_interval"`
	MaxReconnectJitter time.Duration `yaml:"max_reconnect_jitter"`
	HealthInterval     time.Duration `yaml:"health_interval"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	ProbeListenAddr    string        `yaml:"probe_listen_addr"`
	MetricsListenAddr  string        `yaml:"metrics_listen_addr"`
	NotifyBuffer       int           `yaml:"notify_buffer"`

	SinkMode              SinkMode      `yaml:"sink_mode"`
	DisplayGRPCAddr       string        `yaml:"display_grpc_addr"`
	DisplayGRPCMethod     string        `yaml:"display_grpc_method"`
	DisplayWSURL          string        `yaml:"display_ws_url"`
	DisplayToken          string        `yaml:"display_token"`
	WebSocketWriteTimeout time.Duration `yaml:"ws_write_timeout"`
	WebSocketPingInterval time.Duration `yaml:"ws_ping_interval"`

	TLSEnabled    bool   `yaml:"tls_enabled"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
	TLSCAPath     string `yaml:"tls_ca_path"`
	TLSCertPath   string `yaml:"tls_cert_path"`
	TLSKeyPath    string `yaml:"tls_key_path"`

	LogJSON  bool   `yaml:"log_json"`
	LogLevel string `yaml:"log_level"`
}

// Endpoint is one profiler port to attach a session to.
type Endpoint struct {
	Flavor model.Flavor
	Addr   string
}

func Default() Config {
	return Config{
		MemoryAddr:            "127.0.0.1:5000",
		CPUAddr:               "127.0.0.1:5001",
		PollInterval:          500 * time.Millisecond,
		ReadTimeout:           5 * time.Second,
		DialTimeout:           3 * time.Second,
		AutoReconnect:         true,
		ReconnectInterval:     3 * time.Second,
		MaxReconnectJitter:    500 * time.Millisecond,
		HealthInterval:        10 * time.Second,
		ShutdownTimeout:       10 * time.Second,
		ProbeListenAddr:       "127.0.0.1:7444",
		NotifyBuffer:          16,
		SinkMode:              SinkModeLog,
		DisplayGRPCAddr:       "127.0.0.1:3101",
		DisplayGRPCMethod:     "/profwatch.display.v1.DisplayService/StreamTree",
		DisplayWSURL:          "ws://127.0.0.1:3101/ws/tree",
		WebSocketWriteTimeout: 5 * time.Second,
		WebSocketPingInterval: 10 * time.Second,
		LogLevel:              "info",
	}
}

// Load layers the YAML file at path (if any, else $PROFWATCH_CONFIG) and then the
// environment over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv(PathEnv))
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("can't open config file: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("can't parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.MemoryAddr = env("PROFWATCH_MEMORY_ADDR", c.MemoryAddr)
	c.CPUAddr = env("PROFWATCH_CPU_ADDR", c.CPUAddr)
	c.PollInterval = envDuration("PROFWATCH_POLL_INTERVAL", c.PollInterval)
	c.ReadTimeout = envDuration("PROFWATCH_READ_TIMEOUT", c.ReadTimeout)
	c.DialTimeout = envDuration("PROFWATCH_DIAL_TIMEOUT", c.DialTimeout)
	c.StartPaused = envBool("PROFWATCH_START_PAUSED", c.StartPaused)
	c.AutoReconnect = envBool("PROFWATCH_AUTO_RECONNECT", c.AutoReconnect)
	c.ReconnectInterval = envDuration("PROFWATCH_RECONNECT_INTERVAL", c.ReconnectInterval)
	c.MaxReconnectJitter = envDuration("PROFWATCH_RECONNECT_MAX_JITTER", c.MaxReconnectJitter)
	c.HealthInterval = envDuration("PROFWATCH_HEALTH_INTERVAL", c.HealthInterval)
	c.ShutdownTimeout = envDuration("PROFWATCH_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.ProbeListenAddr = env("PROFWATCH_PROBE_ADDR", c.ProbeListenAddr)
	c.MetricsListenAddr = env("PROFWATCH_METRICS_ADDR", c.MetricsListenAddr)
	c.NotifyBuffer = envInt("PROFWATCH_NOTIFY_BUFFER", c.NotifyBuffer)
	c.SinkMode = SinkMode(strings.ToLower(env("PROFWATCH_SINK_MODE", string(c.SinkMode))))
	c.DisplayGRPCAddr = env("PROFWATCH_DISPLAY_GRPC_ADDR", c.DisplayGRPCAddr)
	c.DisplayGRPCMethod = env("PROFWATCH_DISPLAY_GRPC_METHOD", c.DisplayGRPCMethod)
	c.DisplayWSURL = env("PROFWATCH_DISPLAY_WS_URL", c.DisplayWSURL)
	c.DisplayToken = env("PROFWATCH_DISPLAY_TOKEN", c.DisplayToken)
	c.WebSocketWriteTimeout = envDuration("PROFWATCH_WS_WRITE_TIMEOUT", c.WebSocketWriteTimeout)
	c.WebSocketPingInterval = envDuration("PROFWATCH_WS_PING_INTERVAL", c.WebSocketPingInterval)
	c.TLSEnabled = envBool("PROFWATCH_TLS_ENABLED", c.TLSEnabled)
	c.TLSSkipVerify = envBool("PROFWATCH_TLS_SKIP_VERIFY", c.TLSSkipVerify)
	c.TLSCAPath = env("PROFWATCH_TLS_CA_PATH", c.TLSCAPath)
	c.TLSCertPath = env("PROFWATCH_TLS_CERT_PATH", c.TLSCertPath)
	c.TLSKeyPath = env("PROFWATCH_TLS_KEY_PATH", c.TLSKeyPath)
	c.LogJSON = envBool("PROFWATCH_LOG_JSON", c.LogJSON)
	c.LogLevel = strings.ToLower(env("PROFWATCH_LOG_LEVEL", c.LogLevel))
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.MemoryAddr) == "" && strings.TrimSpace(c.CPUAddr) == "" {
		return errors.New("at least one of memory_addr and cpu_addr is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be > 0")
	}
	if c.ReadTimeout <= 0 || c.DialTimeout <= 0 {
		return errors.New("read_timeout and dial_timeout must be > 0")
	}
	if c.ReconnectInterval <= 0 {
		return errors.New("reconnect_interval must be > 0")
	}
	if c.MaxReconnectJitter < 0 {
		return errors.New("max_reconnect_jitter must be >= 0")
	}
	if c.HealthInterval <= 0 {
		return errors.New("health_interval must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be > 0")
	}
	if strings.TrimSpace(c.ProbeListenAddr) == "" {
		return errors.New("probe_listen_addr is required")
	}
	if c.NotifyBuffer <= 0 {
		return errors.New("notify_buffer must be > 0")
	}
	switch c.SinkMode {
	case SinkModeLog, SinkModeGRPC, SinkModeWebSocket:
	default:
		return fmt.Errorf("unsupported sink mode %q", c.SinkMode)
	}
	if c.SinkMode == SinkModeGRPC {
		if c.DisplayGRPCAddr == "" {
			return errors.New("display_grpc_addr is required for grpc mode")
		}
		if strings.TrimSpace(c.DisplayGRPCMethod) == "" {
			return errors.New("display_grpc_method is required for grpc mode")
		}
	}
	if c.SinkMode == SinkModeWebSocket && c.DisplayWSURL == "" {
		return errors.New("display_ws_url is required for websocket mode")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	return nil
}

// Endpoints lists the configured profiler ports, memory first.
func (c Config) Endpoints() []Endpoint {
	var out []Endpoint
	if addr := strings.TrimSpace(c.MemoryAddr); addr != "" {
		out = append(out, Endpoint{Flavor: model.FlavorMemory, Addr: addr})
	}
	if addr := strings.TrimSpace(c.CPUAddr); addr != "" {
		out = append(out, Endpoint{Flavor: model.FlavorCPU, Addr: addr})
	}
	return out
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
