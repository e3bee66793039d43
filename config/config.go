package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/courier"
	"github.com/opd-ai/courier/factory"
	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
	"github.com/opd-ai/courier/retry"
)

// Session store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Environment variables read by ApplyEnv in addition to the transport
// variables of the factory package.
const (
	EnvListen            = "COURIER_LISTEN"
	EnvLogLevel          = "COURIER_LOG_LEVEL"
	EnvLogFormat         = "COURIER_LOG_FORMAT"
	EnvSessionBackend    = "COURIER_SESSION_BACKEND"
	EnvSessionPath       = "COURIER_SESSION_PATH"
	EnvSessionPassphrase = "COURIER_SESSION_PASSPHRASE"
	EnvStrictReadyCheck  = "COURIER_STRICT_READY_CHECK"
	EnvBulkPacing        = "COURIER_BULK_PACING"
)

// Config is the daemon configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Session   SessionConfig   `yaml:"session"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Channel   ChannelConfig   `yaml:"channel"`
	Bulk      BulkConfig      `yaml:"bulk"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TransportConfig selects and tunes the messaging transport.
type TransportConfig struct {
	Simulation       bool          `yaml:"simulation"`
	BridgeURL        string        `yaml:"bridge_url"`
	ClientID         string        `yaml:"client_id"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// SessionConfig selects where the session credential is kept. The
// passphrase is only read from the environment.
type SessionConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	Passphrase string `yaml:"-"`
}

// LifecycleConfig holds the restart timings.
type LifecycleConfig struct {
	DestroyTimeout    time.Duration `yaml:"destroy_timeout"`
	CoolDown          time.Duration `yaml:"cool_down"`
	FailureBackoff    time.Duration `yaml:"failure_backoff"`
	AutoRestartDelay  time.Duration `yaml:"auto_restart_delay"`
	InitializeTimeout time.Duration `yaml:"initialize_timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
}

// ChannelConfig tunes the facade.
type ChannelConfig struct {
	StrictReadyCheck   bool          `yaml:"strict_ready_check"`
	RetryAttempts      int           `yaml:"retry_attempts"`
	RetrySettle        time.Duration `yaml:"retry_settle"`
	HealthProbeTimeout time.Duration `yaml:"health_probe_timeout"`
	QRSize             int           `yaml:"qr_size"`
}

// BulkConfig holds the default bulk send policy.
type BulkConfig struct {
	Pacing          time.Duration `yaml:"pacing"`
	ContinueOnError bool          `yaml:"continue_on_error"`
	NotReadyPause   time.Duration `yaml:"not_ready_pause"`
}

// Default returns the built-in configuration.
func Default() *Config {
	lc := lifecycle.DefaultConfig()
	bulk := courier.DefaultBulkPolicy()
	return &Config{
		Listen: "127.0.0.1:8080",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Transport: TransportConfig{
			BridgeURL:        "ws://127.0.0.1:9229/bridge",
			ClientID:         courier.DefaultClientID,
			CallTimeout:      30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Backend: BackendSQLite,
			Path:    "./data/courier.db",
		},
		Lifecycle: LifecycleConfig{
			DestroyTimeout:    lc.DestroyTimeout,
			CoolDown:          lc.CoolDown,
			FailureBackoff:    lc.FailureBackoff,
			AutoRestartDelay:  lc.AutoRestartDelay,
			InitializeTimeout: lc.InitializeTimeout,
			MaxAttempts:       lc.MaxAttempts,
		},
		Channel: ChannelConfig{
			StrictReadyCheck:   true,
			RetryAttempts:      retry.DefaultMaxAttempts,
			RetrySettle:        retry.DefaultSettle,
			HealthProbeTimeout: courier.DefaultHealthProbeTimeout,
		},
		Bulk: BulkConfig{
			Pacing:          bulk.Pacing,
			ContinueOnError: bulk.ContinueOnError,
			NotReadyPause:   bulk.NotReadyPause,
		},
	}
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load reads path, applies environment overrides and validates the result.
// An empty path skips the file and starts from the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":        "config.Load",
		"path":            path,
		"listen":          cfg.Listen,
		"session_backend": cfg.Session.Backend,
		"simulation":      cfg.Transport.Simulation,
	}).Info("Loaded configuration")
	return cfg, nil
}

// ApplyEnv overrides fields from COURIER_* environment variables. Malformed
// values are logged and ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(EnvSessionBackend); v != "" {
		c.Session.Backend = v
	}
	if v := os.Getenv(EnvSessionPath); v != "" {
		c.Session.Path = v
	}
	if v := os.Getenv(EnvSessionPassphrase); v != "" {
		c.Session.Passphrase = v
	}
	if v := os.Getenv(EnvStrictReadyCheck); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Channel.StrictReadyCheck = b
		} else {
			warnEnv(EnvStrictReadyCheck, v, err)
		}
	}
	if v := os.Getenv(EnvBulkPacing); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.Bulk.Pacing = d
		} else {
			warnEnv(EnvBulkPacing, v, err)
		}
	}

	tc := c.TransportConfig()
	factory.ApplyEnvironmentOverrides(&tc)
	c.Transport = TransportConfig{
		Simulation:       tc.UseSimulation,
		BridgeURL:        tc.BridgeURL,
		ClientID:         tc.ClientID,
		CallTimeout:      tc.CallTimeout,
		HandshakeTimeout: tc.HandshakeTimeout,
	}
}

func warnEnv(name, value string, err error) {
	fields := logrus.Fields{
		"function": "Config.ApplyEnv",
		"env_var":  name,
		"value":    value,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logrus.WithFields(fields).Warn("Ignoring malformed environment variable")
}

// Validation errors.
var (
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidLogFormat    = errors.New("log format must be text or json")
	ErrInvalidBackend      = errors.New("session backend must be file, sqlite or memory")
	ErrMissingSessionPath  = errors.New("session path is required for the file and sqlite backends")
	ErrMissingPassphrase   = errors.New("the file session backend requires " + EnvSessionPassphrase)
	ErrInvalidTiming       = errors.New("durations must not be negative")
	ErrInvalidRetryAttempt = errors.New("retry attempts must be at least 1")
	ErrMissingListen       = errors.New("listen address is required")
)

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return ErrMissingListen
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Session.Path == "" {
			return ErrMissingSessionPath
		}
		if c.Session.Passphrase == "" {
			return ErrMissingPassphrase
		}
	case BackendSQLite:
		if c.Session.Path == "" {
			return ErrMissingSessionPath
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Session.Backend)
	}

	for _, d := range []time.Duration{
		c.Lifecycle.DestroyTimeout, c.Lifecycle.CoolDown, c.Lifecycle.FailureBackoff,
		c.Lifecycle.AutoRestartDelay, c.Lifecycle.InitializeTimeout,
		c.Channel.RetrySettle, c.Channel.HealthProbeTimeout,
		c.Bulk.Pacing, c.Bulk.NotReadyPause,
	} {
		if d < 0 {
			return ErrInvalidTiming
		}
	}
	if c.Channel.RetryAttempts < 1 {
		return ErrInvalidRetryAttempt
	}

	tc := c.TransportConfig()
	if err := tc.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	return nil
}

// TransportConfig converts the transport section.
func (c *Config) TransportConfig() interfaces.TransportConfig {
	return interfaces.TransportConfig{
		UseSimulation:    c.Transport.Simulation,
		BridgeURL:        c.Transport.BridgeURL,
		ClientID:         c.Transport.ClientID,
		CallTimeout:      c.Transport.CallTimeout,
		HandshakeTimeout: c.Transport.HandshakeTimeout,
	}
}

// LifecycleConfig converts the lifecycle section.
func (c *Config) LifecycleConfig() lifecycle.Config {
	return lifecycle.Config{
		DestroyTimeout:    c.Lifecycle.DestroyTimeout,
		CoolDown:          c.Lifecycle.CoolDown,
		FailureBackoff:    c.Lifecycle.FailureBackoff,
		AutoRestartDelay:  c.Lifecycle.AutoRestartDelay,
		InitializeTimeout: c.Lifecycle.InitializeTimeout,
		MaxAttempts:       c.Lifecycle.MaxAttempts,
	}
}

// ChannelOptions builds facade options from the configuration. Factory and
// Store are left for the caller to set.
func (c *Config) ChannelOptions() *courier.Options {
	options := courier.NewOptions()
	options.ClientID = c.Transport.ClientID
	options.Lifecycle = c.LifecycleConfig()
	options.StrictReadyCheck = c.Channel.StrictReadyCheck
	options.RetryAttempts = c.Channel.RetryAttempts
	options.RetrySettle = c.Channel.RetrySettle
	options.HealthProbeTimeout = c.Channel.HealthProbeTimeout
	options.QRSize = c.Channel.QRSize
	options.Bulk = courier.BulkPolicy{
		Pacing:          c.Bulk.Pacing,
		ContinueOnError: c.Bulk.ContinueOnError,
		NotReadyPause:   c.Bulk.NotReadyPause,
	}
	return options
}
