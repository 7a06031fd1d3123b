package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"market_stream/internal/domain"
	"market_stream/internal/engine"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent identifies this client to the REST collaborators
	DefaultUserAgent = "market-stream/1.0"

	defaultReconnectDelayMS = 3000
	defaultMaxReconnects    = 5
	defaultWriteTimeoutMS   = 5000
	defaultSendBuffer       = 64
	defaultAPITimeoutSec    = 10
	defaultRedisTTLSec      = 60
	defaultReportSec        = 30
)

// Config holds every application setting.
// Secrets in the file are overridden by environment variables after loading.
type Config struct {
	App struct {
		Name              string `yaml:"name"`
		Version           string `yaml:"version"`
		ReportIntervalSec int    `yaml:"report_interval_sec"` // Periodic price log
	} `yaml:"app"`

	Stream struct {
		WSURL                string   `yaml:"ws_url"`
		ReconnectDelayMS     int      `yaml:"reconnect_delay_ms"`
		MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
		AutoReconnect        *bool    `yaml:"auto_reconnect"` // nil means true
		WriteTimeoutMS       int      `yaml:"write_timeout_ms"`
		PingIntervalSec      int      `yaml:"ping_interval_sec"`
		SendBuffer           int      `yaml:"send_buffer"`
		Symbols              []string `yaml:"symbols"` // Seeded into the local watchlist
	} `yaml:"stream"`

	API struct {
		BaseURL         string `yaml:"base_url"`
		Token           string `yaml:"token"`
		TimeoutSec      int    `yaml:"timeout_sec"`
		SyncIntervalSec int    `yaml:"sync_interval_sec"` // 0 disables periodic watchlist sync
	} `yaml:"api"`

	Storage struct {
		Path string `yaml:"path"` // Empty resolves to the user config dir
	} `yaml:"storage"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTLSec   int    `yaml:"ttl_sec"`
	} `yaml:"redis"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"` // Empty logs to stdout only
	} `yaml:"logging"`
}

// LoadConfig reads, defaults, overrides and validates the config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.ConfigError{Field: "path", Err: fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)}
		}
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig builds a Config from YAML bytes
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.ReportIntervalSec == 0 {
		c.App.ReportIntervalSec = defaultReportSec
	}
	if c.Stream.ReconnectDelayMS == 0 {
		c.Stream.ReconnectDelayMS = defaultReconnectDelayMS
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = defaultMaxReconnects
	}
	if c.Stream.WriteTimeoutMS == 0 {
		c.Stream.WriteTimeoutMS = defaultWriteTimeoutMS
	}
	if c.Stream.SendBuffer == 0 {
		c.Stream.SendBuffer = defaultSendBuffer
	}
	if c.API.TimeoutSec == 0 {
		c.API.TimeoutSec = defaultAPITimeoutSec
	}
	if c.Redis.TTLSec == 0 {
		c.Redis.TTLSec = defaultRedisTTLSec
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.App.ReportIntervalSec < 0 {
		return &domain.ConfigError{Field: "app.report_interval_sec", Err: errors.New("must not be negative")}
	}
	u, err := url.Parse(c.Stream.WSURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return &domain.ConfigError{Field: "stream.ws_url", Err: fmt.Errorf("must be a ws:// or wss:// URL, got %q", c.Stream.WSURL)}
	}
	if c.Stream.ReconnectDelayMS < 0 {
		return &domain.ConfigError{Field: "stream.reconnect_delay_ms", Err: errors.New("must not be negative")}
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return &domain.ConfigError{Field: "stream.max_reconnect_attempts", Err: errors.New("must not be negative")}
	}
	if c.Stream.SendBuffer < 0 {
		return &domain.ConfigError{Field: "stream.send_buffer", Err: errors.New("must not be negative")}
	}

	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return &domain.ConfigError{Field: "api.base_url", Err: fmt.Errorf("must be an http(s) URL, got %q", c.API.BaseURL)}
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return &domain.ConfigError{Field: "redis.addr", Err: errors.New("required when redis is enabled")}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

// EngineConfig converts the stream section into client settings
func (c *Config) EngineConfig() engine.Config {
	ec := engine.DefaultConfig()
	ec.URL = c.Stream.WSURL
	ec.ReconnectDelay = time.Duration(c.Stream.ReconnectDelayMS) * time.Millisecond
	ec.MaxReconnectAttempts = c.Stream.MaxReconnectAttempts
	if c.Stream.AutoReconnect != nil {
		ec.AutoReconnect = *c.Stream.AutoReconnect
	}
	return ec
}

// overrideWithEnv replaces settings with environment variables when present.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("MARKET_STREAM_WS_URL"); v != "" {
		cfg.Stream.WSURL = v
	}
	if v := os.Getenv("MARKET_STREAM_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("MARKET_STREAM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("MARKET_STREAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
