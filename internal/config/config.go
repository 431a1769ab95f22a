package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "wscomsrv.yaml"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	URL    string `yaml:"url"`    // ws://host:port of the relay
	Sender string `yaml:"sender"` // "from" on every outbound envelope

	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"` // 0 disables pings
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReadLimit      int64         `yaml:"read_limit"` // bytes per frame

	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // console | json
}

func Default() *Config {
	return &Config{
		URL:            "ws://localhost:8765",
		Sender:         "gui",
		ReconnectDelay: 10 * time.Second,
		DialTimeout:    15 * time.Second,
		ReadLimit:      1 << 20,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads path over the defaults. A missing file is reported with an
// error wrapping os.ErrNotExist so callers can fall back to flags.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv loads envFile when it exists and overrides fields from WSCS_*
// variables.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if v := os.Getenv("WSCS_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("WSCS_SENDER"); v != "" {
		c.Sender = v
	}
	if v := os.Getenv("WSCS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("WSCS_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	for name, dst := range map[string]*time.Duration{
		"WSCS_RECONNECT_DELAY": &c.ReconnectDelay,
		"WSCS_PING_INTERVAL":   &c.PingInterval,
		"WSCS_DIAL_TIMEOUT":    &c.DialTimeout,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}
	if v := os.Getenv("WSCS_READ_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("WSCS_READ_LIMIT: %w", err)
		}
		c.ReadLimit = n
	}
	return nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: url %q must use ws:// or wss://", ErrInvalidConfig, c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url %q has no host", ErrInvalidConfig, c.URL)
	}
	if c.Sender == "" {
		return fmt.Errorf("%w: sender is empty", ErrInvalidConfig)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: reconnect_delay must be positive", ErrInvalidConfig)
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("%w: ping_interval must not be negative", ErrInvalidConfig)
	}
	return nil
}
