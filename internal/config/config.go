// Package config loads pulseboard settings from defaults, an optional YAML
// file, PULSEBOARD_* environment variables and bound CLI flags, in that order
// of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override,
// e.g. PULSEBOARD_DASHBOARD_ENDPOINT.
const EnvPrefix = "pulseboard"

// Config is the complete pulseboard configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig holds the dashboard HTTP listener settings.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedIPs     []string `mapstructure:"allowed_ips"`
	// RateLimit is requests per second allowed per client IP; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
	TLSCert   string  `mapstructure:"tls_cert"`
	TLSKey    string  `mapstructure:"tls_key"`
}

// DashboardConfig controls the refresh pipeline.
type DashboardConfig struct {
	// Endpoint is the metrics URL polled every PollInterval.
	Endpoint     string        `mapstructure:"endpoint"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Capacity is the number of samples kept in the chart window.
	Capacity int `mapstructure:"capacity"`
	// LabelBucket is the dedup granularity: samples whose timestamps fall in
	// the same bucket share a display label.
	LabelBucket   time.Duration `mapstructure:"label_bucket"`
	LabelLayout   string        `mapstructure:"label_layout"`
	LabelTimezone string        `mapstructure:"label_timezone"`
	// MinBusy is only honoured when EnforceMinBusy is set.
	MinBusy        time.Duration `mapstructure:"min_busy"`
	EnforceMinBusy bool          `mapstructure:"enforce_min_busy"`
	// DiscardStale drops a response when a newer cycle started after it.
	DiscardStale bool `mapstructure:"discard_stale"`
	// FetchTimeout bounds a single GET; 0 waits indefinitely.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// AgentConfig controls the local metrics agent.
type AgentConfig struct {
	Addr           string        `mapstructure:"addr"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	HistorySize    int           `mapstructure:"history_size"`
	DiskPath       string        `mapstructure:"disk_path"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// AuthConfig controls JWT protection of the browser WebSocket.
type AuthConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Secret      string        `mapstructure:"secret"`
	SecretFile  string        `mapstructure:"secret_file"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every known key so that env overrides and Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allowed_ips", []string{})
	v.SetDefault("server.rate_limit", 100.0)
	v.SetDefault("server.rate_burst", 200)
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")

	v.SetDefault("dashboard.endpoint", "http://localhost:8000/api/metrics")
	v.SetDefault("dashboard.poll_interval", 10*time.Second)
	v.SetDefault("dashboard.capacity", 20)
	v.SetDefault("dashboard.label_bucket", time.Second)
	v.SetDefault("dashboard.label_layout", "15:04:05")
	v.SetDefault("dashboard.label_timezone", "Local")
	v.SetDefault("dashboard.min_busy", 500*time.Millisecond)
	v.SetDefault("dashboard.enforce_min_busy", false)
	v.SetDefault("dashboard.discard_stale", true)
	v.SetDefault("dashboard.fetch_timeout", 30*time.Second)

	v.SetDefault("agent.addr", "0.0.0.0:8000")
	v.SetDefault("agent.sample_interval", 5*time.Second)
	v.SetDefault("agent.history_size", 720)
	v.SetDefault("agent.disk_path", "/")
	v.SetDefault("agent.cache_ttl", time.Second)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.secret_file", "")
	v.SetDefault("auth.token_expiry", 90*24*time.Hour)
}

// Default returns the configuration with nothing but defaults applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v, "")
	if err != nil {
		// defaults are static and always valid
		panic(err)
	}
	return cfg
}

// Load reads the optional config file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the refresh pipeline cannot run with.
func (c *Config) Validate() error {
	d := c.Dashboard
	if strings.TrimSpace(d.Endpoint) == "" {
		return fmt.Errorf("dashboard.endpoint must be set")
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("dashboard.poll_interval must be positive, got %s", d.PollInterval)
	}
	if d.Capacity <= 0 {
		return fmt.Errorf("dashboard.capacity must be positive, got %d", d.Capacity)
	}
	if d.LabelBucket <= 0 {
		return fmt.Errorf("dashboard.label_bucket must be positive, got %s", d.LabelBucket)
	}
	if d.LabelLayout == "" {
		return fmt.Errorf("dashboard.label_layout must be set")
	}
	if d.MinBusy < 0 || d.FetchTimeout < 0 {
		return fmt.Errorf("dashboard durations must not be negative")
	}
	if _, err := d.Location(); err != nil {
		return err
	}
	if c.Agent.SampleInterval <= 0 {
		return fmt.Errorf("agent.sample_interval must be positive, got %s", c.Agent.SampleInterval)
	}
	if c.Agent.HistorySize <= 0 {
		return fmt.Errorf("agent.history_size must be positive, got %d", c.Agent.HistorySize)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}
	return nil
}

// Location resolves LabelTimezone; empty and "Local" mean the process zone.
func (d DashboardConfig) Location() (*time.Location, error) {
	if d.LabelTimezone == "" || strings.EqualFold(d.LabelTimezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(d.LabelTimezone)
	if err != nil {
		return nil, fmt.Errorf("dashboard.label_timezone %q: %w", d.LabelTimezone, err)
	}
	return loc, nil
}
