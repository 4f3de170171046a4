// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.nova/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - HTTP: listen address, CORS, rate limiting
//   - Metadata store: PostgreSQL connection for the analytics collaborator
//     and the persistent session store
//   - Control plane: storage control API endpoint and credentials
//   - Monitoring: cluster monitoring API endpoint
//   - Assistant: knowledge directory, context budget, session retention,
//     tool timeout, optional response-composer model
//
// Sensitive fields (passwords, API keys) are masked in MarshalJSON so the
// config can be logged safely.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors. Check with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidListenAddr indicates the HTTP listen address is malformed.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidControlPlaneURL indicates the control plane endpoint is not a valid URL.
	ErrInvalidControlPlaneURL = errors.New("invalid control plane endpoint")

	// ErrInvalidMonitoringURL indicates the monitoring endpoint is not a valid URL.
	ErrInvalidMonitoringURL = errors.New("invalid monitoring endpoint")

	// ErrInvalidContextBudget indicates the context budget is out of range.
	ErrInvalidContextBudget = errors.New("invalid context budget")

	// ErrInvalidSessionTTL indicates the session retention TTL is out of range.
	ErrInvalidSessionTTL = errors.New("invalid session TTL")

	// ErrInvalidToolTimeout indicates the tool timeout is out of range.
	ErrInvalidToolTimeout = errors.New("invalid tool timeout")

	// ErrInvalidHistoryLimit indicates the history turn limit is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")
)

// Bounds enforced by Validate.
const (
	// MinContextBudget is the smallest usable prompt budget in characters.
	// Below this the identity preamble alone would not fit.
	MinContextBudget = 1024

	// MaxContextBudget caps the prompt budget to prevent runaway memory use.
	MaxContextBudget = 1 << 20

	// DefaultContextBudget is the default prompt budget in characters.
	DefaultContextBudget = 32768

	// DefaultHistoryTurns is the default number of recent turns offered to
	// the context assembler.
	DefaultHistoryTurns = 40

	// MaxHistoryTurns is the absolute maximum to prevent OOM on long sessions.
	MaxHistoryTurns = 1000
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// HTTP surface
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Metadata store (PostgreSQL): analytics queries and session persistence
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Storage control plane API
	ControlPlaneURL      string `mapstructure:"control_plane_url" json:"control_plane_url"`
	ControlPlaneUser     string `mapstructure:"control_plane_user" json:"control_plane_user"`
	ControlPlanePassword string `mapstructure:"control_plane_password" json:"control_plane_password"` // SENSITIVE: masked in MarshalJSON
	ControlPlaneInsecure bool   `mapstructure:"control_plane_insecure" json:"control_plane_insecure"` // skip TLS verification (self-signed clusters)

	// Cluster monitoring API. Empty means "same endpoint as control plane".
	MonitoringURL string `mapstructure:"monitoring_url" json:"monitoring_url"`

	// Assistant behavior
	KnowledgeDir   string        `mapstructure:"knowledge_dir" json:"knowledge_dir"`
	ContextBudget  int           `mapstructure:"context_budget" json:"context_budget"`
	HistoryTurns   int           `mapstructure:"history_turns" json:"history_turns"`
	SessionTTL     time.Duration `mapstructure:"session_ttl" json:"session_ttl"`
	ToolTimeout    time.Duration `mapstructure:"tool_timeout" json:"tool_timeout"`
	ComposerModel  string        `mapstructure:"composer_model" json:"composer_model"`   // empty disables the LLM composer
	SessionBackend string        `mapstructure:"session_backend" json:"session_backend"` // "memory" (default) or "postgres"
}

// Session backend identifiers used in Config.SessionBackend.
const (
	SessionBackendMemory   = "memory"
	SessionBackendPostgres = "postgres"
)

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".nova")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// HTTP defaults
	v.SetDefault("listen_addr", "127.0.0.1:8321")
	v.SetDefault("cors_origins", []string{"http://localhost:4200"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)

	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "nova")
	v.SetDefault("postgres_password", "nova_dev_password")
	v.SetDefault("postgres_db_name", "nova")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Control plane defaults (standard Prism-style port)
	v.SetDefault("control_plane_url", "https://localhost:9440")
	v.SetDefault("control_plane_user", "admin")
	v.SetDefault("control_plane_insecure", true)

	// Assistant defaults
	v.SetDefault("knowledge_dir", "knowledge")
	v.SetDefault("context_budget", DefaultContextBudget)
	v.SetDefault("history_turns", DefaultHistoryTurns)
	v.SetDefault("session_ttl", "24h")
	v.SetDefault("tool_timeout", "15s")
	v.SetDefault("session_backend", SessionBackendMemory)
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("listen_addr", "NOVA_LISTEN_ADDR")
	mustBind("postgres_host", "NOVA_POSTGRES_HOST")
	mustBind("postgres_port", "NOVA_POSTGRES_PORT")
	mustBind("postgres_user", "NOVA_POSTGRES_USER")
	mustBind("postgres_password", "NOVA_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "NOVA_POSTGRES_DB")
	mustBind("control_plane_url", "NOVA_CONTROL_PLANE_URL")
	mustBind("control_plane_user", "NOVA_CONTROL_PLANE_USER")
	mustBind("control_plane_password", "NOVA_CONTROL_PLANE_PASSWORD")
	mustBind("monitoring_url", "NOVA_MONITORING_URL")
	mustBind("knowledge_dir", "NOVA_KNOWLEDGE_DIR")
	mustBind("composer_model", "NOVA_COMPOSER_MODEL")
	mustBind("session_backend", "NOVA_SESSION_BACKEND")

	// NOTE: GEMINI_API_KEY is read directly by the genai client, not via
	// viper. The composer is optional, so its absence is not a config error.
}

// Validate performs range checks on the configuration. It is called by
// Load but exported so hand-built configs in tests go through the same
// checks.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidListenAddr)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if _, err := url.ParseRequestURI(c.ControlPlaneURL); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidControlPlaneURL, c.ControlPlaneURL)
	}
	if c.MonitoringURL != "" {
		if _, err := url.ParseRequestURI(c.MonitoringURL); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidMonitoringURL, c.MonitoringURL)
		}
	}
	if c.ContextBudget < MinContextBudget || c.ContextBudget > MaxContextBudget {
		return fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidContextBudget,
			c.ContextBudget, MinContextBudget, MaxContextBudget)
	}
	if c.HistoryTurns < 1 || c.HistoryTurns > MaxHistoryTurns {
		return fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidHistoryLimit,
			c.HistoryTurns, MaxHistoryTurns)
	}
	if c.SessionTTL < time.Minute {
		return fmt.Errorf("%w: %s (minimum 1m)", ErrInvalidSessionTTL, c.SessionTTL)
	}
	if c.ToolTimeout < time.Second || c.ToolTimeout > 5*time.Minute {
		return fmt.Errorf("%w: %s (allowed 1s-5m)", ErrInvalidToolTimeout, c.ToolTimeout)
	}
	return nil
}

// ResolvedMonitoringURL returns the monitoring endpoint, falling back to
// the control plane endpoint when unset (the common single-cluster case).
func (c *Config) ResolvedMonitoringURL() string {
	if c.MonitoringURL != "" {
		return c.MonitoringURL
	}
	return c.ControlPlaneURL
}

// PostgresConnURL builds a postgres:// connection URL from the individual
// fields, suitable for pgxpool.New and golang-migrate.
func (c *Config) PostgresConnURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are
// fully masked to prevent substring matching; longer ones keep the first
// and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.ControlPlanePassword = maskSecret(a.ControlPlanePassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
