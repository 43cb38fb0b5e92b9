// Package config loads clawbench's JSON5 configuration file and overlays
// environment-sourced secrets on top of it. Database DSNs and provider
// API keys come from the environment only and are never written to disk.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/titanous/json5"
)

// FlexibleStringSlice unmarshals either a bare JSON string or a JSON array
// of strings into a []string, so single-or-many fields read naturally in
// hand-written JSON5 config files.
type FlexibleStringSlice []string

func (s *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var single string
	if err := json5.Unmarshal(data, &single); err == nil {
		*s = FlexibleStringSlice{single}
		return nil
	}
	var many []string
	if err := json5.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = FlexibleStringSlice(many)
	return nil
}

// DatabaseConfig holds Postgres connection settings. The DSN is never read
// from the config file; it is sourced exclusively from CLAWBENCH_DATABASE_DSN.
type DatabaseConfig struct {
	DSN         string `json:"-"`
	MaxConns    int32  `json:"max_conns"`
	MaxIdleTime string `json:"max_idle_time"`
}

// BlobStoreConfig selects and configures the durable object storage backend.
type BlobStoreConfig struct {
	Backend   string `json:"backend"` // "local" or "s3"
	LocalRoot string `json:"local_root"`
	S3Bucket  string `json:"s3_bucket"`
	S3Region  string `json:"s3_region"`
	S3Prefix  string `json:"s3_prefix"`
}

// ProviderConfig describes one configured Model Gateway provider.
type ProviderConfig struct {
	Name    string `json:"name"`    // "openai" | "openrouter"
	BaseURL string `json:"base_url"`
	APIKey  string `json:"-"` // sourced from CLAWBENCH_PROVIDER_<NAME>_KEY
	Default string `json:"default_model"`
}

// AgentsConfig controls actor defaults: persona, token budget, heartbeat
// cadence, and inactivity timeout.
type AgentsConfig struct {
	Persona                string `json:"persona"`
	TokenBudget            int    `json:"token_budget"`
	HeartbeatSeconds       int    `json:"heartbeat_seconds"`
	InactivityTimeoutSecs  int    `json:"inactivity_timeout_seconds"`
	MailboxSize            int    `json:"mailbox_size"`
	BroadcastBufferSize    int    `json:"broadcast_buffer_size"`
	DefaultProvider        string `json:"default_provider"`
}

// SessionCleanupConfig configures the Session Store's stale-session sweep.
type SessionCleanupConfig struct {
	Cron           string `json:"cron"` // optional cron gate, empty = always eligible
	IntervalSecs   int    `json:"interval_seconds"`
	StaleThreshold int    `json:"stale_threshold_seconds"`
}

// TracingConfig configures the OTLP HTTP exporter.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	ServiceName string `json:"service_name"`
}

// HTTPConfig configures the external HTTP interface.
type HTTPConfig struct {
	Addr              string              `json:"addr"`
	CookieSecure      bool                `json:"cookie_secure"`
	AllowedOrigins    FlexibleStringSlice `json:"allowed_origins"`
	AccessTokenTTLSec int                 `json:"access_token_ttl_seconds"`
}

// AuthConfig configures internal/authsvc's token lifecycle. Secret is
// never read from the config file; it is sourced exclusively from
// CLAWBENCH_AUTH_SECRET and used both to sign access tokens and to HMAC
// refresh tokens before they are hashed at rest.
type AuthConfig struct {
	Secret             string `json:"-"`
	RefreshTokenTTLSec int    `json:"refresh_token_ttl_seconds"`
}

// MCPConfig configures the tool catalog's MCP transport.
type MCPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Config is the root configuration object. Only Validate takes mu (for
// reading); nothing reloads or mutates a Config after Load returns it.
type Config struct {
	mu sync.RWMutex

	Database  DatabaseConfig   `json:"database"`
	BlobStore BlobStoreConfig  `json:"blob_store"`
	Providers []ProviderConfig `json:"providers"`
	Agents    AgentsConfig     `json:"agents"`
	Sessions  SessionCleanupConfig `json:"sessions"`
	Tracing   TracingConfig    `json:"tracing"`
	HTTP      HTTPConfig       `json:"http"`
	MCP       MCPConfig        `json:"mcp"`
	Auth      AuthConfig       `json:"auth"`

	EncryptionKey string `json:"-"` // CLAWBENCH_ENCRYPTION_KEY
}

func defaults() *Config {
	return &Config{
		BlobStore: BlobStoreConfig{Backend: "local", LocalRoot: "./data/blobs"},
		Agents: AgentsConfig{
			Persona:               "You are a careful, workspace-scoped coding assistant.",
			TokenBudget:           4000,
			HeartbeatSeconds:      20,
			InactivityTimeoutSecs: 600,
			MailboxSize:           32,
			BroadcastBufferSize:   256,
		},
		Sessions: SessionCleanupConfig{
			IntervalSecs:   30,
			StaleThreshold: 120,
		},
		Tracing: TracingConfig{ServiceName: "clawbench"},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			AccessTokenTTLSec: 900,
		},
		Auth: AuthConfig{
			RefreshTokenTTLSec: 2_592_000,
		},
	}
}

// Load reads a JSON5 config file at path (if non-empty and present) over a
// set of defaults, then overlays secrets from the environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.Database.DSN = os.Getenv("CLAWBENCH_DATABASE_DSN")
	cfg.EncryptionKey = os.Getenv("CLAWBENCH_ENCRYPTION_KEY")
	cfg.Auth.Secret = os.Getenv("CLAWBENCH_AUTH_SECRET")

	for i := range cfg.Providers {
		envKey := "CLAWBENCH_PROVIDER_" + upperSnake(cfg.Providers[i].Name) + "_KEY"
		cfg.Providers[i].APIKey = os.Getenv(envKey)
	}

	if cfg.Agents.DefaultProvider == "" && len(cfg.Providers) > 0 {
		cfg.Agents.DefaultProvider = cfg.Providers[0].Name
	}

	return cfg, nil
}

func upperSnake(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			r = r - 'a' + 'A'
		}
		if r == '-' {
			r = '_'
		}
		out = append(out, r)
	}
	return string(out)
}

// Validate enforces the Model Gateway's startup contract: at least
// one provider configured, and the default provider must be among them.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one model provider must be configured")
	}
	found := false
	for _, p := range c.Providers {
		if p.Name == c.Agents.DefaultProvider {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: default provider %q is not among configured providers", c.Agents.DefaultProvider)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("config: CLAWBENCH_DATABASE_DSN is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("config: CLAWBENCH_AUTH_SECRET is required")
	}
	return nil
}
