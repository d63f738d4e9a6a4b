// Package config resolves the core's configuration surface (spec.md §6)
// from environment variables plus an optional YAML file, grounded on the
// infrastructure/config/config.go getEnv/getEnvBool/getEnvInt
// helper pattern, generalized from a fixed struct of AWS/Lambda settings to
// the plugin/cache/remote/webhooks shape this layer needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// PluginConfig is one entry of the `plugins` array (spec.md §6).
type PluginConfig struct {
	Name     string                 `yaml:"name"`
	Strategy string                 `yaml:"strategy"`
	IDField  string                 `yaml:"idField"`
	Options  map[string]interface{} `yaml:"options"`
}

// WebSocketConfig configures the Remote Sync Client's reconnect behavior.
type WebSocketConfig struct {
	ReconnectDelay     time.Duration `yaml:"-"`
	ReconnectDelayMs   int           `yaml:"reconnectDelayMs"`
	MaxReconnectAttempts int         `yaml:"maxReconnectAttempts"`
}

// RemoteConfig configures the Remote Sync Client (spec.md §4.8).
type RemoteConfig struct {
	URL       string          `yaml:"url"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// WebhooksHooksConfig names the lifecycle hook functions a deployment may
// wire in; the hooks themselves are Go closures set programmatically, not
// loaded from this file — these booleans only record whether the caller
// intends to set one, useful for config validation and logging.
type WebhooksHooksConfig struct {
	OnWebhookReceived        bool `yaml:"onWebhookReceived"`
	OnBeforeWebhookTriggered bool `yaml:"onBeforeWebhookTriggered"`
	OnAfterWebhookTriggered  bool `yaml:"onAfterWebhookTriggered"`
}

// WebhooksConfig configures the Webhook Registry & Queue (spec.md §4.6).
type WebhooksConfig struct {
	DebounceMs  int                 `yaml:"debounceMs"`
	MaxQueueSize int                `yaml:"maxQueueSize"`
	Hooks       WebhooksHooksConfig `yaml:"hooks"`
}

// Config is the resolved shape the core consumes (spec.md §6).
type Config struct {
	ServerAddress string `yaml:"-"`
	Environment   string `yaml:"-"`
	LogLevel      string `yaml:"-"`

	Plugins  []PluginConfig  `yaml:"plugins"`
	Cache    bool            `yaml:"cache"`
	CacheDir string          `yaml:"cacheDir"`
	Remote   *RemoteConfig   `yaml:"remote"`
	Webhooks WebhooksConfig  `yaml:"webhooks"`

	// UseMocks toggles mocked outbound plugin I/O in dev (spec.md §6
	// "Environment variables honored").
	UseMocks bool `yaml:"-"`

	EnableMetrics bool `yaml:"-"`
	EnableCORS    bool `yaml:"-"`
}

// Load resolves configuration: a YAML file at path (if non-empty and
// present) supplies plugins/cache/remote/webhooks, then environment
// variables layer on top for the ambient deployment settings the prior implementation's
// config loader always reads straight from the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Cache:         true,
		CacheDir:      getEnv("CACHE_DIR", defaultCacheDir()),
		Webhooks: WebhooksConfig{
			DebounceMs:   5000,
			MaxQueueSize: 100,
		},
		UseMocks:      resolveUseMocks(),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Remote != nil {
		if cfg.Remote.WebSocket.ReconnectDelayMs == 0 {
			cfg.Remote.WebSocket.ReconnectDelayMs = 1000
		}
		cfg.Remote.WebSocket.ReconnectDelay = time.Duration(cfg.Remote.WebSocket.ReconnectDelayMs) * time.Millisecond
		if cfg.Remote.WebSocket.MaxReconnectAttempts == 0 {
			cfg.Remote.WebSocket.MaxReconnectAttempts = 10
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// Validate checks structural invariants spec.md §6 implies but the
// unmarshal step cannot enforce (every plugin needs a name; strategy, if
// set, must be one the pipeline recognizes).
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, p := range c.Plugins {
		if p.Name == "" {
			return fmt.Errorf("plugin entry missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate plugin name: %s", p.Name)
		}
		seen[p.Name] = true
		if p.Strategy != "" && p.Strategy != "sync" && p.Strategy != "refetch" {
			return fmt.Errorf("plugin %s: unknown strategy %q", p.Name, p.Strategy)
		}
	}
	return nil
}

// DebounceDuration converts Webhooks.DebounceMs to a time.Duration.
func (c *Config) DebounceDuration() time.Duration {
	return time.Duration(c.Webhooks.DebounceMs) * time.Millisecond
}

func defaultCacheDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ".udl-cache"
	}
	return filepath.Join(cwd, ".udl-cache")
}

// resolveUseMocks implements spec.md §6's mode precedence: explicit
// USE_MOCKS toggle wins if set; otherwise development defaults to mocks
// and any other environment defaults to real I/O.
func resolveUseMocks() bool {
	if raw := os.Getenv("USE_MOCKS"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err == nil {
			return v
		}
	}
	return getEnv("ENVIRONMENT", "development") == "development"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}
