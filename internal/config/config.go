package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models complyflow.yml.
type Config struct {
	Storage struct {
		Backend     string `yaml:"backend"`
		RedisAddr   string `yaml:"redis_addr"`
		RedisPrefix string `yaml:"redis_prefix"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"storage"`
	Workflows struct {
		File          string `yaml:"file"`
		ProgressScope string `yaml:"progress_scope"`
	} `yaml:"workflows"`
	Reminders struct {
		Interval time.Duration `yaml:"interval"`
		Window   time.Duration `yaml:"window"`
		CatchUp  CatchUp       `yaml:"catch_up"`
	} `yaml:"reminders"`
	Notifications struct {
		Desktop  string          `yaml:"desktop"`
		InboxCap int             `yaml:"inbox_cap"`
		Webhooks []WebhookConfig `yaml:"webhooks"`
	} `yaml:"notifications"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		// JWTSecret signs HS256 bearer tokens; COMPLYFLOW_JWT_SECRET overrides it.
		JWTSecret        string `yaml:"jwt_secret"`
		AllowActorHeader bool   `yaml:"allow_actor_header"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	App struct {
		DefaultMode string `yaml:"default_mode"`
	} `yaml:"app"`
}

type CatchUp struct {
	Enabled bool          `yaml:"enabled"`
	MaxAge  time.Duration `yaml:"max_age"`
	Limit   int           `yaml:"limit"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Types          []string `yaml:"types"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cf config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "sqlite":
	case "redis":
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("config.storage.redis_addr is required for the redis backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return fmt.Errorf("config.storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config.storage.backend must be one of memory, sqlite, redis, postgres")
	}
	if c.Workflows.ProgressScope != "persona" && c.Workflows.ProgressScope != "global" {
		return fmt.Errorf("config.workflows.progress_scope must be 'persona' or 'global'")
	}
	if c.Reminders.Interval <= 0 {
		return fmt.Errorf("config.reminders.interval must be positive")
	}
	if c.Reminders.Window <= 0 {
		return fmt.Errorf("config.reminders.window must be positive")
	}
	if c.Reminders.CatchUp.Enabled {
		if c.Reminders.CatchUp.MaxAge < c.Reminders.Window {
			return fmt.Errorf("config.reminders.catch_up.max_age must be at least the window")
		}
		if c.Reminders.CatchUp.Limit <= 0 {
			return fmt.Errorf("config.reminders.catch_up.limit must be positive")
		}
	}
	switch c.Notifications.Desktop {
	case "prompt", "granted", "denied":
	default:
		return fmt.Errorf("config.notifications.desktop must be one of prompt, granted, denied")
	}
	if c.Notifications.InboxCap < 0 {
		return fmt.Errorf("config.notifications.inbox_cap must not be negative")
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.App.DefaultMode != "solo" && c.App.DefaultMode != "team" {
		return fmt.Errorf("config.app.default_mode must be 'solo' or 'team'")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "complyflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys fall back to defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `storage:
  backend: sqlite
  redis_prefix: "complyflow:"

workflows:
  # empty uses the built-in definitions
  file: ""
  progress_scope: persona

reminders:
  interval: 1m
  window: 60s
  catch_up:
    enabled: false
    max_age: 24h
    limit: 10

notifications:
  desktop: prompt
  inbox_cap: 200
  webhooks: []

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""
  # accept X-Actor-Id without a token; local development only
  allow_actor_header: false

log:
  level: info

app:
  default_mode: solo
`
