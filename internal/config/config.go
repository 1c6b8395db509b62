package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TenancySingle = "single"
	TenancyMulti  = "multi"
)

// Config models teamdesk.yml.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		BasePath       string   `yaml:"base_path"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Auth struct {
		SuperAdminUID   string        `yaml:"super_admin_uid"`
		SuperAdminEmail string        `yaml:"super_admin_email"`
		TokenTTL        time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Tenancy  string `yaml:"tenancy"`
	Policies struct {
		Completion string `yaml:"completion"`
	} `yaml:"policies"`
	Log  Log `yaml:"log"`
	Feed struct {
		PollInterval        time.Duration `yaml:"poll_interval"`
		OrphanSweepInterval time.Duration `yaml:"orphan_sweep_interval"`
	} `yaml:"feed"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type Webhook struct {
	URL     string   `yaml:"url"`
	Events  []string `yaml:"events"`
	Secret  string   `yaml:"secret"`
	Enabled *bool    `yaml:"enabled"`
}

func (w Webhook) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

func (c *Config) MultiTeam() bool {
	return c.Tenancy == TenancyMulti
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with td init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Tenancy {
	case TenancySingle, TenancyMulti:
	default:
		return fmt.Errorf("config.tenancy must be %q or %q", TenancySingle, TenancyMulti)
	}
	switch c.Policies.Completion {
	case "assigner_role", "min_rank":
	default:
		return fmt.Errorf("config.policies.completion must be assigner_role or min_rank, got %q", c.Policies.Completion)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("config.feed.poll_interval must be positive")
	}
	if c.Server.BasePath != "" && c.Server.BasePath[0] != '/' {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, evt := range h.Events {
			if evt == "" {
				return fmt.Errorf("config.webhooks[%d] has an empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "teamdesk.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(superAdminEmail string) string {
	return fmt.Sprintf(defaultTemplate, superAdminEmail)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(""))).Decode(&cfg)
	return &cfg
}

// FromYAML parses config from raw YAML bytes on top of the defaults, then validates it.
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

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  allowed_origins: ["*"]

auth:
  super_admin_uid: ""
  super_admin_email: "%s"
  token_ttl: 24h

# single: one "active" milestone owned by the super admin.
# multi: teams with their own milestones.
tenancy: single

policies:
  # assigner_role: only the assigner's exact role may mark a task done.
  # min_rank: anyone ranked at or above the assigner may.
  completion: assigner_role

log:
  level: info
  format: json
  file: ""
  max_size_mb: 100
  max_backups: 3
  max_age_days: 28

feed:
  poll_interval: 2s
  orphan_sweep_interval: 1h

webhooks: []
`
