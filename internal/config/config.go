package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models workpilot.yml.
type Config struct {
	Assistant Assistant       `yaml:"assistant"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
	Logging   struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

type Assistant struct {
	// Models overrides the default model per provider kind.
	Models             map[string]string `yaml:"models"`
	TimeoutSeconds     int               `yaml:"timeout_seconds"`
	SnapshotTTLSeconds int               `yaml:"snapshot_ttl_seconds"`
	Limits             struct {
		Daily      int `yaml:"daily"`
		Concurrent int `yaml:"concurrent"`
	} `yaml:"limits"`
	// OpenRouter attribution headers.
	Referer string `yaml:"referer"`
	Title   string `yaml:"title"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

var providerKinds = []string{"openai", "anthropic", "google", "groq", "mistral", "xai", "deepseek", "openrouter"}

// Timeout returns the provider call deadline.
func (a Assistant) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a Assistant) SnapshotTTL() time.Duration {
	return time.Duration(a.SnapshotTTLSeconds) * time.Second
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Assistant.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.assistant.timeout_seconds must be positive")
	}
	if c.Assistant.SnapshotTTLSeconds < 0 {
		return fmt.Errorf("config.assistant.snapshot_ttl_seconds must not be negative")
	}
	if c.Assistant.Limits.Daily <= 0 {
		return fmt.Errorf("config.assistant.limits.daily must be positive")
	}
	if c.Assistant.Limits.Concurrent <= 0 {
		return fmt.Errorf("config.assistant.limits.concurrent must be positive")
	}
	for kind, model := range c.Assistant.Models {
		if !knownKind(kind) {
			return fmt.Errorf("config.assistant.models has unknown provider %s", kind)
		}
		if strings.TrimSpace(model) == "" {
			return fmt.Errorf("config.assistant.models.%s is empty", kind)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

func knownKind(kind string) bool {
	for _, k := range providerKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "workpilot.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns Default when the config file does not exist.
func LoadOrDefault(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(DefaultYAML))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses config, filling unset fields from the defaults, then validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Config{}
	cfg.Assistant.TimeoutSeconds = 60
	cfg.Assistant.SnapshotTTLSeconds = 30
	cfg.Assistant.Limits.Daily = 200
	cfg.Assistant.Limits.Concurrent = 2
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const DefaultYAML = `assistant:
  timeout_seconds: 60
  snapshot_ttl_seconds: 30
  limits:
    daily: 200
    concurrent: 2
  title: Workpilot

logging:
  level: info
`
