// Package config loads writingway's YAML configuration and applies
// environment overrides.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AI modes.
const (
	ModeAPI   = "api"
	ModeLocal = "local"
)

// Config is the top-level configuration, loaded from config.yaml.
type Config struct {
	Database   string           `yaml:"database"    env:"WRITINGWAY_DATABASE"`
	ServerAddr string           `yaml:"server_addr" env:"WRITINGWAY_SERVER_ADDR"`
	LogLevel   string           `yaml:"log_level"   env:"WRITINGWAY_LOG_LEVEL"`
	AI         AIConfig         `yaml:"ai"`
	Generation GenerationConfig `yaml:"generation"`
}

// AIConfig selects the text-generation backend.
type AIConfig struct {
	// Mode is "api" (hosted provider) or "local" (llama-server style endpoint).
	Mode     string        `yaml:"mode"     env:"WRITINGWAY_AI_MODE"`
	Provider string        `yaml:"provider" env:"WRITINGWAY_AI_PROVIDER"`
	Model    string        `yaml:"model"    env:"WRITINGWAY_AI_MODEL"`
	APIKey   string        `yaml:"api_key"  env:"WRITINGWAY_AI_API_KEY"`
	BaseURL  string        `yaml:"base_url" env:"WRITINGWAY_AI_BASE_URL"`
	Endpoint string        `yaml:"endpoint" env:"WRITINGWAY_AI_ENDPOINT"`
	Timeout  time.Duration `yaml:"timeout"  env:"WRITINGWAY_AI_TIMEOUT"`
}

// GenerationConfig tunes the beat lifecycle.
type GenerationConfig struct {
	HighlightDuration time.Duration `yaml:"highlight_duration"`
	MaxSceneChars     int           `yaml:"max_scene_chars"`
}

// Load reads a YAML config file from path, applies environment overrides and
// returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	return Parse(nil)
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = "writingway.db"
	}
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AI.Mode == "" {
		c.AI.Mode = ModeAPI
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "openai"
	}
	if c.AI.Endpoint == "" {
		c.AI.Endpoint = "http://localhost:1234"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 2 * time.Minute
	}
	if c.Generation.HighlightDuration == 0 {
		c.Generation.HighlightDuration = 5 * time.Second
	}
}

func (c *Config) validate() error {
	var errs []string
	switch c.AI.Mode {
	case ModeAPI, ModeLocal:
	default:
		errs = append(errs, fmt.Sprintf("ai.mode %q must be api or local", c.AI.Mode))
	}
	switch c.AI.Provider {
	case "openai", "deepseek", "lmstudio":
	default:
		errs = append(errs, fmt.Sprintf("ai.provider %q not supported", c.AI.Provider))
	}
	if c.AI.Mode == ModeAPI && c.AI.Provider == "deepseek" && c.AI.BaseURL == "" {
		errs = append(errs, "ai.base_url is required for provider deepseek")
	}
	if c.AI.Mode == ModeLocal && endpointIsServer(c.AI.Endpoint, c.ServerAddr) {
		errs = append(errs, fmt.Sprintf("ai.endpoint %q points at server_addr %q", c.AI.Endpoint, c.ServerAddr))
	}
	if c.AI.Timeout < 0 {
		errs = append(errs, "ai.timeout must not be negative")
	}
	if c.Generation.MaxSceneChars < 0 {
		errs = append(errs, "generation.max_scene_chars must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log_level %q must be debug, info, warn or error", c.LogLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// endpointIsServer reports whether endpoint reaches writingway's own listener.
// Unparseable values are left to fail at dial time.
func endpointIsServer(endpoint, serverAddr string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host, port, err := net.SplitHostPort(serverAddr)
	if err != nil {
		return false
	}
	epPort := u.Port()
	if epPort == "" {
		switch u.Scheme {
		case "https":
			epPort = "443"
		default:
			epPort = "80"
		}
	}
	if epPort != port || !isLoopback(u.Hostname()) {
		return false
	}
	switch host {
	case "", "0.0.0.0", "::":
		return true
	}
	return isLoopback(host)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
