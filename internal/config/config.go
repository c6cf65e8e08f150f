package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	GitHub    GitHubConfig    `toml:"github"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	WebSocket WebSocketConfig `toml:"websocket"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// GitHubConfig holds GitHub API client settings
type GitHubConfig struct {
	BaseURL               string `toml:"base_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxRetries            int    `toml:"max_retries"`
	MaxPages              int    `toml:"max_pages"`
}

// AnalysisConfig holds worker pool settings
type AnalysisConfig struct {
	Workers        int `toml:"workers"`
	QueueSize      int `toml:"queue_size"`
	TimeoutMinutes int `toml:"timeout_minutes"`
}

// WebSocketConfig holds streaming settings
type WebSocketConfig struct {
	HeartbeatSeconds int `toml:"heartbeat_seconds"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		GitHub: GitHubConfig{
			RequestTimeoutSeconds: 30,
			MaxRetries:            3,
			MaxPages:              10,
		},
		Analysis: AnalysisConfig{
			Workers:        4,
			QueueSize:      64,
			TimeoutMinutes: 15,
		},
		WebSocket: WebSocketConfig{
			HeartbeatSeconds: 30,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("analysis workers must be positive, got %d", c.Analysis.Workers)
	}
	if c.GitHub.MaxPages <= 0 {
		return fmt.Errorf("github max_pages must be positive, got %d", c.GitHub.MaxPages)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RequestTimeout returns the GitHub request timeout as a duration.
func (c *GitHubConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-analysis deadline as a duration.
func (c *AnalysisConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// Heartbeat returns the WebSocket ping interval as a duration.
func (c *WebSocketConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pr-metrics", "config.toml")
}
