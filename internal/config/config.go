package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"uptimizer/internal/models"
)

// DefaultGroup is assigned to endpoints configured without one.
const DefaultGroup = "Default Group"

// Config holds the application's configuration values.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Auth     AuthConfig      `yaml:"auth"`
	Settings models.Settings `yaml:"settings"`
	Clients  []models.Client `yaml:"clients"`
}

// ServerConfig configures the HTTP API surface.
type ServerConfig struct {
	Port           string        `yaml:"port"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// DatabaseConfig configures the history store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig configures client API token signing.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// Path returns the config file location, overridable by environment.
func Path() string {
	return getEnv("UPTIMIZER_CONFIG", "config.yaml")
}

// Load reads and normalizes the configuration file. A missing file is
// not an error: the service starts with defaults and an empty default
// client, matching first-run behavior.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration atomically: temp file then rename.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Server.Port = getEnv("UPTIMIZER_PORT", defaultString(c.Server.Port, "8080"))
	c.Database.Path = getEnv("UPTIMIZER_DB", defaultString(c.Database.Path, "uptimizer.db"))
	c.Auth.Secret = getEnv("UPTIMIZER_SECRET", c.Auth.Secret)
	if c.Server.MaxConcurrency <= 0 {
		c.Server.MaxConcurrency = getEnvInt("UPTIMIZER_MAX_CONCURRENCY", 8)
	}
	if c.Server.ShutdownGrace <= 0 {
		c.Server.ShutdownGrace = 10 * time.Second
	}

	if c.Settings.CheckIntervalSeconds <= 0 {
		c.Settings.CheckIntervalSeconds = models.DefaultCheckInterval
	}
	if c.Settings.CheckIntervalSeconds < models.MinCheckInterval {
		c.Settings.CheckIntervalSeconds = models.MinCheckInterval
	}
	if c.Settings.CheckTimeoutSeconds <= 0 {
		c.Settings.CheckTimeoutSeconds = models.DefaultCheckTimeout
	}

	if len(c.Clients) == 0 {
		c.Clients = []models.Client{{
			ID:   "default_client",
			Name: "Default Client",
			Type: models.ClientLocal,
		}}
	}

	seen := make(map[string]bool)
	for i := range c.Clients {
		client := &c.Clients[i]
		if client.Type == "" {
			client.Type = models.ClientLocal
		}
		if client.Name == "" {
			client.Name = client.ID
		}
		if client.Type == models.ClientLinked {
			// Linked clients never own local endpoints.
			client.Endpoints = nil
			continue
		}
		for j := range client.Endpoints {
			ep := &client.Endpoints[j]
			if ep.ID == "" || seen[ep.ID] {
				ep.ID = GenerateEndpointID()
			}
			seen[ep.ID] = true
			if ep.Group == "" {
				ep.Group = DefaultGroup
			}
		}
	}
}

// GenerateEndpointID mints a fresh endpoint id.
func GenerateEndpointID() string {
	return "ep_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func defaultString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// Helper function to get an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as an integer.
func getEnvInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}
