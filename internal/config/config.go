// Package config provides configuration management for the OpenGate bridge.
// It supports loading configuration from environment variables, config files,
// and defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opengate/bridge/internal/common/logger"
)

// Delivery modes for realtime message delivery. Exactly one transport runs
// at a time.
const (
	DeliveryModePoll = "poll"
	DeliveryModePush = "push"
)

// Config holds all configuration sections for the bridge.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Delivery DeliveryConfig       `mapstructure:"delivery"`
	Spawn    SpawnConfig          `mapstructure:"spawn"`
	Host     HostConfig           `mapstructure:"host"`
	Events   EventsConfig         `mapstructure:"events"`
	Status   StatusConfig         `mapstructure:"status"`
	Logging  logger.LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the OpenGate server connection configuration.
type ServerConfig struct {
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"apiKey"`
	APIKeyFile string `mapstructure:"apiKeyFile"`

	// HeartbeatInterval is how often the bridge reports liveness, in seconds.
	HeartbeatInterval int `mapstructure:"heartbeatInterval"`
}

// DeliveryConfig selects and tunes the notification delivery transport.
type DeliveryConfig struct {
	Mode         string `mapstructure:"mode"`         // poll or push
	PollInterval int    `mapstructure:"pollInterval"` // in seconds
	ProjectID    string `mapstructure:"projectId"`    // optional scope
}

// SpawnConfig tunes the task-spawn orchestrator.
type SpawnConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Interval       int    `mapstructure:"interval"` // in seconds
	MaxConcurrent  int    `mapstructure:"maxConcurrent"`
	StateDir       string `mapstructure:"stateDir"`
	AgentID        string `mapstructure:"agentId"`
	Model          string `mapstructure:"model"`
	RetentionHours int    `mapstructure:"retentionHours"`
}

// HostConfig holds the local execution-host connection configuration.
// The token is distinct from the server API key.
type HostConfig struct {
	Port      int    `mapstructure:"port"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
}

// EventsConfig holds the local republish bus configuration. An empty URL
// selects the in-memory bus.
type EventsConfig struct {
	NATSURL  string `mapstructure:"natsUrl"`
	ClientID string `mapstructure:"clientId"`
}

// StatusConfig holds the local status API configuration. Port 0 disables it.
type StatusConfig struct {
	Port int `mapstructure:"port"`
}

// HeartbeatIntervalDuration returns the heartbeat interval as a time.Duration.
func (s *ServerConfig) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(s.HeartbeatInterval) * time.Second
}

// PollIntervalDuration returns the poll interval as a time.Duration.
func (d *DeliveryConfig) PollIntervalDuration() time.Duration {
	return time.Duration(d.PollInterval) * time.Second
}

// IntervalDuration returns the spawn cycle interval as a time.Duration.
func (s *SpawnConfig) IntervalDuration() time.Duration {
	return time.Duration(s.Interval) * time.Second
}

// Retention returns the spawn record retention window as a time.Duration.
func (s *SpawnConfig) Retention() time.Duration {
	return time.Duration(s.RetentionHours) * time.Hour
}

// ResolveAPIKey returns the server credential, preferring the key file over
// the inline value. The result is trimmed of surrounding whitespace.
func (s *ServerConfig) ResolveAPIKey() (string, error) {
	return resolveCredential(s.APIKey, s.APIKeyFile, "server api key")
}

// ResolveToken returns the host credential, preferring the token file over
// the inline value.
func (h *HostConfig) ResolveToken() (string, error) {
	return resolveCredential(h.Token, h.TokenFile, "host token")
}

func resolveCredential(inline, file, what string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s file '%s': %w", what, file, err)
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			return "", fmt.Errorf("%s file '%s' is empty", what, file)
		}
		return value, nil
	}
	return strings.TrimSpace(inline), nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.apiKey", "")
	v.SetDefault("server.apiKeyFile", "")
	v.SetDefault("server.heartbeatInterval", 300)

	// Delivery defaults
	v.SetDefault("delivery.mode", DeliveryModePoll)
	v.SetDefault("delivery.pollInterval", 60)
	v.SetDefault("delivery.projectId", "")

	// Spawn defaults
	v.SetDefault("spawn.enabled", false)
	v.SetDefault("spawn.interval", 60)
	v.SetDefault("spawn.maxConcurrent", 3)
	v.SetDefault("spawn.stateDir", defaultStateDir())
	v.SetDefault("spawn.agentId", "")
	v.SetDefault("spawn.model", "")
	v.SetDefault("spawn.retentionHours", 24)

	// Host defaults
	v.SetDefault("host.port", 18789)
	v.SetDefault("host.token", "")
	v.SetDefault("host.tokenFile", "")

	// Events defaults - empty URL means use the in-memory bus
	v.SetDefault("events.natsUrl", "")
	v.SetDefault("events.clientId", "opengate-bridge")

	// Status API defaults - port 0 disables the listener
	v.SetDefault("status.port", 0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputPath", "stderr")
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opengate-bridge"
	}
	return home + "/.opengate-bridge"
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix OPENGATE_BRIDGE_ with
// underscore naming.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default
// locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("OPENGATE_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath(defaultStateDir())
	v.AddConfigPath("/etc/opengate-bridge/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func validate(cfg *Config) error {
	if cfg.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	parsed, err := url.Parse(cfg.Server.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("server.url must be an http(s) URL, got '%s'", cfg.Server.URL)
	}

	if cfg.Delivery.Mode != DeliveryModePoll && cfg.Delivery.Mode != DeliveryModePush {
		return fmt.Errorf("delivery.mode must be '%s' or '%s', got '%s'",
			DeliveryModePoll, DeliveryModePush, cfg.Delivery.Mode)
	}
	if cfg.Delivery.PollInterval <= 0 {
		return fmt.Errorf("delivery.pollInterval must be positive")
	}

	if cfg.Spawn.Enabled {
		if cfg.Spawn.Interval <= 0 {
			return fmt.Errorf("spawn.interval must be positive")
		}
		if cfg.Spawn.MaxConcurrent <= 0 {
			return fmt.Errorf("spawn.maxConcurrent must be positive")
		}
		if cfg.Spawn.AgentID == "" {
			return fmt.Errorf("spawn.agentId is required when spawn is enabled")
		}
		if cfg.Spawn.RetentionHours <= 0 {
			return fmt.Errorf("spawn.retentionHours must be positive")
		}
	}

	return nil
}
