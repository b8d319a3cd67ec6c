// Package config loads the service configuration from YAML or JSON5 with
// environment variable expansion. Well-known environment variables
// override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Scenario ScenarioConfig `yaml:"scenario" json:"scenario"`
	Context  ContextConfig  `yaml:"context" json:"context"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
}

type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

type ScenarioConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

type ContextConfig struct {
	TTLMillis int64  `yaml:"ttl_ms" json:"ttl_ms"`
	RedisURL  string `yaml:"redis_url" json:"redis_url"`
}

// TTL returns the snapshot time-to-live.
func (c ContextConfig) TTL() time.Duration {
	return time.Duration(c.TTLMillis) * time.Millisecond
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// Load reads and parses the configuration file, then layers environment
// overrides and defaults. An empty path yields an env-and-defaults config.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := parse([]byte(expanded), path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func parse(data []byte, pathHint string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		return json5.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// applyEnv layers the well-known environment variables over file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SCENARIO_DIR"); v != "" {
		cfg.Scenario.Dir = v
	}
	if v := os.Getenv("CONTEXT_TTL_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.Context.TTLMillis = ms
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Context.RedisURL = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.HTTPPort = port
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Context.TTLMillis == 0 {
		cfg.Context.TTLMillis = 4200000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
}
