package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type DatabaseConfig struct {
	URI      string `toml:"uri"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

type TransferConfig struct {
	BatchSize      int    `toml:"batch_size"`
	BufferSize     int    `toml:"buffer_size"`
	PageSize       int    `toml:"page_size"`
	MaxRetries     int    `toml:"max_retries"`
	RetryBackoffMs int    `toml:"retry_backoff_ms"`
	Parallelism    int    `toml:"parallelism"`
	OriginalIDKey  string `toml:"original_id_key"`
	TimestampKey   string `toml:"timestamp_key"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type Config struct {
	Source   DatabaseConfig `toml:"source"`
	Target   DatabaseConfig `toml:"target"`
	Transfer TransferConfig `toml:"transfer"`
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.ApplyEnv()
	return &cfg, nil
}

// Default returns a config with every knob at its default, ready for env
// overrides. Used when no config file is present.
func Default() *Config {
	cfg := &Config{
		Source: DatabaseConfig{Username: "neo4j", Database: "neo4j"},
		Target: DatabaseConfig{Username: "neo4j", Database: "neo4j"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{Port: "8080"},
	}
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides file values with environment variables, honoring the
// NEO4J_* / TARGET_NEO4J_* names the original tool used.
func (c *Config) ApplyEnv() {
	setIfEnv(&c.Source.URI, "NEO4J_URI")
	setIfEnv(&c.Source.Username, "NEO4J_USERNAME")
	setIfEnv(&c.Source.Password, "NEO4J_PASSWORD")
	setIfEnv(&c.Source.Database, "NEO4J_DATABASE")

	setIfEnv(&c.Target.URI, "TARGET_NEO4J_URI")
	setIfEnv(&c.Target.Username, "TARGET_NEO4J_USERNAME")
	setIfEnv(&c.Target.Password, "TARGET_NEO4J_PASSWORD")
	setIfEnv(&c.Target.Database, "TARGET_NEO4J_DATABASE")

	setIfEnv(&c.Log.Level, "LOG_LEVEL")
	setIfEnv(&c.Log.Format, "LOG_FORMAT")
	setIfEnv(&c.Server.Port, "PORT")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
