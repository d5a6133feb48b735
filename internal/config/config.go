/*-------------------------------------------------------------------------
 *
 * config.go
 *    Configuration handling for NeuronFlow server
 *
 * Provides YAML file loading, environment variable overrides, and
 * defaults for server, database, engine, cache, and notification settings.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/config/config.go
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Engine        EngineConfig        `yaml:"engine"`
	Cache         CacheConfig         `yaml:"cache"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Generation    GenerationConfig    `yaml:"generation"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	BaseURL         string        `yaml:"base_url"`
}

type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type EngineConfig struct {
	MaxConcurrentStages  int           `yaml:"max_concurrent_stages"`
	DefaultStageTimeout  time.Duration `yaml:"default_stage_timeout"`
	DefaultReviewTimeout time.Duration `yaml:"default_review_timeout"`
	HistoryLimit         int           `yaml:"history_limit"`
	BreakerMaxFailures   int           `yaml:"breaker_max_failures"`
	BreakerResetTimeout  time.Duration `yaml:"breaker_reset_timeout"`
}

type CacheConfig struct {
	ArtifactTTL time.Duration `yaml:"artifact_ttl"`
	ResultTTL   time.Duration `yaml:"result_ttl"`
	MaxSize     int           `yaml:"max_size"`
}

type NotificationsConfig struct {
	WebhookTimeout time.Duration     `yaml:"webhook_timeout"`
	Channels       map[string]string `yaml:"channels"`
	QueueSize      int               `yaml:"queue_size"`
	Workers        int               `yaml:"workers"`
	MaxRetries     int               `yaml:"max_retries"`
	SMTP           SMTPConfig        `yaml:"smtp"`
}

type SMTPConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	User       string   `yaml:"user"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

type GenerationConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

/* DefaultConfig returns the default configuration */
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8085,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			BaseURL:         "http://localhost:8085",
		},
		Database: DatabaseConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			User:            "neurondb",
			Database:        "neuronflow",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Engine: EngineConfig{
			MaxConcurrentStages:  16,
			DefaultStageTimeout:  5 * time.Minute,
			DefaultReviewTimeout: 24 * time.Hour,
			HistoryLimit:         100,
			BreakerMaxFailures:   5,
			BreakerResetTimeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			ArtifactTTL: 1 * time.Hour,
			ResultTTL:   15 * time.Minute,
			MaxSize:     1000,
		},
		Notifications: NotificationsConfig{
			WebhookTimeout: 30 * time.Second,
			QueueSize:      1024,
			Workers:        4,
			MaxRetries:     3,
		},
		Generation: GenerationConfig{
			Timeout: 120 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

/* LoadConfig loads configuration from a YAML file over defaults */
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	LoadFromEnv(cfg)
	return cfg, nil
}

/* LoadFromEnv applies environment variable overrides */
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("NEURONFLOW_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("NEURONFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NEURONFLOW_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("NEURONFLOW_DB_ENABLED"); v != "" {
		cfg.Database.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("NEURONFLOW_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("NEURONFLOW_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("NEURONFLOW_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("NEURONFLOW_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("NEURONFLOW_DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("NEURONFLOW_GENERATION_ENDPOINT"); v != "" {
		cfg.Generation.Endpoint = v
	}
	if v := os.Getenv("NEURONFLOW_GENERATION_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("NEURONFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NEURONFLOW_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

/* ConnString builds a PostgreSQL connection string */
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Database)
}
