// Package config loads the service configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadTimeoutSeconds is the default HTTP read timeout in seconds
	DefaultReadTimeoutSeconds = 10
	// DefaultWriteTimeoutSeconds is the default HTTP write timeout in seconds
	DefaultWriteTimeoutSeconds = 30
	// DefaultShutdownTimeoutSeconds is the default shutdown timeout in seconds
	DefaultShutdownTimeoutSeconds = 30
)

type Config struct {
	Debug     bool            `yaml:"debug"` // Application debug mode (controls log level and format)
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Worker    WorkerConfig    `yaml:"worker"`
	Services  ServicesConfig  `yaml:"services"`
}

// ServicesConfig points the worker at its sibling services. Only the worker
// commands need these; the API server runs without them.
type ServicesConfig struct {
	ExtractorURL string        `yaml:"extractor_url"`
	GeneratorURL string        `yaml:"generator_url"`
	PublisherURL string        `yaml:"publisher_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ValidateForWorker checks the sibling service endpoints the worker requires.
func (c *ServicesConfig) ValidateForWorker() error {
	if c.ExtractorURL == "" {
		return errors.New("services.extractor_url is required for the worker")
	}
	if c.GeneratorURL == "" {
		return errors.New("services.generator_url is required for the worker")
	}
	if c.PublisherURL == "" {
		return errors.New("services.publisher_url is required for the worker")
	}
	return nil
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig tunes the stage tick intervals. Per-outlet frequencies live
// in the database; these only control how often due-ness is checked.
type SchedulerConfig struct {
	ExtractionTick time.Duration `yaml:"extraction_tick"`
	GenerationTick time.Duration `yaml:"generation_tick"`
	PublishingTick time.Duration `yaml:"publishing_tick"`
	CycleTimeout   time.Duration `yaml:"cycle_timeout"`
}

type WorkerConfig struct {
	ConsumerPrefix string `yaml:"consumer_prefix"` // Stream consumer name prefix (default: hostname)
}

type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g., ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 30s
}

// Validate checks if the server configuration is valid and sets defaults.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		c.Address = ":8080" // Default port
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeoutSeconds * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeoutSeconds * time.Second
	}
	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Scheduler.ExtractionTick <= 0 {
		return fmt.Errorf("scheduler.extraction_tick must be positive, got %v", c.Scheduler.ExtractionTick)
	}
	if c.Scheduler.GenerationTick <= 0 {
		return fmt.Errorf("scheduler.generation_tick must be positive, got %v", c.Scheduler.GenerationTick)
	}
	if c.Scheduler.PublishingTick <= 0 {
		return fmt.Errorf("scheduler.publishing_tick must be positive, got %v", c.Scheduler.PublishingTick)
	}
	return nil
}

// setDefaults sets default values for configuration fields
func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeoutSeconds * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeoutSeconds * time.Second
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Scheduler.ExtractionTick == 0 {
		cfg.Scheduler.ExtractionTick = time.Minute
	}
	if cfg.Scheduler.GenerationTick == 0 {
		cfg.Scheduler.GenerationTick = time.Minute
	}
	if cfg.Scheduler.PublishingTick == 0 {
		cfg.Scheduler.PublishingTick = time.Minute
	}
	if cfg.Scheduler.CycleTimeout == 0 {
		cfg.Scheduler.CycleTimeout = 5 * time.Minute
	}
	if cfg.Services.Timeout == 0 {
		cfg.Services.Timeout = 30 * time.Second
	}
	if cfg.Worker.ConsumerPrefix == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.Worker.ConsumerPrefix = hostname
		} else {
			cfg.Worker.ConsumerPrefix = "worker"
		}
	}
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(cfg *Config) {
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		cfg.Database.Port = port
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		cfg.Database.User = user
	}
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if dbname := os.Getenv("POSTGRES_DB"); dbname != "" {
		cfg.Database.DBName = dbname
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if extractorURL := os.Getenv("EXTRACTOR_URL"); extractorURL != "" {
		cfg.Services.ExtractorURL = extractorURL
	}
	if generatorURL := os.Getenv("GENERATOR_URL"); generatorURL != "" {
		cfg.Services.GeneratorURL = generatorURL
	}
	if publisherURL := os.Getenv("PUBLISHER_URL"); publisherURL != "" {
		cfg.Services.PublisherURL = publisherURL
	}
	// Parse APP_DEBUG environment variable
	if appDebug := os.Getenv("APP_DEBUG"); appDebug != "" {
		cfg.Debug = parseBool(appDebug)
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Set defaults
	setDefaults(&cfg)

	// Override with environment variables if present
	overrideWithEnvVars(&cfg)

	// Set server defaults
	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("server config validation: %w", err)
	}

	// Override server config with environment variable if present
	if pipelinePort := os.Getenv("PIPELINE_PORT"); pipelinePort != "" {
		cfg.Server.Address = ":" + pipelinePort
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses a string value as a boolean.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
