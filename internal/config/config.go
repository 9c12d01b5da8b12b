// Package config loads service configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the callsight service.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Auth          AuthConfig          `yaml:"auth"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Stream        StreamConfig        `yaml:"stream"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Anthropic     AnthropicConfig     `yaml:"anthropic"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServiceConfig holds HTTP server settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Debug           bool          `yaml:"debug"`
}

// AuthConfig holds bearer-token settings. An empty secret disables auth,
// for local development only.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// PipelineConfig bounds stage execution and retries.
type PipelineConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	StageTimeout   time.Duration `yaml:"stage_timeout"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	RetrievalLimit int           `yaml:"retrieval_limit"`
	MinSimilarity  float64       `yaml:"min_similarity"`
}

// StreamConfig bounds the live event fan-out.
type StreamConfig struct {
	ConnectionBuffer int `yaml:"connection_buffer"`
}

// RedisConfig locates the transcript store. An empty address selects the
// in-memory store.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ElasticsearchConfig locates the knowledge base. An empty address disables
// retrieval.
type ElasticsearchConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AnthropicConfig holds model settings. An empty API key selects the
// rule-based extractor and template composer.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "callsight",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxAttempts:    3,
			StageTimeout:   30 * time.Second,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			RetrievalLimit: 5,
			MinSimilarity:  0.3,
		},
		Stream: StreamConfig{
			ConnectionBuffer: 64,
		},
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path (skipped when empty or missing), then
// applies environment overrides. A .env file is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Service.Name, "CALLSIGHT_SERVICE_NAME")
	setInt(&cfg.Service.Port, "CALLSIGHT_PORT")
	setBool(&cfg.Service.Debug, "CALLSIGHT_DEBUG")
	setString(&cfg.Auth.JWTSecret, "CALLSIGHT_JWT_SECRET")
	setInt(&cfg.Pipeline.MaxAttempts, "CALLSIGHT_PIPELINE_MAX_ATTEMPTS")
	setDuration(&cfg.Pipeline.StageTimeout, "CALLSIGHT_PIPELINE_STAGE_TIMEOUT")
	setString(&cfg.Redis.Address, "CALLSIGHT_REDIS_ADDRESS")
	setString(&cfg.Redis.Password, "CALLSIGHT_REDIS_PASSWORD")
	setString(&cfg.Elasticsearch.Address, "CALLSIGHT_ELASTICSEARCH_ADDRESS")
	setString(&cfg.Elasticsearch.Username, "CALLSIGHT_ELASTICSEARCH_USERNAME")
	setString(&cfg.Elasticsearch.Password, "CALLSIGHT_ELASTICSEARCH_PASSWORD")
	setString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.Model, "CALLSIGHT_ANTHROPIC_MODEL")
	setString(&cfg.Logging.Level, "CALLSIGHT_LOG_LEVEL")
	setBool(&cfg.Logging.Development, "CALLSIGHT_LOG_DEVELOPMENT")
}

func (c *Config) validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Service.Port)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("pipeline stage_timeout must be positive, got %s", c.Pipeline.StageTimeout)
	}
	if c.Pipeline.MinSimilarity < 0 || c.Pipeline.MinSimilarity > 1 {
		return fmt.Errorf("pipeline min_similarity must be in [0,1], got %v", c.Pipeline.MinSimilarity)
	}
	if c.Stream.ConnectionBuffer < 1 {
		return fmt.Errorf("stream connection_buffer must be at least 1, got %d", c.Stream.ConnectionBuffer)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
