package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Search   SearchConfig   `mapstructure:"search"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Name               string `mapstructure:"name"`
	SSLMode            string `mapstructure:"sslmode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds the job queue configuration.
type RedisConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	QueueName      string        `mapstructure:"queue_name"`
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout"`
	JobTTL         time.Duration `mapstructure:"job_ttl"`
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	SignedURLExpiry time.Duration `mapstructure:"signed_url_expiry"`
	// MaxFileSize caps a single uploaded image, in bytes.
	MaxFileSize int64 `mapstructure:"max_file_size"`
	// AllowedContentTypes lists the MIME types accepted for upload.
	AllowedContentTypes []string `mapstructure:"allowed_content_types"`
}

// OpenAIConfig holds the AI processing client configuration.
type OpenAIConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	VisionModel         string        `mapstructure:"vision_model"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	EmbeddingDimensions int           `mapstructure:"embedding_dimensions"`
	MaxRetries          int           `mapstructure:"max_retries"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Concurrency        int           `mapstructure:"concurrency"`
	JobTimeout         time.Duration `mapstructure:"job_timeout"`
	MaxJobRetries      int           `mapstructure:"max_job_retries"`
	MaxBatchRetries    int           `mapstructure:"max_batch_retries"`
	ReconcileInterval  time.Duration `mapstructure:"reconcile_interval"`
	StaleThreshold     time.Duration `mapstructure:"stale_threshold"`
	ReconcileSweepSize int           `mapstructure:"reconcile_sweep_size"`
}

// SearchConfig holds vector search configuration.
type SearchConfig struct {
	// DefaultMethod ranks searches that do not name a method themselves.
	DefaultMethod string `mapstructure:"default_method"`
}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) *Config {
	var config Config

	// Unmarshal configuration
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}

	return &config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Required fields validation
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}

	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}

	if c.Redis.QueueName == "" {
		return errors.New("redis.queue_name is required")
	}

	// The AI client cannot run without a key in production
	if c.App.Environment == "production" {
		if c.OpenAI.APIKey == "" {
			return errors.New("openai.api_key is required in production")
		}
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required in production")
		}
	}

	// Validate numeric ranges
	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}

	if c.Worker.MaxJobRetries < 0 {
		return errors.New("worker.max_job_retries cannot be negative")
	}

	if c.Worker.MaxBatchRetries < 0 {
		return errors.New("worker.max_batch_retries cannot be negative")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return errors.New("redis.port must be between 1 and 65535")
	}

	if c.Redis.DequeueTimeout <= 0 {
		return errors.New("redis.dequeue_timeout must be positive")
	}

	if c.OpenAI.EmbeddingDimensions < 1 {
		return errors.New("openai.embedding_dimensions must be at least 1")
	}

	switch c.Search.DefaultMethod {
	case "", "ocr", "description", "labels":
	default:
		return errors.New("search.default_method must be one of: ocr, description, labels")
	}

	return nil
}
