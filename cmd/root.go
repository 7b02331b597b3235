package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/shini559/Gaming-advisor-sub000/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gameadvisor",
	Short: "Batch image processing for game rulebooks",
	Long: `GameAdvisor ingests batches of game rulebook images, processes them
asynchronously, and serves multi-modal similarity search over the results.

The system supports:
- Batch image upload with per-file acceptance and object storage
- Durable job queueing and consumption backed by Redis
- OCR, visual description, and label extraction via OpenAI vision models
- Vector storage and cosine similarity search with PostgreSQL/pgvector
- Batch lifecycle events published over NATS JetStream`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	// Bind flags to viper
	if err := viper.BindPFlag("app.log_level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("app.log_format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Set config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("GAMEADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; use defaults and environment
	}

	mergeEnvironmentOverlay(v)

	// Load configuration
	cfg = config.New(v)
}

// mergeEnvironmentOverlay layers config.<environment>.yaml over the base
// config when one exists, so per-environment files only carry overrides.
// Skipped when --config points at an explicit file.
func mergeEnvironmentOverlay(v *viper.Viper) {
	if cfgFile != "" {
		return
	}

	env := v.GetString("app.environment")
	if env == "" {
		return
	}

	v.SetConfigName("config." + env)
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error merging %s config file: %v\n", env, err)
		}
	}
}

func setDefaults(v *viper.Viper) {
	// Application defaults
	v.SetDefault("app.name", "gameadvisor")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gameadvisor")
	v.SetDefault("database.name", "gameadvisor")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)

	// Redis job queue defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue_name", "image_processing_queue")
	v.SetDefault("redis.dequeue_timeout", "5s")
	v.SetDefault("redis.job_ttl", "168h")

	// Object storage defaults
	v.SetDefault("storage.signed_url_expiry", "15m")
	v.SetDefault("storage.max_file_size", 10485760)
	v.SetDefault("storage.allowed_content_types", []string{"image/jpeg", "image/png", "image/webp"})

	// OpenAI defaults
	v.SetDefault("openai.vision_model", "gpt-4o")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.embedding_dimensions", 1536)
	v.SetDefault("openai.max_retries", 3)
	v.SetDefault("openai.timeout", "60s")

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Worker defaults
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.job_timeout", "5m")
	v.SetDefault("worker.max_job_retries", 3)
	v.SetDefault("worker.max_batch_retries", 3)
	v.SetDefault("worker.reconcile_interval", "10m")
	v.SetDefault("worker.stale_threshold", "15m")
	v.SetDefault("worker.reconcile_sweep_size", 100)

	// Search defaults
	v.SetDefault("search.default_method", "ocr")
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}
