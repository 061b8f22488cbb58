package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amaumene/sequelarr/internal/models"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// TMDB
	TMDBAPIKey        string
	TMDBRateLimit     int           // requests per window (default: 40)
	TMDBRateWindow    time.Duration // window size (default: 10s)
	EnrichCacheTTL    time.Duration // metadata cache TTL (default: 24h)
	EnrichTimeout     time.Duration // per-call budget (default: 10s)
	EnrichMaxRetries  uint64        // bounded retry count (default: 3)

	// Unsubscribe tokens
	UnsubscribeSecret string
	TokenMaxAge       time.Duration // default: 30 days

	// Dispatch
	SweepIntervalMinutes int // minutes between dispatch sweeps (default: 15)
	BackfillBatchSize    int // catalog entries per backfill pass (default: 50)

	// SMTP (email disabled when host is empty)
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromEmail    string
	FromName     string

	// Server
	ServerPort string
	PublicURL  string // base URL used in unsubscribe links

	// Paths
	DatabaseFile string // $CONFIG_DIR/sequelarr.db

	// Logging / tracing
	LogLevel       string
	TracingEnabled bool
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	viper.SetDefault("TMDB_RATE_LIMIT", 40)
	viper.SetDefault("TMDB_RATE_WINDOW_SECONDS", 10)
	viper.SetDefault("ENRICH_CACHE_TTL_HOURS", 24)
	viper.SetDefault("ENRICH_TIMEOUT_SECONDS", 10)
	viper.SetDefault("ENRICH_MAX_RETRIES", 3)
	viper.SetDefault("TOKEN_MAX_AGE_DAYS", 30)
	viper.SetDefault("SWEEP_INTERVAL_MINUTES", 15)
	viper.SetDefault("BACKFILL_BATCH_SIZE", 50)
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("FROM_NAME", "Sequelarr")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("TRACING_ENABLED", false)

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "sequelarr")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		TMDBAPIKey:       viper.GetString("TMDB_API_KEY"),
		TMDBRateLimit:    viper.GetInt("TMDB_RATE_LIMIT"),
		TMDBRateWindow:   time.Duration(viper.GetInt("TMDB_RATE_WINDOW_SECONDS")) * time.Second,
		EnrichCacheTTL:   time.Duration(viper.GetInt("ENRICH_CACHE_TTL_HOURS")) * time.Hour,
		EnrichTimeout:    time.Duration(viper.GetInt("ENRICH_TIMEOUT_SECONDS")) * time.Second,
		EnrichMaxRetries: viper.GetUint64("ENRICH_MAX_RETRIES"),

		UnsubscribeSecret: viper.GetString("UNSUBSCRIBE_SECRET"),
		TokenMaxAge:       time.Duration(viper.GetInt("TOKEN_MAX_AGE_DAYS")) * 24 * time.Hour,

		SweepIntervalMinutes: viper.GetInt("SWEEP_INTERVAL_MINUTES"),
		BackfillBatchSize:    viper.GetInt("BACKFILL_BATCH_SIZE"),

		SMTPHost:     viper.GetString("SMTP_HOST"),
		SMTPPort:     viper.GetInt("SMTP_PORT"),
		SMTPUser:     viper.GetString("SMTP_USER"),
		SMTPPassword: viper.GetString("SMTP_PASSWORD"),
		FromEmail:    viper.GetString("FROM_EMAIL"),
		FromName:     viper.GetString("FROM_NAME"),

		ServerPort: viper.GetString("SERVER_PORT"),
		PublicURL:  viper.GetString("PUBLIC_URL"),

		DatabaseFile: filepath.Join(configDir, "sequelarr.db"),

		LogLevel:       viper.GetString("LOG_LEVEL"),
		TracingEnabled: viper.GetBool("TRACING_ENABLED"),
	}

	if config.PublicURL == "" {
		config.PublicURL = "http://localhost:" + config.ServerPort
	}

	// Validate required fields
	if config.TMDBAPIKey == "" {
		return nil, fmt.Errorf("TMDB_API_KEY is required: %w", models.ErrConfiguration)
	}
	if config.UnsubscribeSecret == "" {
		return nil, fmt.Errorf("UNSUBSCRIBE_SECRET is required: %w", models.ErrConfiguration)
	}
	if config.SMTPHost != "" && config.FromEmail == "" {
		return nil, fmt.Errorf("FROM_EMAIL is required when SMTP_HOST is set: %w", models.ErrConfiguration)
	}

	return config, nil
}
