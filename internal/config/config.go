package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// MyAnimeList
	MALClientID string `validate:"required"`
	MALAPIURL   string `validate:"required,url"`

	// Upstreams
	StreamAggregatorURL string `validate:"required,url"`
	MappingSourceURL    string `validate:"required,url"`
	MappingRefreshCron  string `validate:"required"`

	// Timeouts
	UpstreamTimeout time.Duration `validate:"gt=0"` // remote list-service and stream aggregator calls
	LookupTimeout   time.Duration `validate:"gt=0"` // local mapping store lookups

	// Caches
	MappingCacheSize  int           `validate:"min=1"`
	UpstreamCacheSize int           `validate:"min=1"`
	UserCacheTTL      time.Duration `validate:"gte=0"`

	// Server
	ServerPort         string `validate:"required,numeric"`
	RateLimitPerMinute int    `validate:"min=0"`            // 0 disables rate limiting
	AdminToken         string `validate:"omitempty,min=16"` // empty disables the admin API

	// Paths
	DatabaseFile string `validate:"required"` // $CONFIG_DIR/malsync.db

	// Logging
	LogLevel  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `validate:"oneof=text json"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	setDefaults(viper.GetViper())

	return fromViper(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("MAL_API_URL", "https://api.myanimelist.net/v2")
	v.SetDefault("STREAM_AGGREGATOR_URL", "https://torrentio.strem.fun")
	v.SetDefault("MAPPING_SOURCE_URL", "https://raw.githubusercontent.com/Fribb/anime-lists/master/anime-list-full.json")
	v.SetDefault("MAPPING_REFRESH_CRON", "0 4 * * *")
	v.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 10)
	v.SetDefault("LOOKUP_TIMEOUT_MS", 500)
	v.SetDefault("MAPPING_CACHE_SIZE", 50000)
	v.SetDefault("UPSTREAM_CACHE_SIZE", 20000)
	v.SetDefault("USER_CACHE_TTL_SECONDS", 60)
	v.SetDefault("SERVER_PORT", "5000")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

func fromViper(v *viper.Viper) (*Config, error) {
	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := v.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "malsync")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		// MyAnimeList
		MALClientID: v.GetString("MAL_CLIENT_ID"),
		MALAPIURL:   strings.TrimRight(v.GetString("MAL_API_URL"), "/"),

		// Upstreams
		StreamAggregatorURL: strings.TrimRight(v.GetString("STREAM_AGGREGATOR_URL"), "/"),
		MappingSourceURL:    v.GetString("MAPPING_SOURCE_URL"),
		MappingRefreshCron:  v.GetString("MAPPING_REFRESH_CRON"),

		// Timeouts
		UpstreamTimeout: time.Duration(v.GetInt("UPSTREAM_TIMEOUT_SECONDS")) * time.Second,
		LookupTimeout:   time.Duration(v.GetInt("LOOKUP_TIMEOUT_MS")) * time.Millisecond,

		// Caches
		MappingCacheSize:  v.GetInt("MAPPING_CACHE_SIZE"),
		UpstreamCacheSize: v.GetInt("UPSTREAM_CACHE_SIZE"),
		UserCacheTTL:      time.Duration(v.GetInt("USER_CACHE_TTL_SECONDS")) * time.Second,

		// Server
		ServerPort:         v.GetString("SERVER_PORT"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		AdminToken:         v.GetString("ADMIN_TOKEN"),

		// Paths
		DatabaseFile: filepath.Join(configDir, "malsync.db"),

		// Logging
		LogLevel:  strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks required fields and ranges, reporting the env key at fault
func validate(config *Config) error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(config)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := envKeys[fe.Field()]
		if key == "" {
			key = fe.Field()
		}
		if fe.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("%s is required", key))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", key, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

var envKeys = map[string]string{
	"MALClientID":         "MAL_CLIENT_ID",
	"MALAPIURL":           "MAL_API_URL",
	"StreamAggregatorURL": "STREAM_AGGREGATOR_URL",
	"MappingSourceURL":    "MAPPING_SOURCE_URL",
	"MappingRefreshCron":  "MAPPING_REFRESH_CRON",
	"UpstreamTimeout":     "UPSTREAM_TIMEOUT_SECONDS",
	"LookupTimeout":       "LOOKUP_TIMEOUT_MS",
	"MappingCacheSize":    "MAPPING_CACHE_SIZE",
	"UpstreamCacheSize":   "UPSTREAM_CACHE_SIZE",
	"UserCacheTTL":        "USER_CACHE_TTL_SECONDS",
	"ServerPort":          "SERVER_PORT",
	"RateLimitPerMinute":  "RATE_LIMIT_PER_MINUTE",
	"AdminToken":          "ADMIN_TOKEN",
	"LogLevel":            "LOG_LEVEL",
	"LogFormat":           "LOG_FORMAT",
}
