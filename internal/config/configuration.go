package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT"`

	// Database Configuration
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Auth Configuration
	AuthSecret string `mapstructure:"AUTH_SECRET" validate:"required"`

	// Asset storage Configuration
	StorageBackend   string `mapstructure:"STORAGE_BACKEND" validate:"oneof=fs s3"`
	StorageFSRoot    string `mapstructure:"STORAGE_FS_ROOT"`
	StorageS3Bucket  string `mapstructure:"STORAGE_S3_BUCKET" validate:"required_if=StorageBackend s3"`
	StorageS3Region  string `mapstructure:"STORAGE_S3_REGION"`
	SignedURLTTLSecs int    `mapstructure:"SIGNED_URL_TTL_SECONDS" validate:"gt=0"`

	// Upload limits
	UploadMaxBytes int64 `mapstructure:"UPLOAD_MAX_BYTES" validate:"gt=0"`

	// Processing pipeline Configuration
	WorkerCount        int `mapstructure:"WORKER_COUNT" validate:"gt=0"`
	JobLeaseSeconds    int `mapstructure:"JOB_LEASE_SECONDS" validate:"gt=0"`
	JobMaxRetries      int `mapstructure:"JOB_MAX_RETRIES" validate:"gte=0"`
	JobBackoffBaseSecs int `mapstructure:"JOB_BACKOFF_BASE_SECONDS" validate:"gt=0"`

	// Feed ranking Configuration. Weights are relative, not required to
	// sum to 1. The half-life default sits in the middle of the tuning
	// band; exact values are a calibration concern, not a code one.
	FeedWeightEngagement float64 `mapstructure:"FEED_WEIGHT_ENGAGEMENT" validate:"gte=0"`
	FeedWeightRecency    float64 `mapstructure:"FEED_WEIGHT_RECENCY" validate:"gte=0"`
	FeedWeightAffinity   float64 `mapstructure:"FEED_WEIGHT_AFFINITY" validate:"gte=0"`
	FeedHalfLifeHours    float64 `mapstructure:"FEED_HALF_LIFE_HOURS" validate:"gt=0"`
	FeedPageSizeMax      int     `mapstructure:"FEED_PAGE_SIZE_MAX" validate:"gt=0"`
	FeedFollowedLimit    int     `mapstructure:"FEED_FOLLOWED_LIMIT" validate:"gt=0"`
	FeedDiscoveryLimit   int     `mapstructure:"FEED_DISCOVERY_LIMIT" validate:"gt=0"`
	FeedFetchTimeoutMS   int     `mapstructure:"FEED_FETCH_TIMEOUT_MS" validate:"gt=0"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag != "" {
			viper.BindEnv(tag)
		}

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && tag == "" {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("STORAGE_BACKEND", "fs")
	viper.SetDefault("STORAGE_FS_ROOT", "/media")
	viper.SetDefault("SIGNED_URL_TTL_SECONDS", 3600)
	viper.SetDefault("UPLOAD_MAX_BYTES", 512*1024*1024)
	viper.SetDefault("WORKER_COUNT", 2)
	viper.SetDefault("JOB_LEASE_SECONDS", 300)
	viper.SetDefault("JOB_MAX_RETRIES", 3)
	viper.SetDefault("JOB_BACKOFF_BASE_SECONDS", 5)
	viper.SetDefault("FEED_WEIGHT_ENGAGEMENT", 0.5)
	viper.SetDefault("FEED_WEIGHT_RECENCY", 0.3)
	viper.SetDefault("FEED_WEIGHT_AFFINITY", 0.2)
	viper.SetDefault("FEED_HALF_LIFE_HOURS", 48.0)
	viper.SetDefault("FEED_PAGE_SIZE_MAX", 50)
	viper.SetDefault("FEED_FOLLOWED_LIMIT", 300)
	viper.SetDefault("FEED_DISCOVERY_LIMIT", 200)
	viper.SetDefault("FEED_FETCH_TIMEOUT_MS", 500)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration",
		"webserver_port", cfg.WebServerPort,
		"storage_backend", cfg.StorageBackend,
		"worker_count", cfg.WorkerCount)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
