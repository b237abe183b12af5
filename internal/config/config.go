// Package config loads runtime configuration from environment
// variables via viper, following the defaults-then-override pattern the
// teacher's backend config loader uses.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the full set of environment-driven settings the split
// worker and operator CLI depend on.
type Config struct {
	RedisURL string

	MinIOEndpoint  string
	MinIOPort      int
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool

	UploadBucket  string
	ResultsBucket string

	WorkerConcurrency int
	MaxFileSizeBytes  int64

	AdminPassword       string
	JobRetentionHours   int
	AllowedOrigins      []string
	RateLimitEnabled    bool

	LogLevel string
}

// Load reads configuration from the environment, applying the same
// defaults-then-env-override sequence as the teacher's backend loader.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("minio_endpoint", "localhost")
	v.SetDefault("minio_port", 9000)
	v.SetDefault("minio_access_key", "minioadmin")
	v.SetDefault("minio_secret_key", "minioadmin")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("upload_bucket", "uploads")
	v.SetDefault("results_bucket", "results")
	v.SetDefault("worker_concurrency", 2)
	v.SetDefault("max_file_size", "150MB")
	v.SetDefault("admin_password", "")
	v.SetDefault("job_retention_hours", 48)
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("log_level", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{
		"redis_url", "minio_endpoint", "minio_port", "minio_access_key", "minio_secret_key",
		"minio_use_ssl", "upload_bucket", "results_bucket", "worker_concurrency", "max_file_size",
		"admin_password", "job_retention_hours", "allowed_origins", "rate_limit_enabled", "log_level",
	} {
		_ = v.BindEnv(key)
	}

	maxFileSize, err := parseByteSize(v.GetString("max_file_size"))
	if err != nil {
		return nil, fmt.Errorf("config: parsing MAX_FILE_SIZE: %w", err)
	}

	cfg := &Config{
		RedisURL:          v.GetString("redis_url"),
		MinIOEndpoint:     v.GetString("minio_endpoint"),
		MinIOPort:         v.GetInt("minio_port"),
		MinIOAccessKey:    v.GetString("minio_access_key"),
		MinIOSecretKey:    v.GetString("minio_secret_key"),
		MinIOUseSSL:       v.GetBool("minio_use_ssl"),
		UploadBucket:      v.GetString("upload_bucket"),
		ResultsBucket:     v.GetString("results_bucket"),
		WorkerConcurrency: v.GetInt("worker_concurrency"),
		MaxFileSizeBytes:  maxFileSize,
		AdminPassword:     v.GetString("admin_password"),
		JobRetentionHours: v.GetInt("job_retention_hours"),
		AllowedOrigins:    strings.Split(v.GetString("allowed_origins"), ","),
		RateLimitEnabled:  v.GetBool("rate_limit_enabled"),
		LogLevel:          v.GetString("log_level"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(c *Config) error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("config: WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.MinIOPort <= 0 || c.MinIOPort > 65535 {
		return fmt.Errorf("config: invalid MINIO_PORT %d", c.MinIOPort)
	}
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("config: MAX_FILE_SIZE must be positive")
	}
	if c.JobRetentionHours < 1 {
		return fmt.Errorf("config: JOB_RETENTION_HOURS must be at least 1")
	}
	return nil
}

// parseByteSize parses strings like "150MB", "512KB", "10GB" into a
// byte count.
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	units := []struct {
		suffix string
		factor int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numPart := strings.TrimSuffix(s, u.suffix)
			n, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", s, err)
			}
			return int64(n * float64(u.factor)), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}

// NewLogger builds a zap production logger at the configured level,
// falling back to info when the level does not parse.
func (c *Config) NewLogger() (*zap.Logger, error) {
	var level zap.AtomicLevel
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	return zc.Build()
}
