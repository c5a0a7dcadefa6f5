package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string // NAVGRAPH_DATABASE_URL (required unless TreeDir is set)
	TreeDir     string // NAVGRAPH_TREE_DIR (read-only TOML tree directory instead of Postgres)
	GRPCAddr    string // NAVGRAPH_GRPC_ADDR (default ":9090")
	HTTPAddr    string // NAVGRAPH_HTTP_ADDR (default ":8080")
	NATSURL     string // NAVGRAPH_NATS_URL (optional, empty = no events)
	AuthToken   string // NAVGRAPH_AUTH_TOKEN (optional, empty = auth disabled)

	// Cache settings
	CacheMaxAge   time.Duration // NAVGRAPH_CACHE_MAX_AGE (default 1h)
	SweepInterval time.Duration // NAVGRAPH_SWEEP_INTERVAL (default 1h; 0 = disabled)

	// Execution settings
	StepTimeout   time.Duration // NAVGRAPH_STEP_TIMEOUT (default 30s)
	ExecutorURL   string        // NAVGRAPH_EXECUTOR_URL (HTTP device agent; empty = shell)
	ExecutorDir   string        // NAVGRAPH_EXECUTOR_DIR (working directory for shell actions)
	ExecutorToken string        // NAVGRAPH_EXECUTOR_TOKEN (bearer token for the HTTP device agent)

	// Report settings
	ReportS3Bucket   string // NAVGRAPH_REPORT_S3_BUCKET (enables report upload when set)
	ReportS3Prefix   string // NAVGRAPH_REPORT_S3_PREFIX (default "navgraph/reports")
	ReportS3Region   string // NAVGRAPH_REPORT_S3_REGION (default "us-east-1")
	ReportS3Endpoint string // NAVGRAPH_REPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ReportDir        string // NAVGRAPH_REPORT_DIR (local report directory, used when no bucket is set)

	// Run tracking
	RunRetention time.Duration // NAVGRAPH_RUN_RETENTION (default 24h)

	// Logging
	LogLevel  slog.Level // NAVGRAPH_LOG_LEVEL (debug, info, warn, error; default info)
	LogFormat string     // NAVGRAPH_LOG_FORMAT (text or json; default text)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:      os.Getenv("NAVGRAPH_DATABASE_URL"),
		TreeDir:          os.Getenv("NAVGRAPH_TREE_DIR"),
		GRPCAddr:         envOrDefault("NAVGRAPH_GRPC_ADDR", ":9090"),
		HTTPAddr:         envOrDefault("NAVGRAPH_HTTP_ADDR", ":8080"),
		NATSURL:          os.Getenv("NAVGRAPH_NATS_URL"),
		AuthToken:        os.Getenv("NAVGRAPH_AUTH_TOKEN"),
		ExecutorURL:      os.Getenv("NAVGRAPH_EXECUTOR_URL"),
		ExecutorDir:      os.Getenv("NAVGRAPH_EXECUTOR_DIR"),
		ExecutorToken:    os.Getenv("NAVGRAPH_EXECUTOR_TOKEN"),
		ReportS3Bucket:   os.Getenv("NAVGRAPH_REPORT_S3_BUCKET"),
		ReportS3Prefix:   envOrDefault("NAVGRAPH_REPORT_S3_PREFIX", "navgraph/reports"),
		ReportS3Region:   envOrDefault("NAVGRAPH_REPORT_S3_REGION", "us-east-1"),
		ReportS3Endpoint: os.Getenv("NAVGRAPH_REPORT_S3_ENDPOINT"),
		ReportDir:        os.Getenv("NAVGRAPH_REPORT_DIR"),
		LogFormat:        strings.ToLower(envOrDefault("NAVGRAPH_LOG_FORMAT", "text")),
	}
	if c.DatabaseURL == "" && c.TreeDir == "" {
		return nil, fmt.Errorf("NAVGRAPH_DATABASE_URL is required (or set NAVGRAPH_TREE_DIR)")
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"NAVGRAPH_CACHE_MAX_AGE", "1h", &c.CacheMaxAge},
		{"NAVGRAPH_SWEEP_INTERVAL", "1h", &c.SweepInterval},
		{"NAVGRAPH_STEP_TIMEOUT", "30s", &c.StepTimeout},
		{"NAVGRAPH_RUN_RETENTION", "24h", &c.RunRetention},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(envOrDefault(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s: must not be negative", d.key)
		}
		*d.dst = v
	}
	if c.StepTimeout == 0 {
		return nil, fmt.Errorf("NAVGRAPH_STEP_TIMEOUT: must be positive")
	}

	level, err := ParseLogLevel(envOrDefault("NAVGRAPH_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	c.LogLevel = level

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return nil, fmt.Errorf("NAVGRAPH_LOG_FORMAT: unknown format %q", c.LogFormat)
	}

	return c, nil
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("NAVGRAPH_LOG_LEVEL: unknown level %q", s)
}

// NewLogger builds the process logger described by c.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
