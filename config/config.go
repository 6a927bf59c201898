// Package config loads runtime settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	Database       DatabaseConfig
	HTTPAddr       string `validate:"required"`
	Ingest         IngestConfig
	Query          QueryConfig
	Log            LogConfig
	ThresholdsFile string
	Thresholds     *Thresholds `validate:"-"`
}

// DatabaseConfig selects the SQL driver and its connection parameters.
type DatabaseConfig struct {
	Driver       string `validate:"oneof=postgres sqlite3"`
	Host         string `validate:"required_if=Driver postgres"`
	Port         string `validate:"required_if=Driver postgres"`
	User         string
	Password     string
	Name         string `validate:"required_if=Driver postgres"`
	SSLMode      string
	Path         string `validate:"required_if=Driver sqlite3"`
	MaxOpenConns int    `validate:"gte=0"`
}

// DSN renders the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite3" {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// IngestConfig bounds spreadsheet ingestion.
type IngestConfig struct {
	BatchSize      int           `validate:"min=1,max=2000"`
	Timeout        time.Duration `validate:"min=1s"`
	MaxUploadBytes int64         `validate:"min=1"`
	MinYear        int           `validate:"min=1900"`
	MaxYear        int           `validate:"gtefield=MinYear"`
}

// QueryConfig tunes the public read side.
type QueryConfig struct {
	SessionnaireFloor float64       `validate:"gte=0,lte=20"`
	CacheTTL          time.Duration `validate:"gte=0"`
	RateLimitRPS      float64       `validate:"gte=0"`
	RateLimitBurst    int           `validate:"gte=0"`
}

// LogConfig selects the zap configuration.
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "examresults",
			SSLMode: "disable",
			Path:    "examresults.db",
		},
		HTTPAddr: ":8080",
		Ingest: IngestConfig{
			BatchSize:      500,
			Timeout:        10 * time.Minute,
			MaxUploadBytes: 20 << 20,
			MinYear:        2000,
			MaxYear:        2100,
		},
		Query: QueryConfig{
			SessionnaireFloor: 8,
			CacheTTL:          5 * time.Minute,
			RateLimitRPS:      20,
			RateLimitBurst:    40,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the given env files (".env" when none is given; a missing file is
// not an error), applies environment variables over Default, loads the
// thresholds file and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	cfg := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("DB_DRIVER", &cfg.Database.Driver)
	str("DB_HOST", &cfg.Database.Host)
	str("DB_PORT", &cfg.Database.Port)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Name)
	str("DB_SSLMODE", &cfg.Database.SSLMode)
	str("DB_PATH", &cfg.Database.Path)
	num("DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	str("HTTP_ADDR", &cfg.HTTPAddr)
	num("INGEST_BATCH_SIZE", &cfg.Ingest.BatchSize)
	duration("INGEST_TIMEOUT", &cfg.Ingest.Timeout)
	num("INGEST_MIN_YEAR", &cfg.Ingest.MinYear)
	num("INGEST_MAX_YEAR", &cfg.Ingest.MaxYear)
	var maxMB int
	num("MAX_UPLOAD_MB", &maxMB)
	if maxMB > 0 {
		cfg.Ingest.MaxUploadBytes = int64(maxMB) << 20
	}
	float("SESSIONNAIRE_FLOOR", &cfg.Query.SessionnaireFloor)
	duration("CACHE_TTL", &cfg.Query.CacheTTL)
	float("RATE_LIMIT_RPS", &cfg.Query.RateLimitRPS)
	num("RATE_LIMIT_BURST", &cfg.Query.RateLimitBurst)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("THRESHOLDS_FILE", &cfg.ThresholdsFile)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	thresholds, err := LoadThresholds(cfg.ThresholdsFile)
	if err != nil {
		return nil, err
	}
	cfg.Thresholds = thresholds
	return cfg, nil
}

// Validate checks the struct tags of the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
