package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Port        string
	DatabaseURL string

	StoreBackend string
	RedisURL     string

	ArrivalRadiusMeters float64
	LivenessTTL         time.Duration
	SweepInterval       time.Duration

	SubscriberBuffer int
	SnapshotTimeout  time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	MetricsUser string
	MetricsPass string
	PprofSecret string

	LogLevel   string
	LogNoColor bool
}

func Default() Config {
	return Config{
		Port:                "3333",
		StoreBackend:        BackendMemory,
		RedisURL:            "redis://localhost:6379/0",
		ArrivalRadiusMeters: 100,
		LivenessTTL:         10 * time.Second,
		SweepInterval:       30 * time.Second,
		SubscriberBuffer:    16,
		SnapshotTimeout:     3 * time.Second,
		RateLimitRPS:        5,
		RateLimitBurst:      30,
		LogLevel:            "info",
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Default()
	var errs []error

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.StoreBackend = strings.ToLower(v)
	}
	if cfg.StoreBackend != BackendMemory && cfg.StoreBackend != BackendRedis {
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, cfg.StoreBackend))
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}

	cfg.ArrivalRadiusMeters = floatVar("ARRIVAL_RADIUS_METERS", cfg.ArrivalRadiusMeters, &errs)
	if cfg.ArrivalRadiusMeters <= 0 {
		errs = append(errs, errors.New("ARRIVAL_RADIUS_METERS must be positive"))
	}
	cfg.LivenessTTL = durationVar("LIVENESS_TTL", cfg.LivenessTTL, &errs)
	cfg.SweepInterval = durationVar("SWEEP_INTERVAL", cfg.SweepInterval, &errs)
	cfg.SnapshotTimeout = durationVar("SNAPSHOT_TIMEOUT", cfg.SnapshotTimeout, &errs)
	cfg.SubscriberBuffer = intVar("SUBSCRIBER_BUFFER", cfg.SubscriberBuffer, &errs)

	cfg.RateLimitRPS = floatVar("RATE_LIMIT_RPS", cfg.RateLimitRPS, &errs)
	cfg.RateLimitBurst = intVar("RATE_LIMIT_BURST", cfg.RateLimitBurst, &errs)

	cfg.MetricsUser = os.Getenv("METRICS_USER")
	cfg.MetricsPass = os.Getenv("METRICS_PASS")
	cfg.PprofSecret = os.Getenv("PPROF_SECRET")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.LogNoColor = os.Getenv("LOG_NO_COLOR") == "true"

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func floatVar(name string, def float64, errs *[]error) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	return f
}

func intVar(name string, def int, errs *[]error) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	return n
}

func durationVar(name string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return def
	}
	if d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be positive", name))
		return def
	}
	return d
}
