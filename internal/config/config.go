package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultEnv              = "development"
	defaultHTTPHost         = "0.0.0.0"
	defaultHTTPPort         = 8080
	defaultSweepIntervalMS  = 500
	defaultSweepMaxRetries  = 3
	defaultSweepBackoffMS   = 25
	defaultSubscriberBuffer = 64
	defaultRateLimitPerSec  = 10
	defaultRateLimitBurst   = 20
)

// Config keeps the runtime configuration for the service.
type Config struct {
	Env      string
	HTTP     HTTPConfig
	Postgres PostgresConfig
	Sweep    SweepConfig
	Events   EventsConfig
	Bidding  BiddingConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// PostgresConfig stores database connection parameters. An empty DSN selects
// the in-memory store.
type PostgresConfig struct {
	DSN string
}

// SweepConfig controls the scheduler that drives time-based transitions.
type SweepConfig struct {
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// EventsConfig controls the event hub.
type EventsConfig struct {
	SubscriberBuffer int
}

// BiddingConfig controls the admission gate and the bid endpoint rate limit.
type BiddingConfig struct {
	FirstBidStrict  bool
	RateLimitPerSec int
	RateLimitBurst  int
}

// Load builds Config from environment variables.
func Load() (*Config, error) {
	host := getString("HTTP_HOST", defaultHTTPHost)
	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}

	sweepInterval, err := getInt("SWEEP_INTERVAL_MS", defaultSweepIntervalMS)
	if err != nil {
		return nil, fmt.Errorf("parse SWEEP_INTERVAL_MS: %w", err)
	}
	sweepRetries, err := getInt("SWEEP_MAX_RETRIES", defaultSweepMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("parse SWEEP_MAX_RETRIES: %w", err)
	}
	sweepBackoff, err := getInt("SWEEP_RETRY_BACKOFF_MS", defaultSweepBackoffMS)
	if err != nil {
		return nil, fmt.Errorf("parse SWEEP_RETRY_BACKOFF_MS: %w", err)
	}

	subscriberBuffer, err := getInt("EVENT_SUBSCRIBER_BUFFER", defaultSubscriberBuffer)
	if err != nil {
		return nil, fmt.Errorf("parse EVENT_SUBSCRIBER_BUFFER: %w", err)
	}

	firstBidStrict, err := getBool("FIRST_BID_STRICT", false)
	if err != nil {
		return nil, fmt.Errorf("parse FIRST_BID_STRICT: %w", err)
	}
	ratePerSec, err := getInt("RATE_LIMIT_PER_SEC", defaultRateLimitPerSec)
	if err != nil {
		return nil, fmt.Errorf("parse RATE_LIMIT_PER_SEC: %w", err)
	}
	rateBurst, err := getInt("RATE_LIMIT_BURST", defaultRateLimitBurst)
	if err != nil {
		return nil, fmt.Errorf("parse RATE_LIMIT_BURST: %w", err)
	}

	return &Config{
		Env:  getString("APP_ENV", defaultEnv),
		HTTP: HTTPConfig{Host: host, Port: port},
		Postgres: PostgresConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		Sweep: SweepConfig{
			Interval:     time.Duration(sweepInterval) * time.Millisecond,
			MaxRetries:   sweepRetries,
			RetryBackoff: time.Duration(sweepBackoff) * time.Millisecond,
		},
		Events: EventsConfig{
			SubscriberBuffer: subscriberBuffer,
		},
		Bidding: BiddingConfig{
			FirstBidStrict:  firstBidStrict,
			RateLimitPerSec: ratePerSec,
			RateLimitBurst:  rateBurst,
		},
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("convert %s value %q to bool: %w", key, value, err)
	}
	return parsed, nil
}
