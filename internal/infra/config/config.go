package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values loaded from
// environment variables.
type Config struct {
	Env             string
	APIBaseURL      string
	SessionToken    string
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	PageSize        int
	TypingTTL       time.Duration
	TypingInterval  time.Duration
	BottomThreshold int
	RetryBackoff    []time.Duration
	StatePath       string
}

// Load parses configuration from the current environment. A .env file in
// the working directory is read first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:          getEnv("APP_ENV", "dev"),
		APIBaseURL:   strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000/api"), "/"),
		SessionToken: os.Getenv("SESSION_TOKEN"),
		StatePath:    getEnv("STATE_PATH", ""),
	}

	timeout, err := parseDurationEnv("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout = timeout

	poll, err := parseDurationEnv("LIST_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval = poll

	typingTTL, err := parseDurationEnv("TYPING_TTL", 1500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.TypingTTL = typingTTL

	typingInterval, err := parseDurationEnv("TYPING_INTERVAL", 1500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.TypingInterval = typingInterval

	pageSize, err := parseIntEnv("PAGE_SIZE", 20)
	if err != nil {
		return Config{}, err
	}
	cfg.PageSize = pageSize

	threshold, err := parseIntEnv("BOTTOM_THRESHOLD", 80)
	if err != nil {
		return Config{}, err
	}
	cfg.BottomThreshold = threshold

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	if cfg.SessionToken == "" {
		return Config{}, fmt.Errorf("SESSION_TOKEN is required")
	}
	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		return Config{}, fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", cfg.APIBaseURL)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &v); err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s integer: %q", key, raw)
	}
	return v, nil
}
