package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses key as a time.Duration ("15s", "500ms").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overlays the REVIEWS_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("REVIEWS_URL"); ok {
		c.URL = value
	}
	if value, ok := EnvString("REVIEWS_PAGES"); ok {
		c.Pages = value
	}
	if value, ok := EnvString("REVIEWS_CACHE_DIR"); ok {
		c.CacheRoot = value
	}
	if value, ok := EnvString("REVIEWS_EXPORT_DIR"); ok {
		c.ExportDir = value
	}
	if value, ok, err := EnvDuration("REVIEWS_TIMEOUT"); err != nil {
		return &ConfigError{Field: "timeout", Err: err}
	} else if ok {
		c.Timeout = value
	}
	if value, ok, err := EnvInt("REVIEWS_MAX_RETRIES"); err != nil {
		return &ConfigError{Field: "max_retries", Err: err}
	} else if ok {
		c.MaxRetries = value
	}
	return nil
}
