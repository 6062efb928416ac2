package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the run configuration. It is built once at startup and not
// mutated after Validate succeeds.
type Config struct {
	URL              string        `yaml:"url"`
	Pages            string        `yaml:"pages"`
	Live             bool          `yaml:"live"`
	SaveCache        bool          `yaml:"save_cache"`
	Export           bool          `yaml:"export"`
	CacheRoot        string        `yaml:"cache_root"`
	ExportDir        string        `yaml:"export_dir"`
	OutputFormat     string        `yaml:"output_format"` // csv, json, or dual
	FetchBackend     string        `yaml:"fetch_backend"` // colly or resty
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"` // -1 retries forever
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	Delay            time.Duration `yaml:"delay"`
	UserAgent        string        `yaml:"user_agent"`
	CacheMemoryPages int           `yaml:"cache_memory_pages"`
	MetricsFile      string        `yaml:"metrics_file"`
	Verbose          bool          `yaml:"verbose"`
}

// DefaultConfig returns the settings of the recommended two-step workflow:
// populate the cache first, export from it afterwards.
func DefaultConfig() *Config {
	return &Config{
		URL:              "https://www.tripadvisor.com/Restaurant_Review-g154913-d683068-Reviews-Caesar_s_Steak_House_Lounge-Calgary_Alberta.html",
		Pages:            "last max",
		Live:             false,
		SaveCache:        true,
		Export:           true,
		CacheRoot:        "tripadvisor-html",
		ExportDir:        "data",
		OutputFormat:     "csv",
		FetchBackend:     "colly",
		Timeout:          15 * time.Second,
		MaxRetries:       5,
		RetryBackoff:     500 * time.Millisecond,
		RetryBackoffMax:  30 * time.Second,
		Delay:            2 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		CacheMemoryPages: 32,
		MetricsFile:      "",
		Verbose:          false,
	}
}

// ConfigError reports an unusable configuration value.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.URL == "" {
		return invalid("url", "target URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.URL)
	if err != nil {
		return &ConfigError{Field: "url", Err: fmt.Errorf("invalid target URL: %w", err)}
	}
	if parsedURL.Host == "" {
		return invalid("url", "target URL must include a host")
	}
	if !strings.Contains(c.URL, "-Reviews-") {
		return invalid("url", "target URL must contain a -Reviews- segment")
	}

	if !c.Live && !c.SaveCache && !c.Export {
		return invalid("mode", "nothing to do: enable live, save_cache or export")
	}
	if c.CacheRoot == "" && (c.SaveCache || !c.Live) {
		return invalid("cache_root", "cache root cannot be empty")
	}
	if c.Export && c.ExportDir == "" {
		return invalid("export_dir", "export directory cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return invalid("output_format", "output format must be csv, json, or dual")
	}
	if c.FetchBackend != "colly" && c.FetchBackend != "resty" {
		return invalid("fetch_backend", "fetch backend must be colly or resty")
	}
	if c.Timeout <= 0 {
		return invalid("timeout", "timeout must be positive")
	}
	if c.MaxRetries < -1 {
		return invalid("max_retries", "max retries must be -1 (unbounded) or greater")
	}
	if c.RetryBackoff < 0 {
		return invalid("retry_backoff", "retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return invalid("retry_backoff_max", "retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return invalid("retry_backoff", "retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.Delay < 0 {
		return invalid("delay", "delay cannot be negative")
	}
	if c.UserAgent == "" {
		return invalid("user_agent", "user agent cannot be empty")
	}
	if c.CacheMemoryPages < 0 {
		return invalid("cache_memory_pages", "cache memory pages cannot be negative")
	}

	return nil
}
