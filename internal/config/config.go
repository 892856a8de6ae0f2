package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port           string
	HTTPTimeout    time.Duration
	MaxUploadBytes int64
	// Mutating requests per client IP per minute
	RateLimitPerMinute int

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// KPI report cache
	ReportCacheSize int
	ReportCacheTTL  time.Duration

	// AMQP (optional; webhook sales are recorded inline without it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Webhook verification
	HotmartHottok       string
	KiwifyWebhookSecret string

	// Meta Ads sync
	MetaAccessToken      string
	MetaAdAccounts       string
	MetaAPIBaseURL       string
	MetaSyncInterval     time.Duration
	MetaSyncLookbackDays int
	MetaSyncConcurrency  int

	// Spreadsheet imports: "" (disabled), "google" or "dir"
	SheetsSource string
	SheetsDir    string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 20<<20),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/painel.db"),

		ReportCacheSize: getEnvInt("REPORT_CACHE_SIZE", 500),
		ReportCacheTTL:  getEnvDuration("REPORT_CACHE_TTL", 10*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "painel"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "webhook_sales"),

		HotmartHottok:       getEnv("HOTMART_HOTTOK", ""),
		KiwifyWebhookSecret: getEnv("KIWIFY_WEBHOOK_SECRET", ""),

		MetaAccessToken:      getEnv("META_ACCESS_TOKEN", ""),
		MetaAdAccounts:       getEnv("META_AD_ACCOUNTS", ""),
		MetaAPIBaseURL:       getEnv("META_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		MetaSyncInterval:     getEnvDuration("META_SYNC_INTERVAL", time.Hour),
		MetaSyncLookbackDays: getEnvInt("META_SYNC_LOOKBACK_DAYS", 7),
		MetaSyncConcurrency:  getEnvInt("META_SYNC_CONCURRENCY", 4),

		SheetsSource: getEnv("SHEETS_SOURCE", ""),
		SheetsDir:    getEnv("SHEETS_DIR", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// MetaSyncEnabled reports whether the worker should pull ad spend.
func (c *Config) MetaSyncEnabled() bool {
	return c.MetaAccessToken != "" && c.MetaAdAccounts != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	}
	if c.MaxUploadBytes < 1024 || c.MaxUploadBytes > 1<<30 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be between 1KiB and 1GiB", c.MaxUploadBytes))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	validBackends := []string{"memory", "sqlite"}
	if !oneOf(c.DataBackend, validBackends) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.ReportCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be at least 1", c.ReportCacheSize))
	}
	if c.ReportCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must be positive", c.ReportCacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.MetaAdAccounts != "" {
		for _, pair := range strings.Split(c.MetaAdAccounts, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			project, account, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(project) == "" || strings.TrimSpace(account) == "" {
				errors = append(errors, fmt.Sprintf("invalid META_AD_ACCOUNTS entry '%s': expected project=account", pair))
			}
		}
		if c.MetaAccessToken == "" {
			errors = append(errors, "META_ACCESS_TOKEN is required when META_AD_ACCOUNTS is set")
		}
	}
	if c.MetaSyncEnabled() {
		if u, err := url.Parse(c.MetaAPIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid Meta API base URL '%s'", c.MetaAPIBaseURL))
		}
		if c.MetaSyncInterval < time.Minute {
			errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 minute", c.MetaSyncInterval))
		} else if c.MetaSyncInterval > 24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.MetaSyncInterval))
		}
		if c.MetaSyncLookbackDays < 1 || c.MetaSyncLookbackDays > 90 {
			errors = append(errors, fmt.Sprintf("invalid sync lookback %d: must be between 1 and 90 days", c.MetaSyncLookbackDays))
		}
		if c.MetaSyncConcurrency < 1 || c.MetaSyncConcurrency > 32 {
			errors = append(errors, fmt.Sprintf("invalid sync concurrency %d: must be between 1 and 32", c.MetaSyncConcurrency))
		}
	}

	switch c.SheetsSource {
	case "", "google":
	case "dir":
		if c.SheetsDir == "" {
			errors = append(errors, "SHEETS_DIR is required when SHEETS_SOURCE is 'dir'")
		} else if info, err := os.Stat(c.SheetsDir); err != nil || !info.IsDir() {
			errors = append(errors, fmt.Sprintf("sheets directory does not exist: %s", c.SheetsDir))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid sheets source '%s': must be empty, 'google' or 'dir'", c.SheetsSource))
	}

	if !oneOf(strings.ToLower(c.LogLevel), []string{"debug", "info", "warn", "error"}) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	if !oneOf(strings.ToLower(c.LogFormat), []string{"text", "json"}) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
