package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	LogLevel  string
	LogFormat string

	// Remote inventory API.
	APIKey     string
	APIBaseURL string

	// Refresh behaviour.
	ScanInterval time.Duration
	PageLimit    int
	PageDelay    time.Duration
	BulkDelay    time.Duration
}

const (
	DefaultBaseURL      = "https://api.simbase.com/v2"
	DefaultScanInterval = 5 * time.Minute
	DefaultPageLimit    = 100
	DefaultPageDelay    = 100 * time.Millisecond
	DefaultBulkDelay    = 100 * time.Millisecond
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "simwatch"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "json"),
		APIKey:       strings.TrimSpace(getenv("SIMBASE_API_KEY", "")),
		APIBaseURL:   strings.TrimRight(getenv("SIMBASE_BASE_URL", DefaultBaseURL), "/"),
		ScanInterval: getenvDuration("SCAN_INTERVAL", DefaultScanInterval),
		PageLimit:    getenvInt("PAGE_LIMIT", DefaultPageLimit),
		PageDelay:    getenvDuration("PAGE_DELAY", DefaultPageDelay),
		BulkDelay:    getenvDuration("BULK_DELAY", DefaultBulkDelay),
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewOptionsHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	// Accept either a Go duration ("5m") or plain seconds ("300").
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
