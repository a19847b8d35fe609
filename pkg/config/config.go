// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Authentication
	APIPassword string

	// Egress proxy pool
	ProxyPool []string

	// Credential provider (remote browser automation)
	ProviderURL     string
	ProviderTimeout time.Duration
	CookieDir       string

	// Credential cache
	AuthTTL       time.Duration
	DefaultRegion string

	// Acquisition timeouts
	AttemptTimeout  time.Duration // single extraction attempt
	ResolveTimeout  time.Duration // outer deadline, URL-only resolve
	DownloadTimeout time.Duration // outer deadline, download-to-disk

	// Pacing between upstream attempts
	AttemptInterval time.Duration

	// Materializer settings
	OutputDir  string
	FFmpegPath string

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := getEnvInt("PORT", 7860)
	cfg := &Config{
		Port:            port,
		BaseURL:         getEnvString("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		APIPassword:     os.Getenv("API_PASSWORD"),
		ProxyPool:       getEnvStringSlice("PROXY_POOL", nil),
		ProviderURL:     getEnvString("PROVIDER_URL", ""),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 90*time.Second),
		CookieDir:       getEnvString("COOKIE_DIR", "cookies"),
		AuthTTL:         getEnvDuration("AUTH_TTL", time.Hour),
		DefaultRegion:   getEnvString("DEFAULT_REGION", "us"),
		AttemptTimeout:  getEnvDuration("ATTEMPT_TIMEOUT", 90*time.Second),
		ResolveTimeout:  getEnvDuration("RESOLVE_TIMEOUT", 3*time.Minute),
		DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 10*time.Minute),
		AttemptInterval: getEnvDuration("ATTEMPT_INTERVAL", 2*time.Second),
		OutputDir:       getEnvString("OUTPUT_DIR", "downloads"),
		FFmpegPath:      getEnvString("FFMPEG_PATH", "ffmpeg"),
		LogLevel:        getEnvString("LOG_LEVEL", "info"),
		LogJSON:         getEnvBool("LOG_JSON", false),
	}

	// Legacy single proxy support
	if proxy := os.Getenv("EGRESS_PROXY"); proxy != "" && len(cfg.ProxyPool) == 0 {
		cfg.ProxyPool = []string{proxy}
	}

	return cfg
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		// Try parsing as duration string
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
