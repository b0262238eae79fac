package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/medconsensus-server/internal/domain"
)

// LiteConfig configures the standalone MCP server. It needs no external
// database or Redis: results and feedback live in SQLite under DataDir.
type LiteConfig struct {
	DataDir string

	// Caches
	SessionCacheSize   int
	SignalCacheEntries int
	SignalCacheTTL     time.Duration

	// Optional providers; each is enabled when its URL is set
	SupplementURL    string
	SupplementAPIKey string
	LiteratureURL    string
	LiteratureAPIKey string
	OpenFDAAPIKey    string

	ProviderTimeout time.Duration
	MaxTriples      int

	Transport string // stdio or http
	HTTPPort  int

	LogLevel  string
	LogFormat string
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:            filepath.Join(homeDir, ".medconsensus"),
		SessionCacheSize:   4096,
		SignalCacheEntries: 2048,
		SignalCacheTTL:     24 * time.Hour,
		ProviderTimeout:    8 * time.Second,
		MaxTriples:         5,
		Transport:          "stdio",
		HTTPPort:           8080,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// LoadLiteConfig overlays MEDCONSENSUS_* environment variables on the defaults.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	setString := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + "_" + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + "_" + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + "_" + key); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
			}
		}
	}

	setString("DATA_DIR", &cfg.DataDir)
	setInt("SESSION_CACHE_SIZE", &cfg.SessionCacheSize)
	setInt("SIGNAL_CACHE_ENTRIES", &cfg.SignalCacheEntries)
	setDuration("SIGNAL_CACHE_TTL", &cfg.SignalCacheTTL)
	setString("SUPPLEMENT_URL", &cfg.SupplementURL)
	setString("SUPPLEMENT_API_KEY", &cfg.SupplementAPIKey)
	setString("LITERATURE_URL", &cfg.LiteratureURL)
	setString("LITERATURE_API_KEY", &cfg.LiteratureAPIKey)
	setString("OPENFDA_API_KEY", &cfg.OpenFDAAPIKey)
	setDuration("PROVIDER_TIMEOUT", &cfg.ProviderTimeout)
	setInt("MAX_TRIPLES", &cfg.MaxTriples)
	setString("TRANSPORT", &cfg.Transport)
	setInt("HTTP_PORT", &cfg.HTTPPort)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FORMAT", &cfg.LogFormat)

	return cfg
}

// ProvidersConfig derives provider settings. The public NIH and openFDA
// providers are always on; the supplement and literature services need a URL.
func (c *LiteConfig) ProvidersConfig() domain.ProvidersConfig {
	provider := func(baseURL, apiKey string, enabled bool) domain.ProviderConfig {
		return domain.ProviderConfig{
			Enabled:   enabled,
			BaseURL:   baseURL,
			APIKey:    apiKey,
			Timeout:   c.ProviderTimeout,
			RateLimit: 4,
		}
	}
	return domain.ProvidersConfig{
		RxNorm:     provider("", "", true),
		FDALabel:   provider("", c.OpenFDAAPIKey, true),
		FDAEvents:  provider("", c.OpenFDAAPIKey, true),
		Supplement: provider(c.SupplementURL, c.SupplementAPIKey, c.SupplementURL != ""),
		Literature: provider(c.LiteratureURL, c.LiteratureAPIKey, c.LiteratureURL != ""),
	}
}

// CacheConfig derives the memory-only signal cache settings.
func (c *LiteConfig) CacheConfig() domain.CacheConfig {
	return domain.CacheConfig{
		DefaultTTL:    c.SignalCacheTTL,
		MemoryEntries: c.SignalCacheEntries,
	}
}

// LoggingConfig derives logging settings. Stdio transport reserves stdout
// for protocol traffic, so logs go to stderr.
func (c *LiteConfig) LoggingConfig() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ResultsDBPath returns the path to the interaction results SQLite database.
func (c *LiteConfig) ResultsDBPath() string {
	return filepath.Join(c.DataDir, "results.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
