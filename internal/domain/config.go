package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ProvidersConfig groups the external interaction data providers.
type ProvidersConfig struct {
	RxNorm         ProviderConfig       `mapstructure:"rxnorm"`
	FDALabel       ProviderConfig       `mapstructure:"fda_label"`
	FDAEvents      ProviderConfig       `mapstructure:"fda_events"`
	Supplement     ProviderConfig       `mapstructure:"supplement"`
	Literature     ProviderConfig       `mapstructure:"literature"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// ProviderConfig represents one provider's API configuration
type ProviderConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"` // requests per second
}

// CircuitBreakerConfig represents circuit breaker configuration shared by providers
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// CacheConfig represents provider signal cache configuration
type CacheConfig struct {
	RedisURL      string        `mapstructure:"redis_url"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	MaxRetries    int           `mapstructure:"max_retries"`
	PoolSize      int           `mapstructure:"pool_size"`
	PoolTimeout   time.Duration `mapstructure:"pool_timeout"`
	MemoryEntries int           `mapstructure:"memory_entries"`
}

// EngineConfig tunes the consensus engine and pair processing.
type EngineConfig struct {
	Weights          WeightConfig  `mapstructure:"weights"`
	MaxTriples       int           `mapstructure:"max_triples"`
	SessionCacheSize int           `mapstructure:"session_cache_size"`
	RefreshAge       time.Duration `mapstructure:"refresh_age"`
	StoreTimeout     time.Duration `mapstructure:"store_timeout"`
	PairConcurrency  int           `mapstructure:"pair_concurrency"`
	// ResultRetention bounds how long persisted verdicts are kept; zero keeps them forever.
	ResultRetention time.Duration `mapstructure:"result_retention"`
}

// WeightConfig is the tunable source reliability table.
type WeightConfig struct {
	Structured       float64 `mapstructure:"structured"`
	AdverseEvent     float64 `mapstructure:"adverse_event"`
	Label            float64 `mapstructure:"label"`
	Supplement       float64 `mapstructure:"supplement"`
	Literature       float64 `mapstructure:"literature"`
	LiteratureCap    float64 `mapstructure:"literature_cap"`
	Internal         float64 `mapstructure:"internal"`
	Fallback         float64 `mapstructure:"fallback"`
	EventBonusCap    float64 `mapstructure:"event_bonus_cap"`
	SeriousBonus     float64 `mapstructure:"serious_bonus"`
	SeriousThreshold float64 `mapstructure:"serious_threshold"`
	SevereBoost      float64 `mapstructure:"severe_boost"`
	UnknownPenalty   float64 `mapstructure:"unknown_penalty"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
