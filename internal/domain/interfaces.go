package domain

import (
	"context"
	"time"
)

// ResultStore persists interaction results beyond the process lifetime.
// GetResult returns ErrNotFound (wrapped) when nothing is stored under key.
type ResultStore interface {
	GetResult(ctx context.Context, key string) (*InteractionResult, error)
	SaveResult(ctx context.Context, key string, result *InteractionResult) error
}

// SignalProvider fetches one external provider's evidence for a medication pair.
// A nil signal with a nil error means the provider has nothing to say.
type SignalProvider interface {
	Name() string
	Timeout() time.Duration
	FetchSignal(ctx context.Context, med1, med2 string) (*RawSourceSignal, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetProvidersConfig() *ProvidersConfig
	GetEngineConfig() *EngineConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
