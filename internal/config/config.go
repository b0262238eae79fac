// Package config loads server configuration from config.yaml and
// MEDCONSENSUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/medconsensus-server/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. MEDCONSENSUS_SERVER_PORT.
const EnvPrefix = "MEDCONSENSUS"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager loads configuration from the default search paths.
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile loads configuration from configFile, or from the default
// search paths when configFile is empty.
func NewManagerFromFile(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/medconsensus/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// A missing config file is fine; defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "45s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "medconsensus")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.migrations_path", "migrations")

	providers := map[string]struct {
		enabled bool
		baseURL string
	}{
		"rxnorm":     {true, "https://rxnav.nlm.nih.gov/REST"},
		"fda_label":  {true, "https://api.fda.gov"},
		"fda_events": {true, "https://api.fda.gov"},
		"supplement": {false, ""},
		"literature": {false, ""},
	}
	for name, p := range providers {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"enabled", p.enabled)
		v.SetDefault(prefix+"base_url", p.baseURL)
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"timeout", "8s")
		v.SetDefault(prefix+"rate_limit", 4)
	}
	v.SetDefault("providers.circuit_breaker.max_requests", 3)
	v.SetDefault("providers.circuit_breaker.interval", "60s")
	v.SetDefault("providers.circuit_breaker.timeout", "30s")
	v.SetDefault("providers.circuit_breaker.min_requests", 5)
	v.SetDefault("providers.circuit_breaker.failure_ratio", 0.6)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")
	v.SetDefault("cache.memory_entries", 2048)

	weights := map[string]float64{
		"structured":        0.85,
		"adverse_event":     0.80,
		"label":             0.80,
		"supplement":        0.65,
		"literature":        0.55,
		"literature_cap":    0.65,
		"internal":          0.95,
		"fallback":          0.40,
		"event_bonus_cap":   0.10,
		"serious_bonus":     0.05,
		"serious_threshold": 0.05,
		"severe_boost":      1.10,
		"unknown_penalty":   0.60,
	}
	for name, w := range weights {
		v.SetDefault("engine.weights."+name, w)
	}
	v.SetDefault("engine.max_triples", 5)
	v.SetDefault("engine.session_cache_size", 4096)
	v.SetDefault("engine.refresh_age", "168h")
	v.SetDefault("engine.store_timeout", "2s")
	v.SetDefault("engine.pair_concurrency", 4)
	v.SetDefault("engine.result_retention", "720h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetProvidersConfig returns provider configuration
func (m *Manager) GetProvidersConfig() *domain.ProvidersConfig {
	return &m.config.Providers
}

// GetEngineConfig returns consensus engine configuration
func (m *Manager) GetEngineConfig() *domain.EngineConfig {
	return &m.config.Engine
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	providers := map[string]domain.ProviderConfig{
		"rxnorm":     config.Providers.RxNorm,
		"fda_label":  config.Providers.FDALabel,
		"fda_events": config.Providers.FDAEvents,
		"supplement": config.Providers.Supplement,
		"literature": config.Providers.Literature,
	}
	for name, p := range providers {
		if !p.Enabled || p.BaseURL == "" {
			continue
		}
		if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base URL for provider %s: %q", name, p.BaseURL)
		}
		if p.RateLimit < 0 {
			return fmt.Errorf("invalid rate limit for provider %s: %d", name, p.RateLimit)
		}
	}
	if r := config.Providers.CircuitBreaker.FailureRatio; r < 0 || r > 1 {
		return fmt.Errorf("circuit breaker failure ratio must be within [0,1]: %v", r)
	}

	if config.Cache.RedisURL != "" {
		if _, err := url.Parse(config.Cache.RedisURL); err != nil {
			return fmt.Errorf("invalid Redis URL: %w", err)
		}
	}

	if err := validateWeights(config.Engine.Weights); err != nil {
		return err
	}
	if config.Engine.MaxTriples < 0 {
		return fmt.Errorf("max triples must not be negative: %d", config.Engine.MaxTriples)
	}

	if _, err := logrus.ParseLevel(config.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

func validateWeights(w domain.WeightConfig) error {
	unit := map[string]float64{
		"structured":        w.Structured,
		"adverse_event":     w.AdverseEvent,
		"label":             w.Label,
		"supplement":        w.Supplement,
		"literature":        w.Literature,
		"literature_cap":    w.LiteratureCap,
		"internal":          w.Internal,
		"fallback":          w.Fallback,
		"event_bonus_cap":   w.EventBonusCap,
		"serious_bonus":     w.SeriousBonus,
		"serious_threshold": w.SeriousThreshold,
		"unknown_penalty":   w.UnknownPenalty,
	}
	for name, value := range unit {
		if value < 0 || value > 1 {
			return fmt.Errorf("engine weight %s must be within [0,1]: %v", name, value)
		}
	}
	if w.SevereBoost < 0 || w.SevereBoost > 2 {
		return fmt.Errorf("engine weight severe_boost must be within [0,2]: %v", w.SevereBoost)
	}
	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the postgres:// URL used by migrations and lib/pq.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:     "/" + db.Database,
		RawQuery: url.Values{"sslmode": []string{db.SSLMode}}.Encode(),
	}
	return u.String()
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
