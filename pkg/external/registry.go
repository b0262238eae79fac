package external

import (
	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/domain"
)

// ProviderSet is the configured, wrapped collection of signal providers.
type ProviderSet struct {
	providers []domain.SignalProvider
	breakers  []*ResilientProvider
}

// NewProviderSet builds every enabled provider, wraps it with a circuit breaker
// and, when cache is not nil, with the signal cache. Providers without a base
// URL and no public default are skipped.
func NewProviderSet(config domain.ProvidersConfig, cache *SignalCache, logger *logrus.Logger) *ProviderSet {
	set := &ProviderSet{}

	add := func(cfg domain.ProviderConfig, build func(domain.ProviderConfig) domain.SignalProvider, needsURL bool) {
		if !cfg.Enabled {
			return
		}
		if needsURL && cfg.BaseURL == "" {
			logger.WithFields(logrus.Fields{
				"provider": build(cfg).Name(),
			}).Warn("Provider enabled without base URL, skipping")
			return
		}
		resilient := NewResilientProvider(build(cfg), config.CircuitBreaker, logger)
		set.breakers = append(set.breakers, resilient)

		var provider domain.SignalProvider = resilient
		if cache != nil {
			provider = NewCachedProvider(resilient, cache, logger)
		}
		set.providers = append(set.providers, provider)
	}

	add(config.RxNorm, func(c domain.ProviderConfig) domain.SignalProvider { return NewRxNormClient(c) }, false)
	add(config.FDALabel, func(c domain.ProviderConfig) domain.SignalProvider { return NewFDALabelClient(c) }, false)
	add(config.FDAEvents, func(c domain.ProviderConfig) domain.SignalProvider { return NewFDAEventsClient(c) }, false)
	add(config.Supplement, func(c domain.ProviderConfig) domain.SignalProvider { return NewSupplementClient(c) }, true)
	add(config.Literature, func(c domain.ProviderConfig) domain.SignalProvider { return NewLiteratureClient(c) }, true)

	logger.WithFields(logrus.Fields{
		"providers": len(set.providers),
		"cached":    cache != nil,
	}).Info("Signal providers configured")

	return set
}

// Providers returns the wrapped providers in a fixed order.
func (s *ProviderSet) Providers() []domain.SignalProvider {
	return s.providers
}

// Health reports the circuit state of every provider.
func (s *ProviderSet) Health() []ProviderHealth {
	health := make([]ProviderHealth, 0, len(s.breakers))
	for _, b := range s.breakers {
		health = append(health, b.Health())
	}
	return health
}
