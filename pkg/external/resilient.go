package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/medconsensus-server/internal/domain"
)

// ProviderHealth reports the circuit state of one provider.
type ProviderHealth struct {
	Provider            string    `json:"provider"`
	State               string    `json:"state"`
	Healthy             bool      `json:"healthy"`
	Requests            uint32    `json:"requests"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	LastCheck           time.Time `json:"last_check"`
	ErrorCode           string    `json:"error_code,omitempty"`
}

// ResilientProvider guards a provider with a circuit breaker so a failing
// upstream is skipped quickly instead of consuming its full timeout every call.
type ResilientProvider struct {
	provider domain.SignalProvider
	breaker  *gobreaker.CircuitBreaker
	logger   *logrus.Logger
}

// NewResilientProvider wraps provider with a circuit breaker
func NewResilientProvider(provider domain.SignalProvider, config domain.CircuitBreakerConfig, logger *logrus.Logger) *ResilientProvider {
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MinRequests == 0 {
		config.MinRequests = 5
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = 0.6
	}

	settings := gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"provider":   name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Provider circuit breaker state changed")
		},
		// A cancelled caller says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &ResilientProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		logger:   logger,
	}
}

// Name returns the wrapped provider's name.
func (r *ResilientProvider) Name() string { return r.provider.Name() }

// Timeout returns the wrapped provider's timeout.
func (r *ResilientProvider) Timeout() time.Duration { return r.provider.Timeout() }

// FetchSignal executes the wrapped fetch through the circuit breaker.
func (r *ResilientProvider) FetchSignal(ctx context.Context, med1, med2 string) (*domain.RawSourceSignal, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.provider.FetchSignal(ctx, med1, med2)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.provider.Name(), err)
	}
	signal, _ := result.(*domain.RawSourceSignal)
	return signal, nil
}

// Health reports the breaker state.
func (r *ResilientProvider) Health() ProviderHealth {
	counts := r.breaker.Counts()
	state := r.breaker.State()
	health := ProviderHealth{
		Provider:            r.provider.Name(),
		State:               state.String(),
		Healthy:             state != gobreaker.StateOpen,
		Requests:            counts.Requests,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		LastCheck:           time.Now(),
	}
	if !health.Healthy {
		health.ErrorCode = domain.ErrExternalAPI
	}
	return health
}
