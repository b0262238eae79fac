package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/medconsensus-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func signal(provider string, severity domain.Severity, desc string) domain.RawSourceSignal {
	return domain.RawSourceSignal{Provider: provider, Severity: severity, Description: desc}
}

func newTestCalculator() *ConsensusCalculator {
	logger := testLogger()
	return NewConsensusCalculator(NewWeightAssigner(domain.WeightConfig{}), NewSourceValidator(logger), logger)
}

// MockSignalProvider is a mock implementation of domain.SignalProvider
type MockSignalProvider struct {
	mock.Mock
	name    string
	timeout time.Duration
}

func newMockProvider(name string) *MockSignalProvider {
	return &MockSignalProvider{name: name, timeout: time.Second}
}

func (m *MockSignalProvider) Name() string { return m.name }

func (m *MockSignalProvider) Timeout() time.Duration { return m.timeout }

func (m *MockSignalProvider) FetchSignal(ctx context.Context, med1, med2 string) (*domain.RawSourceSignal, error) {
	args := m.Called(med1, med2)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawSourceSignal), args.Error(1)
}

// slowProvider blocks until its context expires.
type slowProvider struct {
	timeout time.Duration
}

func (s *slowProvider) Name() string           { return "Slow Provider" }
func (s *slowProvider) Timeout() time.Duration { return s.timeout }
func (s *slowProvider) FetchSignal(ctx context.Context, _, _ string) (*domain.RawSourceSignal, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// panicProvider panics on every fetch.
type panicProvider struct{}

func (panicProvider) Name() string           { return "Broken Provider" }
func (panicProvider) Timeout() time.Duration { return time.Second }
func (panicProvider) FetchSignal(context.Context, string, string) (*domain.RawSourceSignal, error) {
	panic("unexpected payload")
}

// MockResultStore is a mock implementation of domain.ResultStore
type MockResultStore struct {
	mock.Mock
}

func (m *MockResultStore) GetResult(ctx context.Context, key string) (*domain.InteractionResult, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InteractionResult), args.Error(1)
}

func (m *MockResultStore) SaveResult(ctx context.Context, key string, result *domain.InteractionResult) error {
	args := m.Called(key, result)
	return args.Error(0)
}
