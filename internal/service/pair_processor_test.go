package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medconsensus-server/internal/domain"
)

func newTestPairProcessor(t *testing.T, store domain.ResultStore, providers ...domain.SignalProvider) (*PairProcessor, *SessionCache) {
	t.Helper()
	cache, err := NewSessionCache(16)
	require.NoError(t, err)
	logger := testLogger()
	validator := NewSourceValidator(logger)
	return NewPairProcessor(PairProcessorDeps{
		Cache:      cache,
		Providers:  providers,
		Validator:  validator,
		Calculator: NewConsensusCalculator(NewWeightAssigner(domain.WeightConfig{}), validator, logger),
		Store:      store,
	}, PairProcessorConfig{StoreTimeout: time.Second}, logger), cache
}

func TestPairProcessor_HighRiskSkipsProviders(t *testing.T) {
	rx := newMockProvider(domain.ProviderRxNorm)
	fda := newMockProvider(domain.ProviderFDALabel)
	processor, _ := newTestPairProcessor(t, nil, rx, fda)

	result := processor.CheckPair(context.Background(), "Xanax", "Wine")

	assert.Equal(t, domain.SeveritySevere, result.Severity)
	assert.Equal(t, 95, result.ConfidenceScore)
	assert.Contains(t, result.Description, "HIGH-RISK COMBINATION")
	assert.Equal(t, "wine|xanax", result.Key)
	rx.AssertNotCalled(t, "FetchSignal", mock.Anything, mock.Anything)
	fda.AssertNotCalled(t, "FetchSignal", mock.Anything, mock.Anything)
}

func TestPairProcessor_ConsensusFromProviders(t *testing.T) {
	rx := newMockProvider(domain.ProviderRxNorm)
	rx.On("FetchSignal", "Simvastatin", "Clarithromycin").Return(&domain.RawSourceSignal{
		Provider: domain.ProviderRxNorm, Severity: domain.SeveritySevere, Description: "Contraindicated: rhabdomyolysis risk",
	}, nil).Once()
	fda := newMockProvider(domain.ProviderFDALabel)
	fda.On("FetchSignal", "Simvastatin", "Clarithromycin").Return(&domain.RawSourceSignal{
		Severity: domain.SeveritySevere, Description: "Label contraindicates strong CYP3A4 inhibitors",
	}, nil).Once()

	processor, cache := newTestPairProcessor(t, nil, rx, fda)
	ctx := context.Background()

	result := processor.CheckPair(ctx, "Simvastatin", "Clarithromycin")
	assert.Equal(t, "clarithromycin|simvastatin", result.Key)
	assert.Equal(t, domain.SeveritySevere, result.Severity)
	assert.GreaterOrEqual(t, result.ConfidenceScore, 70)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, domain.ProviderFDALabel, result.Sources[0].Provider, "unnamed signals take the provider name")

	t.Run("Session_Cache_Hit_Skips_Providers", func(t *testing.T) {
		again := processor.CheckPair(ctx, "clarithromycin", "SIMVASTATIN")
		assert.Same(t, result, again)
		rx.AssertNumberOfCalls(t, "FetchSignal", 1)
		fda.AssertNumberOfCalls(t, "FetchSignal", 1)
		assert.Equal(t, int64(1), cache.Stats().Hits)
	})
}

func TestPairProcessor_FailingProvidersBecomeAbsentSignals(t *testing.T) {
	rx := newMockProvider(domain.ProviderRxNorm)
	rx.On("FetchSignal", "Lisinopril", "Potassium").Return(&domain.RawSourceSignal{
		Provider: domain.ProviderRxNorm, Severity: domain.SeverityModerate, Description: "Hyperkalemia risk",
	}, nil)
	broken := newMockProvider(domain.ProviderFDALabel)
	broken.On("FetchSignal", "Lisinopril", "Potassium").Return(nil, errors.New("503 service unavailable"))

	processor, _ := newTestPairProcessor(t, nil, rx, broken, &slowProvider{timeout: 20 * time.Millisecond}, panicProvider{})

	start := time.Now()
	result := processor.CheckPair(context.Background(), "Lisinopril", "Potassium")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domain.SeverityModerate, result.Severity)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, domain.ProviderRxNorm, result.Sources[0].Provider)
}

func TestPairProcessor_NoSignals(t *testing.T) {
	t.Run("No_Store", func(t *testing.T) {
		empty := newMockProvider(domain.ProviderRxNorm)
		empty.On("FetchSignal", "Metformin", "Vitamin D").Return(nil, nil)
		processor, cache := newTestPairProcessor(t, nil, empty)

		result := processor.CheckPair(context.Background(), "Metformin", "Vitamin D")
		assert.Equal(t, domain.SeverityUnknown, result.Severity)
		assert.Equal(t, 0, result.ConfidenceScore)
		assert.Equal(t, NoDataDescription, result.Description)
		assert.Empty(t, result.Sources)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("Persisted_Result_Is_Served", func(t *testing.T) {
		empty := newMockProvider(domain.ProviderRxNorm)
		empty.On("FetchSignal", "Metformin", "Vitamin D").Return(nil, nil)
		stored := &domain.InteractionResult{
			Key:             "metformin|vitamin d",
			Severity:        domain.SeverityMinor,
			Sources:         []domain.RawSourceSignal{signal(domain.ProviderRxNorm, domain.SeverityMinor, "minor")},
			ConfidenceScore: 65,
		}
		store := new(MockResultStore)
		store.On("GetResult", "metformin|vitamin d").Return(stored, nil)

		processor, _ := newTestPairProcessor(t, store, empty)
		result := processor.CheckPair(context.Background(), "Metformin", "Vitamin D")
		assert.Same(t, stored, result)
		store.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything)
	})

	t.Run("Store_Error_Degrades_To_No_Data", func(t *testing.T) {
		store := new(MockResultStore)
		store.On("GetResult", "metformin|vitamin d").Return(nil, errors.New("connection refused"))

		processor, _ := newTestPairProcessor(t, store)
		result := processor.CheckPair(context.Background(), "Metformin", "Vitamin D")
		assert.Equal(t, domain.SeverityUnknown, result.Severity)
		assert.Equal(t, 0, result.ConfidenceScore)
	})
}

func TestPairProcessor_FallbackValidation(t *testing.T) {
	weak := newMockProvider("Community Forum")
	weak.On("FetchSignal", "Melatonin", "Zolpidem").Return(&domain.RawSourceSignal{
		Provider: "Community Forum", Severity: domain.SeverityUnknown, Description: "maybe",
	}, nil)
	processor, _ := newTestPairProcessor(t, nil, weak)

	result := processor.CheckPair(context.Background(), "Melatonin", "Zolpidem")
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "Community Forum", result.Sources[0].Provider)
	assert.Equal(t, domain.SeverityUnknown, result.Severity)
}

func TestPairProcessor_UnusableSignalsKeepStoredResult(t *testing.T) {
	replies := map[string]string{
		domain.ProviderRxNorm:       "No interaction found in RxNorm",
		domain.ProviderSupplementDB: "no data available",
		domain.ProviderLiterature:   "n/a",
	}
	var providers []domain.SignalProvider
	for name, desc := range replies {
		provider := newMockProvider(name)
		provider.On("FetchSignal", "Digoxin", "Furosemide").Return(&domain.RawSourceSignal{
			Provider: name, Severity: domain.SeverityUnknown, Description: desc,
		}, nil)
		providers = append(providers, provider)
	}

	stored := &domain.InteractionResult{
		Key:      "digoxin|furosemide",
		Severity: domain.SeveritySevere,
		Sources: []domain.RawSourceSignal{
			signal(domain.ProviderRxNorm, domain.SeveritySevere, "hypokalemia raises digoxin toxicity"),
			signal(domain.ProviderFDALabel, domain.SeveritySevere, "hypokalemia raises digoxin toxicity"),
		},
		ConfidenceScore: 100,
		CheckedAt:       time.Now().Add(-time.Hour),
	}
	store := new(MockResultStore)
	store.On("GetResult", "digoxin|furosemide").Return(stored, nil)

	processor, cache := newTestPairProcessor(t, store, providers...)
	result := processor.CheckPair(context.Background(), "Digoxin", "Furosemide")

	assert.Same(t, stored, result)
	assert.Equal(t, domain.SeveritySevere, result.Severity)
	assert.Equal(t, 100, result.ConfidenceScore)
	store.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything)

	cached, ok := cache.Get("digoxin|furosemide")
	require.True(t, ok)
	assert.Equal(t, domain.SeveritySevere, cached.Severity)
}

func TestPairProcessor_PersistRespectsStrongerStoredResult(t *testing.T) {
	rx := newMockProvider(domain.ProviderRxNorm)
	rx.On("FetchSignal", "Digoxin", "Furosemide").Return(&domain.RawSourceSignal{
		Provider: domain.ProviderRxNorm, Severity: domain.SeverityMinor, Description: "minor",
	}, nil)

	stored := &domain.InteractionResult{
		Key:      "digoxin|furosemide",
		Severity: domain.SeverityModerate,
		Sources: []domain.RawSourceSignal{
			signal(domain.ProviderRxNorm, domain.SeverityModerate, "moderate"),
			signal(domain.ProviderFDALabel, domain.SeverityModerate, "moderate"),
		},
		ConfidenceScore: 100,
		AIValidated:     true,
		CheckedAt:       time.Now(),
	}
	store := new(MockResultStore)
	store.On("GetResult", "digoxin|furosemide").Return(stored, nil)

	processor, _ := newTestPairProcessor(t, store, rx)
	result := processor.CheckPair(context.Background(), "Digoxin", "Furosemide")

	assert.Equal(t, domain.SeverityMinor, result.Severity)
	store.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything)
}

func TestPairProcessor_PersistsNewResult(t *testing.T) {
	rx := newMockProvider(domain.ProviderRxNorm)
	rx.On("FetchSignal", "Digoxin", "Furosemide").Return(&domain.RawSourceSignal{
		Provider: domain.ProviderRxNorm, Severity: domain.SeverityModerate, Description: "moderate",
	}, nil)

	store := new(MockResultStore)
	store.On("GetResult", "digoxin|furosemide").Return(nil, domain.ErrNotFound)
	store.On("SaveResult", "digoxin|furosemide", mock.AnythingOfType("*domain.InteractionResult")).Return(nil).Once()

	processor, _ := newTestPairProcessor(t, store, rx)
	result := processor.CheckPair(context.Background(), "Digoxin", "Furosemide")

	assert.Equal(t, domain.SeverityModerate, result.Severity)
	store.AssertExpectations(t)
}

func TestPairProcessor_RecoversInternalFaults(t *testing.T) {
	store := new(MockResultStore)
	store.On("GetResult", mock.Anything).Run(func(mock.Arguments) {
		panic("nil pointer in store adapter")
	})

	processor, _ := newTestPairProcessor(t, store)
	result := processor.CheckPair(context.Background(), "Metformin", "Vitamin D")

	require.NotNil(t, result)
	assert.Equal(t, domain.SeverityUnknown, result.Severity)
	assert.Contains(t, result.Description, "could not be completed")
	assert.Contains(t, result.Description, "nil pointer in store adapter")
	assert.Contains(t, result.Description, domain.ErrConsensus)
}

func TestShouldReplace(t *testing.T) {
	now := time.Now()
	stored := &domain.InteractionResult{
		Severity:        domain.SeverityModerate,
		Sources:         make([]domain.RawSourceSignal, 2),
		ConfidenceScore: 70,
		CheckedAt:       now.Add(-time.Hour),
	}
	weaker := func() *domain.InteractionResult {
		return &domain.InteractionResult{
			Severity:        domain.SeverityMinor,
			Sources:         make([]domain.RawSourceSignal, 1),
			ConfidenceScore: 50,
		}
	}

	tests := []struct {
		name     string
		mutate   func(r *domain.InteractionResult)
		stored   *domain.InteractionResult
		age      time.Duration
		expected bool
	}{
		{"Nothing_Stored", func(*domain.InteractionResult) {}, nil, time.Hour * 24, true},
		{"Weaker", func(*domain.InteractionResult) {}, stored, time.Hour * 24, false},
		{"More_Sources", func(r *domain.InteractionResult) { r.Sources = make([]domain.RawSourceSignal, 3) }, stored, time.Hour * 24, true},
		{"Higher_Confidence", func(r *domain.InteractionResult) { r.ConfidenceScore = 71 }, stored, time.Hour * 24, true},
		{"More_Severe", func(r *domain.InteractionResult) { r.Severity = domain.SeveritySevere }, stored, time.Hour * 24, true},
		{"Gained_AI_Validation", func(r *domain.InteractionResult) { r.AIValidated = true }, stored, time.Hour * 24, true},
		{"Stored_Is_Stale", func(*domain.InteractionResult) {}, stored, time.Minute, true},
		{"Unknown_Cannot_Displace_Known", func(r *domain.InteractionResult) {
			r.Severity = domain.SeverityUnknown
			r.Sources = make([]domain.RawSourceSignal, 3)
			r.ConfidenceScore = 95
			r.AIValidated = true
		}, stored, time.Hour * 24, false},
		{"Unknown_Replaces_Stale_Known", func(r *domain.InteractionResult) {
			r.Severity = domain.SeverityUnknown
		}, stored, time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fresh := weaker()
			tt.mutate(fresh)
			assert.Equal(t, tt.expected, ShouldReplace(tt.stored, fresh, tt.age, now))
		})
	}

	assert.False(t, ShouldReplace(stored, nil, time.Hour, now))
}
