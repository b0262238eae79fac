package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medconsensus-server/internal/domain"
)

func TestEngine_CheckPairUsesSessionCache(t *testing.T) {
	rxnorm := newMockProvider(domain.ProviderRxNorm)
	rxnorm.On("FetchSignal", mock.Anything, mock.Anything).
		Return(&domain.RawSourceSignal{Provider: domain.ProviderRxNorm, Severity: domain.SeveritySevere,
			Description: "Clarithromycin strongly inhibits simvastatin metabolism."}, nil).Once()
	label := newMockProvider(domain.ProviderFDALabel)
	label.On("FetchSignal", mock.Anything, mock.Anything).
		Return(&domain.RawSourceSignal{Provider: domain.ProviderFDALabel, Severity: domain.SeveritySevere,
			Description: "Use with clarithromycin is contraindicated."}, nil).Once()

	engine, err := NewEngine(EngineDeps{Providers: []domain.SignalProvider{rxnorm, label}}, domain.EngineConfig{}, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	first := engine.CheckPair(ctx, "Simvastatin", "Clarithromycin")
	require.NotNil(t, first)
	assert.Equal(t, domain.SeveritySevere, first.Severity)
	assert.Equal(t, "clarithromycin|simvastatin", first.Key)
	assert.Len(t, first.Sources, 2)

	second := engine.CheckPair(ctx, "clarithromycin", " Simvastatin ")
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), engine.CacheStats().Hits)

	rxnorm.AssertExpectations(t)
	label.AssertExpectations(t)

	engine.ClearCache()
	assert.Equal(t, 0, engine.CacheStats().Entries)
}

func TestEngine_Evaluate(t *testing.T) {
	engine, err := NewEngine(EngineDeps{}, domain.EngineConfig{}, testLogger())
	require.NoError(t, err)

	eval := engine.Evaluate([]domain.RawSourceSignal{
		signal(domain.ProviderRxNorm, domain.SeverityModerate, "Additive CNS depression reported."),
		signal(domain.ProviderFDALabel, domain.SeverityModerate, "Monitor for excessive sedation."),
	}, nil)

	assert.Equal(t, domain.SeverityModerate, eval.Result.Severity)
	assert.NotEmpty(t, eval.Adjustments)
	assert.Equal(t, RejectNegation, engine.ValidateSignal(signal("X", domain.SeverityUnknown, "No interaction found in RxNorm")))
	assert.Equal(t, "a|b|c", engine.Key("C", "a", "B"))
}

func TestEngine_CheckCombinationsWithoutProviders(t *testing.T) {
	engine, err := NewEngine(EngineDeps{}, domain.EngineConfig{MaxTriples: 1}, testLogger())
	require.NoError(t, err)

	results := engine.CheckCombinations(context.Background(), []string{"Alpha", "Beta", "Gamma", "Delta"})

	counts := map[domain.CombinationType]int{}
	for _, r := range results {
		counts[r.Type]++
		require.NotNil(t, r.Result)
	}
	assert.Equal(t, 4, counts[domain.CombinationSingle])
	assert.Equal(t, 6, counts[domain.CombinationPair])
	assert.Equal(t, 1, counts[domain.CombinationTriple])
}
