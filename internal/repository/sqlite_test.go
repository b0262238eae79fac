package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconsensus-server/internal/domain"
)

func intPtr(i int) *int { return &i }

func sampleResult(key string, severity domain.Severity, confidence int) *domain.InteractionResult {
	return &domain.InteractionResult{
		Key:         key,
		Medications: []string{"Warfarin", "Aspirin"},
		Severity:    severity,
		Description: "Severe interaction risk reported by FDA and RxNorm.",
		Sources: []domain.RawSourceSignal{
			{Provider: domain.ProviderRxNorm, Severity: domain.SeveritySevere, Description: "bleeding"},
			{Provider: domain.ProviderFDAEvents, Severity: domain.SeverityModerate, Confidence: intPtr(60),
				EventData: &domain.EventStats{TotalEvents: 120, SeriousEvents: 4}},
		},
		ConfidenceScore: confidence,
		AIValidated:     true,
		CheckedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteResultStore_SaveAndGet(t *testing.T) {
	store, err := NewSQLiteResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.GetResult(ctx, "aspirin|warfarin")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.SaveResult(ctx, "aspirin|warfarin", sampleResult("aspirin|warfarin", domain.SeveritySevere, 85)))

	got, err := store.GetResult(ctx, "aspirin|warfarin")
	require.NoError(t, err)
	assert.Equal(t, domain.SeveritySevere, got.Severity)
	assert.Equal(t, 85, got.ConfidenceScore)
	assert.True(t, got.AIValidated)
	assert.Equal(t, []string{"Warfarin", "Aspirin"}, got.Medications)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, 120, got.Sources[1].EventData.TotalEvents)
	assert.Equal(t, 60, *got.Sources[1].Confidence)
	assert.True(t, got.CheckedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	// Overwrite
	require.NoError(t, store.SaveResult(ctx, "aspirin|warfarin", sampleResult("aspirin|warfarin", domain.SeverityModerate, 60)))
	got, err = store.GetResult(ctx, "aspirin|warfarin")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityModerate, got.Severity)
	assert.Equal(t, 60, got.ConfidenceScore)

	assert.NoError(t, store.Ping(ctx))
}

func TestSQLiteResultStore_NilResult(t *testing.T) {
	store, err := NewSQLiteResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.SaveResult(context.Background(), "a|b", nil))
}

func TestSQLiteResultStore_EmptySources(t *testing.T) {
	store, err := NewSQLiteResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	result := sampleResult("a|b", domain.SeverityUnknown, 0)
	result.Sources = nil
	require.NoError(t, store.SaveResult(ctx, "a|b", result))

	got, err := store.GetResult(ctx, "a|b")
	require.NoError(t, err)
	assert.False(t, got.HasSources())
}
