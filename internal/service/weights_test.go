package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medconsensus-server/internal/domain"
)

func TestClassifyProvider(t *testing.T) {
	tests := []struct {
		provider string
		expected ProviderKind
	}{
		{domain.ProviderRxNorm, KindStructured},
		{"rxnorm", KindStructured},
		{domain.ProviderFDALabel, KindLabel},
		{domain.ProviderFDAEvents, KindAdverseEvent},
		{domain.ProviderEventStatistics, KindAdverseEvent},
		{domain.ProviderSupplementDB, KindSupplement},
		{"Natural Medicines Database", KindSupplement},
		{domain.ProviderLiterature, KindLiterature},
		{"OpenAI Safety Review", KindLiterature},
		{domain.ProviderHighRiskTable, KindInternal},
		{"DrugBank", KindStructured},
		{"FAERS mirror", KindAdverseEvent},
		{"Community Pharmacy Registry", KindFallback},
		{"", KindFallback},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyProvider(tt.provider))
		})
	}
}

func TestProviderKind_IsTrusted(t *testing.T) {
	assert.True(t, KindStructured.IsTrusted())
	assert.True(t, KindAdverseEvent.IsTrusted())
	assert.True(t, KindLabel.IsTrusted())
	assert.False(t, KindLiterature.IsTrusted())
	assert.False(t, KindSupplement.IsTrusted())
	assert.False(t, KindFallback.IsTrusted())
}

func TestWeightAssigner_Weight(t *testing.T) {
	w := NewWeightAssigner(domain.WeightConfig{})

	t.Run("Structured_Severe_Boost", func(t *testing.T) {
		got := w.Weight(signal(domain.ProviderRxNorm, domain.SeveritySevere, "severe"))
		assert.InDelta(t, 0.935, got, 1e-9)
	})

	t.Run("Literature_Severe_Gets_No_Boost_And_Is_Capped", func(t *testing.T) {
		s := signal(domain.ProviderLiterature, domain.SeveritySevere, "severe interaction reported")
		s.Confidence = intPtr(100)
		assert.InDelta(t, 0.65, w.Weight(s), 1e-9)

		s.Confidence = intPtr(10)
		assert.InDelta(t, 0.55*0.6, w.Weight(s), 1e-9)
	})

	t.Run("Unknown_Penalty", func(t *testing.T) {
		got := w.Weight(signal(domain.ProviderRxNorm, domain.SeverityUnknown, "unclear"))
		assert.InDelta(t, 0.85*0.6, got, 1e-9)
	})

	t.Run("Event_Volume_And_Serious_Bonus", func(t *testing.T) {
		s := signal(domain.ProviderFDAEvents, domain.SeverityModerate, "reports")
		s.EventData = &domain.EventStats{TotalEvents: 999, SeriousEvents: 100}
		assert.InDelta(t, 0.80+0.10+0.05, w.Weight(s), 1e-9)
	})

	t.Run("Serious_Bonus_Needs_Threshold", func(t *testing.T) {
		s := signal(domain.ProviderFDAEvents, domain.SeverityModerate, "reports")
		s.EventData = &domain.EventStats{TotalEvents: 999, SeriousEvents: 10}
		assert.InDelta(t, 0.90, w.Weight(s), 1e-9)
	})

	t.Run("Clamped_To_One", func(t *testing.T) {
		s := signal(domain.ProviderRxNorm, domain.SeveritySevere, "severe")
		s.Confidence = intPtr(100)
		assert.Equal(t, 1.0, w.Weight(s))
	})

	t.Run("Reliable_Hint_Lifts_Fallback", func(t *testing.T) {
		s := signal("Community Pharmacy Registry", domain.SeverityMinor, "minor interaction")
		assert.InDelta(t, 0.40, w.Weight(s), 1e-9)

		s.IsReliableHint = boolPtr(true)
		assert.InDelta(t, 0.65, w.Weight(s), 1e-9)
	})

	t.Run("Always_Within_Unit_Interval", func(t *testing.T) {
		for _, sev := range domain.AllSeverities {
			for _, conf := range []int{-50, 0, 50, 100, 500} {
				s := signal(domain.ProviderFDAEvents, sev, "reports")
				s.Confidence = intPtr(conf)
				s.EventData = &domain.EventStats{TotalEvents: 1_000_000, SeriousEvents: 900_000}
				got := w.Weight(s)
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, 1.0)
			}
		}
	})
}

func TestWeightAssigner_ConfiguredTable(t *testing.T) {
	w := NewWeightAssigner(domain.WeightConfig{Structured: 0.5})
	assert.Equal(t, 0.5, w.BaseWeight(KindStructured))
	assert.Equal(t, DefaultWeights().Label, w.BaseWeight(KindLabel))
	assert.Equal(t, 0.5, w.Config().Structured)
}

func TestConfidenceMultiplier(t *testing.T) {
	assert.Equal(t, 0.5, ConfidenceMultiplier(-5))
	assert.Equal(t, 0.5, ConfidenceMultiplier(0))
	assert.Equal(t, 1.0, ConfidenceMultiplier(50))
	assert.Equal(t, 1.5, ConfidenceMultiplier(100))
	assert.Equal(t, 1.5, ConfidenceMultiplier(150))
}

func TestEventVolumeBonus(t *testing.T) {
	w := NewWeightAssigner(domain.WeightConfig{})
	assert.Equal(t, 0.0, w.EventVolumeBonus(0))
	assert.InDelta(t, 0.10, w.EventVolumeBonus(999), 1e-9)
	assert.Equal(t, 0.10, w.EventVolumeBonus(10_000_000))
	assert.Less(t, w.EventVolumeBonus(10), w.EventVolumeBonus(100))
}
