package service

import (
	"math"
	"strings"

	"github.com/medconsensus-server/internal/domain"
)

// ProviderKind groups providers that share a reliability profile.
type ProviderKind string

const (
	KindStructured   ProviderKind = "structured"
	KindAdverseEvent ProviderKind = "adverse_event"
	KindLabel        ProviderKind = "label"
	KindSupplement   ProviderKind = "supplement"
	KindLiterature   ProviderKind = "literature"
	KindInternal     ProviderKind = "internal"
	KindFallback     ProviderKind = "fallback"
)

// IsTrusted reports whether the kind counts as structured medical data
// for confidence bonuses and floors.
func (k ProviderKind) IsTrusted() bool {
	switch k {
	case KindStructured, KindAdverseEvent, KindLabel:
		return true
	default:
		return false
	}
}

// knownProviders maps exact provider names onto their kind.
var knownProviders = map[string]ProviderKind{
	strings.ToLower(domain.ProviderRxNorm):          KindStructured,
	strings.ToLower(domain.ProviderFDALabel):        KindLabel,
	strings.ToLower(domain.ProviderFDAEvents):       KindAdverseEvent,
	strings.ToLower(domain.ProviderEventStatistics): KindAdverseEvent,
	strings.ToLower(domain.ProviderSupplementDB):    KindSupplement,
	strings.ToLower(domain.ProviderLiterature):      KindLiterature,
	strings.ToLower(domain.ProviderHighRiskTable):   KindInternal,
}

// providerHints classifies unlisted provider names by substring, first match wins.
var providerHints = []struct {
	term string
	kind ProviderKind
}{
	{"adverse", KindAdverseEvent},
	{"event", KindAdverseEvent},
	{"faers", KindAdverseEvent},
	{"rxnorm", KindStructured},
	{"drugbank", KindStructured},
	{"interaction database", KindStructured},
	{"supplement", KindSupplement},
	{"natural", KindSupplement},
	{"herbal", KindSupplement},
	{"literature", KindLiterature},
	{"ai ", KindLiterature},
	{"openai", KindLiterature},
	{"label", KindLabel},
	{"fda", KindLabel},
}

// ClassifyProvider resolves the kind of the provider that produced a signal.
func ClassifyProvider(provider string) ProviderKind {
	name := strings.ToLower(strings.TrimSpace(provider))
	if kind, ok := knownProviders[name]; ok {
		return kind
	}
	for _, hint := range providerHints {
		if strings.Contains(name, hint.term) {
			return hint.kind
		}
	}
	return KindFallback
}

// DefaultWeights returns the stock reliability table.
func DefaultWeights() domain.WeightConfig {
	return domain.WeightConfig{
		Structured:       0.85,
		AdverseEvent:     0.80,
		Label:            0.80,
		Supplement:       0.65,
		Literature:       0.55,
		LiteratureCap:    0.65,
		Internal:         0.95,
		Fallback:         0.40,
		EventBonusCap:    0.10,
		SeriousBonus:     0.05,
		SeriousThreshold: 0.05,
		SevereBoost:      1.10,
		UnknownPenalty:   0.60,
	}
}

// withDefaults fills zero-valued entries from DefaultWeights.
func withDefaults(cfg domain.WeightConfig) domain.WeightConfig {
	def := DefaultWeights()
	fill := func(v *float64, d float64) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&cfg.Structured, def.Structured)
	fill(&cfg.AdverseEvent, def.AdverseEvent)
	fill(&cfg.Label, def.Label)
	fill(&cfg.Supplement, def.Supplement)
	fill(&cfg.Literature, def.Literature)
	fill(&cfg.LiteratureCap, def.LiteratureCap)
	fill(&cfg.Internal, def.Internal)
	fill(&cfg.Fallback, def.Fallback)
	fill(&cfg.EventBonusCap, def.EventBonusCap)
	fill(&cfg.SeriousBonus, def.SeriousBonus)
	fill(&cfg.SeriousThreshold, def.SeriousThreshold)
	fill(&cfg.SevereBoost, def.SevereBoost)
	fill(&cfg.UnknownPenalty, def.UnknownPenalty)
	return cfg
}

// WeightAssigner converts validated signals into reliability weights in [0,1].
type WeightAssigner struct {
	cfg domain.WeightConfig
}

// NewWeightAssigner creates a weight assigner; zero entries take stock values.
func NewWeightAssigner(cfg domain.WeightConfig) *WeightAssigner {
	return &WeightAssigner{cfg: withDefaults(cfg)}
}

// Config returns the effective weight table.
func (w *WeightAssigner) Config() domain.WeightConfig {
	return w.cfg
}

// BaseWeight returns the table weight for a provider kind.
func (w *WeightAssigner) BaseWeight(kind ProviderKind) float64 {
	switch kind {
	case KindStructured:
		return w.cfg.Structured
	case KindAdverseEvent:
		return w.cfg.AdverseEvent
	case KindLabel:
		return w.cfg.Label
	case KindSupplement:
		return w.cfg.Supplement
	case KindLiterature:
		return w.cfg.Literature
	case KindInternal:
		return w.cfg.Internal
	default:
		return w.cfg.Fallback
	}
}

// Weight computes the reliability weight of one signal. The adjustment order is
// fixed: confidence multiplier, event volume bonus, serious-event bonus, severe
// boost (never for literature analysis), unknown penalty, literature cap, clamp.
func (w *WeightAssigner) Weight(signal domain.RawSourceSignal) float64 {
	kind := ClassifyProvider(signal.Provider)
	weight := w.BaseWeight(kind)

	// An unlisted provider that vouches for itself is treated like a curated database.
	if kind == KindFallback && signal.IsReliableHint != nil && *signal.IsReliableHint {
		weight = w.cfg.Supplement
	}

	if signal.Confidence != nil {
		weight *= ConfidenceMultiplier(*signal.Confidence)
	}

	if signal.HasEvents() {
		weight += w.EventVolumeBonus(signal.EventData.TotalEvents)
		if signal.EventData.SeriousPercentage() > w.cfg.SeriousThreshold {
			weight += w.cfg.SeriousBonus
		}
	}

	if signal.Severity == domain.SeveritySevere && kind != KindLiterature {
		weight *= w.cfg.SevereBoost
	}

	if signal.Severity == domain.SeverityUnknown || !signal.Severity.IsValid() {
		weight *= w.cfg.UnknownPenalty
	}

	if kind == KindLiterature && weight > w.cfg.LiteratureCap {
		weight = w.cfg.LiteratureCap
	}

	return clamp01(weight)
}

// EventVolumeBonus grows logarithmically with report volume and saturates at the cap.
// 1,000 reports reach the cap.
func (w *WeightAssigner) EventVolumeBonus(totalEvents int) float64 {
	if totalEvents <= 0 {
		return 0
	}
	bonus := math.Log10(float64(totalEvents)+1) / 3 * w.cfg.EventBonusCap
	return math.Min(bonus, w.cfg.EventBonusCap)
}

// ConfidenceMultiplier maps a self-reported 0-100 confidence onto [0.5, 1.5].
func ConfidenceMultiplier(confidence int) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return 0.5 + float64(confidence)/100
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
