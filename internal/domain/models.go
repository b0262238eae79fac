package domain

import (
	"time"
)

// Well-known provider names. Weight tables and the validator key on these.
const (
	ProviderRxNorm          = "RxNorm"
	ProviderFDALabel        = "FDA"
	ProviderFDAEvents       = "FDA Adverse Events"
	ProviderSupplementDB    = "Supplement Database"
	ProviderLiterature      = "AI Literature Analysis"
	ProviderHighRiskTable   = "High-Risk Combination Table"
	ProviderEventStatistics = "Adverse Event Statistics"
	ProviderNoData          = "No Data"
)

// EventStats summarises real-world adverse-event reports for a medication pair.
type EventStats struct {
	TotalEvents     int      `json:"total_events"`
	SeriousEvents   int      `json:"serious_events"`
	CommonReactions []string `json:"common_reactions,omitempty"`
}

// SeriousPercentage returns the fraction of serious events in [0,1].
func (e *EventStats) SeriousPercentage() float64 {
	if e == nil || e.TotalEvents <= 0 {
		return 0
	}
	return float64(e.SeriousEvents) / float64(e.TotalEvents)
}

// Normalized clamps counts so that 0 <= SeriousEvents <= TotalEvents.
func (e EventStats) Normalized() EventStats {
	if e.TotalEvents < 0 {
		e.TotalEvents = 0
	}
	if e.SeriousEvents < 0 {
		e.SeriousEvents = 0
	}
	if e.SeriousEvents > e.TotalEvents {
		e.SeriousEvents = e.TotalEvents
	}
	return e
}

// Adverse-event classification thresholds.
const (
	SeriousEventRatioSevere = 0.05
	MinorEventVolume        = 10
)

// ClassifyEvents maps adverse-event statistics onto a severity: a serious share
// of at least 5% is severe, any serious report is moderate, more than 10
// non-serious reports is minor, anything else is safe.
func ClassifyEvents(stats EventStats) Severity {
	stats = stats.Normalized()
	switch {
	case stats.SeriousEvents > 0 && stats.SeriousPercentage() >= SeriousEventRatioSevere:
		return SeveritySevere
	case stats.SeriousEvents > 0:
		return SeverityModerate
	case stats.TotalEvents > MinorEventVolume:
		return SeverityMinor
	default:
		return SeveritySafe
	}
}

// RawSourceSignal is one provider's evidence for a medication pair.
// Values are immutable once produced by a provider adapter.
type RawSourceSignal struct {
	Provider       string      `json:"provider"`
	Severity       Severity    `json:"severity"`
	Description    string      `json:"description"`
	Confidence     *int        `json:"confidence,omitempty"` // 0-100, self reported
	EventData      *EventStats `json:"event_data,omitempty"`
	IsReliableHint *bool       `json:"is_reliable_hint,omitempty"`
	Citations      []string    `json:"citations,omitempty"` // direct textual evidence
}

// HasEvents reports whether the signal carries real adverse-event counts.
func (s RawSourceSignal) HasEvents() bool {
	return s.EventData != nil && s.EventData.TotalEvents > 0
}

// WeightedSource pairs a signal with its computed reliability weight.
type WeightedSource struct {
	Signal RawSourceSignal `json:"signal"`
	Weight float64         `json:"weight"`
}

// ConsensusResult is the engine's resolved verdict for one pair of signals.
type ConsensusResult struct {
	Severity        Severity `json:"severity"`
	ConfidenceScore int      `json:"confidence_score"`
	Description     string   `json:"description"`
	AIValidated     bool     `json:"ai_validated"`
}

// InteractionResult is the verdict for a pair or triple of medications.
// It is never mutated after creation; recomputation produces a new value.
type InteractionResult struct {
	Key             string            `json:"key"`
	Medications     []string          `json:"medications"`
	Severity        Severity          `json:"severity"`
	Description     string            `json:"description"`
	Sources         []RawSourceSignal `json:"sources"`
	ConfidenceScore int               `json:"confidence_score"`
	AIValidated     bool              `json:"ai_validated"`
	CheckedAt       time.Time         `json:"checked_at"`
}

// HasSources reports whether any provider evidence backs the result.
func (r *InteractionResult) HasSources() bool {
	return r != nil && len(r.Sources) > 0
}

// CombinationType tags the arity of a combination result.
type CombinationType string

const (
	CombinationSingle CombinationType = "single"
	CombinationPair   CombinationType = "pair"
	CombinationTriple CombinationType = "triple"
)

// CombinationResult is one entry of a full combination check.
type CombinationResult struct {
	Type        CombinationType    `json:"type"`
	Label       string             `json:"label"`
	Medications []string           `json:"medications"`
	Result      *InteractionResult `json:"result"`
}
