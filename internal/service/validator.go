package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/domain"
)

// MinDescriptionLength is the shortest description that counts as evidence
// for a signal without a known severity.
const MinDescriptionLength = 20

// negationPhrases mark a provider response that found nothing.
var negationPhrases = []string{
	"no interaction found",
	"no interactions found",
	"no known interaction",
	"no interaction data",
	"no interactions were found",
	"no data available",
	"no information available",
	"not found in database",
	"no results",
}

// boilerplatePhrases are generic advice that carries no pair-specific evidence.
var boilerplatePhrases = []string{
	"consult your doctor",
	"consult your healthcare provider",
	"consult a healthcare professional",
	"ask your pharmacist",
	"information not available",
}

// SourceValidator decides which signals carry real evidence and may vote.
type SourceValidator struct {
	logger *logrus.Logger
}

// NewSourceValidator creates a source validator
func NewSourceValidator(logger *logrus.Logger) *SourceValidator {
	return &SourceValidator{logger: logger}
}

// Rejection explains why a signal was not eligible. Empty means eligible.
type Rejection string

const (
	RejectNone        Rejection = ""
	RejectNoProvider  Rejection = "missing_provider"
	RejectNoData      Rejection = "no_data_sentinel"
	RejectNoEvidence  Rejection = "no_evidence"
	RejectNegation    Rejection = "negated_interaction"
	RejectBoilerplate Rejection = "boilerplate_text"
)

// Check validates a single signal.
func (v *SourceValidator) Check(signal domain.RawSourceSignal) Rejection {
	provider := strings.TrimSpace(signal.Provider)
	if provider == "" {
		return RejectNoProvider
	}
	if strings.EqualFold(provider, domain.ProviderNoData) {
		return RejectNoData
	}

	// Real adverse-event counts are evidence regardless of wording.
	if signal.HasEvents() {
		return RejectNone
	}

	if signal.Severity.IsKnown() {
		return RejectNone
	}

	desc := strings.ToLower(strings.TrimSpace(signal.Description))
	for _, phrase := range negationPhrases {
		if strings.Contains(desc, phrase) {
			return RejectNegation
		}
	}
	if len(desc) < MinDescriptionLength {
		return RejectNoEvidence
	}
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(desc, phrase) && len(desc) < 3*MinDescriptionLength {
			return RejectBoilerplate
		}
	}
	return RejectNone
}

// IsValid reports whether the signal may vote.
func (v *SourceValidator) IsValid(signal domain.RawSourceSignal) bool {
	return v.Check(signal) == RejectNone
}

// Filter returns only the eligible signals, preserving input order.
func (v *SourceValidator) Filter(signals []domain.RawSourceSignal) []domain.RawSourceSignal {
	eligible := make([]domain.RawSourceSignal, 0, len(signals))
	for _, s := range signals {
		reason := v.Check(s)
		if reason != RejectNone {
			v.logger.WithFields(logrus.Fields{
				"provider": s.Provider,
				"severity": s.Severity,
				"reason":   reason,
			}).Debug("Signal rejected by source validator")
			continue
		}
		eligible = append(eligible, s)
	}
	return eligible
}

// EligibleWithFallback filters signals and, when nothing survives out of a
// non-empty input, returns the unfiltered input instead. The boolean reports
// whether the fallback branch was taken.
func (v *SourceValidator) EligibleWithFallback(signals []domain.RawSourceSignal) ([]domain.RawSourceSignal, bool) {
	eligible := v.Filter(signals)
	if len(eligible) > 0 || len(signals) == 0 {
		return eligible, false
	}

	v.logger.WithFields(logrus.Fields{
		"input_signals": len(signals),
	}).Warn("No signal passed validation, falling back to the unfiltered source set")

	fallback := make([]domain.RawSourceSignal, len(signals))
	copy(fallback, signals)
	return fallback, true
}
