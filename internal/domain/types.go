// Package domain contains the core entities shared by the medication interaction
// consensus engine: severities, per-source signals, consensus and interaction results.
//
// Two orderings exist over Severity and they are deliberately separate constructs:
// the escalation order (EscalationRank, MostSevere) picks the worse of two results,
// while vote buckets (VoteKey, VoteTieBreakOrder) only accumulate weighted tallies.
package domain

import (
	"errors"
	"strings"
)

// Severity is the interaction severity reported by a source or resolved by consensus.
// Unknown means "no usable signal", not "zero risk".
type Severity string

const (
	SeveritySafe     Severity = "safe"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityUnknown  Severity = "unknown"
)

// Validation errors for engine data integrity
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidSeverity = errors.New("invalid interaction severity")
	ErrTooFewDrugs     = errors.New("at least two medications are required")
)

// AllSeverities lists every severity in escalation order, most severe first.
var AllSeverities = []Severity{
	SeveritySevere,
	SeverityModerate,
	SeverityMinor,
	SeveritySafe,
	SeverityUnknown,
}

// IsValid reports whether s is one of the five defined severities.
func (s Severity) IsValid() bool {
	switch s {
	case SeveritySafe, SeverityMinor, SeverityModerate, SeveritySevere, SeverityUnknown:
		return true
	default:
		return false
	}
}

// IsKnown reports whether s carries an actual risk assessment.
func (s Severity) IsKnown() bool {
	return s.IsValid() && s != SeverityUnknown
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// EscalationRank positions s on the clinical escalation order
// severe > moderate > minor > safe > unknown. Unrecognised values rank with unknown.
func (s Severity) EscalationRank() int {
	switch s {
	case SeveritySevere:
		return 4
	case SeverityModerate:
		return 3
	case SeverityMinor:
		return 2
	case SeveritySafe:
		return 1
	default:
		return 0
	}
}

// MoreSevereThan reports whether s escalates above other.
func (s Severity) MoreSevereThan(other Severity) bool {
	return s.EscalationRank() > other.EscalationRank()
}

// MostSevere returns the highest severity on the escalation order.
// An empty input yields SeverityUnknown.
func MostSevere(severities ...Severity) Severity {
	worst := SeverityUnknown
	for _, s := range severities {
		if s.MoreSevereThan(worst) {
			worst = s
		}
	}
	return worst
}

// ParseSeverity maps free-form provider wording onto a Severity.
// Unrecognised text returns SeverityUnknown together with ErrInvalidSeverity.
func ParseSeverity(raw string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "severe", "high", "major", "contraindicated", "serious", "critical":
		return SeveritySevere, nil
	case "moderate", "medium":
		return SeverityModerate, nil
	case "minor", "low", "mild":
		return SeverityMinor, nil
	case "safe", "none", "no interaction":
		return SeveritySafe, nil
	case "unknown", "n/a", "":
		return SeverityUnknown, nil
	default:
		return SeverityUnknown, ErrInvalidSeverity
	}
}

// VoteKey identifies one of the five independent weighted-vote buckets.
// Buckets carry no numeric order; ties are resolved with VoteTieBreakOrder.
type VoteKey Severity

// VoteTieBreakOrder is the preference used when two buckets hold exactly
// the same weighted vote. Caution wins ties.
var VoteTieBreakOrder = []VoteKey{
	VoteKey(SeveritySevere),
	VoteKey(SeverityModerate),
	VoteKey(SeverityMinor),
	VoteKey(SeveritySafe),
	VoteKey(SeverityUnknown),
}

// Vote returns the bucket a severity votes into. Invalid values vote unknown.
func (s Severity) Vote() VoteKey {
	if !s.IsValid() {
		return VoteKey(SeverityUnknown)
	}
	return VoteKey(s)
}

// Severity converts a bucket back into its severity.
func (v VoteKey) Severity() Severity {
	return Severity(v)
}

// LogFields returns structured logging fields for a severity.
func (s Severity) LogFields() map[string]any {
	return map[string]any{
		"severity":        string(s),
		"escalation_rank": s.EscalationRank(),
		"is_known":        s.IsKnown(),
	}
}
