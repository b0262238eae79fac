package service

import (
	"math"

	"github.com/medconsensus-server/internal/domain"
)

// Confidence heuristics. Each adjustment is additive and independently bounded.
const (
	strongAgreementBonus  = 15
	partialAgreementBonus = 10
	sourceCountBonus      = 10
	trustedSourceBonus    = 10
	largeSampleBonus      = 5
	aiCorroboratedBonus   = 15
	aiAgreementBonus      = 5
	unknownPenalty        = -30

	strongAgreement    = 0.75
	partialAgreement   = 0.50
	minSourcesForBonus = 3
	largeSampleEvents  = 100
	trustedFloor       = 50
	anyDataFloor       = 20
)

// ScoreAdjustment records one step of the confidence calculation.
type ScoreAdjustment struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
	Score int    `json:"score"` // running score after the step
}

// ScoredSource is a contributing source as seen by the confidence scorer.
type ScoredSource struct {
	Signal domain.RawSourceSignal
	Weight float64
	Kind   ProviderKind
}

// ConfidenceInput carries everything the confidence scorer reads.
type ConfidenceInput struct {
	Severity    domain.Severity
	Votes       map[domain.VoteKey]float64
	Occurrences map[domain.VoteKey]int
	TotalWeight float64
	Sources     []ScoredSource
	AIValidated bool
}

// AgreementRatio returns the share of known-severity sources that agree with
// the final severity. Unknown-severity sources never count as agreeing.
func (in ConfidenceInput) AgreementRatio() float64 {
	if !in.Severity.IsKnown() {
		return 0
	}
	known := 0
	for key, n := range in.Occurrences {
		if key.Severity().IsKnown() {
			known += n
		}
	}
	if known == 0 {
		return 0
	}
	return float64(in.Occurrences[in.Severity.Vote()]) / float64(known)
}

// ScoreConfidence is a pure function turning the vote distribution into a
// 0-100 confidence score together with the ordered list of applied steps.
func ScoreConfidence(in ConfidenceInput) (int, []ScoreAdjustment) {
	var steps []ScoreAdjustment
	if in.TotalWeight <= 0 {
		return 0, append(steps, ScoreAdjustment{Name: "no_weight", Delta: 0, Score: 0})
	}

	score := int(math.Round(100 * in.Votes[in.Severity.Vote()] / in.TotalWeight))
	steps = append(steps, ScoreAdjustment{Name: "base", Delta: score, Score: score})

	apply := func(name string, delta int) {
		score += delta
		steps = append(steps, ScoreAdjustment{Name: name, Delta: delta, Score: score})
	}

	agreement := in.AgreementRatio()
	switch {
	case agreement >= strongAgreement:
		apply("agreement", strongAgreementBonus)
	case agreement >= partialAgreement:
		apply("agreement", partialAgreementBonus)
	}

	if distinctProviders(in.Sources) >= minSourcesForBonus {
		apply("source_count", sourceCountBonus)
	}

	trusted := false
	largeSample := false
	for _, s := range in.Sources {
		if s.Kind.IsTrusted() {
			trusted = true
		}
		if s.Signal.EventData != nil && s.Signal.EventData.TotalEvents > largeSampleEvents {
			largeSample = true
		}
	}
	if trusted {
		apply("trusted_source", trustedSourceBonus)
	}
	if largeSample {
		apply("large_sample", largeSampleBonus)
	}

	if in.AIValidated && in.Severity.IsKnown() {
		others, direct := literatureCorroboration(in)
		switch {
		case others >= 2 && direct:
			apply("ai_corroboration", aiCorroboratedBonus)
		case others >= 1:
			apply("ai_agreement", aiAgreementBonus)
		}
	}

	if in.Severity == domain.SeverityUnknown {
		apply("unknown_severity", unknownPenalty)
	}

	if agreement >= strongAgreement && trusted && score < trustedFloor {
		apply("trusted_agreement_floor", trustedFloor-score)
	}
	if len(in.Sources) > 0 && score < anyDataFloor {
		apply("data_present_floor", anyDataFloor-score)
	}

	if score > 100 {
		apply("clamp", 100-score)
	}
	if score < 0 {
		apply("clamp", -score)
	}
	return score, steps
}

// literatureCorroboration counts non-literature sources agreeing with the final
// severity and whether an agreeing literature source quotes direct evidence.
func literatureCorroboration(in ConfidenceInput) (int, bool) {
	others := 0
	direct := false
	for _, s := range in.Sources {
		if s.Signal.Severity != in.Severity {
			continue
		}
		if s.Kind == KindLiterature {
			if len(s.Signal.Citations) > 0 {
				direct = true
			}
			continue
		}
		others++
	}
	return others, direct
}

func distinctProviders(sources []ScoredSource) int {
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		seen[s.Signal.Provider] = struct{}{}
	}
	return len(seen)
}
