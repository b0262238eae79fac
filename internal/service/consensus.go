package service

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/domain"
)

// Event statistics voting parameters.
const (
	eventVoteWeight       = 0.95
	severeOverrideSources = 2
	severeOverrideWeight  = 0.6
)

// Evaluation is the full outcome of one consensus run, including the
// intermediate values needed for debugging and explanation.
type Evaluation struct {
	Result         domain.ConsensusResult     `json:"result"`
	Sources        []domain.WeightedSource    `json:"sources"`
	Votes          map[domain.VoteKey]float64 `json:"votes"`
	Occurrences    map[domain.VoteKey]int     `json:"occurrences"`
	TotalWeight    float64                    `json:"total_weight"`
	SevereOverride bool                       `json:"severe_override"`
	Adjustments    []ScoreAdjustment          `json:"adjustments"`
}

// ConsensusCalculator resolves heterogeneous signals into one severity.
// It holds no per-call state and is safe for concurrent use.
type ConsensusCalculator struct {
	validator *SourceValidator
	weights   *WeightAssigner
	logger    *logrus.Logger
}

// NewConsensusCalculator creates a consensus calculator
func NewConsensusCalculator(weights *WeightAssigner, validator *SourceValidator, logger *logrus.Logger) *ConsensusCalculator {
	return &ConsensusCalculator{
		validator: validator,
		weights:   weights,
		logger:    logger,
	}
}

// Evaluate validates the signals, then resolves consensus over the eligible ones.
// An empty or all-invalid list yields unknown with confidence 0.
func (c *ConsensusCalculator) Evaluate(signals []domain.RawSourceSignal, stats *domain.EventStats) *Evaluation {
	return c.EvaluateEligible(c.validator.Filter(signals), stats)
}

// EvaluateEligible resolves consensus over signals that already passed validation.
func (c *ConsensusCalculator) EvaluateEligible(signals []domain.RawSourceSignal, stats *domain.EventStats) *Evaluation {
	eval := &Evaluation{
		Votes:       make(map[domain.VoteKey]float64, len(domain.VoteTieBreakOrder)),
		Occurrences: make(map[domain.VoteKey]int, len(domain.VoteTieBreakOrder)),
	}

	hasStats := stats != nil && stats.TotalEvents > 0
	if len(signals) == 0 && !hasStats {
		eval.Result = noDataConsensus()
		return eval
	}

	scored := make([]ScoredSource, 0, len(signals)+1)
	for _, signal := range dedupeByProvider(signals) {
		weight := c.weights.Weight(signal)
		key := signal.Severity.Vote()
		eval.Votes[key] += weight
		eval.Occurrences[key]++
		eval.TotalWeight += weight
		eval.Sources = append(eval.Sources, domain.WeightedSource{Signal: signal, Weight: weight})
		scored = append(scored, ScoredSource{Signal: signal, Weight: weight, Kind: ClassifyProvider(signal.Provider)})
	}

	if hasStats {
		normalized := stats.Normalized()
		severity, weight := ClassifyEventStats(normalized)
		signal := domain.RawSourceSignal{
			Provider:    domain.ProviderEventStatistics,
			Severity:    severity,
			Description: "Adverse event report statistics",
			EventData:   &normalized,
		}
		key := severity.Vote()
		eval.Votes[key] += weight
		eval.Occurrences[key]++
		eval.TotalWeight += weight
		eval.Sources = append(eval.Sources, domain.WeightedSource{Signal: signal, Weight: weight})
		scored = append(scored, ScoredSource{Signal: signal, Weight: weight, Kind: KindAdverseEvent})
	}

	if eval.TotalWeight <= 0 {
		eval.Result = noDataConsensus()
		return eval
	}

	final := pickSeverity(eval.Votes)
	if severeAgreement(scored) {
		if final != domain.SeveritySevere {
			c.logger.WithFields(logrus.Fields{
				"max_vote_severity": final,
			}).Info("Independent high-weight sources agree on severe, overriding vote")
		}
		final = domain.SeveritySevere
		eval.SevereOverride = true
	}

	// Agreeing on "unknown" validates nothing.
	aiValidated := false
	for _, s := range scored {
		if final.IsKnown() && s.Kind == KindLiterature && s.Signal.Severity == final {
			aiValidated = true
			break
		}
	}

	score, steps := ScoreConfidence(ConfidenceInput{
		Severity:    final,
		Votes:       eval.Votes,
		Occurrences: eval.Occurrences,
		TotalWeight: eval.TotalWeight,
		Sources:     scored,
		AIValidated: aiValidated,
	})
	eval.Adjustments = steps

	providers := make([]string, 0, len(eval.Sources))
	for _, ws := range eval.Sources {
		providers = append(providers, ws.Signal.Provider)
	}

	eval.Result = domain.ConsensusResult{
		Severity:        final,
		ConfidenceScore: score,
		Description:     DescribeConsensus(final, providers, score),
		AIValidated:     aiValidated,
	}

	c.logger.WithFields(logrus.Fields{
		"severity":        final,
		"confidence":      score,
		"sources":         len(eval.Sources),
		"total_weight":    eval.TotalWeight,
		"severe_override": eval.SevereOverride,
		"ai_validated":    aiValidated,
		"adjustments":     steps,
	}).Debug("Consensus resolved")

	return eval
}

// ClassifyEventStats turns adverse-event statistics into a severity vote and its weight.
func ClassifyEventStats(stats domain.EventStats) (domain.Severity, float64) {
	severity := domain.ClassifyEvents(stats)
	if severity == domain.SeveritySafe {
		return severity, eventVoteWeight / 2
	}
	return severity, eventVoteWeight
}

// pickSeverity returns the bucket with the strictly highest vote; exact ties
// go to the earlier entry of VoteTieBreakOrder.
func pickSeverity(votes map[domain.VoteKey]float64) domain.Severity {
	best := domain.VoteKey(domain.SeverityUnknown)
	bestVote := -1.0
	for _, key := range domain.VoteTieBreakOrder {
		if v := votes[key]; v > bestVote {
			best = key
			bestVote = v
		}
	}
	return best.Severity()
}

// severeAgreement reports whether two or more independently named sources,
// each weighing at least severeOverrideWeight, report severe.
func severeAgreement(sources []ScoredSource) bool {
	named := make(map[string]struct{})
	for _, s := range sources {
		if s.Signal.Severity == domain.SeveritySevere && s.Weight >= severeOverrideWeight {
			named[s.Signal.Provider] = struct{}{}
		}
	}
	return len(named) >= severeOverrideSources
}

// dedupeByProvider keeps the first signal per provider and orders the
// survivors alphabetically by provider name.
func dedupeByProvider(signals []domain.RawSourceSignal) []domain.RawSourceSignal {
	seen := make(map[string]struct{}, len(signals))
	unique := make([]domain.RawSourceSignal, 0, len(signals))
	for _, s := range signals {
		if _, dup := seen[s.Provider]; dup {
			continue
		}
		seen[s.Provider] = struct{}{}
		unique = append(unique, s)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Provider < unique[j].Provider
	})
	return unique
}

func noDataConsensus() domain.ConsensusResult {
	return domain.ConsensusResult{
		Severity:        domain.SeverityUnknown,
		ConfidenceScore: 0,
		Description:     NoDataDescription,
		AIValidated:     false,
	}
}
