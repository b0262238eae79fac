package service

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/medconsensus-server/internal/domain"
)

// Combination defaults.
const (
	DefaultMaxTriples      = 5
	DefaultPairConcurrency = 4
	pairsPerTriple         = 3
)

// PairChecker is the part of PairProcessor the aggregator depends on.
type PairChecker interface {
	CheckPair(ctx context.Context, med1, med2 string) *domain.InteractionResult
}

// CombinationConfig configures a CombinationAggregator.
type CombinationConfig struct {
	MaxTriples      int
	PairConcurrency int
}

// CombinationAggregator expands a medication list into singles, pairs and
// triples and folds pairwise results into triple results.
type CombinationAggregator struct {
	pairs      PairChecker
	cache      *SessionCache
	normalizer domain.Normalizer
	config     CombinationConfig
	logger     *logrus.Logger
	now        func() time.Time
}

// NewCombinationAggregator creates a combination aggregator; cache may be nil.
func NewCombinationAggregator(pairs PairChecker, cache *SessionCache, normalizer domain.Normalizer, config CombinationConfig, logger *logrus.Logger) *CombinationAggregator {
	if config.MaxTriples <= 0 {
		config.MaxTriples = DefaultMaxTriples
	}
	if config.PairConcurrency <= 0 {
		config.PairConcurrency = DefaultPairConcurrency
	}
	if normalizer == nil {
		normalizer = domain.DefaultNormalizer
	}
	return &CombinationAggregator{
		pairs:      pairs,
		cache:      cache,
		normalizer: normalizer,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// CheckAllCombinations returns one result per single, per pair and, with three
// or more medications, per triple (capped at MaxTriples). Duplicate and blank
// names are dropped first.
func (a *CombinationAggregator) CheckAllCombinations(ctx context.Context, medications []string) []domain.CombinationResult {
	meds := a.distinct(medications)
	results := make([]domain.CombinationResult, 0, len(meds)*2)

	for _, m := range meds {
		results = append(results, domain.CombinationResult{
			Type:        domain.CombinationSingle,
			Label:       m,
			Medications: []string{m},
			Result:      a.singleResult(m),
		})
	}

	pairIdx := unorderedPairs(len(meds))
	pairResults := make([]*domain.InteractionResult, len(pairIdx))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.PairConcurrency)
	for i, idx := range pairIdx {
		g.Go(func() error {
			pairResults[i] = a.pairs.CheckPair(gctx, meds[idx[0]], meds[idx[1]])
			return nil
		})
	}
	_ = g.Wait()

	for i, idx := range pairIdx {
		pair := []string{meds[idx[0]], meds[idx[1]]}
		results = append(results, domain.CombinationResult{
			Type:        domain.CombinationPair,
			Label:       comboLabel(pair),
			Medications: pair,
			Result:      pairResults[i],
		})
	}

	if len(meds) < 3 {
		return results
	}

	tripleIdx := unorderedTriples(len(meds), a.config.MaxTriples)
	tripleResults := make([]*domain.InteractionResult, len(tripleIdx))
	tg, tctx := errgroup.WithContext(ctx)
	for i, idx := range tripleIdx {
		tg.Go(func() error {
			tripleResults[i] = a.CheckTriple(tctx, meds[idx[0]], meds[idx[1]], meds[idx[2]])
			return nil
		})
	}
	_ = tg.Wait()

	for i, idx := range tripleIdx {
		triple := []string{meds[idx[0]], meds[idx[1]], meds[idx[2]]}
		results = append(results, domain.CombinationResult{
			Type:        domain.CombinationTriple,
			Label:       comboLabel(triple),
			Medications: triple,
			Result:      tripleResults[i],
		})
	}

	a.logger.WithFields(logrus.Fields{
		"medications": len(meds),
		"pairs":       len(pairIdx),
		"triples":     len(tripleIdx),
	}).Info("Combination check completed")

	return results
}

// CheckTriple evaluates the three constituent pairs concurrently and folds them.
func (a *CombinationAggregator) CheckTriple(ctx context.Context, med1, med2, med3 string) (result *domain.InteractionResult) {
	meds := []string{med1, med2, med3}
	key := domain.CombinationKey(a.normalizer, meds...)
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithFields(logrus.Fields{
				"key":   key,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Triple aggregation failed unexpectedly")
			result = FailureResult(key, meds, fmt.Errorf("%v", r), a.now())
		}
	}()

	if a.cache != nil {
		if cached, ok := a.cache.Get(key); ok && cached.HasSources() {
			return cached
		}
	}

	constituents := [pairsPerTriple][2]string{{med1, med2}, {med1, med3}, {med2, med3}}
	var pairResults [pairsPerTriple]*domain.InteractionResult
	var g errgroup.Group
	for i, pair := range constituents {
		g.Go(func() error {
			pairResults[i] = a.pairs.CheckPair(ctx, pair[0], pair[1])
			return nil
		})
	}
	_ = g.Wait()

	result = AggregateTriple(key, meds, pairResults[:], a.now())
	if result.HasSources() && a.cache != nil {
		a.cache.Put(key, result)
	}
	return result
}

// AggregateTriple folds constituent pair results into one triple result.
// Pairs lacking a known severity or any source are discarded.
func AggregateTriple(key string, meds []string, pairs []*domain.InteractionResult, now time.Time) *domain.InteractionResult {
	valid := make([]*domain.InteractionResult, 0, len(pairs))
	for _, p := range pairs {
		if IsEvaluatedPair(p) {
			valid = append(valid, p)
		}
	}

	if len(valid) == 0 {
		result := NoDataResult(key, meds, now)
		result.Description = fmt.Sprintf("No interaction data available for the combination of %s.", joinNames(meds))
		return result
	}

	severities := make([]domain.Severity, 0, len(valid))
	total := 0
	aiValidated := false
	type sourceID struct {
		provider string
		severity domain.Severity
	}
	seen := make(map[sourceID]struct{})
	sources := make([]domain.RawSourceSignal, 0)

	for _, p := range valid {
		severities = append(severities, p.Severity)
		total += p.ConfidenceScore
		aiValidated = aiValidated || p.AIValidated
		for _, s := range p.Sources {
			id := sourceID{provider: s.Provider, severity: s.Severity}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			sources = append(sources, s)
		}
	}

	severity := domain.MostSevere(severities...)
	confidence := int(math.Round(float64(total) / float64(len(valid))))

	return &domain.InteractionResult{
		Key:             key,
		Medications:     meds,
		Severity:        severity,
		Description:     describeTriple(meds, severity, len(valid)),
		Sources:         sources,
		ConfidenceScore: confidence,
		AIValidated:     aiValidated,
		CheckedAt:       now.UTC(),
	}
}

// IsEvaluatedPair reports whether a pair result may contribute to a triple.
func IsEvaluatedPair(p *domain.InteractionResult) bool {
	return p != nil && p.Severity.IsKnown() && p.HasSources()
}

func describeTriple(meds []string, severity domain.Severity, evaluated int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Combination of %s: %s interaction risk, driven by the most severe of the evaluated pairs.",
		joinNames(meds), severity)
	if evaluated < pairsPerTriple {
		fmt.Fprintf(&b, " Only %d out of %d possible pairs could be evaluated.", evaluated, pairsPerTriple)
	} else {
		fmt.Fprintf(&b, " All %d possible pairs were evaluated.", pairsPerTriple)
	}
	return b.String()
}

func (a *CombinationAggregator) singleResult(med string) *domain.InteractionResult {
	return &domain.InteractionResult{
		Key:             domain.CombinationKey(a.normalizer, med),
		Medications:     []string{med},
		Severity:        domain.SeverityUnknown,
		Description:     fmt.Sprintf("%s taken alone: interaction checks need at least two medications.", med),
		Sources:         []domain.RawSourceSignal{},
		ConfidenceScore: 0,
		CheckedAt:       a.now().UTC(),
	}
}

// distinct drops blank names and names that normalize to an earlier one.
func (a *CombinationAggregator) distinct(medications []string) []string {
	seen := make(map[string]struct{}, len(medications))
	out := make([]string, 0, len(medications))
	for _, m := range medications {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		k := domain.CombinationKey(a.normalizer, m)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m)
	}
	return out
}

func comboLabel(meds []string) string {
	return strings.Join(meds, " + ")
}

func unorderedPairs(n int) [][2]int {
	var out [][2]int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, [2]int{i, j})
		}
	}
	return out
}

func unorderedTriples(n, limit int) [][3]int {
	var out [][3]int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				if len(out) >= limit {
					return out
				}
				out = append(out, [3]int{i, j, k})
			}
		}
	}
	return out
}
