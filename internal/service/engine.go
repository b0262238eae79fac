package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/domain"
)

// Engine wires the consensus components into the operations exposed by the
// HTTP API and the MCP tools.
type Engine struct {
	cache        *SessionCache
	validator    *SourceValidator
	calculator   *ConsensusCalculator
	pairs        *PairProcessor
	combinations *CombinationAggregator
	logger       *logrus.Logger
}

// EngineDeps are the external collaborators of an Engine. Store may be nil.
type EngineDeps struct {
	Providers []domain.SignalProvider
	Store     domain.ResultStore
}

// NewEngine builds the engine from configuration.
func NewEngine(deps EngineDeps, config domain.EngineConfig, logger *logrus.Logger) (*Engine, error) {
	cache, err := NewSessionCache(config.SessionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	validator := NewSourceValidator(logger)
	calculator := NewConsensusCalculator(NewWeightAssigner(config.Weights), validator, logger)

	pairs := NewPairProcessor(PairProcessorDeps{
		HighRisk:   NewHighRiskChecker(nil),
		Cache:      cache,
		Providers:  deps.Providers,
		Validator:  validator,
		Calculator: calculator,
		Store:      deps.Store,
	}, PairProcessorConfig{
		RefreshAge:   config.RefreshAge,
		StoreTimeout: config.StoreTimeout,
	}, logger)

	combinations := NewCombinationAggregator(pairs, cache, nil, CombinationConfig{
		MaxTriples:      config.MaxTriples,
		PairConcurrency: config.PairConcurrency,
	}, logger)

	logger.WithFields(logrus.Fields{
		"providers":   len(deps.Providers),
		"persistence": deps.Store != nil,
		"max_triples": config.MaxTriples,
	}).Info("Consensus engine ready")

	return &Engine{
		cache:        cache,
		validator:    validator,
		calculator:   calculator,
		pairs:        pairs,
		combinations: combinations,
		logger:       logger,
	}, nil
}

// CheckPair returns the interaction verdict for two medications.
func (e *Engine) CheckPair(ctx context.Context, med1, med2 string) *domain.InteractionResult {
	return e.pairs.CheckPair(ctx, med1, med2)
}

// CheckCombinations returns singles, pairs and triples for a medication list.
func (e *Engine) CheckCombinations(ctx context.Context, medications []string) []domain.CombinationResult {
	return e.combinations.CheckAllCombinations(ctx, medications)
}

// CheckTriple returns the aggregated verdict for three medications.
func (e *Engine) CheckTriple(ctx context.Context, med1, med2, med3 string) *domain.InteractionResult {
	return e.combinations.CheckTriple(ctx, med1, med2, med3)
}

// Evaluate runs consensus over caller-supplied signals, with validation.
func (e *Engine) Evaluate(signals []domain.RawSourceSignal, stats *domain.EventStats) *Evaluation {
	return e.calculator.Evaluate(signals, stats)
}

// ValidateSignal reports why a signal would be excluded, if at all.
func (e *Engine) ValidateSignal(signal domain.RawSourceSignal) Rejection {
	return e.validator.Check(signal)
}

// Key returns the canonical combination key.
func (e *Engine) Key(medications ...string) string {
	return domain.CombinationKey(nil, medications...)
}

// CacheStats returns session cache counters.
func (e *Engine) CacheStats() SessionCacheStats {
	return e.cache.Stats()
}

// ClearCache drops every session cache entry.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	e.logger.Info("Session cache cleared")
}
