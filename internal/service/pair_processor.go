package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/medconsensus-server/internal/domain"
)

// Pair processing defaults.
const (
	DefaultProviderTimeout = 8 * time.Second
	DefaultStoreTimeout    = 2 * time.Second
	DefaultRefreshAge      = 7 * 24 * time.Hour
)

// PairProcessorConfig configures a PairProcessor.
type PairProcessorConfig struct {
	RefreshAge      time.Duration
	StoreTimeout    time.Duration
	ProviderTimeout time.Duration // used when a provider reports no timeout of its own
}

// PairProcessor runs the full pipeline for one medication pair:
// high-risk check, session cache, provider fan-out, consensus, persistence.
type PairProcessor struct {
	highRisk   *HighRiskChecker
	cache      *SessionCache
	providers  []domain.SignalProvider
	validator  *SourceValidator
	calculator *ConsensusCalculator
	store      domain.ResultStore
	normalizer domain.Normalizer
	config     PairProcessorConfig
	logger     *logrus.Logger
	now        func() time.Time
}

// PairProcessorDeps bundles the collaborators of a PairProcessor.
// Store and Normalizer are optional.
type PairProcessorDeps struct {
	HighRisk   *HighRiskChecker
	Cache      *SessionCache
	Providers  []domain.SignalProvider
	Validator  *SourceValidator
	Calculator *ConsensusCalculator
	Store      domain.ResultStore
	Normalizer domain.Normalizer
}

// NewPairProcessor creates a new pair processor
func NewPairProcessor(deps PairProcessorDeps, config PairProcessorConfig, logger *logrus.Logger) *PairProcessor {
	if config.RefreshAge <= 0 {
		config.RefreshAge = DefaultRefreshAge
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = DefaultProviderTimeout
	}
	if deps.HighRisk == nil {
		deps.HighRisk = NewHighRiskChecker(nil)
	}
	if deps.Validator == nil {
		deps.Validator = NewSourceValidator(logger)
	}
	if deps.Calculator == nil {
		deps.Calculator = NewConsensusCalculator(NewWeightAssigner(domain.WeightConfig{}), deps.Validator, logger)
	}
	if deps.Normalizer == nil {
		deps.Normalizer = domain.DefaultNormalizer
	}

	return &PairProcessor{
		highRisk:   deps.HighRisk,
		cache:      deps.Cache,
		providers:  deps.Providers,
		validator:  deps.Validator,
		calculator: deps.Calculator,
		store:      deps.Store,
		normalizer: deps.Normalizer,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// Key returns the canonical key of a pair.
func (p *PairProcessor) Key(med1, med2 string) string {
	return domain.PairKey(p.normalizer, med1, med2)
}

// CheckPair always returns a usable result. Internal faults are recovered and
// converted into an unknown-severity result describing the failure.
func (p *PairProcessor) CheckPair(ctx context.Context, med1, med2 string) (result *domain.InteractionResult) {
	key := p.Key(med1, med2)
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"key":   key,
				"code":  domain.ErrConsensus,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Pair processing failed unexpectedly")
			result = FailureResult(key, []string{med1, med2}, fmt.Errorf("%v", r), p.now())
		}
	}()
	return p.checkPair(ctx, key, med1, med2)
}

func (p *PairProcessor) checkPair(ctx context.Context, key, med1, med2 string) *domain.InteractionResult {
	meds := []string{med1, med2}

	if hit := p.highRisk.Check(med1, med2); hit != nil {
		hit.Key = key
		p.logger.WithFields(logrus.Fields{
			"key": key,
		}).Info("High-risk combination matched, skipping providers")
		return hit
	}

	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok && cached.HasSources() {
			return cached
		}
	}

	signals := p.fetchSignals(ctx, med1, med2)
	if len(signals) == 0 {
		if stored := p.loadPersisted(ctx, key); stored.HasSources() {
			p.logger.WithFields(logrus.Fields{
				"key": key,
			}).Info("No live provider data, serving persisted result")
			p.remember(key, stored)
			return stored
		}
		return NoDataResult(key, meds, p.now())
	}

	eligible, fellBack := p.validator.EligibleWithFallback(signals)
	if fellBack {
		// Nothing usable came back; a stored assessment outranks the raw leftovers.
		if stored := p.loadPersisted(ctx, key); stored.HasSources() && stored.Severity.IsKnown() {
			p.logger.WithFields(logrus.Fields{
				"key":     key,
				"signals": len(signals),
			}).Info("No usable provider signals, serving persisted result")
			p.remember(key, stored)
			return stored
		}
	}
	eval := p.calculator.EvaluateEligible(eligible, nil)

	sources := make([]domain.RawSourceSignal, 0, len(eval.Sources))
	for _, ws := range eval.Sources {
		sources = append(sources, ws.Signal)
	}

	result := &domain.InteractionResult{
		Key:             key,
		Medications:     meds,
		Severity:        eval.Result.Severity,
		Description:     eval.Result.Description,
		Sources:         sources,
		ConfidenceScore: eval.Result.ConfidenceScore,
		AIValidated:     eval.Result.AIValidated,
		CheckedAt:       p.now().UTC(),
	}

	p.logger.WithFields(logrus.Fields{
		"key":        key,
		"severity":   result.Severity,
		"confidence": result.ConfidenceScore,
		"signals":    len(signals),
		"eligible":   len(eligible),
		"fallback":   fellBack,
	}).Info("Pair consensus computed")

	p.persist(ctx, key, result)
	p.remember(key, result)
	return result
}

// fetchSignals queries every provider concurrently. A failing, panicking or
// timed-out provider contributes no signal. Output order follows provider order.
func (p *PairProcessor) fetchSignals(ctx context.Context, med1, med2 string) []domain.RawSourceSignal {
	slots := make([]*domain.RawSourceSignal, len(p.providers))

	var g errgroup.Group
	for i, provider := range p.providers {
		g.Go(func() error {
			slots[i] = p.fetchOne(ctx, provider, med1, med2)
			return nil
		})
	}
	_ = g.Wait()

	signals := make([]domain.RawSourceSignal, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			signals = append(signals, *s)
		}
	}
	return signals
}

func (p *PairProcessor) fetchOne(ctx context.Context, provider domain.SignalProvider, med1, med2 string) (signal *domain.RawSourceSignal) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"provider": provider.Name(),
				"panic":    r,
			}).Error("Provider panicked, treating as no signal")
			signal = nil
		}
	}()

	timeout := provider.Timeout()
	if timeout <= 0 {
		timeout = p.config.ProviderTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.now()
	signal, err := provider.FetchSignal(callCtx, med1, med2)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"provider": provider.Name(),
			"duration": p.now().Sub(start),
			"error":    err.Error(),
		}).Warn("Provider fetch failed, treating as no signal")
		return nil
	}
	if signal != nil && signal.Provider == "" {
		named := *signal
		named.Provider = provider.Name()
		signal = &named
	}
	return signal
}

func (p *PairProcessor) loadPersisted(ctx context.Context, key string) *domain.InteractionResult {
	if p.store == nil {
		return nil
	}
	storeCtx, cancel := context.WithTimeout(ctx, p.config.StoreTimeout)
	defer cancel()

	stored, err := p.store.GetResult(storeCtx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("Persisted result lookup failed, treating as miss")
		}
		return nil
	}
	return stored
}

func (p *PairProcessor) persist(ctx context.Context, key string, fresh *domain.InteractionResult) {
	if p.store == nil || !fresh.HasSources() {
		return
	}
	stored := p.loadPersisted(ctx, key)
	if !ShouldReplace(stored, fresh, p.config.RefreshAge, p.now()) {
		p.logger.WithFields(logrus.Fields{
			"key": key,
		}).Debug("Stored result is stronger, keeping it")
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, p.config.StoreTimeout)
	defer cancel()
	if err := p.store.SaveResult(storeCtx, key, fresh); err != nil {
		p.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Failed to persist interaction result")
	}
}

func (p *PairProcessor) remember(key string, result *domain.InteractionResult) {
	if p.cache != nil {
		p.cache.Put(key, result)
	}
}

// ShouldReplace reports whether fresh may overwrite stored. A weaker fresh
// result never downgrades a stored one unless the stored one is older than
// refreshAge. An unknown fresh result never displaces a known stored severity
// before that age, however many sources it carries.
func ShouldReplace(stored, fresh *domain.InteractionResult, refreshAge time.Duration, now time.Time) bool {
	stale := stored != nil && refreshAge > 0 && now.Sub(stored.CheckedAt) > refreshAge
	switch {
	case fresh == nil:
		return false
	case stored == nil:
		return true
	case stored.Severity.IsKnown() && !fresh.Severity.IsKnown():
		return stale
	case len(fresh.Sources) > len(stored.Sources):
		return true
	case fresh.ConfidenceScore > stored.ConfidenceScore:
		return true
	case fresh.Severity.MoreSevereThan(stored.Severity):
		return true
	case fresh.AIValidated && !stored.AIValidated:
		return true
	case stale:
		return true
	default:
		return false
	}
}

// NoDataResult is the standardized result when no provider had usable data.
func NoDataResult(key string, meds []string, now time.Time) *domain.InteractionResult {
	return &domain.InteractionResult{
		Key:             key,
		Medications:     meds,
		Severity:        domain.SeverityUnknown,
		Description:     NoDataDescription,
		Sources:         []domain.RawSourceSignal{},
		ConfidenceScore: 0,
		AIValidated:     false,
		CheckedAt:       now.UTC(),
	}
}

// FailureResult converts an internal fault into a usable unknown result.
func FailureResult(key string, meds []string, cause error, now time.Time) *domain.InteractionResult {
	result := NoDataResult(key, meds, now)
	result.Description = fmt.Sprintf("Interaction check could not be completed (%s): %v", domain.ErrConsensus, cause)
	return result
}
