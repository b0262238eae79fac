package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/domain"
	"github.com/medconsensus-server/internal/feedback"
	"github.com/medconsensus-server/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	healthTimeout   = 3 * time.Second
)

// CheckRequest asks for the verdict on a pair or a triple.
type CheckRequest struct {
	Medications []string `json:"medications" binding:"required,min=2,max=3,dive,required"`
}

// CombinationsRequest asks for every single, pair and triple of a list.
type CombinationsRequest struct {
	Medications []string `json:"medications" binding:"required,min=1,max=20"`
}

// CombinationsResponse wraps the combination results.
type CombinationsResponse struct {
	Count   int                        `json:"count"`
	Results []domain.CombinationResult `json:"results"`
}

// ConsensusRequest evaluates caller-supplied signals directly.
type ConsensusRequest struct {
	Signals    []domain.RawSourceSignal `json:"signals"`
	EventStats *domain.EventStats       `json:"event_stats,omitempty"`
}

// RejectedSignal names a signal the validator excluded.
type RejectedSignal struct {
	Index    int               `json:"index"`
	Provider string            `json:"provider"`
	Reason   service.Rejection `json:"reason"`
}

// ConsensusResponse is the evaluation trace plus validator rejections.
type ConsensusResponse struct {
	Evaluation *service.Evaluation `json:"evaluation"`
	Rejected   []RejectedSignal    `json:"rejected"`
}

// FeedbackRequest records a reviewer's judgement of a reported severity.
type FeedbackRequest struct {
	Medications       []string        `json:"medications" binding:"required,min=2,max=3,dive,required"`
	Context           string          `json:"context"`
	SuggestedSeverity domain.Severity `json:"suggested_severity" binding:"required"`
	UserSeverity      domain.Severity `json:"user_severity" binding:"required"`
	EvidenceSummary   string          `json:"evidence_summary"`
	Notes             string          `json:"notes"`
}

// HealthResponse reports dependency and provider state.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Version   string                    `json:"version"`
	Timestamp time.Time                 `json:"timestamp"`
	Checks    map[string]string         `json:"checks"`
	Providers interface{}               `json:"providers,omitempty"`
	Cache     service.SessionCacheStats `json:"session_cache"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]string, len(s.deps.Checks)),
		Cache:     s.deps.Engine.CacheStats(),
	}
	status := http.StatusOK

	names := make([]string, 0, len(s.deps.Checks))
	for name := range s.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.deps.Checks[name](ctx); err != nil {
			resp.Checks[name] = "unhealthy: " + err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	if s.deps.Providers != nil {
		health := s.deps.Providers.Health()
		resp.Providers = health
		for _, h := range health {
			if !h.Healthy && resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}

	c.JSON(status, resp)
}

func (s *Server) handleCheck(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "two or three medication names are required", err)
		return
	}
	if distinctCount(req.Medications) != len(req.Medications) {
		respondError(c, http.StatusBadRequest, domain.ErrValidation, "medications must be distinct", nil)
		return
	}

	var result *domain.InteractionResult
	if len(req.Medications) == 2 {
		result = s.deps.Engine.CheckPair(c.Request.Context(), req.Medications[0], req.Medications[1])
	} else {
		result = s.deps.Engine.CheckTriple(c.Request.Context(), req.Medications[0], req.Medications[1], req.Medications[2])
	}

	s.logger.WithFields(logrus.Fields{
		"key":        result.Key,
		"severity":   result.Severity,
		"confidence": result.ConfidenceScore,
	}).Info("Interaction checked")
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCombinations(c *gin.Context) {
	var req CombinationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "a list of up to 20 medications is required", err)
		return
	}

	results := s.deps.Engine.CheckCombinations(c.Request.Context(), req.Medications)
	c.JSON(http.StatusOK, CombinationsResponse{Count: len(results), Results: results})
}

func (s *Server) handleConsensus(c *gin.Context) {
	var req ConsensusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid consensus request", err)
		return
	}
	for i, sig := range req.Signals {
		if !sig.Severity.IsValid() {
			respondError(c, http.StatusBadRequest, domain.ErrValidation,
				fmt.Sprintf("signal %d has an unrecognised severity", i),
				domain.NewValidationError("severity", "must be safe, minor, moderate, severe or unknown", sig.Severity))
			return
		}
	}

	rejected := make([]RejectedSignal, 0)
	for i, sig := range req.Signals {
		if reason := s.deps.Engine.ValidateSignal(sig); reason != service.RejectNone {
			rejected = append(rejected, RejectedSignal{Index: i, Provider: sig.Provider, Reason: reason})
		}
	}

	c.JSON(http.StatusOK, ConsensusResponse{
		Evaluation: s.deps.Engine.Evaluate(req.Signals, req.EventStats),
		Rejected:   rejected,
	})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Engine.CacheStats())
}

func (s *Server) handleCacheClear(c *gin.Context) {
	s.deps.Engine.ClearCache()
	c.Status(http.StatusNoContent)
}

// feedbackStore aborts with 503 when no feedback store is configured.
func (s *Server) feedbackStore(c *gin.Context) (feedback.Store, bool) {
	if s.deps.Feedback == nil {
		respondError(c, http.StatusServiceUnavailable, domain.ErrDatabaseError, "feedback store is not configured", nil)
		return nil, false
	}
	return s.deps.Feedback, true
}

func (s *Server) handleFeedbackSave(c *gin.Context) {
	store, ok := s.feedbackStore(c)
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid feedback request", err)
		return
	}

	entry := &feedback.Feedback{
		Medications:       strings.Join(req.Medications, " + "),
		InteractionKey:    s.deps.Engine.Key(req.Medications...),
		Context:           strings.TrimSpace(req.Context),
		SuggestedSeverity: req.SuggestedSeverity,
		UserSeverity:      req.UserSeverity,
		UserAgreed:        req.SuggestedSeverity == req.UserSeverity,
		EvidenceSummary:   req.EvidenceSummary,
		Notes:             req.Notes,
	}
	if err := entry.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrValidation, "invalid feedback", err)
		return
	}
	if err := store.Save(c.Request.Context(), entry); err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to save feedback", err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleFeedbackList(c *gin.Context) {
	store, ok := s.feedbackStore(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := store.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to list feedback", err)
		return
	}
	total, err := store.Count(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to count feedback", err)
		return
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"limit":    limit,
		"offset":   offset,
		"feedback": entries,
	})
}

func (s *Server) handleFeedbackGet(c *gin.Context) {
	store, ok := s.feedbackStore(c)
	if !ok {
		return
	}

	key := c.Query("key")
	if key == "" {
		meds := splitList(c.Query("medications"))
		if len(meds) < 2 {
			respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "key or at least two medications are required", nil)
			return
		}
		key = s.deps.Engine.Key(meds...)
	}

	entry, err := store.Get(c.Request.Context(), key, strings.TrimSpace(c.Query("context")))
	if err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to load feedback", err)
		return
	}
	if entry == nil {
		respondError(c, http.StatusNotFound, domain.ErrInvalidInput, "no feedback recorded for "+key, nil)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleFeedbackDelete(c *gin.Context) {
	store, ok := s.feedbackStore(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "invalid feedback id", err)
		return
	}
	if err := store.Delete(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to delete feedback", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFeedbackExport(c *gin.Context) {
	store, ok := s.feedbackStore(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="feedback-%s.json"`, time.Now().UTC().Format("20060102-150405")))
	if err := store.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Feedback export failed")
		respondError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "failed to export feedback", err)
	}
}

func (s *Server) handleFeedbackImport(c *gin.Context) {
	store, ok := s.feedbackStore(c)
	if !ok {
		return
	}

	imported, skipped, err := store.ImportJSON(c.Request.Context(), c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "failed to import feedback", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported, "skipped": skipped})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func distinctCount(meds []string) int {
	seen := make(map[string]struct{}, len(meds))
	for _, m := range meds {
		seen[domain.DefaultNormalizer.Normalize(m)] = struct{}{}
	}
	return len(seen)
}
