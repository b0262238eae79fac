package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/domain"
	"github.com/medconsensus-server/internal/feedback"
	"github.com/medconsensus-server/internal/service"
)

const (
	maxCombinationMedications = 20
	defaultFeedbackPage       = 20
	maxFeedbackPage           = 200
)

var errNoFeedbackStore = errors.New("feedback store is not configured")

// MedicationsInput names the medications to check.
type MedicationsInput struct {
	Medications []string `json:"medications" jsonschema:"medication or supplement names"`
}

// EvaluateInput carries raw provider signals for a direct consensus run.
type EvaluateInput struct {
	Signals    []domain.RawSourceSignal `json:"signals" jsonschema:"provider signals to combine"`
	EventStats *domain.EventStats       `json:"event_stats,omitempty" jsonschema:"adverse event counts for the pair"`
}

// FeedbackInput records a reviewer's judgement of a reported severity.
type FeedbackInput struct {
	Medications       []string `json:"medications" jsonschema:"the two or three medications reviewed"`
	Context           string   `json:"context,omitempty" jsonschema:"patient or clinical context"`
	SuggestedSeverity string   `json:"suggested_severity" jsonschema:"severity reported by the engine"`
	UserSeverity      string   `json:"user_severity" jsonschema:"severity the reviewer considers correct"`
	EvidenceSummary   string   `json:"evidence_summary,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

// FeedbackLookupInput identifies stored feedback.
type FeedbackLookupInput struct {
	Medications []string `json:"medications" jsonschema:"the medications of the reviewed combination"`
	Context     string   `json:"context,omitempty"`
}

// FeedbackListInput pages through stored feedback.
type FeedbackListInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"page size, at most 200"`
	Offset int `json:"offset,omitempty"`
}

// FeedbackFileInput names an export file to import.
type FeedbackFileInput struct {
	Path string `json:"path" jsonschema:"path of a feedback export file"`
}

// EmptyInput is used by tools without arguments.
type EmptyInput struct{}

// Tools implements the MCP tool handlers on top of the engine.
type Tools struct {
	engine    *service.Engine
	feedback  feedback.Store
	exportDir string
	logger    *logrus.Logger
}

// NewTools creates the tool set. store may be nil, in which case the
// feedback tools report an error.
func NewTools(engine *service.Engine, store feedback.Store, exportDir string, logger *logrus.Logger) *Tools {
	return &Tools{
		engine:    engine,
		feedback:  store,
		exportDir: exportDir,
		logger:    logger,
	}
}

// Register adds every tool to the MCP server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_interaction",
		Description: "Check a pair or triple of medications against every evidence source and return the consensus severity, confidence and sources.",
	}, t.CheckInteraction)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_combinations",
		Description: "Check every single, pair and triple of up to 20 medications.",
	}, t.CheckCombinations)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate_signals",
		Description: "Run the weighted consensus over caller supplied provider signals and explain the score.",
	}, t.EvaluateSignals)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cache_stats",
		Description: "Report session cache statistics.",
	}, t.CacheStats)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cache",
		Description: "Drop every cached interaction verdict for this session.",
	}, t.ClearCache)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_feedback",
		Description: "Record whether a reviewer agrees with a reported severity.",
	}, t.SubmitFeedback)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_feedback",
		Description: "Look up stored feedback for a medication combination.",
	}, t.GetFeedback)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_feedback",
		Description: "List stored feedback, newest first.",
	}, t.ListFeedback)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_feedback",
		Description: "Write all feedback to a JSON export file.",
	}, t.ExportFeedback)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "import_feedback",
		Description: "Import feedback from a JSON export file, skipping entries that already exist.",
	}, t.ImportFeedback)

	t.logger.WithField("tool_count", 10).Info("Registered MCP tools")
}

// CheckInteraction handles check_interaction.
func (t *Tools) CheckInteraction(ctx context.Context, _ *mcp.CallToolRequest, in MedicationsInput) (*mcp.CallToolResult, any, error) {
	meds, err := cleanMedications(in.Medications)
	if err != nil {
		return nil, nil, err
	}
	if len(meds) < 2 || len(meds) > 3 {
		return nil, nil, fmt.Errorf("two or three distinct medications are required, got %d", len(meds))
	}

	var result *domain.InteractionResult
	if len(meds) == 2 {
		result = t.engine.CheckPair(ctx, meds[0], meds[1])
	} else {
		result = t.engine.CheckTriple(ctx, meds[0], meds[1], meds[2])
	}

	t.logger.WithFields(logrus.Fields{
		"tool":       "check_interaction",
		"key":        result.Key,
		"severity":   result.Severity,
		"confidence": result.ConfidenceScore,
	}).Info("Tool completed")
	return jsonResult(result)
}

// CheckCombinations handles check_combinations.
func (t *Tools) CheckCombinations(ctx context.Context, _ *mcp.CallToolRequest, in MedicationsInput) (*mcp.CallToolResult, any, error) {
	meds, err := cleanMedications(in.Medications)
	if err != nil {
		return nil, nil, err
	}
	if len(meds) == 0 || len(meds) > maxCombinationMedications {
		return nil, nil, fmt.Errorf("between 1 and %d medications are required, got %d", maxCombinationMedications, len(meds))
	}

	results := t.engine.CheckCombinations(ctx, meds)
	return jsonResult(map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

// EvaluateSignals handles evaluate_signals.
func (t *Tools) EvaluateSignals(_ context.Context, _ *mcp.CallToolRequest, in EvaluateInput) (*mcp.CallToolResult, any, error) {
	rejected := make([]map[string]interface{}, 0)
	for i, sig := range in.Signals {
		if !sig.Severity.IsValid() {
			return nil, nil, domain.NewValidationError(fmt.Sprintf("signals[%d].severity", i),
				"must be safe, minor, moderate, severe or unknown", sig.Severity)
		}
		if reason := t.engine.ValidateSignal(sig); reason != service.RejectNone {
			rejected = append(rejected, map[string]interface{}{
				"index":    i,
				"provider": sig.Provider,
				"reason":   reason,
			})
		}
	}

	return jsonResult(map[string]interface{}{
		"evaluation": t.engine.Evaluate(in.Signals, in.EventStats),
		"rejected":   rejected,
	})
}

// CacheStats handles cache_stats.
func (t *Tools) CacheStats(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	return jsonResult(t.engine.CacheStats())
}

// ClearCache handles clear_cache.
func (t *Tools) ClearCache(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	t.engine.ClearCache()
	return textResult("Session cache cleared."), nil, nil
}

// SubmitFeedback handles submit_feedback.
func (t *Tools) SubmitFeedback(ctx context.Context, _ *mcp.CallToolRequest, in FeedbackInput) (*mcp.CallToolResult, any, error) {
	if t.feedback == nil {
		return nil, nil, errNoFeedbackStore
	}
	meds, err := cleanMedications(in.Medications)
	if err != nil {
		return nil, nil, err
	}
	if len(meds) < 2 || len(meds) > 3 {
		return nil, nil, fmt.Errorf("feedback needs two or three distinct medications, got %d", len(meds))
	}

	suggested := domain.Severity(strings.ToLower(strings.TrimSpace(in.SuggestedSeverity)))
	user := domain.Severity(strings.ToLower(strings.TrimSpace(in.UserSeverity)))
	entry := &feedback.Feedback{
		Medications:       strings.Join(meds, " + "),
		InteractionKey:    t.engine.Key(meds...),
		Context:           strings.TrimSpace(in.Context),
		SuggestedSeverity: suggested,
		UserSeverity:      user,
		UserAgreed:        suggested == user,
		EvidenceSummary:   in.EvidenceSummary,
		Notes:             in.Notes,
	}
	if err := entry.Validate(); err != nil {
		return nil, nil, err
	}
	if err := t.feedback.Save(ctx, entry); err != nil {
		return nil, nil, fmt.Errorf("failed to save feedback: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"key":    entry.InteractionKey,
		"agreed": entry.UserAgreed,
	}).Info("Feedback recorded")
	return jsonResult(entry)
}

// GetFeedback handles get_feedback.
func (t *Tools) GetFeedback(ctx context.Context, _ *mcp.CallToolRequest, in FeedbackLookupInput) (*mcp.CallToolResult, any, error) {
	if t.feedback == nil {
		return nil, nil, errNoFeedbackStore
	}
	meds, err := cleanMedications(in.Medications)
	if err != nil {
		return nil, nil, err
	}
	if len(meds) < 2 {
		return nil, nil, errors.New("at least two medications are required")
	}

	key := t.engine.Key(meds...)
	entry, err := t.feedback.Get(ctx, key, strings.TrimSpace(in.Context))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load feedback: %w", err)
	}
	if entry == nil {
		return textResult(fmt.Sprintf("No feedback recorded for %s.", key)), nil, nil
	}
	return jsonResult(entry)
}

// ListFeedback handles list_feedback.
func (t *Tools) ListFeedback(ctx context.Context, _ *mcp.CallToolRequest, in FeedbackListInput) (*mcp.CallToolResult, any, error) {
	if t.feedback == nil {
		return nil, nil, errNoFeedbackStore
	}
	limit := in.Limit
	if limit <= 0 || limit > maxFeedbackPage {
		limit = defaultFeedbackPage
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}

	entries, err := t.feedback.List(ctx, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	total, err := t.feedback.Count(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count feedback: %w", err)
	}
	if entries == nil {
		entries = []*feedback.Feedback{}
	}

	return jsonResult(map[string]interface{}{
		"total":    total,
		"limit":    limit,
		"offset":   offset,
		"feedback": entries,
	})
}

// ExportFeedback handles export_feedback.
func (t *Tools) ExportFeedback(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	if t.feedback == nil {
		return nil, nil, errNoFeedbackStore
	}
	if err := os.MkdirAll(t.exportDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(t.exportDir, fmt.Sprintf("feedback-%s.json", time.Now().UTC().Format("20060102-150405.000")))
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := t.feedback.ExportJSON(ctx, file); err != nil {
		return nil, nil, fmt.Errorf("failed to export feedback: %w", err)
	}

	t.logger.WithField("path", path).Info("Feedback exported")
	return jsonResult(map[string]string{"path": path})
}

// ImportFeedback handles import_feedback.
func (t *Tools) ImportFeedback(ctx context.Context, _ *mcp.CallToolRequest, in FeedbackFileInput) (*mcp.CallToolResult, any, error) {
	if t.feedback == nil {
		return nil, nil, errNoFeedbackStore
	}
	if strings.TrimSpace(in.Path) == "" {
		return nil, nil, errors.New("path is required")
	}

	file, err := os.Open(in.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	imported, skipped, err := t.feedback.ImportJSON(ctx, file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to import feedback: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"path":     in.Path,
		"imported": imported,
		"skipped":  skipped,
	}).Info("Feedback imported")
	return jsonResult(map[string]int{"imported": imported, "skipped": skipped})
}

// cleanMedications trims names and rejects blanks and duplicates.
func cleanMedications(meds []string) ([]string, error) {
	seen := make(map[string]struct{}, len(meds))
	cleaned := make([]string, 0, len(meds))
	for i, m := range meds {
		name := strings.TrimSpace(m)
		if name == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("medications[%d]", i), "must not be blank", m)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, domain.NewValidationError(fmt.Sprintf("medications[%d]", i), "duplicate medication", m)
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, name)
	}
	return cleaned, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return textResult(string(data)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
