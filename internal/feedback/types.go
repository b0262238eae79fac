// Package feedback stores clinician feedback on reported interaction severities.
// Each entry records whether the reviewer agreed with the engine's verdict for a
// medication combination and, when they did not, the severity they would assign.
package feedback

import (
	"context"
	"io"
	"time"

	"github.com/medconsensus-server/internal/domain"
)

// Feedback is one reviewer's judgement of a reported interaction.
type Feedback struct {
	ID                int64           `json:"id,omitempty"`
	Medications       string          `json:"medications"`       // as entered, e.g. "Warfarin + Aspirin"
	InteractionKey    string          `json:"interaction_key"`   // canonical combination key
	Context           string          `json:"context,omitempty"` // clinical context, e.g. "elderly"
	SuggestedSeverity domain.Severity `json:"suggested_severity"`
	UserSeverity      domain.Severity `json:"user_severity"`
	UserAgreed        bool            `json:"user_agreed"`
	EvidenceSummary   string          `json:"evidence_summary,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Validate checks the fields every store requires.
func (f *Feedback) Validate() error {
	if f.InteractionKey == "" {
		return domain.NewValidationError("interaction_key", "interaction key is required", f.InteractionKey)
	}
	if !f.SuggestedSeverity.IsValid() {
		return domain.NewValidationError("suggested_severity", "unrecognised severity", f.SuggestedSeverity)
	}
	if !f.UserSeverity.IsValid() {
		return domain.NewValidationError("user_severity", "unrecognised severity", f.UserSeverity)
	}
	return nil
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. An existing entry for the same
	// interaction key and context is overwritten.
	Save(ctx context.Context, feedback *Feedback) error

	// Get returns the feedback for an interaction key and context, or nil.
	Get(ctx context.Context, interactionKey string, context string) (*Feedback, error)

	// List returns feedback entries, newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	Count(ctx context.Context) (int64, error)

	Delete(ctx context.Context, id int64) error

	// ExportJSON writes every entry in the FeedbackExport format.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads a FeedbackExport, skipping entries that already exist.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportID   string      `json:"export_id"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

// exportVersion is the current FeedbackExport format.
const exportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000
