package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// writeExport encodes entries as an indented FeedbackExport.
func writeExport(writer io.Writer, entries []*Feedback) error {
	export := &FeedbackExport{
		Version:    exportVersion,
		ExportID:   uuid.New().String(),
		ExportedAt: time.Now().UTC(),
		Count:      len(entries),
		Feedback:   entries,
	}
	if export.Feedback == nil {
		export.Feedback = []*Feedback{}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importExport decodes a FeedbackExport and saves every entry that store does
// not already hold. Invalid entries are skipped.
func importExport(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	var export FeedbackExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, fb := range export.Feedback {
		if fb == nil || fb.Validate() != nil {
			skipped++
			continue
		}

		existing, err := store.Get(ctx, fb.InteractionKey, fb.Context)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		fb.ID = 0
		if err := store.Save(ctx, fb); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
