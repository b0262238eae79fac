// Package repository persists interaction results so verdicts survive restarts
// and can be reused when providers are unavailable.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/medconsensus-server/internal/domain"
)

// InteractionRepository stores interaction results in PostgreSQL.
type InteractionRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewInteractionRepository creates a new interaction repository
func NewInteractionRepository(db *pgxpool.Pool, logger *logrus.Logger) *InteractionRepository {
	return &InteractionRepository{db: db, log: logger}
}

// GetResult loads the stored result for key. Missing rows return domain.ErrNotFound.
func (r *InteractionRepository) GetResult(ctx context.Context, key string) (*domain.InteractionResult, error) {
	query := `
		SELECT key, medications, severity, description, sources,
			confidence_score, ai_validated, checked_at
		FROM interaction_results
		WHERE key = $1`

	var result domain.InteractionResult
	var medicationsJSON, sourcesJSON []byte
	var severity string

	err := r.db.QueryRow(ctx, query, key).Scan(
		&result.Key,
		&medicationsJSON,
		&severity,
		&result.Description,
		&sourcesJSON,
		&result.ConfidenceScore,
		&result.AIValidated,
		&result.CheckedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("interaction %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting interaction result: %w", err)
	}

	if err := json.Unmarshal(medicationsJSON, &result.Medications); err != nil {
		return nil, fmt.Errorf("unmarshaling medications: %w", err)
	}
	if err := json.Unmarshal(sourcesJSON, &result.Sources); err != nil {
		return nil, fmt.Errorf("unmarshaling sources: %w", err)
	}
	result.Severity = domain.Severity(severity)
	return &result, nil
}

// SaveResult upserts result under key.
func (r *InteractionRepository) SaveResult(ctx context.Context, key string, result *domain.InteractionResult) error {
	if result == nil {
		return fmt.Errorf("nil interaction result for %s", key)
	}

	medicationsJSON, err := json.Marshal(result.Medications)
	if err != nil {
		return fmt.Errorf("marshaling medications: %w", err)
	}
	sources := result.Sources
	if sources == nil {
		sources = []domain.RawSourceSignal{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshaling sources: %w", err)
	}

	query := `
		INSERT INTO interaction_results (
			key, medications, severity, description, sources,
			confidence_score, ai_validated, checked_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (key) DO UPDATE SET
			medications = EXCLUDED.medications,
			severity = EXCLUDED.severity,
			description = EXCLUDED.description,
			sources = EXCLUDED.sources,
			confidence_score = EXCLUDED.confidence_score,
			ai_validated = EXCLUDED.ai_validated,
			checked_at = EXCLUDED.checked_at,
			updated_at = NOW()`

	_, err = r.db.Exec(ctx, query,
		key,
		medicationsJSON,
		string(result.Severity),
		result.Description,
		sourcesJSON,
		result.ConfidenceScore,
		result.AIValidated,
		result.CheckedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"key":      key,
			"severity": result.Severity,
			"error":    err,
		}).Error("Failed to save interaction result")
		return fmt.Errorf("saving interaction result: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"key":        key,
		"severity":   result.Severity,
		"confidence": result.ConfidenceScore,
		"sources":    len(sources),
	}).Debug("Interaction result saved")
	return nil
}

// Delete removes the stored result for key.
func (r *InteractionRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM interaction_results WHERE key = $1", key)
	if err != nil {
		return fmt.Errorf("deleting interaction result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("interaction %s: %w", key, domain.ErrNotFound)
	}
	return nil
}

// PurgeOlderThan deletes results checked before cutoff and returns how many were removed.
func (r *InteractionRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM interaction_results WHERE checked_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging interaction results: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the database is reachable.
func (r *InteractionRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
