package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/medconsensus-server/internal/domain"
)

// SQLiteResultStore stores interaction results in a local SQLite file for the
// standalone server.
type SQLiteResultStore struct {
	db *sql.DB
}

// NewSQLiteResultStore opens (creating if needed) the result database at dbPath.
func NewSQLiteResultStore(dbPath string) (*SQLiteResultStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS interaction_results (
		key TEXT PRIMARY KEY,
		medications TEXT NOT NULL,
		severity TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sources TEXT NOT NULL DEFAULT '[]',
		confidence_score INTEGER NOT NULL,
		ai_validated INTEGER NOT NULL DEFAULT 0,
		checked_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteResultStore{db: db}, nil
}

// GetResult loads the stored result for key. Missing rows return domain.ErrNotFound.
func (s *SQLiteResultStore) GetResult(ctx context.Context, key string) (*domain.InteractionResult, error) {
	var result domain.InteractionResult
	var medications, sources, severity string
	var checkedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT key, medications, severity, description, sources,
			confidence_score, ai_validated, checked_at
		FROM interaction_results WHERE key = ?`, key,
	).Scan(&result.Key, &medications, &severity, &result.Description, &sources,
		&result.ConfidenceScore, &result.AIValidated, &checkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("interaction %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interaction result: %w", err)
	}

	if err := json.Unmarshal([]byte(medications), &result.Medications); err != nil {
		return nil, fmt.Errorf("failed to decode medications: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &result.Sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}
	result.Severity = domain.Severity(severity)
	result.CheckedAt = time.UnixMilli(checkedAt).UTC()
	return &result, nil
}

// SaveResult upserts result under key.
func (s *SQLiteResultStore) SaveResult(ctx context.Context, key string, result *domain.InteractionResult) error {
	if result == nil {
		return fmt.Errorf("nil interaction result for %s", key)
	}

	medications, err := json.Marshal(result.Medications)
	if err != nil {
		return fmt.Errorf("failed to encode medications: %w", err)
	}
	sourceList := result.Sources
	if sourceList == nil {
		sourceList = []domain.RawSourceSignal{}
	}
	sources, err := json.Marshal(sourceList)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interaction_results (
			key, medications, severity, description, sources,
			confidence_score, ai_validated, checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			medications = excluded.medications,
			severity = excluded.severity,
			description = excluded.description,
			sources = excluded.sources,
			confidence_score = excluded.confidence_score,
			ai_validated = excluded.ai_validated,
			checked_at = excluded.checked_at`,
		key, string(medications), string(result.Severity), result.Description, string(sources),
		result.ConfidenceScore, result.AIValidated, result.CheckedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save interaction result: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *SQLiteResultStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteResultStore) Close() error {
	return s.db.Close()
}
