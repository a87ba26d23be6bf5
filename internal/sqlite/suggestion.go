package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voice-search-assistant/internal/models"
	"voice-search-assistant/internal/service/suggestion"
)

// SuggestionRepository implements suggestion.Store for SQLite
type SuggestionRepository struct {
	db  *DB
	now func() time.Time
}

// NewSuggestionRepository creates a new SuggestionRepository
func NewSuggestionRepository(db *DB) *SuggestionRepository {
	return &SuggestionRepository{db: db, now: time.Now}
}

// Get retrieves the suggestion stored for query
func (r *SuggestionRepository) Get(ctx context.Context, query string) (suggestion.Suggestion, error) {
	stmt := `
		SELECT query, result_object_ids, tool_output, created_at, updated_at
		FROM suggestions
		WHERE query = ?
	`

	var (
		sg                   suggestion.Suggestion
		ids, output          sql.NullString
		createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, stmt, query).Scan(&sg.Query, &ids, &output, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return suggestion.Suggestion{}, suggestion.ErrNotFound
	}
	if err != nil {
		return suggestion.Suggestion{}, fmt.Errorf("failed to get suggestion: %w", err)
	}

	if ids.Valid {
		if err := json.Unmarshal([]byte(ids.String), &sg.ResultObjectIDs); err != nil {
			return suggestion.Suggestion{}, fmt.Errorf("failed to decode result ids: %w", err)
		}
	}
	if output.Valid {
		var out models.ToolOutput
		if err := json.Unmarshal([]byte(output.String), &out); err != nil {
			return suggestion.Suggestion{}, fmt.Errorf("failed to decode tool output: %w", err)
		}
		sg.CachedOutput = &out
	}
	sg.CreatedAt = time.UnixMilli(createdAt)
	sg.UpdatedAt = time.UnixMilli(updatedAt)

	return sg, nil
}

// Upsert creates or updates the suggestion for query. Fields left nil in the
// patch keep their stored value.
func (r *SuggestionRepository) Upsert(ctx context.Context, query string, patch suggestion.Patch) error {
	stmt := `
		INSERT INTO suggestions (query, result_object_ids, tool_output, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			result_object_ids = COALESCE(excluded.result_object_ids, suggestions.result_object_ids),
			tool_output = COALESCE(excluded.tool_output, suggestions.tool_output),
			updated_at = excluded.updated_at
	`

	var ids, output any
	if patch.ResultObjectIDs != nil {
		b, err := json.Marshal(patch.ResultObjectIDs)
		if err != nil {
			return fmt.Errorf("failed to encode result ids: %w", err)
		}
		ids = string(b)
	}
	if patch.CachedOutput != nil {
		b, err := json.Marshal(patch.CachedOutput)
		if err != nil {
			return fmt.Errorf("failed to encode tool output: %w", err)
		}
		output = string(b)
	}

	now := r.now().UnixMilli()
	if _, err := r.db.ExecContext(ctx, stmt, query, ids, output, now, now); err != nil {
		return fmt.Errorf("failed to upsert suggestion: %w", err)
	}
	return nil
}

// Count returns the number of stored suggestions
func (r *SuggestionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM suggestions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count suggestions: %w", err)
	}
	return n, nil
}
