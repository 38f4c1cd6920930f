package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
)

// HistoryRepository stores the append-only search history and activity log.
type HistoryRepository struct {
	pool *Pool
}

// NewHistoryRepository creates a new PostgreSQL history repository.
func NewHistoryRepository(pool *Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return database.DefaultHistoryLimit
	}
	return min(limit, database.MaxHistoryLimit)
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// AppendSearch records one search.
func (r *HistoryRepository) AppendSearch(ctx context.Context, entry *database.SearchHistoryEntry) error {
	query := `
		INSERT INTO search_history (identity_id, first_name, last_name, search_type, found, stage, searched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	entry.SearchedAt = nowIfZero(entry.SearchedAt)
	err := r.pool.QueryRow(ctx, query,
		entry.IdentityID, entry.FirstName, entry.LastName,
		string(entry.SearchType), entry.Found, entry.Stage, entry.SearchedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert search history: %w", err)
	}
	return nil
}

// ListSearches returns the newest searches first.
func (r *HistoryRepository) ListSearches(ctx context.Context, limit int) ([]database.SearchHistoryEntry, error) {
	query := `
		SELECT id, identity_id, first_name, last_name, search_type, found, stage, searched_at
		FROM search_history
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query search history: %w", err)
	}
	defer rows.Close()

	var entries []database.SearchHistoryEntry
	for rows.Next() {
		var e database.SearchHistoryEntry
		var searchType string
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.FirstName, &e.LastName, &searchType, &e.Found, &e.Stage, &e.SearchedAt); err != nil {
			return nil, fmt.Errorf("scan search history: %w", err)
		}
		e.SearchType = database.SearchType(searchType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search history: %w", err)
	}
	return entries, nil
}

// AppendActivity records one activity entry.
func (r *HistoryRepository) AppendActivity(ctx context.Context, entry *database.ActivityLogEntry) error {
	query := `
		INSERT INTO activity_logs (actor_type, action_type, target_identity_id, target_name, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	entry.CreatedAt = nowIfZero(entry.CreatedAt)
	err := r.pool.QueryRow(ctx, query,
		entry.ActorType, entry.ActionType, entry.TargetIdentityID, entry.TargetName, entry.Details, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

// ListActivity returns the newest activity first.
func (r *HistoryRepository) ListActivity(ctx context.Context, limit int) ([]database.ActivityLogEntry, error) {
	query := `
		SELECT id, actor_type, action_type, target_identity_id, target_name, details, created_at
		FROM activity_logs
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}
	defer rows.Close()

	var entries []database.ActivityLogEntry
	for rows.Next() {
		var e database.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.ActorType, &e.ActionType, &e.TargetIdentityID, &e.TargetName, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity logs: %w", err)
	}
	return entries, nil
}

// ActivityStats counts entries per action type.
func (r *HistoryRepository) ActivityStats(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT action_type, COUNT(*) FROM activity_logs GROUP BY action_type")
	if err != nil {
		return nil, fmt.Errorf("query activity stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan activity stats: %w", err)
		}
		stats[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity stats: %w", err)
	}
	return stats, nil
}
