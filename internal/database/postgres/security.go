package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
)

// SecurityRepository keeps security status rows and their event trail.
type SecurityRepository struct {
	pool *Pool
}

// NewSecurityRepository creates a new PostgreSQL security repository.
func NewSecurityRepository(pool *Pool) *SecurityRepository {
	return &SecurityRepository{pool: pool}
}

const statusColumns = `identity_id, wanted, blocked, reason, alert_color, created_at, updated_at`

func scanStatus(scanner interface{ Scan(...any) error }) (database.SecurityStatus, error) {
	var s database.SecurityStatus
	var color string
	err := scanner.Scan(&s.IdentityID, &s.Wanted, &s.Blocked, &s.Reason, &color, &s.CreatedAt, &s.UpdatedAt)
	s.AlertColor = database.AlertColor(color)
	return s, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getStatus(ctx context.Context, q queryRower, identityID string, forUpdate bool) (*database.SecurityStatus, error) {
	query := `SELECT ` + statusColumns + ` FROM security_status WHERE identity_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanStatus(q.QueryRowContext(ctx, query, identityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get security status: %w", err)
	}
	return &s, nil
}

// GetSecurityStatus returns the stored status, or nil if none exists.
func (r *SecurityRepository) GetSecurityStatus(ctx context.Context, identityID string) (*database.SecurityStatus, error) {
	return getStatus(ctx, r.pool.DB(), identityID, false)
}

// MutateSecurityStatus locks the identity row, lets fn compute the next
// status and writes status and event in one transaction. Locking the
// identity rather than the status row serializes the first write too.
func (r *SecurityRepository) MutateSecurityStatus(
	ctx context.Context, identityID string, fn database.StatusMutation,
) (*database.SecurityStatus, error) {
	var result *database.SecurityStatus

	err := r.pool.withTx(ctx, func(tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx, "SELECT id FROM identities WHERE id = $1 FOR UPDATE", identityID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("identity %s: %w", identityID, database.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock identity: %w", err)
		}

		current, err := getStatus(ctx, tx, identityID, true)
		if err != nil {
			return err
		}

		next, event, err := fn(current)
		if err != nil {
			return err
		}
		if event == nil {
			result = current
			return nil
		}

		upsert := `
			INSERT INTO security_status (identity_id, wanted, blocked, reason, alert_color)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (identity_id) DO UPDATE SET
				wanted = EXCLUDED.wanted,
				blocked = EXCLUDED.blocked,
				reason = EXCLUDED.reason,
				alert_color = EXCLUDED.alert_color,
				updated_at = NOW()
			RETURNING ` + statusColumns
		stored, err := scanStatus(tx.QueryRowContext(ctx, upsert,
			identityID, next.Wanted, next.Blocked, next.Reason, string(next.AlertColor)))
		if err != nil {
			return fmt.Errorf("upsert security status: %w", err)
		}

		if err := insertEvent(ctx, tx, identityID, event); err != nil {
			return err
		}
		result = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, identityID string, event *database.SecurityEvent) error {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO security_events (identity_id, event_type, alert_color, detection_method, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, identityID, string(event.EventType), string(event.AlertColor), event.DetectionMethod, occurred)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// ClearAllSecurityStatuses resets every stored status and records one
// CLEARED_ALL event per row in a single transaction.
func (r *SecurityRepository) ClearAllSecurityStatuses(ctx context.Context, method string, at time.Time) ([]string, error) {
	var ids []string

	err := r.pool.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE security_status
			SET wanted = FALSE, blocked = FALSE, reason = '', alert_color = 'green', updated_at = $1
			RETURNING identity_id
		`, at)
		if err != nil {
			return fmt.Errorf("clear security statuses: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan cleared identity: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate cleared identities: %w", err)
		}
		rows.Close()
		slices.Sort(ids)

		for _, id := range ids {
			event := &database.SecurityEvent{
				EventType:       database.EventClearedAll,
				AlertColor:      database.AlertGreen,
				DetectionMethod: method,
				OccurredAt:      at,
			}
			if err := insertEvent(ctx, tx, id, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListSecurityStatuses returns every stored status row.
func (r *SecurityRepository) ListSecurityStatuses(ctx context.Context) ([]database.SecurityStatus, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+statusColumns+` FROM security_status ORDER BY identity_id`)
	if err != nil {
		return nil, fmt.Errorf("query security statuses: %w", err)
	}
	defer rows.Close()

	var statuses []database.SecurityStatus
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan security status: %w", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security statuses: %w", err)
	}
	return statuses, nil
}

// ListSecurityEvents returns events newest first.
func (r *SecurityRepository) ListSecurityEvents(
	ctx context.Context, filter database.SecurityEventFilter,
) ([]database.SecurityEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = database.MaxHistoryLimit
	}

	query := `
		SELECT id, identity_id, event_type, alert_color, detection_method, occurred_at
		FROM security_events
		WHERE ($1 = '' OR identity_id = $1)
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, filter.IdentityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	var events []database.SecurityEvent
	for rows.Next() {
		var e database.SecurityEvent
		var eventType, color string
		if err := rows.Scan(&e.ID, &e.IdentityID, &eventType, &color, &e.DetectionMethod, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		e.EventType = database.SecurityEventType(eventType)
		e.AlertColor = database.AlertColor(color)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security events: %w", err)
	}
	return events, nil
}

// SecurityStats counts identities by watchlist state.
func (r *SecurityRepository) SecurityStats(ctx context.Context) (database.SecurityStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE s.wanted),
			COUNT(*) FILTER (WHERE s.blocked),
			COUNT(*) FILTER (WHERE NOT COALESCE(s.wanted, FALSE) AND NOT COALESCE(s.blocked, FALSE)),
			COUNT(*) FILTER (WHERE n.active),
			COUNT(*) FILTER (WHERE NOT n.active)
		FROM identities i
		LEFT JOIN security_status s ON s.identity_id = i.id
		LEFT JOIN nfc_tags n ON n.identity_id = i.id
	`
	var stats database.SecurityStats
	err := r.pool.QueryRow(ctx, query).Scan(&stats.TotalIdentities, &stats.Wanted, &stats.Blocked, &stats.Clear,
		&stats.NFCActive, &stats.NFCInactive)
	if err != nil {
		return database.SecurityStats{}, fmt.Errorf("security stats: %w", err)
	}
	return stats, nil
}
