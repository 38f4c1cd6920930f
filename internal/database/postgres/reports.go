package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facewatch/internal/database"
)

// ReportRepository provides PostgreSQL-backed report storage.
type ReportRepository struct {
	pool *Pool
}

// NewReportRepository creates a new PostgreSQL report repository.
func NewReportRepository(pool *Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

const reportColumns = `id, identity_id, first_name, last_name, date_of_birth, gender, confidence, note,
	actions_taken, has_fine, fine_amount, fine_number, fine_type, fine_status, operator_full_name,
	status, created_at, submitted_at`

func scanReport(scanner interface{ Scan(...any) error }) (database.Report, error) {
	var r database.Report
	var fineNumber sql.NullString
	var status string
	err := scanner.Scan(
		&r.ID,
		&r.IdentityID,
		&r.FirstName,
		&r.LastName,
		&r.DateOfBirth,
		&r.Gender,
		&r.Confidence,
		&r.Note,
		&r.ActionsTaken,
		&r.HasFine,
		&r.FineAmount,
		&fineNumber,
		&r.FineType,
		&r.FineStatus,
		&r.OperatorFullName,
		&status,
		&r.CreatedAt,
		&r.SubmittedAt,
	)
	r.FineNumber = fineNumber.String
	r.Status = database.ReportStatus(status)
	return r, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func reportArgs(r *database.Report) []any {
	return []any{
		r.ID,
		r.IdentityID,
		r.FirstName,
		r.LastName,
		r.DateOfBirth,
		r.Gender,
		r.Confidence,
		r.Note,
		r.ActionsTaken,
		r.HasFine,
		r.FineAmount,
		nullString(r.FineNumber),
		r.FineType,
		r.FineStatus,
		r.OperatorFullName,
		string(r.Status),
		nowIfZero(r.CreatedAt),
		r.SubmittedAt,
	}
}

const insertReport = `
	INSERT INTO reports (` + reportColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
`

// CreateReport inserts a new report.
func (r *ReportRepository) CreateReport(ctx context.Context, report *database.Report) error {
	report.CreatedAt = nowIfZero(report.CreatedAt)
	if _, err := r.pool.Exec(ctx, insertReport, reportArgs(report)...); err != nil {
		return translateError("insert report", err)
	}
	return nil
}

func getReport(ctx context.Context, q queryRower, id string, forUpdate bool) (*database.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	report, err := scanReport(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, translateError("get report", err)
	}
	return &report, nil
}

// GetReport retrieves a report by id.
func (r *ReportRepository) GetReport(ctx context.Context, id string) (*database.Report, error) {
	return getReport(ctx, r.pool.DB(), id, false)
}

// MutateReport serializes writers on the report id with an advisory lock so
// that two upserts of a not-yet-existing report cannot both see it missing.
func (r *ReportRepository) MutateReport(ctx context.Context, id string, fn database.ReportMutation) (*database.Report, error) {
	var result *database.Report

	err := r.pool.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", id); err != nil {
			return fmt.Errorf("lock report: %w", err)
		}

		current, err := getReport(ctx, tx, id, true)
		if errors.Is(err, database.ErrNotFound) {
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}
		next.ID = id
		if current != nil && next.CreatedAt.IsZero() {
			next.CreatedAt = current.CreatedAt
		}

		upsert := insertReport + `
			ON CONFLICT (id) DO UPDATE SET
				identity_id = EXCLUDED.identity_id,
				first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				date_of_birth = EXCLUDED.date_of_birth,
				gender = EXCLUDED.gender,
				confidence = EXCLUDED.confidence,
				note = EXCLUDED.note,
				actions_taken = EXCLUDED.actions_taken,
				has_fine = EXCLUDED.has_fine,
				fine_amount = EXCLUDED.fine_amount,
				fine_number = EXCLUDED.fine_number,
				fine_type = EXCLUDED.fine_type,
				fine_status = EXCLUDED.fine_status,
				operator_full_name = EXCLUDED.operator_full_name,
				status = EXCLUDED.status,
				submitted_at = EXCLUDED.submitted_at
		`
		if _, err := tx.ExecContext(ctx, upsert, reportArgs(next)...); err != nil {
			return translateError("upsert report", err)
		}

		stored, err := getReport(ctx, tx, id, false)
		if err != nil {
			return err
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListReports returns reports newest first.
func (r *ReportRepository) ListReports(ctx context.Context, filter database.ReportFilter) ([]database.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE ($1 = '' OR identity_id = $1)
		  AND (NOT $2 OR has_fine)
		ORDER BY created_at DESC, id
	`
	rows, err := r.pool.Query(ctx, query, filter.IdentityID, filter.FinesOnly)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var reports []database.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// DeleteReport removes a report. Its fine number stays reserved.
func (r *ReportRepository) DeleteReport(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM reports WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete report rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("report %s: %w", id, database.ErrNotFound)
	}
	return nil
}

// FineStats aggregates fines by status.
func (r *ReportRepository) FineStats(ctx context.Context) (database.FineStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE fine_status = $1),
			COUNT(*) FILTER (WHERE fine_status = $2),
			COUNT(*) FILTER (WHERE fine_status NOT IN ($1, $2)),
			COALESCE(SUM(fine_amount), 0),
			COALESCE(SUM(fine_amount) FILTER (WHERE fine_status = $1), 0),
			COALESCE(SUM(fine_amount) FILTER (WHERE fine_status = $2), 0)
		FROM reports
		WHERE has_fine
	`
	var s database.FineStats
	err := r.pool.QueryRow(ctx, query, database.FinePaid, database.FineUnpaid).Scan(
		&s.Total, &s.Paid, &s.Unpaid, &s.Pending, &s.TotalAmount, &s.PaidAmount, &s.UnpaidAmount,
	)
	if err != nil {
		return database.FineStats{}, fmt.Errorf("fine stats: %w", err)
	}
	return s, nil
}
