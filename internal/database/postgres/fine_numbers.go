package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facewatch/internal/database"
)

// FineNumberRepository holds citation number reservations.
type FineNumberRepository struct {
	pool *Pool
}

// NewFineNumberRepository creates a new PostgreSQL fine number repository.
func NewFineNumberRepository(pool *Pool) *FineNumberRepository {
	return &FineNumberRepository{pool: pool}
}

// ReserveFineNumber claims a number with a single INSERT ... ON CONFLICT DO
// NOTHING, so the existence check and the reservation are one atomic step.
func (r *FineNumberRepository) ReserveFineNumber(ctx context.Context, res database.FineReservation) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO fine_numbers (number, report_id, method, issued_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (number) DO NOTHING
	`, res.Number, res.ReportID, res.Method, nowIfZero(res.IssuedAt))
	if err != nil {
		return false, fmt.Errorf("reserve fine number: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve fine number rows affected: %w", err)
	}
	return n == 1, nil
}

// GetFineReservation returns who holds a number.
func (r *FineNumberRepository) GetFineReservation(ctx context.Context, number int64) (*database.FineReservation, error) {
	var res database.FineReservation
	err := r.pool.QueryRow(ctx,
		"SELECT number, report_id, method, issued_at FROM fine_numbers WHERE number = $1", number,
	).Scan(&res.Number, &res.ReportID, &res.Method, &res.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fine number %d: %w", number, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get fine reservation: %w", err)
	}
	return &res, nil
}
