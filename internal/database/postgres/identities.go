package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository provides PostgreSQL-backed identity storage.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = `id, first_name, last_name, date_of_birth, gender, embedding, photo_ref, enrolled_at`

func scanIdentityRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.Identity, error) {
	var identity database.Identity
	var vec pgvector.Vector

	dest := []any{
		&identity.ID,
		&identity.FirstName,
		&identity.LastName,
		&identity.DateOfBirth,
		&identity.Gender,
		&vec,
		&identity.PhotoRef,
		&identity.EnrolledAt,
	}
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return database.Identity{}, err
	}
	identity.Embedding = vec.Slice()
	return identity, nil
}

// CreateIdentity inserts a new identity. A duplicate key yields ErrConflict.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *database.Identity) error {
	query := `
		INSERT INTO identities (id, first_name, last_name, date_of_birth, gender, embedding, photo_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING enrolled_at
	`

	err := r.pool.QueryRow(ctx, query,
		identity.ID,
		identity.FirstName,
		identity.LastName,
		identity.DateOfBirth,
		identity.Gender,
		pgvector.NewVector(identity.Embedding),
		identity.PhotoRef,
	).Scan(&identity.EnrolledAt)
	if err != nil {
		return translateError("insert identity", err)
	}
	return nil
}

// GetIdentity retrieves an identity by key.
func (r *IdentityRepository) GetIdentity(ctx context.Context, id string) (*database.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	identity, err := scanIdentityRow(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &identity, nil
}

// ListIdentities returns every identity ordered by enrollment time, then key.
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities ORDER BY enrolled_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []database.Identity
	for rows.Next() {
		identity, err := scanIdentityRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// CountIdentities returns the number of enrolled identities.
func (r *IdentityRepository) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// FindSimilarIdentities orders identities by cosine distance to embedding.
// Used when the in-memory neighbour index is disabled.
func (r *IdentityRepository) FindSimilarIdentities(
	ctx context.Context, embedding []float32, limit int,
) ([]database.Identity, []float64, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT ` + identityColumns + `, embedding <=> $1::vector AS distance
		FROM identities
		WHERE vector_dims(embedding) = $3
		ORDER BY distance, enrolled_at, id
		LIMIT $2
	`

	rows, err := tx.QueryContext(ctx, query, pgvector.NewVector(embedding), limit, len(embedding))
	if err != nil {
		return nil, nil, fmt.Errorf("query similar identities: %w", err)
	}
	defer rows.Close()

	var identities []database.Identity
	var distances []float64
	for rows.Next() {
		var dist float64
		identity, err := scanIdentityRow(rows, &dist)
		if err != nil {
			return nil, nil, fmt.Errorf("scan similar identity: %w", err)
		}
		identities = append(identities, identity)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar identities: %w", err)
	}
	return identities, distances, nil
}

// DeleteIdentity removes an identity. Its security status and events go with
// it through ON DELETE CASCADE; reports are kept.
func (r *IdentityRepository) DeleteIdentity(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete identity rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	return nil
}
