package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facewatch/internal/database"
)

// NFCRepository keeps the NFC tag of each identity.
type NFCRepository struct {
	pool *Pool
}

// NewNFCRepository creates a new PostgreSQL NFC tag repository.
func NewNFCRepository(pool *Pool) *NFCRepository {
	return &NFCRepository{pool: pool}
}

const nfcColumns = "identity_id, uid, active, registered_at"

func scanNFCTag(row interface{ Scan(...any) error }) (database.NFCTag, error) {
	var tag database.NFCTag
	err := row.Scan(&tag.IdentityID, &tag.UID, &tag.Active, &tag.RegisteredAt)
	return tag, err
}

// RegisterNFCTag upserts the identity's tag. A UID held by another identity
// violates the unique constraint and surfaces as database.ErrConflict.
func (r *NFCRepository) RegisterNFCTag(ctx context.Context, tag *database.NFCTag) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO nfc_tags (identity_id, uid, active, registered_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (identity_id) DO UPDATE
		SET uid = EXCLUDED.uid, active = TRUE, registered_at = EXCLUDED.registered_at
		RETURNING `+nfcColumns,
		tag.IdentityID, tag.UID, nowIfZero(tag.RegisteredAt))

	stored, err := scanNFCTag(row)
	if err != nil {
		return translateError("register nfc tag", err)
	}
	*tag = stored
	return nil
}

// GetNFCTag returns the identity's tag or nil.
func (r *NFCRepository) GetNFCTag(ctx context.Context, identityID string) (*database.NFCTag, error) {
	tag, err := scanNFCTag(r.pool.QueryRow(ctx,
		`SELECT `+nfcColumns+` FROM nfc_tags WHERE identity_id = $1`, identityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get nfc tag: %w", err)
	}
	return &tag, nil
}

// SetNFCTagActive flips the active flag of an existing tag.
func (r *NFCRepository) SetNFCTagActive(ctx context.Context, identityID string, active bool) (*database.NFCTag, error) {
	tag, err := scanNFCTag(r.pool.QueryRow(ctx,
		`UPDATE nfc_tags SET active = $2 WHERE identity_id = $1 RETURNING `+nfcColumns,
		identityID, active))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("nfc tag of %s: %w", identityID, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("set nfc tag active: %w", err)
	}
	return &tag, nil
}

// ListNFCTags returns every tag ordered by identity key.
func (r *NFCRepository) ListNFCTags(ctx context.Context) ([]database.NFCTag, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+nfcColumns+` FROM nfc_tags ORDER BY identity_id`)
	if err != nil {
		return nil, fmt.Errorf("query nfc tags: %w", err)
	}
	defer rows.Close()

	var tags []database.NFCTag
	for rows.Next() {
		tag, err := scanNFCTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nfc tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nfc tags: %w", err)
	}
	return tags, nil
}
