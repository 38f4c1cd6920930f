package postgres

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	// a malformed UUID key can never match a row
	pqInvalidTextRepresentation = "22P02"
)

// translateError maps constraint violations onto the database sentinels and
// wraps everything else with op.
func translateError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w", op, database.ErrConflict)
		case pqForeignKeyViolation, pqInvalidTextRepresentation:
			return fmt.Errorf("%s: %w", op, database.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
