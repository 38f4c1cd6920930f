package postgres

import "github.com/kozaktomas/facewatch/internal/database"

// Store combines the PostgreSQL repositories into a database.Store.
type Store struct {
	*IdentityRepository
	*SecurityRepository
	*NFCRepository
	*HistoryRepository
	*FineNumberRepository
	*ReportRepository
}

var _ database.Store = (*Store)(nil)

// NewStore creates a Store over pool.
func NewStore(pool *Pool) *Store {
	return &Store{
		IdentityRepository:   NewIdentityRepository(pool),
		SecurityRepository:   NewSecurityRepository(pool),
		NFCRepository:        NewNFCRepository(pool),
		HistoryRepository:    NewHistoryRepository(pool),
		FineNumberRepository: NewFineNumberRepository(pool),
		ReportRepository:     NewReportRepository(pool),
	}
}
