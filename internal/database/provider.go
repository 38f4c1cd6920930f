package database

import (
	"context"
	"errors"
	"sync"
)

var (
	backendMu           sync.RWMutex
	postgresStore       func() Store
	postgresInitialized bool
)

// RegisterPostgresBackend registers the PostgreSQL store constructor.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(store func() Store) {
	backendMu.Lock()
	defer backendMu.Unlock()
	postgresStore = store
	postgresInitialized = store != nil
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return postgresInitialized
}

// GetStore returns the registered Store.
func GetStore(ctx context.Context) (Store, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if !postgresInitialized || postgresStore == nil {
		return nil, errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	return postgresStore(), nil
}
