package database

import (
	"context"
	"time"
)

// IdentityReader provides read-only access to enrolled identities
type IdentityReader interface {
	// GetIdentity returns the identity or ErrNotFound
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	// ListIdentities returns every identity ordered by enrollment time, then key
	ListIdentities(ctx context.Context) ([]Identity, error)
	// CountIdentities returns the number of enrolled identities
	CountIdentities(ctx context.Context) (int, error)
	// FindSimilarIdentities returns the identities nearest to embedding by
	// cosine distance, closest first, with their distances
	FindSimilarIdentities(ctx context.Context, embedding []float32, limit int) ([]Identity, []float64, error)
}

// IdentityWriter provides write access to identities
type IdentityWriter interface {
	IdentityReader
	// CreateIdentity inserts a new identity, ErrConflict if the key exists
	CreateIdentity(ctx context.Context, identity *Identity) error
	// DeleteIdentity removes the identity together with its security status,
	// events and NFC tag, ErrNotFound if it does not exist
	DeleteIdentity(ctx context.Context, id string) error
}

// StatusMutation computes the next status from the current one. current is
// nil when the identity has no stored row. Returning a nil event skips the
// write entirely.
type StatusMutation func(current *SecurityStatus) (next SecurityStatus, event *SecurityEvent, err error)

// SecurityStore keeps the watchlist and its event trail consistent
type SecurityStore interface {
	// GetSecurityStatus returns the stored row or nil when none exists
	GetSecurityStatus(ctx context.Context, identityID string) (*SecurityStatus, error)
	// MutateSecurityStatus applies fn under a per-identity lock and writes the
	// resulting status and event atomically. ErrNotFound if the identity does
	// not exist. fn must not call back into the store.
	MutateSecurityStatus(ctx context.Context, identityID string, fn StatusMutation) (*SecurityStatus, error)
	// ClearAllSecurityStatuses resets every stored row and appends one
	// CLEARED_ALL event per row, atomically. Returns the reset ids.
	ClearAllSecurityStatuses(ctx context.Context, method string, at time.Time) ([]string, error)
	// ListSecurityStatuses returns every stored status row
	ListSecurityStatuses(ctx context.Context) ([]SecurityStatus, error)
	// ListSecurityEvents returns events newest first
	ListSecurityEvents(ctx context.Context, filter SecurityEventFilter) ([]SecurityEvent, error)
	// SecurityStats counts identities by watchlist state and NFC tags by
	// active flag
	SecurityStats(ctx context.Context) (SecurityStats, error)
}

// NFCStore keeps the NFC tag bound to each identity
type NFCStore interface {
	// RegisterNFCTag binds tag.UID to tag.IdentityID as an active tag,
	// replacing the identity's previous tag. ErrNotFound if the identity does
	// not exist, ErrConflict if the UID is bound to another identity.
	RegisterNFCTag(ctx context.Context, tag *NFCTag) error
	// GetNFCTag returns the identity's tag or nil when none is registered
	GetNFCTag(ctx context.Context, identityID string) (*NFCTag, error)
	// SetNFCTagActive changes the active flag, ErrNotFound if the identity
	// has no tag
	SetNFCTagActive(ctx context.Context, identityID string, active bool) (*NFCTag, error)
	// ListNFCTags returns every registered tag ordered by identity key
	ListNFCTags(ctx context.Context) ([]NFCTag, error)
}

// HistoryStore holds the append-only search history and activity log
type HistoryStore interface {
	AppendSearch(ctx context.Context, entry *SearchHistoryEntry) error
	// ListSearches returns the newest entries first, at most limit
	ListSearches(ctx context.Context, limit int) ([]SearchHistoryEntry, error)
	AppendActivity(ctx context.Context, entry *ActivityLogEntry) error
	// ListActivity returns the newest entries first, at most limit
	ListActivity(ctx context.Context, limit int) ([]ActivityLogEntry, error)
	// ActivityStats returns the number of entries per action type
	ActivityStats(ctx context.Context) (map[string]int, error)
}

// FineNumberStore reserves citation numbers durably
type FineNumberStore interface {
	// ReserveFineNumber atomically claims number for reportID. Returns false
	// without error when the number is already reserved.
	ReserveFineNumber(ctx context.Context, r FineReservation) (bool, error)
	// GetFineReservation returns the reservation or ErrNotFound
	GetFineReservation(ctx context.Context, number int64) (*FineReservation, error)
}

// ReportMutation computes the next report from the current one. current is
// nil when no report with the id exists. Returning nil next skips the write.
type ReportMutation func(current *Report) (next *Report, err error)

// ReportStore persists case reports
type ReportStore interface {
	// CreateReport inserts a new report, ErrConflict if the id exists
	CreateReport(ctx context.Context, report *Report) error
	// GetReport returns the report or ErrNotFound
	GetReport(ctx context.Context, id string) (*Report, error)
	// MutateReport applies fn under a row lock and upserts the result.
	// fn must not call back into the store.
	MutateReport(ctx context.Context, id string, fn ReportMutation) (*Report, error)
	// ListReports returns reports newest first
	ListReports(ctx context.Context, filter ReportFilter) ([]Report, error)
	// DeleteReport removes the report, ErrNotFound if missing. Fine number
	// reservations are kept.
	DeleteReport(ctx context.Context, id string) error
	// FineStats aggregates fines by status
	FineStats(ctx context.Context) (FineStats, error)
}

// Store bundles every repository the services need
type Store interface {
	IdentityWriter
	SecurityStore
	NFCStore
	HistoryStore
	FineNumberStore
	ReportStore
}
