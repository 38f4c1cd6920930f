// Package mock provides an in-memory implementation of database.Store for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

// Store is an in-memory database.Store. A single mutex serializes every
// logical write, which gives the same atomicity the PostgreSQL store gets
// from transactions.
type Store struct {
	mu          sync.Mutex
	identities  map[string]*database.Identity
	statuses    map[string]*database.SecurityStatus
	events      []database.SecurityEvent
	nfc         map[string]*database.NFCTag
	searches    []database.SearchHistoryEntry
	activity    []database.ActivityLogEntry
	reservation map[int64]database.FineReservation
	reports     map[string]*database.Report
	nextID      int64

	// Error injection
	CreateIdentityError  error
	GetIdentityError     error
	ListIdentitiesError  error
	DeleteIdentityError  error
	MutateStatusError    error
	ClearAllError        error
	AppendSearchError    error
	AppendActivityError  error
	ReserveError         error
	CreateReportError    error
	MutateReportError    error
	ListReportsError     error
	FindSimilarError     error
	SecurityStatsError   error
	ListSearchesError    error
	ListActivityError    error
	ListSecurityEventErr error
	NFCError             error

	// ReserveHook, when set, is consulted before each reservation; returning
	// false reports the number as already taken.
	ReserveHook func(number int64) bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		identities:  make(map[string]*database.Identity),
		statuses:    make(map[string]*database.SecurityStatus),
		nfc:         make(map[string]*database.NFCTag),
		reservation: make(map[int64]database.FineReservation),
		reports:     make(map[string]*database.Report),
	}
}

var _ database.Store = (*Store)(nil)

func (m *Store) id() int64 {
	m.nextID++
	return m.nextID
}

func cloneIdentity(i *database.Identity) database.Identity {
	c := *i
	c.Embedding = append([]float32(nil), i.Embedding...)
	return c
}

func cloneReport(r *database.Report) *database.Report {
	c := *r
	if r.FineAmount != nil {
		v := *r.FineAmount
		c.FineAmount = &v
	}
	if r.SubmittedAt != nil {
		v := *r.SubmittedAt
		c.SubmittedAt = &v
	}
	return &c
}

// --- identities ---

// CreateIdentity inserts an identity
func (m *Store) CreateIdentity(ctx context.Context, identity *database.Identity) error {
	if m.CreateIdentityError != nil {
		return m.CreateIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[identity.ID]; ok {
		return fmt.Errorf("identity %s: %w", identity.ID, database.ErrConflict)
	}
	c := cloneIdentity(identity)
	if c.EnrolledAt.IsZero() {
		c.EnrolledAt = time.Now()
		identity.EnrolledAt = c.EnrolledAt
	}
	m.identities[c.ID] = &c
	return nil
}

// GetIdentity retrieves an identity by key
func (m *Store) GetIdentity(ctx context.Context, id string) (*database.Identity, error) {
	if m.GetIdentityError != nil {
		return nil, m.GetIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	c := cloneIdentity(identity)
	return &c, nil
}

// ListIdentities returns all identities ordered by enrollment, then key
func (m *Store) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	if m.ListIdentitiesError != nil {
		return nil, m.ListIdentitiesError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.Identity, 0, len(m.identities))
	for _, identity := range m.identities {
		out = append(out, cloneIdentity(identity))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.Before(out[j].EnrolledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountIdentities returns the number of identities
func (m *Store) CountIdentities(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.identities), nil
}

// FindSimilarIdentities does a brute-force cosine scan
func (m *Store) FindSimilarIdentities(ctx context.Context, embedding []float32, limit int) ([]database.Identity, []float64, error) {
	if m.FindSimilarError != nil {
		return nil, nil, m.FindSimilarError
	}
	all, err := m.ListIdentities(ctx)
	if err != nil {
		return nil, nil, err
	}
	type scored struct {
		identity database.Identity
		dist     float64
	}
	candidates := make([]scored, 0, len(all))
	for _, identity := range all {
		candidates = append(candidates, scored{identity, facematch.CosineDistance(embedding, identity.Embedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	identities := make([]database.Identity, len(candidates))
	distances := make([]float64, len(candidates))
	for i, c := range candidates {
		identities[i] = c.identity
		distances[i] = c.dist
	}
	return identities, distances, nil
}

// DeleteIdentity removes the identity with its status and events
func (m *Store) DeleteIdentity(ctx context.Context, id string) error {
	if m.DeleteIdentityError != nil {
		return m.DeleteIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id]; !ok {
		return fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	delete(m.identities, id)
	delete(m.statuses, id)
	delete(m.nfc, id)
	kept := m.events[:0]
	for _, e := range m.events {
		if e.IdentityID != id {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return nil
}

// --- security ---

// GetSecurityStatus returns the stored status or nil
func (m *Store) GetSecurityStatus(ctx context.Context, identityID string) (*database.SecurityStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[identityID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

// MutateSecurityStatus applies fn and stores status and event together
func (m *Store) MutateSecurityStatus(ctx context.Context, identityID string, fn database.StatusMutation) (*database.SecurityStatus, error) {
	if m.MutateStatusError != nil {
		return nil, m.MutateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[identityID]; !ok {
		return nil, fmt.Errorf("identity %s: %w", identityID, database.ErrNotFound)
	}

	var current *database.SecurityStatus
	if s, ok := m.statuses[identityID]; ok {
		c := *s
		current = &c
	}

	next, event, err := fn(current)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return current, nil
	}

	now := time.Now()
	next.IdentityID = identityID
	next.UpdatedAt = now
	if current != nil {
		next.CreatedAt = current.CreatedAt
	} else {
		next.CreatedAt = now
	}
	m.statuses[identityID] = &next

	e := *event
	e.ID = m.id()
	e.IdentityID = identityID
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	m.events = append(m.events, e)

	out := next
	return &out, nil
}

// ClearAllSecurityStatuses resets every stored row
func (m *Store) ClearAllSecurityStatuses(ctx context.Context, method string, at time.Time) ([]string, error) {
	if m.ClearAllError != nil {
		return nil, m.ClearAllError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id := range m.statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s := m.statuses[id]
		s.Wanted = false
		s.Blocked = false
		s.Reason = ""
		s.AlertColor = database.AlertGreen
		s.UpdatedAt = at
		m.events = append(m.events, database.SecurityEvent{
			ID:              m.id(),
			IdentityID:      id,
			EventType:       database.EventClearedAll,
			AlertColor:      database.AlertGreen,
			DetectionMethod: method,
			OccurredAt:      at,
		})
	}
	return ids, nil
}

// ListSecurityStatuses returns every stored status
func (m *Store) ListSecurityStatuses(ctx context.Context) ([]database.SecurityStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.SecurityStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out, nil
}

// ListSecurityEvents returns events newest first
func (m *Store) ListSecurityEvents(ctx context.Context, filter database.SecurityEventFilter) ([]database.SecurityEvent, error) {
	if m.ListSecurityEventErr != nil {
		return nil, m.ListSecurityEventErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.SecurityEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if filter.IdentityID != "" && e.IdentityID != filter.IdentityID {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// SecurityStats counts identities by state
func (m *Store) SecurityStats(ctx context.Context) (database.SecurityStats, error) {
	if m.SecurityStatsError != nil {
		return database.SecurityStats{}, m.SecurityStatsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := database.SecurityStats{TotalIdentities: len(m.identities)}
	for id := range m.identities {
		s, ok := m.statuses[id]
		switch {
		case ok && s.Wanted:
			stats.Wanted++
			if s.Blocked {
				stats.Blocked++
			}
		case ok && s.Blocked:
			stats.Blocked++
		default:
			stats.Clear++
		}
		if tag, ok := m.nfc[id]; ok {
			if tag.Active {
				stats.NFCActive++
			} else {
				stats.NFCInactive++
			}
		}
	}
	return stats, nil
}

// --- nfc ---

// RegisterNFCTag binds a tag, replacing the identity's previous one
func (m *Store) RegisterNFCTag(ctx context.Context, tag *database.NFCTag) error {
	if m.NFCError != nil {
		return m.NFCError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[tag.IdentityID]; !ok {
		return fmt.Errorf("identity %s: %w", tag.IdentityID, database.ErrNotFound)
	}
	for id, existing := range m.nfc {
		if existing.UID == tag.UID && id != tag.IdentityID {
			return fmt.Errorf("nfc tag %s: %w", tag.UID, database.ErrConflict)
		}
	}
	stored := *tag
	stored.Active = true
	if stored.RegisteredAt.IsZero() {
		stored.RegisteredAt = time.Now()
	}
	m.nfc[tag.IdentityID] = &stored
	*tag = stored
	return nil
}

// GetNFCTag returns the identity's tag or nil
func (m *Store) GetNFCTag(ctx context.Context, identityID string) (*database.NFCTag, error) {
	if m.NFCError != nil {
		return nil, m.NFCError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.nfc[identityID]
	if !ok {
		return nil, nil
	}
	out := *tag
	return &out, nil
}

// SetNFCTagActive flips the active flag
func (m *Store) SetNFCTagActive(ctx context.Context, identityID string, active bool) (*database.NFCTag, error) {
	if m.NFCError != nil {
		return nil, m.NFCError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.nfc[identityID]
	if !ok {
		return nil, fmt.Errorf("nfc tag of %s: %w", identityID, database.ErrNotFound)
	}
	tag.Active = active
	out := *tag
	return &out, nil
}

// ListNFCTags returns every tag ordered by identity key
func (m *Store) ListNFCTags(ctx context.Context) ([]database.NFCTag, error) {
	if m.NFCError != nil {
		return nil, m.NFCError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.NFCTag, 0, len(m.nfc))
	for _, tag := range m.nfc {
		out = append(out, *tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out, nil
}

// --- history ---

// AppendSearch appends a search history entry
func (m *Store) AppendSearch(ctx context.Context, entry *database.SearchHistoryEntry) error {
	if m.AppendSearchError != nil {
		return m.AppendSearchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *entry
	e.ID = m.id()
	if e.SearchedAt.IsZero() {
		e.SearchedAt = time.Now()
	}
	m.searches = append(m.searches, e)
	entry.ID = e.ID
	return nil
}

// ListSearches returns the newest searches first
func (m *Store) ListSearches(ctx context.Context, limit int) ([]database.SearchHistoryEntry, error) {
	if m.ListSearchesError != nil {
		return nil, m.ListSearchesError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.SearchHistoryEntry
	for i := len(m.searches) - 1; i >= 0; i-- {
		out = append(out, m.searches[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// AppendActivity appends an activity entry
func (m *Store) AppendActivity(ctx context.Context, entry *database.ActivityLogEntry) error {
	if m.AppendActivityError != nil {
		return m.AppendActivityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *entry
	e.ID = m.id()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.activity = append(m.activity, e)
	entry.ID = e.ID
	return nil
}

// ListActivity returns the newest activity first
func (m *Store) ListActivity(ctx context.Context, limit int) ([]database.ActivityLogEntry, error) {
	if m.ListActivityError != nil {
		return nil, m.ListActivityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.ActivityLogEntry
	for i := len(m.activity) - 1; i >= 0; i-- {
		out = append(out, m.activity[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ActivityStats counts entries per action
func (m *Store) ActivityStats(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[string]int)
	for _, e := range m.activity {
		stats[e.ActionType]++
	}
	return stats, nil
}

// --- fine numbers ---

// ReserveFineNumber claims a number if it is free
func (m *Store) ReserveFineNumber(ctx context.Context, r database.FineReservation) (bool, error) {
	if m.ReserveError != nil {
		return false, m.ReserveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReserveHook != nil && !m.ReserveHook(r.Number) {
		return false, nil
	}
	if _, taken := m.reservation[r.Number]; taken {
		return false, nil
	}
	if r.IssuedAt.IsZero() {
		r.IssuedAt = time.Now()
	}
	m.reservation[r.Number] = r
	return true, nil
}

// GetFineReservation returns a reservation
func (m *Store) GetFineReservation(ctx context.Context, number int64) (*database.FineReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservation[number]
	if !ok {
		return nil, fmt.Errorf("fine number %d: %w", number, database.ErrNotFound)
	}
	return &r, nil
}

// --- reports ---

// CreateReport inserts a report
func (m *Store) CreateReport(ctx context.Context, report *database.Report) error {
	if m.CreateReportError != nil {
		return m.CreateReportError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[report.ID]; ok {
		return fmt.Errorf("report %s: %w", report.ID, database.ErrConflict)
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	m.reports[report.ID] = cloneReport(report)
	return nil
}

// GetReport returns a report
func (m *Store) GetReport(ctx context.Context, id string) (*database.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, database.ErrNotFound)
	}
	return cloneReport(r), nil
}

// MutateReport applies fn and upserts the result
func (m *Store) MutateReport(ctx context.Context, id string, fn database.ReportMutation) (*database.Report, error) {
	if m.MutateReportError != nil {
		return nil, m.MutateReportError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *database.Report
	if r, ok := m.reports[id]; ok {
		current = cloneReport(r)
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}
	next.ID = id
	if next.CreatedAt.IsZero() {
		if current != nil {
			next.CreatedAt = current.CreatedAt
		} else {
			next.CreatedAt = time.Now()
		}
	}
	m.reports[id] = cloneReport(next)
	return cloneReport(next), nil
}

// ListReports returns reports newest first
func (m *Store) ListReports(ctx context.Context, filter database.ReportFilter) ([]database.Report, error) {
	if m.ListReportsError != nil {
		return nil, m.ListReportsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Report
	for _, r := range m.reports {
		if filter.IdentityID != "" && r.IdentityID != filter.IdentityID {
			continue
		}
		if filter.FinesOnly && !r.HasFine {
			continue
		}
		out = append(out, *cloneReport(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteReport removes a report, keeping its fine reservation
func (m *Store) DeleteReport(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return fmt.Errorf("report %s: %w", id, database.ErrNotFound)
	}
	delete(m.reports, id)
	return nil
}

// FineStats aggregates fines by status
func (m *Store) FineStats(ctx context.Context) (database.FineStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats database.FineStats
	for _, r := range m.reports {
		if !r.HasFine {
			continue
		}
		amount := 0.0
		if r.FineAmount != nil {
			amount = *r.FineAmount
		}
		stats.Total++
		stats.TotalAmount += amount
		switch r.FineStatus {
		case database.FinePaid:
			stats.Paid++
			stats.PaidAmount += amount
		case database.FineUnpaid:
			stats.Unpaid++
			stats.UnpaidAmount += amount
		default:
			stats.Pending++
		}
	}
	return stats, nil
}

// --- test helpers ---

// Events returns a copy of every security event in append order
func (m *Store) Events() []database.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.SecurityEvent(nil), m.events...)
}

// Activity returns a copy of every activity entry in append order
func (m *Store) Activity() []database.ActivityLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.ActivityLogEntry(nil), m.activity...)
}

// Searches returns a copy of every search entry in append order
func (m *Store) Searches() []database.SearchHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.SearchHistoryEntry(nil), m.searches...)
}

// Reservations returns the number of reserved fine numbers
func (m *Store) Reservations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reservation)
}
