// Package activity records the operator/admin audit trail and exposes the
// read-only history projections.
package activity

import (
	"context"
	"log/slog"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// Entry describes one audited action.
type Entry struct {
	ActorType        string
	ActionType       string
	TargetIdentityID string
	TargetName       string
	Details          string
}

// Service writes and reads the activity log and search history.
type Service struct {
	store  database.HistoryStore
	logger *slog.Logger
}

// NewService creates an activity service.
func NewService(store database.HistoryStore, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logging.OrDiscard(logger)}
}

// Record appends an entry. A failure is logged and swallowed: the audited
// change has already happened and is not rolled back.
func (s *Service) Record(ctx context.Context, e Entry) {
	if s == nil {
		return
	}
	actor := e.ActorType
	if actor == "" {
		actor = database.ActorSystem
	}
	err := s.store.AppendActivity(ctx, &database.ActivityLogEntry{
		ActorType:        actor,
		ActionType:       e.ActionType,
		TargetIdentityID: e.TargetIdentityID,
		TargetName:       e.TargetName,
		Details:          e.Details,
	})
	if err != nil {
		s.logger.Warn("failed to record activity",
			"action", e.ActionType, "target", e.TargetIdentityID, "error", err)
	}
}

// RecordSearch appends a search history entry, best-effort.
func (s *Service) RecordSearch(ctx context.Context, entry *database.SearchHistoryEntry) {
	if s == nil {
		return
	}
	if err := s.store.AppendSearch(ctx, entry); err != nil {
		s.logger.Warn("failed to record search",
			"type", entry.SearchType, "found", entry.Found, "error", err)
	}
}

// List returns the newest activity entries first.
func (s *Service) List(ctx context.Context, limit int) ([]database.ActivityLogEntry, error) {
	return s.store.ListActivity(ctx, limit)
}

// Stats returns the number of entries per action type.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	return s.store.ActivityStats(ctx)
}

// Searches returns the newest search history entries first.
func (s *Service) Searches(ctx context.Context, limit int) ([]database.SearchHistoryEntry, error) {
	return s.store.ListSearches(ctx, limit)
}
