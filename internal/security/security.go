// Package security maintains the watchlist overlay: per-identity wanted and
// blocked flags with an alert color, and the append-only event trail that
// records every transition.
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

// ErrInvalidColor is returned for a color override outside green/orange/red.
var ErrInvalidColor = errors.New("invalid alert color")

// Store is the storage the overlay needs.
type Store interface {
	database.IdentityReader
	database.SecurityStore
	ListNFCTags(ctx context.Context) ([]database.NFCTag, error)
}

// Update is a full status replacement.
type Update struct {
	Wanted  bool
	Blocked bool
	Reason  string
	// Color overrides the derived alert color when set.
	Color  database.AlertColor
	Method string
	Actor  string
}

// IdentityWithStatus pairs an identity with its effective status and its
// NFC tag, nil when none is registered.
type IdentityWithStatus struct {
	Identity database.Identity
	Status   database.SecurityStatus
	NFC      *database.NFCTag
}

// Service coordinates status writes with their events.
type Service struct {
	store    Store
	activity *activity.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates the security overlay service.
func NewService(store Store, act *activity.Service, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		activity: act,
		metrics:  m,
		logger:   logging.OrDiscard(logger),
		now:      time.Now,
	}
}

func setEventType(wanted, blocked bool) database.SecurityEventType {
	switch {
	case wanted:
		return database.EventWanted
	case blocked:
		return database.EventBlocked
	default:
		return database.EventCleared
	}
}

func method(m string) string {
	if m == "" {
		return database.DetectionAdmin
	}
	return m
}

// SetStatus replaces the status of identityID and appends one event
// (WANTED, BLOCKED or CLEARED) in the same atomic write.
func (s *Service) SetStatus(ctx context.Context, identityID string, u Update) (*database.SecurityStatus, error) {
	color := u.Color
	if color == "" {
		color = database.DeriveAlertColor(u.Wanted, u.Blocked)
	} else if !color.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	eventType := setEventType(u.Wanted, u.Blocked)

	return s.mutate(ctx, identityID, u.Actor, func(*database.SecurityStatus) (database.SecurityStatus, *database.SecurityEvent, error) {
		return database.SecurityStatus{
				Wanted:     u.Wanted,
				Blocked:    u.Blocked,
				Reason:     u.Reason,
				AlertColor: color,
			}, &database.SecurityEvent{
				EventType:       eventType,
				AlertColor:      color,
				DetectionMethod: method(u.Method),
				OccurredAt:      s.now(),
			}, nil
	})
}

// SetBlocked changes only the blocked flag. The event is BLOCKED or
// UNBLOCKED and the color is derived from the resulting pair.
func (s *Service) SetBlocked(ctx context.Context, identityID string, blocked bool, reason, actor string) (*database.SecurityStatus, error) {
	eventType := database.EventUnblocked
	if blocked {
		eventType = database.EventBlocked
	}
	return s.mutate(ctx, identityID, actor, func(current *database.SecurityStatus) (database.SecurityStatus, *database.SecurityEvent, error) {
		next := database.DefaultSecurityStatus(identityID)
		if current != nil {
			next = *current
		}
		next.Blocked = blocked
		next.Reason = reason
		next.AlertColor = database.DeriveAlertColor(next.Wanted, next.Blocked)
		return next, &database.SecurityEvent{
			EventType:       eventType,
			AlertColor:      next.AlertColor,
			DetectionMethod: database.DetectionAdmin,
			OccurredAt:      s.now(),
		}, nil
	})
}

// SetWanted changes only the wanted flag. The event is WANTED or CLEARED.
func (s *Service) SetWanted(ctx context.Context, identityID string, wanted bool, reason, actor string) (*database.SecurityStatus, error) {
	eventType := database.EventCleared
	if wanted {
		eventType = database.EventWanted
	}
	return s.mutate(ctx, identityID, actor, func(current *database.SecurityStatus) (database.SecurityStatus, *database.SecurityEvent, error) {
		next := database.DefaultSecurityStatus(identityID)
		if current != nil {
			next = *current
		}
		next.Wanted = wanted
		next.Reason = reason
		next.AlertColor = database.DeriveAlertColor(next.Wanted, next.Blocked)
		return next, &database.SecurityEvent{
			EventType:       eventType,
			AlertColor:      next.AlertColor,
			DetectionMethod: database.DetectionAdmin,
			OccurredAt:      s.now(),
		}, nil
	})
}

func (s *Service) mutate(ctx context.Context, identityID, actor string, fn database.StatusMutation) (*database.SecurityStatus, error) {
	var eventType database.SecurityEventType
	wrapped := func(current *database.SecurityStatus) (database.SecurityStatus, *database.SecurityEvent, error) {
		next, event, err := fn(current)
		if event != nil {
			eventType = event.EventType
		}
		return next, event, err
	}

	status, err := s.store.MutateSecurityStatus(ctx, identityID, wrapped)
	if err != nil {
		return nil, fmt.Errorf("updating security status of %s: %w", identityID, err)
	}

	s.metrics.IncSecurityEvent(string(eventType), 1)
	s.activity.Record(ctx, activity.Entry{
		ActorType:        actorOr(actor),
		ActionType:       database.ActionSecurityChanged,
		TargetIdentityID: identityID,
		Details:          fmt.Sprintf("%s (%s)", eventType, status.AlertColor),
	})
	s.logger.Info("security status changed",
		"id", identityID, "event", eventType, "color", status.AlertColor)
	return status, nil
}

// GetStatus returns the stored status, or the all-clear default when the
// identity has none. database.ErrNotFound only when the identity is unknown.
func (s *Service) GetStatus(ctx context.Context, identityID string) (database.SecurityStatus, error) {
	status, err := s.store.GetSecurityStatus(ctx, identityID)
	if err != nil {
		return database.SecurityStatus{}, fmt.Errorf("reading security status: %w", err)
	}
	if status != nil {
		return *status, nil
	}
	if _, err := s.store.GetIdentity(ctx, identityID); err != nil {
		return database.SecurityStatus{}, err
	}
	return database.DefaultSecurityStatus(identityID), nil
}

// ClearAll resets every stored status in one atomic step, appending one
// CLEARED_ALL event per row. Returns how many rows were reset.
func (s *Service) ClearAll(ctx context.Context, actor string) (int, error) {
	ids, err := s.store.ClearAllSecurityStatuses(ctx, database.DetectionAdmin, s.now())
	if err != nil {
		return 0, fmt.Errorf("clearing security statuses: %w", err)
	}
	s.metrics.IncSecurityEvent(string(database.EventClearedAll), len(ids))
	s.activity.Record(ctx, activity.Entry{
		ActorType:  actorOr(actor),
		ActionType: database.ActionSecurityClearAll,
		Details:    fmt.Sprintf("%d identities cleared", len(ids)),
	})
	s.logger.Info("all security statuses cleared", "count", len(ids))
	return len(ids), nil
}

// Events returns security events newest first.
func (s *Service) Events(ctx context.Context, filter database.SecurityEventFilter) ([]database.SecurityEvent, error) {
	if filter.Limit <= 0 {
		filter.Limit = database.DefaultHistoryLimit
	}
	filter.Limit = min(filter.Limit, database.MaxHistoryLimit)
	return s.store.ListSecurityEvents(ctx, filter)
}

// Stats counts identities by watchlist state.
func (s *Service) Stats(ctx context.Context) (database.SecurityStats, error) {
	return s.store.SecurityStats(ctx)
}

// ListWithStatus returns every identity with its effective status and NFC tag.
func (s *Service) ListWithStatus(ctx context.Context) ([]IdentityWithStatus, error) {
	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	byID, err := s.StatusesByID(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.store.ListNFCTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing nfc tags: %w", err)
	}
	tagsByID := make(map[string]*database.NFCTag, len(tags))
	for i := range tags {
		tagsByID[tags[i].IdentityID] = &tags[i]
	}

	out := make([]IdentityWithStatus, 0, len(identities))
	for _, identity := range identities {
		st, ok := byID[identity.ID]
		if !ok {
			st = database.DefaultSecurityStatus(identity.ID)
		}
		out = append(out, IdentityWithStatus{Identity: identity, Status: st, NFC: tagsByID[identity.ID]})
	}
	return out, nil
}

// StatusesByID returns the stored statuses keyed by identity id.
func (s *Service) StatusesByID(ctx context.Context) (map[string]database.SecurityStatus, error) {
	statuses, err := s.store.ListSecurityStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing security statuses: %w", err)
	}
	byID := make(map[string]database.SecurityStatus, len(statuses))
	for _, st := range statuses {
		byID[st.IdentityID] = st
	}
	return byID, nil
}

func actorOr(actor string) string {
	if actor == "" {
		return database.ActorAdmin
	}
	return actor
}
