// Package nfc binds physical NFC tags to enrolled identities and switches
// them on and off. A tag belongs to one identity and goes with it on removal.
package nfc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// ErrInvalidUID is returned for a tag UID that is not 4, 7 or 10 bytes of hex.
var ErrInvalidUID = errors.New("invalid nfc tag uid")

// Store is the storage the service needs.
type Store interface {
	database.IdentityReader
	database.NFCStore
}

// Status is the tag state of one identity. Without a registered tag it
// reports Registered false and Active true: nothing is disabled.
type Status struct {
	IdentityID   string
	Registered   bool
	Active       bool
	UID          string
	RegisteredAt time.Time
}

func statusOf(identityID string, tag *database.NFCTag) Status {
	if tag == nil {
		return Status{IdentityID: identityID, Active: true}
	}
	return Status{
		IdentityID:   identityID,
		Registered:   true,
		Active:       tag.Active,
		UID:          tag.UID,
		RegisteredAt: tag.RegisteredAt,
	}
}

// Service manages NFC tag associations.
type Service struct {
	store    Store
	activity *activity.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates an NFC tag service.
func NewService(store Store, act *activity.Service, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		activity: act,
		logger:   logging.OrDiscard(logger),
		now:      time.Now,
	}
}

// NormalizeUID strips ':' '-' and space separators and upper-cases the hex
// digits. Valid UIDs are 4, 7 or 10 bytes long.
func NormalizeUID(uid string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', ' ':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(uid)))

	switch len(cleaned) {
	case 8, 14, 20:
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUID, uid)
	}
	for _, r := range cleaned {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return "", fmt.Errorf("%w: %q", ErrInvalidUID, uid)
		}
	}
	return cleaned, nil
}

// Register binds uid to identityID as an active tag, replacing a previous
// tag of the identity. database.ErrConflict when another identity holds uid.
func (s *Service) Register(ctx context.Context, identityID, uid, actor string) (Status, error) {
	normalized, err := NormalizeUID(uid)
	if err != nil {
		return Status{}, err
	}
	tag := &database.NFCTag{
		IdentityID:   identityID,
		UID:          normalized,
		Active:       true,
		RegisteredAt: s.now(),
	}
	if err := s.store.RegisterNFCTag(ctx, tag); err != nil {
		return Status{}, fmt.Errorf("registering nfc tag for %s: %w", identityID, err)
	}

	s.activity.Record(ctx, activity.Entry{
		ActorType:        actorOr(actor),
		ActionType:       database.ActionNFCRegistered,
		TargetIdentityID: identityID,
		Details:          normalized,
	})
	s.logger.Info("nfc tag registered", "id", identityID, "uid", normalized)
	return statusOf(identityID, tag), nil
}

// Status returns the tag state of identityID, database.ErrNotFound for an
// unknown identity.
func (s *Service) Status(ctx context.Context, identityID string) (Status, error) {
	if _, err := s.store.GetIdentity(ctx, identityID); err != nil {
		return Status{}, err
	}
	tag, err := s.store.GetNFCTag(ctx, identityID)
	if err != nil {
		return Status{}, fmt.Errorf("reading nfc tag of %s: %w", identityID, err)
	}
	return statusOf(identityID, tag), nil
}

// SetActive enables or disables the identity's tag. database.ErrNotFound
// when no tag is registered.
func (s *Service) SetActive(ctx context.Context, identityID string, active bool, actor string) (Status, error) {
	tag, err := s.store.SetNFCTagActive(ctx, identityID, active)
	if err != nil {
		return Status{}, fmt.Errorf("updating nfc tag of %s: %w", identityID, err)
	}

	state := "inactive"
	if active {
		state = "active"
	}
	s.activity.Record(ctx, activity.Entry{
		ActorType:        actorOr(actor),
		ActionType:       database.ActionNFCToggled,
		TargetIdentityID: identityID,
		Details:          state,
	})
	s.logger.Info("nfc tag toggled", "id", identityID, "active", active)
	return statusOf(identityID, tag), nil
}

func actorOr(actor string) string {
	if actor == "" {
		return database.ActorAdmin
	}
	return actor
}
