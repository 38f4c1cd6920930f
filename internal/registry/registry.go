// Package registry owns identity enrollment, lookup and removal.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

var (
	// ErrInvalidIdentity is returned when a descriptive field or the key is empty.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidEmbedding is returned for an embedding of the wrong length or
	// with non-finite components.
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

const defaultSimilarLimit = 10

// MediaRemover deletes the stored photo of a removed identity.
type MediaRemover interface {
	Remove(ctx context.Context, ref string) error
}

// EncodingQueue forwards an enrolled photo to the external recognizer.
type EncodingQueue interface {
	Submit(identityID, photoRef string) bool
}

// SnapshotInvalidator drops cached matching snapshots after a registry write.
type SnapshotInvalidator interface {
	Invalidate()
}

// EnrollRequest carries everything needed to enroll a person.
type EnrollRequest struct {
	ID          string
	FirstName   string
	LastName    string
	DateOfBirth string
	Gender      string
	Embedding   []float32
	PhotoRef    string
	Actor       string
}

// EnrollResult is the stored identity plus the closest already-enrolled
// identity when it looks like the same person.
type EnrollResult struct {
	Identity          *database.Identity
	PossibleDuplicate *facematch.Neighbour
}

// Service manages the identity registry.
type Service struct {
	store     database.IdentityWriter
	dim       int
	threshold float64

	index    *facematch.NeighbourIndex
	snapshot SnapshotInvalidator
	media    MediaRemover
	encoding EncodingQueue
	activity *activity.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNeighbourIndex enables the in-memory neighbour index for Similar and
// duplicate warnings. Without it Similar queries storage.
func WithNeighbourIndex(idx *facematch.NeighbourIndex) Option {
	return func(s *Service) { s.index = idx }
}

// WithSnapshot registers the matching snapshot to invalidate on writes.
func WithSnapshot(inv SnapshotInvalidator) Option {
	return func(s *Service) { s.snapshot = inv }
}

// WithMediaRemover sets the collaborator that deletes photos on removal.
func WithMediaRemover(m MediaRemover) Option {
	return func(s *Service) { s.media = m }
}

// WithEncodingQueue forwards the photos of new enrollments to the external
// recognizer.
func WithEncodingQueue(q EncodingQueue) Option {
	return func(s *Service) { s.encoding = q }
}

// WithActivity sets the audit log.
func WithActivity(a *activity.Service) Option {
	return func(s *Service) { s.activity = a }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a registry over store. dim is the required embedding
// length; threshold is the similarity above which a new enrollment is
// reported as a possible duplicate.
func NewService(store database.IdentityWriter, dim int, threshold float64, opts ...Option) *Service {
	s := &Service{store: store, dim: dim, threshold: threshold}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	return s
}

// LoadIndex fills the neighbour index from storage. No-op without an index.
func (s *Service) LoadIndex(ctx context.Context) (int, error) {
	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing identities: %w", err)
	}
	s.metrics.SetIdentities(len(identities))
	if s.index == nil {
		return 0, nil
	}
	s.index.Build(identities)
	return s.index.Count(), nil
}

func (s *Service) validate(req *EnrollRequest) error {
	fields := []struct {
		name, value string
	}{
		{"id", req.ID},
		{"first name", req.FirstName},
		{"last name", req.LastName},
		{"date of birth", req.DateOfBirth},
		{"gender", req.Gender},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidIdentity, f.name)
		}
	}
	if len(req.Embedding) != s.dim {
		return fmt.Errorf("%w: expected %d components, got %d", ErrInvalidEmbedding, s.dim, len(req.Embedding))
	}
	if !facematch.ValidEmbedding(req.Embedding) {
		return fmt.Errorf("%w: non-finite component", ErrInvalidEmbedding)
	}
	return nil
}

// Enroll validates and stores a new identity. A duplicate key fails with
// database.ErrConflict and leaves the first enrollment untouched.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	req.ID = strings.TrimSpace(req.ID)
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	identity := &database.Identity{
		ID:          req.ID,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		DateOfBirth: strings.TrimSpace(req.DateOfBirth),
		Gender:      strings.TrimSpace(req.Gender),
		Embedding:   append([]float32(nil), req.Embedding...),
		PhotoRef:    req.PhotoRef,
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("enrolling %s: %w", req.ID, err)
	}

	if s.snapshot != nil {
		s.snapshot.Invalidate()
	}

	result := &EnrollResult{Identity: identity}
	if s.index != nil {
		if nearest := s.index.Search(identity.Embedding, 1, identity.ID); len(nearest) > 0 && nearest[0].Similarity > s.threshold {
			dup := nearest[0]
			result.PossibleDuplicate = &dup
			s.logger.Warn("enrolled identity resembles an existing one",
				"id", identity.ID, "similar_to", dup.Identity.ID, "similarity", dup.Similarity)
		}
		s.index.Add(*identity)
	}
	if n, err := s.store.CountIdentities(ctx); err == nil {
		s.metrics.SetIdentities(n)
	}

	s.activity.Record(ctx, activity.Entry{
		ActorType:        actorOr(req.Actor, database.ActorAdmin),
		ActionType:       database.ActionIdentityEnrolled,
		TargetIdentityID: identity.ID,
		TargetName:       identity.FullName(),
	})
	if s.encoding != nil && identity.PhotoRef != "" {
		s.encoding.Submit(identity.ID, identity.PhotoRef)
	}
	s.logger.Info("identity enrolled", "id", identity.ID)

	return result, nil
}

// Get returns the identity or database.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*database.Identity, error) {
	return s.store.GetIdentity(ctx, id)
}

// Lookup is Get for a person searched by key from the web panel; every
// successful lookup lands in the search history.
func (s *Service) Lookup(ctx context.Context, id string) (*database.Identity, error) {
	identity, err := s.store.GetIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	s.activity.RecordSearch(ctx, &database.SearchHistoryEntry{
		IdentityID: identity.ID,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
		SearchType: database.SearchWeb,
		Found:      true,
		Stage:      "lookup",
	})
	return identity, nil
}

// List returns every enrolled identity.
func (s *Service) List(ctx context.Context) ([]database.Identity, error) {
	return s.store.ListIdentities(ctx)
}

// Search returns identities whose first or last name contains name,
// ignoring case and diacritics.
func (s *Service) Search(ctx context.Context, name string) ([]database.Identity, error) {
	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	var matches []database.Identity
	for _, identity := range identities {
		if facematch.NameMatches(name, identity.FirstName, identity.LastName) {
			matches = append(matches, identity)
		}
	}
	return matches, nil
}

// Remove deletes an identity with its security status and events. Photo
// deletion is best-effort.
func (s *Service) Remove(ctx context.Context, id, actor string) error {
	identity, err := s.store.GetIdentity(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteIdentity(ctx, id); err != nil {
		return fmt.Errorf("removing %s: %w", id, err)
	}

	if s.index != nil {
		s.index.Delete(id)
	}
	if s.snapshot != nil {
		s.snapshot.Invalidate()
	}
	if n, err := s.store.CountIdentities(ctx); err == nil {
		s.metrics.SetIdentities(n)
	}

	if s.media != nil && identity.PhotoRef != "" {
		if err := s.media.Remove(ctx, identity.PhotoRef); err != nil {
			s.logger.Warn("failed to remove photo", "id", id, "photo", identity.PhotoRef, "error", err)
		}
	}

	s.activity.Record(ctx, activity.Entry{
		ActorType:        actorOr(actor, database.ActorAdmin),
		ActionType:       database.ActionIdentityRemoved,
		TargetIdentityID: id,
		TargetName:       identity.FullName(),
	})
	s.logger.Info("identity removed", "id", id)
	return nil
}

// Similar returns up to limit identities nearest to the identity id,
// excluding itself.
func (s *Service) Similar(ctx context.Context, id string, limit int) ([]facematch.Neighbour, error) {
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	identity, err := s.store.GetIdentity(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.index != nil && s.index.Count() > 0 {
		return s.index.Search(identity.Embedding, limit, id), nil
	}

	candidates, distances, err := s.store.FindSimilarIdentities(ctx, identity.Embedding, limit+1)
	if err != nil {
		return nil, fmt.Errorf("finding similar identities: %w", err)
	}
	neighbours := make([]facematch.Neighbour, 0, limit)
	for i, c := range candidates {
		if c.ID == id {
			continue
		}
		neighbours = append(neighbours, facematch.Neighbour{
			Identity:   c,
			Distance:   distances[i],
			Similarity: 1 - distances[i],
		})
		if len(neighbours) == limit {
			break
		}
	}
	return neighbours, nil
}

func actorOr(actor, fallback string) string {
	if actor == "" {
		return fallback
	}
	return actor
}
