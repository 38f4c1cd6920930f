// Package recognition resolves a captured probe to an enrolled identity. It
// asks the external recognizer first and falls back to the local matching
// engine, then cross-references the verdict with the security overlay and
// records it in the search history.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/circuit"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
	"github.com/kozaktomas/facewatch/internal/recognizer"
)

var (
	// ErrServiceUnavailable is returned when the local stage cannot produce a
	// verdict. Callers may retry.
	ErrServiceUnavailable = errors.New("recognition service unavailable")
	// ErrInvalidProbe is returned for a probe with neither an image reference
	// nor a usable embedding.
	ErrInvalidProbe = errors.New("invalid probe")
)

// Stage names the strategy that produced a verdict.
type Stage string

const (
	StageExternal Stage = "external"
	StageLocal    Stage = "local"
)

// Probe is one recognition request. ImageRef is handed to the external
// recognizer; Embedding, when present, skips extraction in the local stage.
type Probe struct {
	ImageRef   string
	Embedding  []float32
	SearchType database.SearchType
}

// Result has the same shape whichever stage produced it. Stage is
// diagnostic only.
type Result struct {
	Identified bool
	Identity   *database.Identity
	Confidence float64
	Message    string
	Stage      Stage
	Capture    *Capture
}

// Recognizer is the external recognizer client.
type Recognizer interface {
	Configured() bool
	Recognize(ctx context.Context, photoPath string) (*recognizer.Recognition, error)
	ExtractEmbedding(ctx context.Context, photoPath string) ([]float32, error)
}

// Matcher is the local matching engine.
type Matcher interface {
	Identify(ctx context.Context, probe []float32) (facematch.MatchResult, error)
}

// StatusReader returns the effective security status of an identity.
type StatusReader interface {
	GetStatus(ctx context.Context, identityID string) (database.SecurityStatus, error)
}

// Service runs the two-stage recognition strategy.
type Service struct {
	identities database.IdentityReader
	recognizer Recognizer
	matcher    Matcher
	security   StatusReader
	history    *activity.Service
	breaker    *circuit.Breaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Deps are the collaborators of a Service. Recognizer and Breaker may be nil.
type Deps struct {
	Identities database.IdentityReader
	Recognizer Recognizer
	Matcher    Matcher
	Security   StatusReader
	History    *activity.Service
	Breaker    *circuit.Breaker
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// NewService creates a recognition service.
func NewService(d Deps) *Service {
	return &Service{
		identities: d.Identities,
		recognizer: d.Recognizer,
		matcher:    d.Matcher,
		security:   d.Security,
		history:    d.History,
		breaker:    d.Breaker,
		metrics:    d.Metrics,
		logger:     logging.OrDiscard(d.Logger),
		now:        time.Now,
	}
}

// Recognize resolves probe. Exactly one search history entry is recorded for
// every call that reaches a verdict.
func (s *Service) Recognize(ctx context.Context, probe Probe) (*Result, error) {
	if probe.SearchType == "" {
		probe.SearchType = database.SearchMobile
	}
	if probe.ImageRef == "" && len(probe.Embedding) == 0 {
		return nil, fmt.Errorf("%w: image reference or embedding required", ErrInvalidProbe)
	}
	start := s.now()

	result, ok := s.external(ctx, probe)
	if !ok {
		var err error
		result, err = s.local(ctx, probe)
		if err != nil {
			return nil, err
		}
	}

	if result.Identified {
		status := s.statusOf(ctx, result.Identity.ID)
		result.Capture = NewCapture(result.Identity, result.Confidence, status, start)
	}

	entry := &database.SearchHistoryEntry{
		SearchType: probe.SearchType,
		Found:      result.Identified,
		Stage:      string(result.Stage),
		SearchedAt: start,
	}
	if result.Identified {
		entry.IdentityID = result.Identity.ID
		entry.FirstName = result.Identity.FirstName
		entry.LastName = result.Identity.LastName
	}
	s.history.RecordSearch(ctx, entry)

	verdict := string(facematch.VerdictUnidentified)
	if result.Identified {
		verdict = string(facematch.VerdictIdentified)
	}
	s.metrics.IncRecognition(string(result.Stage), verdict)
	s.metrics.ObserveRecognition(string(result.Stage), s.now().Sub(start).Seconds())

	return result, nil
}

// external runs the delegation stage. ok is false when the stage was skipped
// or failed and the local stage must decide.
func (s *Service) external(ctx context.Context, probe Probe) (*Result, bool) {
	if probe.ImageRef == "" || s.recognizer == nil || !s.recognizer.Configured() {
		return nil, false
	}
	var rec *recognizer.Recognition
	err := s.guard(func() error {
		var err error
		rec, err = s.recognizer.Recognize(ctx, probe.ImageRef)
		return err
	})
	if errors.Is(err, circuit.ErrOpen) {
		s.logger.Debug("recognizer circuit open, using local matcher")
		return nil, false
	}
	if err != nil {
		s.delegationFailed("recognize", err)
		return nil, false
	}

	if !rec.Identified {
		return &Result{
			Confidence: facematch.Clamp(rec.Confidence),
			Message:    unidentifiedMessage,
			Stage:      StageExternal,
		}, true
	}

	identity, err := s.identities.GetIdentity(ctx, rec.IdentityID)
	if err != nil {
		// The recognizer knows a person the registry does not (or the store
		// hiccupped); let the local stage decide against the registry.
		s.logger.Warn("recognizer returned unknown identity, using local matcher",
			"identity_id", rec.IdentityID, "error", err)
		return nil, false
	}
	return &Result{
		Identified: true,
		Identity:   identity,
		Confidence: facematch.Clamp(rec.Confidence),
		Message:    identifiedMessage(identity),
		Stage:      StageExternal,
	}, true
}

// guard runs fn through the breaker when one is configured.
func (s *Service) guard(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

func (s *Service) delegationFailed(op string, err error) {
	s.metrics.IncDelegationFailure(op)
	s.logger.Warn("recognizer call failed, falling back to local matcher", "operation", op, "error", err)
}

func (s *Service) local(ctx context.Context, probe Probe) (*Result, error) {
	embedding := probe.Embedding
	if len(embedding) == 0 {
		if s.recognizer == nil || !s.recognizer.Configured() {
			return nil, fmt.Errorf("%w: no embedding and no extractor configured", ErrServiceUnavailable)
		}
		var err error
		embedding, err = s.recognizer.ExtractEmbedding(ctx, probe.ImageRef)
		if err != nil {
			s.metrics.IncDelegationFailure("extract")
			return nil, fmt.Errorf("%w: extracting embedding: %v", ErrServiceUnavailable, err)
		}
	}
	if !facematch.ValidEmbedding(embedding) {
		return nil, fmt.Errorf("%w: embedding has non-finite components", ErrInvalidProbe)
	}

	match, err := s.matcher.Identify(ctx, embedding)
	if errors.Is(err, facematch.ErrDimensionMismatch) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if !match.Identified() {
		return &Result{
			Confidence: match.Similarity,
			Message:    unidentifiedMessage,
			Stage:      StageLocal,
		}, nil
	}
	return &Result{
		Identified: true,
		Identity:   match.Identity,
		Confidence: match.Similarity,
		Message:    identifiedMessage(match.Identity),
		Stage:      StageLocal,
	}, nil
}

func (s *Service) statusOf(ctx context.Context, identityID string) database.SecurityStatus {
	if s.security == nil {
		return database.DefaultSecurityStatus(identityID)
	}
	status, err := s.security.GetStatus(ctx, identityID)
	if err != nil {
		s.logger.Warn("failed to read security status", "identity_id", identityID, "error", err)
		return database.DefaultSecurityStatus(identityID)
	}
	return status
}

const unidentifiedMessage = "Person not recognized"

func identifiedMessage(identity *database.Identity) string {
	return "Recognized: " + identity.FullName()
}
