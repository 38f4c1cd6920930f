package facematch

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facewatch/internal/database"
)

// DefaultThreshold is the similarity a match must strictly exceed.
const DefaultThreshold = 0.6

// SnapshotLoader supplies the identities a probe is matched against.
type SnapshotLoader interface {
	Snapshot(ctx context.Context) ([]database.Identity, error)
}

// Engine decides whether a probe embedding belongs to an enrolled identity.
type Engine struct {
	loader    SnapshotLoader
	threshold float64
}

// NewEngine creates an engine. A threshold outside (0, 1] falls back to DefaultThreshold.
func NewEngine(loader SnapshotLoader, threshold float64) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Engine{loader: loader, threshold: threshold}
}

// Threshold returns the configured decision threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Identify compares probe with every enrolled embedding and returns the best
// candidate. The probe is Identified only when the best clamped similarity is
// strictly greater than the threshold. Equal similarities resolve to the
// earliest enrollment, then to the smaller key. An empty registry or a weak
// best match is not an error.
func (e *Engine) Identify(ctx context.Context, probe []float32) (MatchResult, error) {
	identities, err := e.loader.Snapshot(ctx)
	if err != nil {
		return MatchResult{}, fmt.Errorf("loading registry snapshot: %w", err)
	}

	var best *database.Identity
	bestSim := 0.0
	for i := range identities {
		candidate := &identities[i]
		sim, err := CosineSimilarity(probe, candidate.Embedding)
		if err != nil {
			return MatchResult{}, fmt.Errorf("comparing with %s: %w", candidate.ID, err)
		}
		sim = Clamp(sim)
		if best == nil || sim > bestSim || (sim == bestSim && enrolledBefore(candidate, best)) {
			best = candidate
			bestSim = sim
		}
	}

	if best == nil {
		return MatchResult{Verdict: VerdictUnidentified}, nil
	}
	if bestSim > e.threshold {
		identity := *best
		return MatchResult{Verdict: VerdictIdentified, Identity: &identity, Similarity: bestSim}, nil
	}
	return MatchResult{Verdict: VerdictUnidentified, Similarity: max(bestSim, 0)}, nil
}

func enrolledBefore(a, b *database.Identity) bool {
	if !a.EnrolledAt.Equal(b.EnrolledAt) {
		return a.EnrolledAt.Before(b.EnrolledAt)
	}
	return a.ID < b.ID
}
