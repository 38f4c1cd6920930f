// Package facematch resolves face embeddings against the enrolled registry.
// It holds the similarity primitive, the threshold-based matching engine,
// the approximate neighbour index and name normalization for search.
package facematch

import "github.com/kozaktomas/facewatch/internal/database"

// Verdict is the outcome of a match attempt
type Verdict string

const (
	VerdictIdentified   Verdict = "identified"
	VerdictUnidentified Verdict = "unidentified"
)

// MatchResult is what Identify returns. Identity is set only when the
// verdict is Identified; Similarity is always the best similarity observed
// (0 on an empty registry).
type MatchResult struct {
	Verdict    Verdict
	Identity   *database.Identity
	Similarity float64
}

// Identified reports whether the probe resolved to an enrolled identity.
func (r MatchResult) Identified() bool {
	return r.Verdict == VerdictIdentified
}

// Neighbour is one result of a nearest-neighbour lookup.
type Neighbour struct {
	Identity   database.Identity
	Distance   float64 // cosine distance, 0 identical
	Similarity float64 // 1 - Distance
}
