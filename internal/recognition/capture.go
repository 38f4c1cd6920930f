package recognition

import (
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
)

// Capture is what an operator carries from an identified probe into a
// report: the person snapshot, the match confidence and the watchlist state
// at capture time.
type Capture struct {
	IdentityID  string
	FirstName   string
	LastName    string
	DateOfBirth string
	Gender      string
	Confidence  float64
	Security    database.SecurityStatus
	CapturedAt  time.Time
}

// NewCapture snapshots identity and status.
func NewCapture(identity *database.Identity, confidence float64, status database.SecurityStatus, at time.Time) *Capture {
	return &Capture{
		IdentityID:  identity.ID,
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
		DateOfBirth: identity.DateOfBirth,
		Gender:      identity.Gender,
		Confidence:  confidence,
		Security:    status,
		CapturedAt:  at,
	}
}
