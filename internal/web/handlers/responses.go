package handlers

import (
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/nfc"
	"github.com/kozaktomas/facewatch/internal/recognition"
)

// IdentityResponse is an enrolled person. Embeddings are never returned.
type IdentityResponse struct {
	ID          string               `json:"id"`
	FirstName   string               `json:"firstName"`
	LastName    string               `json:"lastName"`
	DateOfBirth string               `json:"dateOfBirth"`
	Gender      string               `json:"gender"`
	PhotoRef    string               `json:"photoRef,omitempty"`
	EnrolledAt  time.Time            `json:"enrolledAt"`
	AlertColor  database.AlertColor  `json:"alertColor,omitempty"`
	Security    *SecurityStatusReply `json:"security,omitempty"`
	NFC         *NFCStatusReply      `json:"nfc,omitempty"`
}

func identityResponse(i *database.Identity) IdentityResponse {
	return IdentityResponse{
		ID:          i.ID,
		FirstName:   i.FirstName,
		LastName:    i.LastName,
		DateOfBirth: i.DateOfBirth,
		Gender:      i.Gender,
		PhotoRef:    i.PhotoRef,
		EnrolledAt:  i.EnrolledAt,
	}
}

// NeighbourResponse is one entry of a similar-identities listing.
type NeighbourResponse struct {
	Identity   IdentityResponse `json:"identity"`
	Similarity float64          `json:"similarity"`
	Distance   float64          `json:"distance"`
}

func neighbourResponse(n *facematch.Neighbour) NeighbourResponse {
	return NeighbourResponse{
		Identity:   identityResponse(&n.Identity),
		Similarity: n.Similarity,
		Distance:   n.Distance,
	}
}

// SecurityStatusReply is the watchlist state of one identity.
type SecurityStatusReply struct {
	IdentityID string              `json:"identityId"`
	Wanted     bool                `json:"wanted"`
	Blocked    bool                `json:"blocked"`
	Reason     string              `json:"reason,omitempty"`
	AlertColor database.AlertColor `json:"alertColor"`
	UpdatedAt  *time.Time          `json:"updatedAt,omitempty"`
}

func securityStatusReply(s *database.SecurityStatus) *SecurityStatusReply {
	reply := &SecurityStatusReply{
		IdentityID: s.IdentityID,
		Wanted:     s.Wanted,
		Blocked:    s.Blocked,
		Reason:     s.Reason,
		AlertColor: s.AlertColor,
	}
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		reply.UpdatedAt = &t
	}
	return reply
}

// NFCStatusReply is the NFC tag state of one identity.
type NFCStatusReply struct {
	Registered   bool       `json:"registered"`
	UID          string     `json:"uid,omitempty"`
	Active       bool       `json:"active"`
	RegisteredAt *time.Time `json:"registeredAt,omitempty"`
}

func nfcStatusReply(st nfc.Status) *NFCStatusReply {
	reply := &NFCStatusReply{Registered: st.Registered, UID: st.UID, Active: st.Active}
	if st.Registered {
		t := st.RegisteredAt
		reply.RegisteredAt = &t
	}
	return reply
}

func nfcTagReply(identityID string, tag *database.NFCTag) *NFCStatusReply {
	if tag == nil {
		return nfcStatusReply(nfc.Status{IdentityID: identityID, Active: true})
	}
	return nfcStatusReply(nfc.Status{
		IdentityID:   identityID,
		Registered:   true,
		Active:       tag.Active,
		UID:          tag.UID,
		RegisteredAt: tag.RegisteredAt,
	})
}

// SecurityEventResponse is one watchlist transition.
type SecurityEventResponse struct {
	ID              int64                      `json:"id"`
	IdentityID      string                     `json:"identityId"`
	EventType       database.SecurityEventType `json:"eventType"`
	AlertColor      database.AlertColor        `json:"alertColor"`
	DetectionMethod string                     `json:"detectionMethod"`
	OccurredAt      time.Time                  `json:"occurredAt"`
}

// SearchHistoryResponse is one recorded search.
type SearchHistoryResponse struct {
	ID         int64               `json:"id"`
	IdentityID string              `json:"identityId,omitempty"`
	FirstName  string              `json:"firstName,omitempty"`
	LastName   string              `json:"lastName,omitempty"`
	SearchType database.SearchType `json:"searchType"`
	Found      bool                `json:"found"`
	Stage      string              `json:"stage,omitempty"`
	SearchedAt time.Time           `json:"searchedAt"`
}

// ActivityResponse is one audit line.
type ActivityResponse struct {
	ID               int64     `json:"id"`
	ActorType        string    `json:"actorType"`
	ActionType       string    `json:"actionType"`
	TargetIdentityID string    `json:"targetIdentityId,omitempty"`
	TargetName       string    `json:"targetName,omitempty"`
	Details          string    `json:"details,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// CaptureResponse prefills a report draft from an identified probe.
type CaptureResponse struct {
	IdentityID  string               `json:"identityId"`
	FirstName   string               `json:"firstName"`
	LastName    string               `json:"lastName"`
	DateOfBirth string               `json:"dateOfBirth"`
	Gender      string               `json:"gender"`
	Confidence  float64              `json:"confidence"`
	Security    *SecurityStatusReply `json:"security"`
	CapturedAt  time.Time            `json:"capturedAt"`
}

func captureResponse(c *recognition.Capture) *CaptureResponse {
	if c == nil {
		return nil
	}
	return &CaptureResponse{
		IdentityID:  c.IdentityID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		DateOfBirth: c.DateOfBirth,
		Gender:      c.Gender,
		Confidence:  c.Confidence,
		Security:    securityStatusReply(&c.Security),
		CapturedAt:  c.CapturedAt,
	}
}

// ReportResponse is a stored report.
type ReportResponse struct {
	ID               string                `json:"id"`
	IdentityID       string                `json:"identityId"`
	FirstName        string                `json:"firstName"`
	LastName         string                `json:"lastName"`
	DateOfBirth      string                `json:"dateOfBirth"`
	Gender           string                `json:"gender"`
	Confidence       float64               `json:"confidence"`
	Note             string                `json:"note,omitempty"`
	ActionsTaken     string                `json:"actionsTaken,omitempty"`
	HasFine          bool                  `json:"hasFine"`
	FineAmount       *float64              `json:"fineAmount,omitempty"`
	FineNumber       string                `json:"fineNumber,omitempty"`
	FineType         string                `json:"fineType,omitempty"`
	FineStatus       string                `json:"fineStatus,omitempty"`
	OperatorFullName string                `json:"operatorFullName"`
	Status           database.ReportStatus `json:"status"`
	CreatedAt        time.Time             `json:"createdAt"`
	SubmittedAt      *time.Time            `json:"submittedAt,omitempty"`
}

func reportResponse(r *database.Report) ReportResponse {
	return ReportResponse{
		ID:               r.ID,
		IdentityID:       r.IdentityID,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		DateOfBirth:      r.DateOfBirth,
		Gender:           r.Gender,
		Confidence:       r.Confidence,
		Note:             r.Note,
		ActionsTaken:     r.ActionsTaken,
		HasFine:          r.HasFine,
		FineAmount:       r.FineAmount,
		FineNumber:       r.FineNumber,
		FineType:         r.FineType,
		FineStatus:       r.FineStatus,
		OperatorFullName: r.OperatorFullName,
		Status:           r.Status,
		CreatedAt:        r.CreatedAt,
		SubmittedAt:      r.SubmittedAt,
	}
}

func reportResponses(reports []database.Report) []ReportResponse {
	out := make([]ReportResponse, 0, len(reports))
	for i := range reports {
		out = append(out, reportResponse(&reports[i]))
	}
	return out
}
