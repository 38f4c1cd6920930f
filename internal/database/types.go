package database

import (
	"time"
)

// AlertColor is the operator-facing severity shown next to an identity.
type AlertColor string

const (
	AlertGreen  AlertColor = "green"
	AlertOrange AlertColor = "orange"
	AlertRed    AlertColor = "red"
)

// Valid reports whether c is one of the known colors.
func (c AlertColor) Valid() bool {
	switch c {
	case AlertGreen, AlertOrange, AlertRed:
		return true
	}
	return false
}

// DeriveAlertColor maps a wanted/blocked pair to its default color.
func DeriveAlertColor(wanted, blocked bool) AlertColor {
	switch {
	case wanted:
		return AlertRed
	case blocked:
		return AlertOrange
	default:
		return AlertGreen
	}
}

// SecurityEventType names a security status transition.
type SecurityEventType string

const (
	EventWanted     SecurityEventType = "WANTED"
	EventCleared    SecurityEventType = "CLEARED"
	EventBlocked    SecurityEventType = "BLOCKED"
	EventUnblocked  SecurityEventType = "UNBLOCKED"
	EventClearedAll SecurityEventType = "CLEARED_ALL"
)

// Detection methods recorded on security events.
const (
	DetectionAdmin  = "admin"
	DetectionManual = "manual"
	DetectionSystem = "system"
)

// SearchType tells where a search originated.
type SearchType string

const (
	SearchMobile SearchType = "mobile"
	SearchWeb    SearchType = "web"
)

// ReportStatus is the report lifecycle state.
type ReportStatus string

const (
	ReportNew       ReportStatus = "New"
	ReportSubmitted ReportStatus = "Submitted"
)

// Fine statuses. Pending covers fines on reports that have not been settled.
const (
	FinePaid    = "Paid"
	FineUnpaid  = "Unpaid"
	FinePending = "Pending"
)

// Activity action types.
const (
	ActionIdentityEnrolled  = "IDENTITY_ENROLLED"
	ActionIdentityRemoved   = "IDENTITY_REMOVED"
	ActionReportSaved       = "REPORT_SAVED"
	ActionReportSubmitted   = "REPORT_SUBMITTED"
	ActionReportWithFine    = "REPORT_WITH_FINE"
	ActionReportDeleted     = "REPORT_DELETED"
	ActionFineUpdated       = "FINE_UPDATED"
	ActionFineStatusChanged = "FINE_STATUS_CHANGED"
	ActionFineDeleted       = "FINE_DELETED"
	ActionSecurityChanged   = "SECURITY_STATUS_CHANGED"
	ActionSecurityClearAll  = "SECURITY_CLEARED_ALL"
	ActionNFCRegistered     = "NFC_REGISTERED"
	ActionNFCToggled        = "NFC_TOGGLED"
)

// Actor types on activity entries.
const (
	ActorOperator = "operator"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
)

// Identity is an enrolled person with a reference face embedding.
type Identity struct {
	ID          string // natural-person key, immutable
	FirstName   string
	LastName    string
	DateOfBirth string
	Gender      string
	Embedding   []float32
	PhotoRef    string // image reference handed to the media remover on removal
	EnrolledAt  time.Time
}

// FullName returns "First Last".
func (i *Identity) FullName() string {
	return i.FirstName + " " + i.LastName
}

// SecurityStatus is the current watchlist state of one identity.
type SecurityStatus struct {
	IdentityID string
	Wanted     bool
	Blocked    bool
	Reason     string
	AlertColor AlertColor
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsClear reports whether the status equals the default all-clear state.
func (s *SecurityStatus) IsClear() bool {
	return !s.Wanted && !s.Blocked && s.AlertColor == AlertGreen
}

// DefaultSecurityStatus is the state of an identity that has no stored row.
func DefaultSecurityStatus(identityID string) SecurityStatus {
	return SecurityStatus{IdentityID: identityID, AlertColor: AlertGreen}
}

// SecurityEvent is an append-only record of one status transition.
type SecurityEvent struct {
	ID              int64
	IdentityID      string
	EventType       SecurityEventType
	AlertColor      AlertColor
	DetectionMethod string
	OccurredAt      time.Time
}

// SearchHistoryEntry records one search and its verdict. An empty
// IdentityID means the probe was not identified.
type SearchHistoryEntry struct {
	ID         int64
	IdentityID string
	FirstName  string
	LastName   string
	SearchType SearchType
	Found      bool
	Stage      string
	SearchedAt time.Time
}

// ActivityLogEntry is an append-only audit line.
type ActivityLogEntry struct {
	ID               int64
	ActorType        string
	ActionType       string
	TargetIdentityID string
	TargetName       string
	Details          string
	CreatedAt        time.Time
}

// Report is an operator's case record about an identified person.
// The person fields are a snapshot taken at capture time.
type Report struct {
	ID               string
	IdentityID       string
	FirstName        string
	LastName         string
	DateOfBirth      string
	Gender           string
	Confidence       float64
	Note             string
	ActionsTaken     string
	HasFine          bool
	FineAmount       *float64
	FineNumber       string // 11 digits, set iff HasFine once submitted
	FineType         string
	FineStatus       string
	OperatorFullName string
	Status           ReportStatus
	CreatedAt        time.Time
	SubmittedAt      *time.Time
}

// FineReservation is a durable claim on one citation number.
type FineReservation struct {
	Number   int64
	ReportID string
	Method   string
	IssuedAt time.Time
}

// Allocation methods recorded on reservations.
const (
	FineMethodRandom  = "random"
	FineMethodClock   = "clock"
	FineMethodClaimed = "claimed"
)

// SecurityStats summarizes the watchlist and the registered NFC tags.
type SecurityStats struct {
	TotalIdentities int
	Wanted          int
	Blocked         int
	Clear           int
	NFCActive       int
	NFCInactive     int
}

// NFCTag binds a physical NFC tag to an identity. An identity has at most
// one tag and a UID belongs to at most one identity.
type NFCTag struct {
	IdentityID   string
	UID          string
	Active       bool
	RegisteredAt time.Time
}

// FineStats summarizes fines by status.
type FineStats struct {
	Total        int
	Paid         int
	Unpaid       int
	Pending      int
	TotalAmount  float64
	PaidAmount   float64
	UnpaidAmount float64
}

// SecurityEventFilter narrows ListSecurityEvents. Zero values mean "all".
type SecurityEventFilter struct {
	IdentityID string
	Limit      int
}

// ReportFilter narrows ListReports. Zero values mean "all".
type ReportFilter struct {
	IdentityID string
	FinesOnly  bool
}
