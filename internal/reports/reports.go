// Package reports implements the case report lifecycle (New -> Submitted)
// and the fines recorded on reports.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/recognition"
)

var (
	// ErrMissingIdentityKey is returned for a draft without an identity key.
	ErrMissingIdentityKey = errors.New("report identity key is required")
	// ErrMissingOperator is returned for a draft without an operator name.
	ErrMissingOperator = errors.New("report operator is required")
	// ErrInvalidReportID is returned for a report id that is not a UUID.
	ErrInvalidReportID = errors.New("report id must be a UUID")
	// ErrMissingFineStatus is returned by UpdateFineStatus for an empty status.
	ErrMissingFineStatus = errors.New("fine status is required")
)

// FineAllocator reserves fine numbers.
type FineAllocator interface {
	Allocate(ctx context.Context, reportID string) (string, error)
	Claim(ctx context.Context, number, reportID string) error
}

// Draft is an operator's report as sent by the client.
type Draft struct {
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
	FineNumber       string
	FineType         string
	FineStatus       string
	OperatorFullName string
}

// DraftFromCapture prefills a draft from an identified capture.
func DraftFromCapture(c *recognition.Capture, operator string) Draft {
	return Draft{
		IdentityID:       c.IdentityID,
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		DateOfBirth:      c.DateOfBirth,
		Gender:           c.Gender,
		Confidence:       c.Confidence,
		OperatorFullName: operator,
	}
}

// FineUpdate replaces the fine fields of a report. An empty Number keeps
// the current number.
type FineUpdate struct {
	Amount *float64
	Number string
	Type   string
	Status string
	Note   string
}

// Service manages reports and their fines.
type Service struct {
	store     database.ReportStore
	allocator FineAllocator
	activity  *activity.Service
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the report service.
func NewService(store database.ReportStore, allocator FineAllocator, act *activity.Service, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		allocator: allocator,
		activity:  act,
		logger:    logging.OrDiscard(logger),
		now:       time.Now,
	}
}

func (s *Service) prepare(d *Draft) error {
	d.IdentityID = strings.TrimSpace(d.IdentityID)
	d.OperatorFullName = strings.TrimSpace(d.OperatorFullName)
	if d.IdentityID == "" {
		return ErrMissingIdentityKey
	}
	if d.OperatorFullName == "" {
		return ErrMissingOperator
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else if _, err := uuid.Parse(d.ID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidReportID, d.ID)
	}
	if !d.HasFine {
		d.FineNumber = ""
	} else if d.FineStatus == "" {
		d.FineStatus = database.FineUnpaid
	}
	return nil
}

// fineNumber returns the number a fined report should carry, claiming a
// caller-supplied one or allocating a fresh one.
func (s *Service) fineNumber(ctx context.Context, reportID, supplied string) (string, error) {
	if supplied != "" {
		if err := s.allocator.Claim(ctx, supplied, reportID); err != nil {
			return "", fmt.Errorf("claiming fine number: %w", err)
		}
		return supplied, nil
	}
	number, err := s.allocator.Allocate(ctx, reportID)
	if err != nil {
		return "", fmt.Errorf("allocating fine number: %w", err)
	}
	return number, nil
}

func fromDraft(d *Draft, status database.ReportStatus) *database.Report {
	return &database.Report{
		ID:               d.ID,
		IdentityID:       d.IdentityID,
		FirstName:        d.FirstName,
		LastName:         d.LastName,
		DateOfBirth:      d.DateOfBirth,
		Gender:           d.Gender,
		Confidence:       d.Confidence,
		Note:             d.Note,
		ActionsTaken:     d.ActionsTaken,
		HasFine:          d.HasFine,
		FineAmount:       d.FineAmount,
		FineNumber:       d.FineNumber,
		FineType:         d.FineType,
		FineStatus:       d.FineStatus,
		OperatorFullName: d.OperatorFullName,
		Status:           status,
	}
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// Create stores a new report in state New. A fined report gets its fine
// number here.
func (s *Service) Create(ctx context.Context, d Draft) (*database.Report, error) {
	if err := s.prepare(&d); err != nil {
		return nil, err
	}
	if d.HasFine {
		number, err := s.fineNumber(ctx, d.ID, d.FineNumber)
		if err != nil {
			return nil, err
		}
		d.FineNumber = number
	}

	report := fromDraft(&d, database.ReportNew)
	report.CreatedAt = s.now()
	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}

	s.activity.Record(ctx, activity.Entry{
		ActorType:        database.ActorOperator,
		ActionType:       database.ActionReportSaved,
		TargetIdentityID: report.IdentityID,
		TargetName:       fullName(report.FirstName, report.LastName),
		Details:          "Operator: " + report.OperatorFullName,
	})
	s.logger.Info("report saved", "id", report.ID, "operator", report.OperatorFullName)
	return report, nil
}

// Submit moves a report to Submitted, creating it when it does not exist.
// Submitting an already Submitted report returns it unchanged and records
// nothing.
func (s *Service) Submit(ctx context.Context, d Draft) (*database.Report, error) {
	if err := s.prepare(&d); err != nil {
		return nil, err
	}

	existing, err := s.store.GetReport(ctx, d.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	if existing != nil && existing.Status == database.ReportSubmitted {
		return existing, nil
	}

	// Fine numbers are reserved before the report write; a number reserved
	// for a submission that loses a race stays burned.
	var number string
	if existing == nil && d.HasFine {
		if number, err = s.fineNumber(ctx, d.ID, d.FineNumber); err != nil {
			return nil, err
		}
	} else if existing != nil && existing.HasFine && existing.FineNumber == "" {
		if number, err = s.fineNumber(ctx, d.ID, ""); err != nil {
			return nil, err
		}
	}

	transitioned := false
	report, err := s.store.MutateReport(ctx, d.ID, func(current *database.Report) (*database.Report, error) {
		if current != nil && current.Status == database.ReportSubmitted {
			return nil, nil
		}
		var next *database.Report
		if current != nil {
			c := *current
			next = &c
		} else {
			next = fromDraft(&d, database.ReportSubmitted)
			next.CreatedAt = s.now()
		}
		if next.HasFine {
			if next.FineNumber == "" {
				if number == "" {
					return nil, errors.New("fined report without a reserved fine number")
				}
				next.FineNumber = number
			}
		} else {
			next.FineNumber = ""
		}
		submittedAt := s.now()
		next.Status = database.ReportSubmitted
		next.SubmittedAt = &submittedAt
		transitioned = true
		return next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("submitting report: %w", err)
	}
	if !transitioned {
		return report, nil
	}

	entry := activity.Entry{
		ActorType:        database.ActorOperator,
		ActionType:       database.ActionReportSubmitted,
		TargetIdentityID: report.IdentityID,
		TargetName:       fullName(report.FirstName, report.LastName),
		Details:          "Actions: " + truncate(report.ActionsTaken, 50),
	}
	if report.HasFine {
		entry.ActionType = database.ActionReportWithFine
		entry.Details = fmt.Sprintf("Fine %s: %s", report.FineNumber, formatAmount(report.FineAmount))
	}
	s.activity.Record(ctx, entry)
	s.logger.Info("report submitted", "id", report.ID, "fine", report.FineNumber)
	return report, nil
}

// Get returns a report or database.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*database.Report, error) {
	return s.store.GetReport(ctx, id)
}

// List returns every report, newest first.
func (s *Service) List(ctx context.Context) ([]database.Report, error) {
	return s.store.ListReports(ctx, database.ReportFilter{})
}

// ListByIdentity returns the reports about one person.
func (s *Service) ListByIdentity(ctx context.Context, identityID string) ([]database.Report, error) {
	return s.store.ListReports(ctx, database.ReportFilter{IdentityID: identityID})
}

// Delete removes a report. Its fine number stays reserved.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	return s.delete(ctx, id, actor, database.ActionReportDeleted)
}

func (s *Service) delete(ctx context.Context, id, actor, action string) error {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteReport(ctx, id); err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	details := "Report " + id
	if report.FineNumber != "" {
		details = "Fine " + report.FineNumber
	}
	s.activity.Record(ctx, activity.Entry{
		ActorType:        actorOr(actor),
		ActionType:       action,
		TargetIdentityID: report.IdentityID,
		TargetName:       fullName(report.FirstName, report.LastName),
		Details:          details,
	})
	return nil
}

// ListFines returns every fined report.
func (s *Service) ListFines(ctx context.Context) ([]database.Report, error) {
	return s.store.ListReports(ctx, database.ReportFilter{FinesOnly: true})
}

// ListFinesByIdentity returns the fined reports about one person.
func (s *Service) ListFinesByIdentity(ctx context.Context, identityID string) ([]database.Report, error) {
	return s.store.ListReports(ctx, database.ReportFilter{IdentityID: identityID, FinesOnly: true})
}

// UpdateFine replaces the fine fields of a report. A new number must be
// free or already held by this report; a report fined for the first time
// without a number gets one allocated.
func (s *Service) UpdateFine(ctx context.Context, id string, u FineUpdate, actor string) (*database.Report, error) {
	if u.Number != "" {
		if err := s.allocator.Claim(ctx, u.Number, id); err != nil {
			return nil, fmt.Errorf("claiming fine number: %w", err)
		}
	} else {
		current, err := s.store.GetReport(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.FineNumber == "" {
			if u.Number, err = s.allocator.Allocate(ctx, id); err != nil {
				return nil, fmt.Errorf("allocating fine number: %w", err)
			}
		}
	}
	report, err := s.store.MutateReport(ctx, id, func(current *database.Report) (*database.Report, error) {
		if current == nil {
			return nil, fmt.Errorf("report %s: %w", id, database.ErrNotFound)
		}
		next := *current
		next.HasFine = true
		next.FineAmount = u.Amount
		if u.Number != "" {
			next.FineNumber = u.Number
		}
		next.FineType = u.Type
		next.FineStatus = u.Status
		next.Note = u.Note
		return &next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating fine: %w", err)
	}

	s.activity.Record(ctx, activity.Entry{
		ActorType:        actorOr(actor),
		ActionType:       database.ActionFineUpdated,
		TargetIdentityID: report.IdentityID,
		TargetName:       fullName(report.FirstName, report.LastName),
		Details:          fmt.Sprintf("Fine %s - status: %s, amount: %s", report.FineNumber, report.FineStatus, formatAmount(report.FineAmount)),
	})
	return report, nil
}

// UpdateFineStatus changes only the fine status.
func (s *Service) UpdateFineStatus(ctx context.Context, id, status, actor string) (*database.Report, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, ErrMissingFineStatus
	}
	report, err := s.store.MutateReport(ctx, id, func(current *database.Report) (*database.Report, error) {
		if current == nil {
			return nil, fmt.Errorf("report %s: %w", id, database.ErrNotFound)
		}
		next := *current
		next.FineStatus = status
		return &next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating fine status: %w", err)
	}

	s.activity.Record(ctx, activity.Entry{
		ActorType:        actorOr(actor),
		ActionType:       database.ActionFineStatusChanged,
		TargetIdentityID: report.IdentityID,
		TargetName:       fullName(report.FirstName, report.LastName),
		Details:          fmt.Sprintf("Fine %s - new status: %s", report.FineNumber, status),
	})
	return report, nil
}

// DeleteFine removes the fined report.
func (s *Service) DeleteFine(ctx context.Context, id, actor string) error {
	return s.delete(ctx, id, actor, database.ActionFineDeleted)
}

// FineStats aggregates fines by status.
func (s *Service) FineStats(ctx context.Context) (database.FineStats, error) {
	return s.store.FineStats(ctx)
}

func actorOr(actor string) string {
	if actor == "" {
		return database.ActorAdmin
	}
	return actor
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func formatAmount(amount *float64) string {
	if amount == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f PLN", *amount)
}
