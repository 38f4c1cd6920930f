package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/citation"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/database/mock"
	"github.com/kozaktomas/facewatch/internal/recognition"
)

func newTestService(t *testing.T) (*Service, *mock.Store) {
	t.Helper()
	store := mock.NewStore()
	alloc := citation.NewAllocator(store, 0, nil, nil)
	return NewService(store, alloc, activity.NewService(store, nil), nil), store
}

func amount(v float64) *float64 { return &v }

func draft() Draft {
	return Draft{
		IdentityID:       "90010112345",
		FirstName:        "Jan",
		LastName:         "Kowalski",
		DateOfBirth:      "1990-01-01",
		Gender:           "M",
		Confidence:       0.91,
		ActionsTaken:     "ID check",
		OperatorFullName: "Anna Nowak",
	}
}

func actions(store *mock.Store) []string {
	var out []string
	for _, e := range store.Activity() {
		out = append(out, e.ActionType)
	}
	return out
}

func TestCreate(t *testing.T) {
	svc, store := newTestService(t)

	report, err := svc.Create(context.Background(), draft())
	require.NoError(t, err)

	_, err = uuid.Parse(report.ID)
	assert.NoError(t, err, "generated id is a UUID")
	assert.Equal(t, database.ReportNew, report.Status)
	assert.Empty(t, report.FineNumber)
	assert.Nil(t, report.SubmittedAt)
	assert.Equal(t, []string{database.ActionReportSaved}, actions(store))
}

func TestCreateValidation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	d := draft()
	d.IdentityID = " "
	_, err := svc.Create(ctx, d)
	assert.ErrorIs(t, err, ErrMissingIdentityKey)

	d = draft()
	d.OperatorFullName = ""
	_, err = svc.Create(ctx, d)
	assert.ErrorIs(t, err, ErrMissingOperator)

	d = draft()
	d.ID = "not-a-uuid"
	_, err = svc.Create(ctx, d)
	assert.ErrorIs(t, err, ErrInvalidReportID)

	assert.Empty(t, store.Activity())
}

func TestCreateWithFineAssignsNumber(t *testing.T) {
	svc, store := newTestService(t)

	d := draft()
	d.HasFine = true
	d.FineAmount = amount(500)
	report, err := svc.Create(context.Background(), d)
	require.NoError(t, err)

	assert.Len(t, report.FineNumber, 11)
	assert.Equal(t, database.FineUnpaid, report.FineStatus)
	assert.Equal(t, 1, store.Reservations())
}

func TestCreateDuplicateID(t *testing.T) {
	svc, _ := newTestService(t)
	d := draft()
	d.ID = uuid.NewString()

	_, err := svc.Create(context.Background(), d)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), d)
	assert.ErrorIs(t, err, database.ErrConflict)
}

func TestSubmitExistingReport(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, draft())
	require.NoError(t, err)

	d := draft()
	d.ID = created.ID
	submitted, err := svc.Submit(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, database.ReportSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	assert.Equal(t, created.CreatedAt, submitted.CreatedAt)

	assert.Equal(t, []string{database.ActionReportSaved, database.ActionReportSubmitted}, actions(store))
}

func TestSubmitTwiceIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	d := draft()
	d.ID = uuid.NewString()
	first, err := svc.Submit(ctx, d)
	require.NoError(t, err)

	second, err := svc.Submit(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, database.ReportSubmitted, second.Status)
	assert.Equal(t, first.SubmittedAt, second.SubmittedAt)

	assert.Equal(t, []string{database.ActionReportSubmitted}, actions(store), "one activity row")
}

func TestConcurrentSubmitSingleTransition(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	d := draft()
	d.HasFine = true
	d.FineAmount = amount(100)
	created, err := svc.Create(ctx, d)
	require.NoError(t, err)
	d.ID = created.ID

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.Submit(ctx, d)
			assert.NoError(t, err)
			assert.Equal(t, created.FineNumber, r.FineNumber)
		}()
	}
	wg.Wait()

	withFine := 0
	for _, a := range actions(store) {
		if a == database.ActionReportWithFine {
			withFine++
		}
	}
	assert.Equal(t, 1, withFine)
}

func TestSubmitNewFinedReport(t *testing.T) {
	svc, store := newTestService(t)

	d := draft()
	d.HasFine = true
	d.FineAmount = amount(250)
	report, err := svc.Submit(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, database.ReportSubmitted, report.Status)
	assert.Len(t, report.FineNumber, 11)
	assert.Equal(t, []string{database.ActionReportWithFine}, actions(store))
	assert.Contains(t, store.Activity()[0].Details, "250.00 PLN")
}

func TestSubmitDropsFineNumberWithoutFine(t *testing.T) {
	svc, store := newTestService(t)

	d := draft()
	d.FineNumber = "00000000123"
	report, err := svc.Submit(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, report.FineNumber)
	assert.Zero(t, store.Reservations())
}

func TestSubmitClaimsSuppliedNumber(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d := draft()
	d.HasFine = true
	d.FineNumber = "00000000123"
	report, err := svc.Submit(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "00000000123", report.FineNumber)

	other := draft()
	other.HasFine = true
	other.FineNumber = "00000000123"
	_, err = svc.Submit(ctx, other)
	assert.ErrorIs(t, err, database.ErrConflict)
}

func TestDeleteKeepsReservation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	d := draft()
	d.HasFine = true
	report, err := svc.Create(ctx, d)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, report.ID, ""))
	_, err = svc.Get(ctx, report.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Equal(t, 1, store.Reservations())

	err = svc.Delete(ctx, report.ID, "")
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Equal(t, []string{database.ActionReportSaved, database.ActionReportDeleted}, actions(store))
}

func TestListings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	plain := draft()
	_, err := svc.Create(ctx, plain)
	require.NoError(t, err)

	fined := draft()
	fined.HasFine = true
	_, err = svc.Create(ctx, fined)
	require.NoError(t, err)

	other := draft()
	other.IdentityID = "OTHER"
	other.HasFine = true
	_, err = svc.Create(ctx, other)
	require.NoError(t, err)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byIdentity, err := svc.ListByIdentity(ctx, "90010112345")
	require.NoError(t, err)
	assert.Len(t, byIdentity, 2)

	fines, err := svc.ListFines(ctx)
	require.NoError(t, err)
	assert.Len(t, fines, 2)

	finesByIdentity, err := svc.ListFinesByIdentity(ctx, "OTHER")
	require.NoError(t, err)
	assert.Len(t, finesByIdentity, 1)
}

func TestFineLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	d := draft()
	d.HasFine = true
	d.FineAmount = amount(100)
	report, err := svc.Create(ctx, d)
	require.NoError(t, err)

	updated, err := svc.UpdateFine(ctx, report.ID, FineUpdate{
		Amount: amount(300), Type: "speeding", Status: database.FineUnpaid, Note: "corrected",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, report.FineNumber, updated.FineNumber, "empty number keeps the current one")
	assert.InDelta(t, 300, *updated.FineAmount, 1e-9)

	updated, err = svc.UpdateFine(ctx, report.ID, FineUpdate{Amount: amount(300), Number: "00000000999", Status: database.FineUnpaid}, "")
	require.NoError(t, err)
	assert.Equal(t, "00000000999", updated.FineNumber)

	paid, err := svc.UpdateFineStatus(ctx, report.ID, database.FinePaid, "")
	require.NoError(t, err)
	assert.Equal(t, database.FinePaid, paid.FineStatus)

	_, err = svc.UpdateFineStatus(ctx, report.ID, " ", "")
	assert.ErrorIs(t, err, ErrMissingFineStatus)

	_, err = svc.UpdateFineStatus(ctx, uuid.NewString(), database.FinePaid, "")
	assert.ErrorIs(t, err, database.ErrNotFound)

	stats, err := svc.FineStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.FineStats{Total: 1, Paid: 1, TotalAmount: 300, PaidAmount: 300}, stats)

	require.NoError(t, svc.DeleteFine(ctx, report.ID, ""))
	assert.Equal(t, []string{
		database.ActionReportSaved,
		database.ActionFineUpdated,
		database.ActionFineUpdated,
		database.ActionFineStatusChanged,
		database.ActionFineDeleted,
	}, actions(store))
}

func TestUpdateFineNumberHeldElsewhere(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a := draft()
	a.HasFine = true
	a.FineNumber = "00000000555"
	_, err := svc.Create(ctx, a)
	require.NoError(t, err)

	b, err := svc.Create(ctx, draft())
	require.NoError(t, err)

	_, err = svc.UpdateFine(ctx, b.ID, FineUpdate{Number: "00000000555"}, "")
	assert.ErrorIs(t, err, database.ErrConflict)
}

func TestStoreErrorsPropagate(t *testing.T) {
	svc, store := newTestService(t)
	store.MutateReportError = errors.New("deadlock")

	_, err := svc.Submit(context.Background(), draft())
	assert.ErrorContains(t, err, "deadlock")
	assert.Empty(t, store.Activity())
}

func TestDraftFromCapture(t *testing.T) {
	capture := recognition.NewCapture(&database.Identity{
		ID: "A1", FirstName: "Jan", LastName: "Kowalski", DateOfBirth: "1990-01-01", Gender: "M",
	}, 0.87, database.SecurityStatus{Wanted: true, AlertColor: database.AlertRed}, time.Now())

	d := DraftFromCapture(capture, "Anna Nowak")
	assert.Equal(t, "A1", d.IdentityID)
	assert.Equal(t, "Kowalski", d.LastName)
	assert.InDelta(t, 0.87, d.Confidence, 1e-9)
	assert.Equal(t, "Anna Nowak", d.OperatorFullName)

	svc, _ := newTestService(t)
	report, err := svc.Create(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "1990-01-01", report.DateOfBirth)
}

func TestUpdateFineAllocatesForUnfinedReport(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	report, err := svc.Create(ctx, draft())
	require.NoError(t, err)
	require.Empty(t, report.FineNumber)

	updated, err := svc.UpdateFine(ctx, report.ID, FineUpdate{Amount: amount(50), Status: database.FineUnpaid}, "")
	require.NoError(t, err)
	assert.True(t, updated.HasFine)
	assert.Len(t, updated.FineNumber, 11)
	assert.Equal(t, 1, store.Reservations())

	_, err = svc.UpdateFine(ctx, uuid.NewString(), FineUpdate{Amount: amount(50)}, "")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
