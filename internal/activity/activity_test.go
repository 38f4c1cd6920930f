package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/database/mock"
)

func TestRecordAndStats(t *testing.T) {
	store := mock.NewStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	svc.Record(ctx, Entry{ActorType: database.ActorOperator, ActionType: database.ActionReportSaved, TargetIdentityID: "A1"})
	svc.Record(ctx, Entry{ActionType: database.ActionReportSaved})
	svc.Record(ctx, Entry{ActorType: database.ActorAdmin, ActionType: database.ActionIdentityRemoved})

	entries, err := svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, database.ActionIdentityRemoved, entries[0].ActionType, "newest first")
	assert.Equal(t, database.ActorSystem, entries[1].ActorType, "empty actor defaults to system")

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		database.ActionReportSaved:     2,
		database.ActionIdentityRemoved: 1,
	}, stats)
}

func TestRecordIsBestEffort(t *testing.T) {
	store := mock.NewStore()
	store.AppendActivityError = errors.New("disk full")
	store.AppendSearchError = errors.New("disk full")
	svc := NewService(store, nil)

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Entry{ActionType: database.ActionReportSaved})
		svc.RecordSearch(context.Background(), &database.SearchHistoryEntry{SearchType: database.SearchWeb})
	})
	assert.Empty(t, store.Activity())
	assert.Empty(t, store.Searches())
}

func TestNilServiceRecordIsNoop(t *testing.T) {
	var svc *Service
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Entry{ActionType: "X"})
		svc.RecordSearch(context.Background(), &database.SearchHistoryEntry{})
	})
}

func TestSearches(t *testing.T) {
	store := mock.NewStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	svc.RecordSearch(ctx, &database.SearchHistoryEntry{SearchType: database.SearchMobile, Found: false})
	svc.RecordSearch(ctx, &database.SearchHistoryEntry{SearchType: database.SearchWeb, Found: true, IdentityID: "A1"})

	searches, err := svc.Searches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, searches, 1)
	assert.Equal(t, "A1", searches[0].IdentityID)
}
