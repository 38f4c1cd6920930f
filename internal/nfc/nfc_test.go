package nfc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/database/mock"
)

func newTestService(t *testing.T, ids ...string) (*Service, *mock.Store) {
	t.Helper()
	store := mock.NewStore()
	for _, id := range ids {
		require.NoError(t, store.CreateIdentity(context.Background(), &database.Identity{
			ID: id, FirstName: "F", LastName: "L", DateOfBirth: "2000-01-01", Gender: "F",
			Embedding: []float32{1, 0},
		}))
	}
	return NewService(store, activity.NewService(store, nil), nil), store
}

func TestNormalizeUID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "04:a2:3b:1c", want: "04A23B1C"},
		{in: " 04-A2-3B-1C-5D-6E-7F ", want: "04A23B1C5D6E7F"},
		{in: "0123456789abcdef0123", want: "0123456789ABCDEF0123"},
		{in: "04A23B", wantErr: true},
		{in: "04A23B1G", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeUID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusWithoutTag(t *testing.T) {
	svc, _ := newTestService(t, "A1")

	st, err := svc.Status(context.Background(), "A1")
	require.NoError(t, err)
	assert.False(t, st.Registered)
	assert.True(t, st.Active)
	assert.Empty(t, st.UID)

	_, err = svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRegisterAndToggle(t *testing.T) {
	svc, store := newTestService(t, "A1", "B2")
	ctx := context.Background()

	st, err := svc.Register(ctx, "A1", "04:a2:3b:1c", "")
	require.NoError(t, err)
	assert.True(t, st.Registered)
	assert.True(t, st.Active)
	assert.Equal(t, "04A23B1C", st.UID)

	_, err = svc.Register(ctx, "B2", "04A23B1C", "")
	assert.ErrorIs(t, err, database.ErrConflict, "uid bound to another identity")

	_, err = svc.Register(ctx, "missing", "04A23B1D", "")
	assert.ErrorIs(t, err, database.ErrNotFound)

	st, err = svc.SetActive(ctx, "A1", false, "")
	require.NoError(t, err)
	assert.False(t, st.Active)

	got, err := svc.Status(ctx, "A1")
	require.NoError(t, err)
	assert.True(t, got.Registered)
	assert.False(t, got.Active)

	_, err = svc.SetActive(ctx, "B2", true, "")
	assert.ErrorIs(t, err, database.ErrNotFound, "no tag registered")

	var actions []string
	for _, e := range store.Activity() {
		actions = append(actions, e.ActionType)
	}
	assert.Equal(t, []string{database.ActionNFCRegistered, database.ActionNFCToggled}, actions)
}

func TestRegisterReplacesPreviousTag(t *testing.T) {
	svc, store := newTestService(t, "A1")
	ctx := context.Background()

	_, err := svc.Register(ctx, "A1", "04A23B1C", "")
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, "A1", false, "")
	require.NoError(t, err)

	st, err := svc.Register(ctx, "A1", "04A23B1D", "")
	require.NoError(t, err)
	assert.Equal(t, "04A23B1D", st.UID)
	assert.True(t, st.Active, "a new tag starts active")

	tags, err := store.ListNFCTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "04A23B1D", tags[0].UID)
}

func TestTagsGoWithIdentity(t *testing.T) {
	svc, store := newTestService(t, "A1", "B2")
	ctx := context.Background()

	_, err := svc.Register(ctx, "A1", "04A23B1C", "")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "B2", "04A23B1D", "")
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, "B2", false, "")
	require.NoError(t, err)

	stats, err := store.SecurityStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NFCActive)
	assert.Equal(t, 1, stats.NFCInactive)

	require.NoError(t, store.DeleteIdentity(ctx, "A1"))

	tag, err := store.GetNFCTag(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, tag)

	// The freed uid can be bound again.
	_, err = svc.Register(ctx, "B2", "04A23B1C", "")
	assert.NoError(t, err)
}
