package citation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/database/mock"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{1, "00000000001"},
		{42, "00000000042"},
		{MaxNumber, "10000000000"},
		{9_999_999_999, "09999999999"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.n))
			assert.Len(t, Format(tt.n), 11)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"00000000001", 1, false},
		{"10000000000", MaxNumber, false},
		{"00000000000", 0, true},
		{"10000000001", 0, true},
		{"1234", 0, true},
		{"0000000000a", 0, true},
		{"-0000000001", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidNumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllocate_ConcurrentDistinct(t *testing.T) {
	store := mock.NewStore()
	a := NewAllocator(store, 0, nil, nil)

	const n = 200
	numbers := make([]string, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			num, err := a.Allocate(context.Background(), fmt.Sprintf("report-%d", i))
			numbers[i] = num
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, n)
	for _, num := range numbers {
		assert.Len(t, num, 11)
		_, err := Parse(num)
		assert.NoError(t, err)
		assert.False(t, seen[num], "duplicate fine number %s", num)
		seen[num] = true
	}
	assert.Equal(t, n, store.Reservations())
}

func TestAllocate_RetriesTakenNumbers(t *testing.T) {
	store := mock.NewStore()
	var mu sync.Mutex
	calls := 0
	store.ReserveHook = func(int64) bool {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return calls > 3
	}
	m := metrics.New(prometheus.NewRegistry())
	a := NewAllocator(store, 10, nil, m)

	num, err := a.Allocate(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, num, 11)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FineNumbers.WithLabelValues(database.FineMethodRandom)))
}

func TestAllocate_ClockFallback(t *testing.T) {
	store := mock.NewStore()
	fixed := time.Unix(0, 12_345_678_901_234)
	var mu sync.Mutex
	attempts := 0
	store.ReserveHook = func(n int64) bool {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		// every random draw collides, the clock number is free
		return attempts > 5
	}
	m := metrics.New(prometheus.NewRegistry())
	a := NewAllocator(store, 5, nil, m)
	a.now = func() time.Time { return fixed }

	num, err := a.Allocate(context.Background(), "r1")
	require.NoError(t, err)

	want := Format(fixed.UnixNano()%MaxNumber + 1)
	assert.Equal(t, want, num)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FineNumbers.WithLabelValues(database.FineMethodClock)))

	n, _ := Parse(num)
	res, err := store.GetFineReservation(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, database.FineMethodClock, res.Method)
}

func TestAllocate_ClockFallbackBumpsTakenValue(t *testing.T) {
	store := mock.NewStore()
	fixed := time.Unix(0, 12_345_678_901_234)
	clockValue := fixed.UnixNano()%MaxNumber + 1
	var mu sync.Mutex
	attempts := 0
	store.ReserveHook = func(n int64) bool {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		// random draws and the first two clock values are taken
		return attempts > 3+2
	}
	a := NewAllocator(store, 3, nil, nil)
	a.now = func() time.Time { return fixed }

	num, err := a.Allocate(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, Format(clockValue+2), num)

	res, err := store.GetFineReservation(context.Background(), clockValue+2)
	require.NoError(t, err)
	assert.Equal(t, "r1", res.ReportID)
	assert.Equal(t, 1, store.Reservations())
}

func TestAllocate_Exhausted(t *testing.T) {
	store := mock.NewStore()
	store.ReserveHook = func(int64) bool { return false }
	a := NewAllocator(store, 3, nil, nil)

	_, err := a.Allocate(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 0, store.Reservations())
}

func TestAllocate_StoreError(t *testing.T) {
	store := mock.NewStore()
	store.ReserveError = errors.New("db down")
	a := NewAllocator(store, 3, nil, nil)

	_, err := a.Allocate(context.Background(), "r1")
	assert.ErrorContains(t, err, "db down")
}

func TestAllocate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAllocator(mock.NewStore(), 3, nil, nil).Allocate(ctx, "r1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClaim(t *testing.T) {
	store := mock.NewStore()
	a := NewAllocator(store, 0, nil, nil)
	ctx := context.Background()

	require.NoError(t, a.Claim(ctx, "00000000777", "r1"))

	// idempotent for the holder
	require.NoError(t, a.Claim(ctx, "00000000777", "r1"))

	err := a.Claim(ctx, "00000000777", "r2")
	assert.ErrorIs(t, err, database.ErrConflict)

	err = a.Claim(ctx, "777", "r2")
	assert.ErrorIs(t, err, ErrInvalidNumber)
}
