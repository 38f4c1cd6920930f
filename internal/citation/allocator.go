// Package citation allocates globally unique 11-digit fine numbers.
package citation

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

const (
	// MaxNumber is the largest allocatable fine number. Numbers are drawn
	// from [1, MaxNumber].
	MaxNumber int64 = 10_000_000_000

	// DefaultMaxAttempts bounds the random draws before the clock fallback.
	DefaultMaxAttempts = 1000

	digits = 11
)

var (
	// ErrInvalidNumber is returned for strings that are not an 11-digit number in range.
	ErrInvalidNumber = errors.New("invalid fine number")
	// ErrExhausted is returned when neither random draws nor clock values
	// found a free number.
	ErrExhausted = errors.New("no free fine number")
)

// Format renders n as an 11-digit zero-padded string.
func Format(n int64) string {
	return fmt.Sprintf("%0*d", digits, n)
}

// Parse validates an 11-digit fine number string.
func Parse(s string) (int64, error) {
	if len(s) != digits {
		return 0, fmt.Errorf("%w: %q must have %d digits", ErrInvalidNumber, s, digits)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
	}
	if n < 1 || n > MaxNumber {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidNumber, s)
	}
	return n, nil
}

// Allocator hands out fine numbers. Every number is reserved in durable
// storage before it is returned, so uniqueness holds across processes and
// restarts.
type Allocator struct {
	store       database.FineNumberStore
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAllocator creates an allocator. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewAllocator(store database.FineNumberStore, maxAttempts int, logger *slog.Logger, m *metrics.Metrics) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{
		store:       store,
		maxAttempts: maxAttempts,
		logger:      logging.OrDiscard(logger),
		metrics:     m,
		now:         time.Now,
		rng:         rand.New(newSeededSource()),
	}
}

func newSeededSource() rand.Source {
	var seed [32]byte
	_, _ = crand.Read(seed[:]) // never fails since Go 1.24
	return rand.NewChaCha8(seed)
}

func (a *Allocator) draw() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Int64N(MaxNumber) + 1
}

// Allocate reserves a fresh number for reportID and returns it formatted.
// Random draws are retried until one is free or maxAttempts is reached.
// After that the clock value is tried, bumped by one until a free number is
// reserved, for at most maxAttempts values.
func (a *Allocator) Allocate(ctx context.Context, reportID string) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n := a.draw()
		ok, err := a.store.ReserveFineNumber(ctx, database.FineReservation{
			Number:   n,
			ReportID: reportID,
			Method:   database.FineMethodRandom,
			IssuedAt: a.now(),
		})
		if err != nil {
			return "", fmt.Errorf("reserving fine number: %w", err)
		}
		if ok {
			a.metrics.IncFineNumber(database.FineMethodRandom)
			a.metrics.ObserveAllocationAttempts(attempt)
			return Format(n), nil
		}
	}

	now := a.now()
	base := now.UnixNano() % MaxNumber
	for bump := range int64(a.maxAttempts) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n := (base+bump)%MaxNumber + 1
		ok, err := a.store.ReserveFineNumber(ctx, database.FineReservation{
			Number:   n,
			ReportID: reportID,
			Method:   database.FineMethodClock,
			IssuedAt: now,
		})
		if err != nil {
			return "", fmt.Errorf("reserving clock fine number: %w", err)
		}
		if ok {
			a.logger.Warn("fine number allocated from clock after exhausting random draws",
				"attempts", a.maxAttempts, "bumps", bump, "report_id", reportID)
			a.metrics.IncFineNumber(database.FineMethodClock)
			return Format(n), nil
		}
	}
	return "", fmt.Errorf("%w: %d random draws and %d clock values taken", ErrExhausted, a.maxAttempts, a.maxAttempts)
}

// Claim reserves a caller-supplied number for reportID. Claiming a number
// already held by the same report succeeds; one held by another report fails
// with database.ErrConflict.
func (a *Allocator) Claim(ctx context.Context, number, reportID string) error {
	n, err := Parse(number)
	if err != nil {
		return err
	}
	ok, err := a.store.ReserveFineNumber(ctx, database.FineReservation{
		Number:   n,
		ReportID: reportID,
		Method:   database.FineMethodClaimed,
		IssuedAt: a.now(),
	})
	if err != nil {
		return fmt.Errorf("claiming fine number: %w", err)
	}
	if ok {
		a.metrics.IncFineNumber(database.FineMethodClaimed)
		return nil
	}

	holder, err := a.store.GetFineReservation(ctx, n)
	if err != nil {
		return fmt.Errorf("checking fine number holder: %w", err)
	}
	if holder.ReportID != reportID {
		return fmt.Errorf("fine number %s held by another report: %w", number, database.ErrConflict)
	}
	return nil
}
