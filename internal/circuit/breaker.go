// Package circuit guards calls to the external recognizer with a
// consecutive-failure circuit breaker.
package circuit

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kozaktomas/facewatch/internal/logging"
)

// ErrOpen is returned by Execute when the call was rejected without running:
// the breaker is open, or half-open with its trial call already in flight.
var ErrOpen = errors.New("circuit open")

// State is the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
)

// Breaker opens after a run of consecutive failures and rejects calls until
// the cooldown has passed. After the cooldown one trial call is let through:
// success closes the breaker, failure opens it again.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]

	failureThreshold int
	cooldown         time.Duration
	onChange         func(from, to State)
	logger           *slog.Logger
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithStateChange registers a callback for every transition. It runs while
// the breaker is locked and must not call back into it.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// WithLogger sets the logger for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) {
		b.logger = l
	}
}

// New creates a closed breaker.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		failureThreshold: defaultFailureThreshold,
		cooldown:         defaultCooldown,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrDiscard(b.logger)

	threshold := uint32(b.failureThreshold)
	b.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     b.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
			if b.onChange != nil {
				b.onChange(stateOf(from), stateOf(to))
			}
		},
	})
	return b
}

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Execute runs fn unless the breaker rejects it with ErrOpen. fn's error
// counts as a failure and is returned unchanged.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// State returns the current state. An open breaker whose cooldown has passed
// reports half-open.
func (b *Breaker) State() State {
	return stateOf(b.cb.State())
}

// IsOpen reports whether calls are currently being rejected.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}
