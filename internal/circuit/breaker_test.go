package circuit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

func fail() error { return errDown }

func succeed() error { return nil }

func TestBreaker_InitialState(t *testing.T) {
	b := New("test")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "test", b.Name())
	assert.NoError(t, b.Execute(succeed))
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("test", WithFailureThreshold(3))

	assert.ErrorIs(t, b.Execute(fail), errDown)
	assert.ErrorIs(t, b.Execute(fail), errDown)
	assert.False(t, b.IsOpen())

	// Third failure opens the circuit
	assert.ErrorIs(t, b.Execute(fail), errDown)
	assert.True(t, b.IsOpen())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "open breaker must not run the call")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("test", WithFailureThreshold(3))

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	require.NoError(t, b.Execute(succeed))

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	assert.False(t, b.IsOpen())

	_ = b.Execute(fail)
	assert.True(t, b.IsOpen())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := New("test", WithFailureThreshold(1), WithCooldown(20*time.Millisecond))

	_ = b.Execute(fail)
	assert.ErrorIs(t, b.Execute(succeed), ErrOpen)

	require.Eventually(t, func() bool { return b.State() == StateHalfOpen },
		time.Second, 5*time.Millisecond)

	// Hold the trial call open and check that a second caller is rejected.
	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, b.Execute(func() error {
			close(started)
			<-release
			return nil
		}))
	}()
	<-started
	assert.ErrorIs(t, b.Execute(succeed), ErrOpen, "only one trial at a time")
	close(release)
	wg.Wait()

	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Execute(succeed))
}

func TestBreaker_TrialFailureReopens(t *testing.T) {
	b := New("test", WithFailureThreshold(2), WithCooldown(20*time.Millisecond))

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	require.Eventually(t, func() bool { return b.State() == StateHalfOpen },
		time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, b.Execute(fail), errDown)
	assert.True(t, b.IsOpen())
	assert.ErrorIs(t, b.Execute(succeed), ErrOpen)
}

func TestBreaker_ReportsTransitions(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []State
	)
	b := New("test",
		WithFailureThreshold(1),
		WithCooldown(20*time.Millisecond),
		WithStateChange(func(_, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, to)
		}),
	)

	_ = b.Execute(fail)
	require.Eventually(t, func() bool { return b.State() == StateHalfOpen },
		time.Second, 5*time.Millisecond)
	require.NoError(t, b.Execute(succeed))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}
