package recognition

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

const defaultEnrollWorkers = 4

// EncodingRegistrar registers a photo with the external recognizer.
type EncodingRegistrar interface {
	Configured() bool
	RegisterEncoding(ctx context.Context, identityID, photoPath string) error
}

// Enroller forwards newly enrolled photos to the external recognizer in the
// background. Failures are logged and never affect the enrollment itself.
type Enroller struct {
	registrar EncodingRegistrar
	sem       *semaphore.Weighted
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewEnroller creates an enroller running at most workers registrations at
// once. Each registration is bounded by timeout.
func NewEnroller(registrar EncodingRegistrar, workers int, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Enroller {
	if workers <= 0 {
		workers = defaultEnrollWorkers
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Enroller{
		registrar: registrar,
		sem:       semaphore.NewWeighted(int64(workers)),
		timeout:   timeout,
		metrics:   m,
		logger:    logging.OrDiscard(logger),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit queues a registration. It returns false when the enroller is
// closed, has no configured registrar, or photoRef is empty.
func (e *Enroller) Submit(identityID, photoRef string) bool {
	if e == nil || photoRef == "" || e.registrar == nil || !e.registrar.Configured() {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	go e.register(identityID, photoRef)
	return true
}

func (e *Enroller) register(identityID, photoRef string) {
	defer e.wg.Done()

	if err := e.sem.Acquire(e.ctx, 1); err != nil {
		e.logger.Debug("encoding registration dropped", "identity_id", identityID, "error", err)
		return
	}
	defer e.sem.Release(1)

	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	if err := e.registrar.RegisterEncoding(ctx, identityID, photoRef); err != nil {
		e.metrics.IncDelegationFailure("register")
		e.logger.Warn("failed to register face encoding", "identity_id", identityID, "error", err)
		return
	}
	e.logger.Info("face encoding registered", "identity_id", identityID)
}

// Wait blocks until every submitted registration has finished.
func (e *Enroller) Wait() {
	if e == nil {
		return
	}
	e.wg.Wait()
}

// Close stops accepting work, waits up to ctx for in-flight registrations
// and then cancels whatever is still running.
func (e *Enroller) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}
