package objectbind

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Store is the entry point into the package: it owns a StorageBackend, an
// optional Publisher for reactive subscriptions, observability configuration
// and the bounded-retry policy used by every Query's transaction envelope.
type Store struct {
	backend StorageBackend
	pub     Publisher
	obs     *observabilityConfig

	attempts           int
	initialBackoff     time.Duration
	dispatcherPoolSize int

	dispatcher *dispatcher
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithLogger attaches a structured logger; every retrieval and retry is
// logged through it.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.obs.Logger = logger }
}

// WithTracer attaches an OpenTelemetry tracer; each retrieval becomes a span.
func WithTracer(tracer trace.Tracer) StoreOption {
	return func(s *Store) { s.obs.Tracer = tracer }
}

// WithMeter attaches an OpenTelemetry meter; retrieval count, duration and
// error/retry counters are recorded through it.
func WithMeter(meter metric.Meter) StoreOption {
	return func(s *Store) { s.obs.Meter = meter }
}

// WithAttempts sets the maximum number of attempts (including the first) the
// transaction envelope makes for a transient BackendError before giving up.
// The default is 3.
func WithAttempts(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithInitialBackoff sets the delay before the first retry; each subsequent
// retry doubles it. The default is 10ms.
func WithInitialBackoff(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.initialBackoff = d
		}
	}
}

// WithWorkerPoolSize bounds how many subscription deliveries may run
// concurrently across all of a Store's subscriptions, regardless of how many
// subscriptions exist. The default is 4.
func WithWorkerPoolSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.dispatcherPoolSize = n
		}
	}
}

// NewStore constructs a Store bound to backend. pub may be nil if reactive
// subscriptions are never used; attempting Query.Subscribe on such a Store
// returns an UnsupportedError.
func NewStore(ctx context.Context, backend StorageBackend, pub Publisher, opts ...StoreOption) (*Store, error) {
	s := &Store{
		backend:            backend,
		pub:                pub,
		obs:                defaultObservabilityConfig(),
		attempts:           3,
		initialBackoff:     10 * time.Millisecond,
		dispatcherPoolSize: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.obs.initMetrics(); err != nil {
		return nil, err
	}
	s.dispatcher = newDispatcher(ctx, s.dispatcherPoolSize)
	return s, nil
}

// Close waits for every outstanding subscription delivery lane to drain.
// Callers must Close all Subscriptions first.
func (s *Store) Close() error {
	return s.dispatcher.wait()
}

// transact runs fn inside one backend transaction, retrying with exponential
// backoff while fn's error is a transient BackendError, up to s.attempts
// total tries. Logical errors (IllegalState, Unsupported, InvalidArgument,
// NotUnique, or a non-transient BackendError) surface on the first attempt.
func (s *Store) transact(ctx context.Context, operation string, write bool, fn func(tx Tx) error) error {
	backoff := s.initialBackoff
	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			s.obs.recordRetry(ctx, operation)
			select {
			case <-time.After(jitter(backoff)):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		var tx Tx
		var err error
		if write {
			tx, err = s.backend.BeginWrite(ctx)
		} else {
			tx, err = s.backend.BeginRead(ctx)
		}
		if err != nil {
			lastErr = err
			if IsTransient(err) {
				continue
			}
			return err
		}

		err = s.obs.instrument(ctx, "objectbind."+operation, operation, func() error {
			return fn(tx)
		})
		if err != nil {
			_ = tx.Rollback()
			lastErr = err
			if IsTransient(err) {
				continue
			}
			return err
		}

		if write {
			if err := tx.Commit(); err != nil {
				lastErr = err
				if IsTransient(err) {
					continue
				}
				return err
			}
		} else {
			_ = tx.Rollback()
		}
		return nil
	}
	return lastErr
}

// jitter adds up to 20% random spread to d so concurrent retries don't
// synchronize into a thundering herd.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := d / 5
	if spread <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(spread)))
}
