package objectbind

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Publisher is the external, consumed-not-implemented capability that tracks
// which queries have active observers and re-runs them when the underlying
// data they read may have changed. A concrete StorageBackend typically owns
// the Publisher for its entity types and drives Publish after a committing
// write transaction.
type Publisher interface {
	// Publish re-broadcasts the current result of the query identified by
	// handle to every registered observer for it.
	Publish(ctx context.Context, handle QueryHandle) error
	// Register records interest in handle's changes, invoking notify
	// (asynchronously, via the caller's dispatcher) whenever Publish fires
	// for it. The returned token is passed to Unregister.
	Register(handle QueryHandle, notify func()) (uint64, error)
	Unregister(handle QueryHandle, token uint64) error
}

// Subscription is a live registration created by Query.Subscribe. Closing it
// stops further delivery; it is safe to Close more than once.
type Subscription struct {
	mu     sync.Mutex
	closed bool
	token  uint64
	handle QueryHandle
	pub    Publisher
	lane   *dispatchLane
}

// Close unregisters the subscription and waits for any in-flight delivery on
// its lane to finish.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.lane != nil {
		s.lane.close()
	}
	if s.pub == nil {
		return nil
	}
	return s.pub.Unregister(s.handle, s.token)
}

// dispatcher is a fixed-size pool of worker goroutines shared by every lane
// a Store creates, per spec.md §5's bounded-worker-pool requirement. A lane
// never owns a goroutine of its own: it queues its pending deliveries and
// hands the queue to whichever worker is free, so the number of
// concurrently running deliveries is capped at the pool size regardless of
// how many subscriptions exist.
type dispatcher struct {
	group     *errgroup.Group
	groupCtx  context.Context
	jobs      chan func()
	closeJobs sync.Once
}

func newDispatcher(ctx context.Context, poolSize int) *dispatcher {
	g, gctx := errgroup.WithContext(ctx)
	if poolSize <= 0 {
		poolSize = 1
	}
	g.SetLimit(poolSize)
	d := &dispatcher{group: g, groupCtx: gctx, jobs: make(chan func())}
	for i := 0; i < poolSize; i++ {
		d.group.Go(d.work)
	}
	return d
}

// work is one pool worker: it runs delivery jobs handed to it by any lane
// until the job channel is closed or the dispatcher's context is done.
func (d *dispatcher) work() error {
	for {
		select {
		case fn, ok := <-d.jobs:
			if !ok {
				return nil
			}
			fn()
		case <-d.groupCtx.Done():
			return nil
		}
	}
}

// wait closes the shared job queue and blocks until every pool worker has
// exited. It does not stop accepting new lanes; Store calls it only on
// shutdown after closing every Subscription.
func (d *dispatcher) wait() error {
	d.closeJobs.Do(func() { close(d.jobs) })
	return d.group.Wait()
}

// newLane allocates a per-subscription ordered delivery queue. Deliveries
// enqueued on one lane always run strictly in order, one at a time, even
// though the actual execution is handed off to the dispatcher's shared pool
// rather than a dedicated goroutine.
func (d *dispatcher) newLane() *dispatchLane {
	return &dispatchLane{d: d}
}

// dispatchLane is a per-subscription FIFO queue of pending deliveries. At
// most one pool worker ever drains a given lane at a time (the "active"
// flag enforces that), which is what keeps deliveries for one subscription
// from interleaving while still sharing the bounded pool across lanes.
type dispatchLane struct {
	d *dispatcher

	mu      sync.Mutex
	queue   []func()
	active  bool
	closed  bool
	drained chan struct{}
	once    sync.Once
}

// deliver enqueues fn for this lane. If no worker is currently draining the
// lane, it hands the lane off to the shared pool; otherwise the worker
// already draining it will pick fn up in order.
func (l *dispatchLane) deliver(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	needsSubmit := !l.active
	if needsSubmit {
		l.active = true
	}
	l.mu.Unlock()

	if needsSubmit {
		l.submit()
	}
}

// submit hands this lane's drain loop to the shared pool, blocking until a
// worker accepts it or the dispatcher is shutting down.
func (l *dispatchLane) submit() {
	select {
	case l.d.jobs <- l.drain:
	case <-l.d.groupCtx.Done():
	}
}

// drain runs on whichever pool worker accepted this lane: it executes
// queued deliveries one at a time until the queue is empty, then marks the
// lane idle again so a future deliver() can resubmit it.
func (l *dispatchLane) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.active = false
			closing := l.closed
			l.mu.Unlock()
			if closing {
				l.markDrained()
			}
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}

func (l *dispatchLane) markDrained() {
	l.once.Do(func() { close(l.drained) })
}

// close stops the lane from accepting further deliveries and blocks until
// any in-flight drain finishes. Safe to call more than once.
func (l *dispatchLane) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	idle := !l.active
	if !idle {
		l.drained = make(chan struct{})
	}
	l.mu.Unlock()

	if idle {
		return
	}
	<-l.drained
}
