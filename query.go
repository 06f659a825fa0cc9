package objectbind

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Query is a compiled, repeatable query produced by QueryBuilder.Build. It
// owns a backend QueryHandle until Close or finalization releases it.
type Query[T any] struct {
	store      *Store
	entityName string
	mapper     func(Row) (*T, error)

	hasOrder   bool
	eager      []EagerSpec[T]
	hasFilter  bool
	filter     func(*T) bool
	comparator func(a, b *T) int

	mu      sync.Mutex
	handle  QueryHandle
	closed  bool
	subs    []*Subscription
}

func newQueryFinalized[T any](q *Query[T]) *Query[T] {
	runtime.SetFinalizer(q, func(q *Query[T]) { _ = q.Close() })
	return q
}

// Close releases the backend query handle. Idempotent and safe to call more
// than once or concurrently.
func (q *Query[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.store.backend.DestroyQuery(q.handle)
	runtime.SetFinalizer(q, nil)
	return nil
}

func (q *Query[T]) checkOpen() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return illegalState("query used after close()")
	}
	return nil
}

func (q *Query[T]) materialize(rows []Row) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, r := range rows {
		e, err := q.mapper(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (q *Query[T]) resolveEager(entities []*T) error {
	if len(q.eager) == 0 {
		return nil
	}
	for i, e := range entities {
		for _, spec := range q.eager {
			if spec.shouldResolve(i) {
				if err := spec.Relation.resolve(e); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (q *Query[T]) applyFilter(entities []*T) []*T {
	if !q.hasFilter || q.filter == nil {
		return entities
	}
	out := entities[:0]
	for _, e := range entities {
		if q.filter(e) {
			out = append(out, e)
		}
	}
	return out
}

func (q *Query[T]) applyComparator(entities []*T) {
	if q.comparator == nil {
		return
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return q.comparator(entities[i], entities[j]) < 0
	})
}

// FindFirst returns the first matching entity, or (nil, false) if none
// match. A post-filter or comparator configured on the builder makes this
// Unsupported.
func (q *Query[T]) FindFirst(ctx context.Context) (*T, bool, error) {
	if err := q.checkOpen(); err != nil {
		return nil, false, err
	}
	if q.hasFilter || q.comparator != nil {
		return nil, false, unsupported("find_first does not support a post-filter or comparator")
	}
	var result *T
	var found bool
	err := q.store.transact(ctx, "find_first", false, func(tx Tx) error {
		row, ok, err := q.store.backend.FindFirst(ctx, tx, q.handle)
		if err != nil || !ok {
			found = false
			return err
		}
		e, err := q.mapper(row)
		if err != nil {
			return err
		}
		if err := q.resolveEager([]*T{e}); err != nil {
			return err
		}
		result = e
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, found, nil
}

// FindUnique returns the single matching entity, failing with NotUniqueError
// if the engine reports more than one match.
func (q *Query[T]) FindUnique(ctx context.Context) (*T, bool, error) {
	if err := q.checkOpen(); err != nil {
		return nil, false, err
	}
	if q.hasFilter || q.comparator != nil {
		return nil, false, unsupported("find_unique does not support a post-filter or comparator")
	}
	var result *T
	var found bool
	err := q.store.transact(ctx, "find_unique", false, func(tx Tx) error {
		row, ok, count, err := q.store.backend.FindUnique(ctx, tx, q.handle)
		if err != nil {
			return err
		}
		if count > 1 {
			return &NotUniqueError{Count: count}
		}
		if !ok {
			found = false
			return nil
		}
		e, err := q.mapper(row)
		if err != nil {
			return err
		}
		if err := q.resolveEager([]*T{e}); err != nil {
			return err
		}
		result = e
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, found, nil
}

// Find returns every matching entity: engine ordering is applied first, then
// the post-filter drops non-matching rows, then eager relations resolve,
// then the comparator (if any) stably re-sorts.
func (q *Query[T]) Find(ctx context.Context) ([]*T, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	var result []*T
	err := q.store.transact(ctx, "find", false, func(tx Tx) error {
		rows, err := q.store.backend.FindList(ctx, tx, q.handle)
		if err != nil {
			return err
		}
		entities, err := q.materialize(rows)
		if err != nil {
			return err
		}
		entities = q.applyFilter(entities)
		if err := q.resolveEager(entities); err != nil {
			return err
		}
		q.applyComparator(entities)
		result = entities
		return nil
	})
	return result, err
}

// FindPage returns one engine-paginated page. Post-filter and comparator are
// not allowed.
func (q *Query[T]) FindPage(ctx context.Context, offset, limit uint64) ([]*T, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	if q.hasFilter || q.comparator != nil {
		return nil, unsupported("find(offset,limit) does not support a post-filter or comparator")
	}
	var result []*T
	err := q.store.transact(ctx, "find_page", false, func(tx Tx) error {
		rows, err := q.store.backend.FindListPage(ctx, tx, q.handle, offset, limit)
		if err != nil {
			return err
		}
		entities, err := q.materialize(rows)
		if err != nil {
			return err
		}
		if err := q.resolveEager(entities); err != nil {
			return err
		}
		result = entities
		return nil
	})
	return result, err
}

// FindIDs returns matching entity ids with no guaranteed order. Requires the
// query carry no ordering clause (find_ids is unordered by design); any
// post-filter is silently ignored, matching the engine's id-only fast path.
func (q *Query[T]) FindIDs(ctx context.Context) ([]int64, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	if q.hasOrder {
		return nil, unsupported("find_ids does not support an ordered query")
	}
	var result []int64
	err := q.store.transact(ctx, "find_ids", false, func(tx Tx) error {
		ids, err := q.store.backend.FindIDs(ctx, tx, q.handle)
		if err != nil {
			return err
		}
		result = ids
		return nil
	})
	return result, err
}

// ForEach fetches the matching rows in engine order and, one row at a time,
// maps it, applies the post-filter, resolves eager relations per-index, and
// invokes consumer.
// consumer may return BreakForEach to stop early without that error
// propagating to the caller. A comparator is not allowed (order must be the
// engine's, since entities are visited as found).
func (q *Query[T]) ForEach(ctx context.Context, consumer func(e *T) error) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	if q.comparator != nil {
		return unsupported("for_each does not support a comparator")
	}
	return q.store.transact(ctx, "for_each", false, func(tx Tx) error {
		rows, err := q.store.backend.FindList(ctx, tx, q.handle)
		if err != nil {
			return err
		}
		idx := 0
		for _, row := range rows {
			e, err := q.mapper(row)
			if err != nil {
				return err
			}
			if q.hasFilter && q.filter != nil && !q.filter(e) {
				continue
			}
			for _, spec := range q.eager {
				if spec.shouldResolve(idx) {
					if err := spec.Relation.resolve(e); err != nil {
						return err
					}
				}
			}
			idx++
			if err := consumer(e); err != nil {
				if err == BreakForEach {
					return nil
				}
				return err
			}
		}
		return nil
	})
}

// Count returns the number of matching rows via a reader cursor, bypassing
// the full retry envelope used by row-returning retrievals.
func (q *Query[T]) Count(ctx context.Context) (uint64, error) {
	if err := q.checkOpen(); err != nil {
		return 0, err
	}
	tx, err := q.store.backend.BeginRead(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	return q.store.backend.Count(ctx, tx, q.handle)
}

// Remove deletes every matching row inside a write transaction and returns
// the number removed.
func (q *Query[T]) Remove(ctx context.Context) (uint64, error) {
	if err := q.checkOpen(); err != nil {
		return 0, err
	}
	var count uint64
	err := q.store.transact(ctx, "remove", true, func(tx Tx) error {
		n, err := q.store.backend.Remove(ctx, tx, q.handle)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	return count, err
}

// --- lazy lists ---

// LazyList is backed by FindIDs: entities are fetched on access rather than
// up front. No filter or comparator applies (find_ids's own restrictions
// carry over).
type LazyList[T any] struct {
	query   *Query[T]
	ids     []int64
	caching bool
	cache   map[int64]*T
}

// Size returns the number of matching ids.
func (l *LazyList[T]) Size() int { return len(l.ids) }

// Get resolves the entity at position i, loading it from the backend (or
// returning the cached instance, if caching was requested).
func (l *LazyList[T]) Get(ctx context.Context, i int) (*T, bool, error) {
	if i < 0 || i >= len(l.ids) {
		return nil, false, invalidArgument("lazy list index %d out of range [0,%d)", i, len(l.ids))
	}
	id := l.ids[i]
	if l.caching {
		if e, ok := l.cache[id]; ok {
			return e, true, nil
		}
	}
	var result *T
	var found bool
	err := l.query.store.transact(ctx, "find_lazy_get", false, func(tx Tx) error {
		row, ok, err := l.query.store.backend.LoadByID(ctx, tx, l.query.entityName, id)
		if err != nil || !ok {
			found = false
			return err
		}
		e, err := l.query.mapper(row)
		if err != nil {
			return err
		}
		result, found = e, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if found && l.caching {
		if l.cache == nil {
			l.cache = make(map[int64]*T)
		}
		l.cache[id] = result
	}
	return result, found, nil
}

func (q *Query[T]) findLazy(ctx context.Context, caching bool) (*LazyList[T], error) {
	ids, err := q.FindIDs(ctx)
	if err != nil {
		return nil, err
	}
	return &LazyList[T]{query: q, ids: ids, caching: caching}, nil
}

// FindLazy returns a LazyList fetching entities on access, never caching.
func (q *Query[T]) FindLazy(ctx context.Context) (*LazyList[T], error) {
	return q.findLazy(ctx, false)
}

// FindLazyCached is FindLazy but caches each resolved entity for the
// lifetime of the LazyList.
func (q *Query[T]) FindLazyCached(ctx context.Context) (*LazyList[T], error) {
	return q.findLazy(ctx, true)
}

// --- parameter rebinding ---

func (q *Query[T]) SetParameterString(propertyID uint32, v string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return illegalState("query used after close()")
	}
	return q.store.backend.SetParameterString(q.handle, propertyID, v)
}

func (q *Query[T]) SetParameterLong(propertyID uint32, v int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return illegalState("query used after close()")
	}
	return q.store.backend.SetParameterLong(q.handle, propertyID, v)
}

func (q *Query[T]) SetParameterDouble(propertyID uint32, v float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return illegalState("query used after close()")
	}
	return q.store.backend.SetParameterDouble(q.handle, propertyID, v)
}

func (q *Query[T]) SetParameterBool(propertyID uint32, v bool) error {
	var n int64
	if v {
		n = 1
	}
	return q.SetParameterLong(propertyID, n)
}

// SetParameterDate rebinds a Date leaf, coerced to the same epoch
// milliseconds representation EqualDate et al. compile to.
func (q *Query[T]) SetParameterDate(propertyID uint32, v time.Time) error {
	return q.SetParameterLong(propertyID, v.UnixMilli())
}

func (q *Query[T]) SetParametersString(propertyID uint32, v1, v2 string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return illegalState("query used after close()")
	}
	return q.store.backend.SetParametersString(q.handle, propertyID, v1, v2)
}

func (q *Query[T]) SetParametersLong(propertyID uint32, v1, v2 int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return illegalState("query used after close()")
	}
	return q.store.backend.SetParametersLong(q.handle, propertyID, v1, v2)
}

func (q *Query[T]) SetParametersDouble(propertyID uint32, v1, v2 float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return illegalState("query used after close()")
	}
	return q.store.backend.SetParametersDouble(q.handle, propertyID, v1, v2)
}

// SetParametersDate rebinds a Between(Date) leaf, coercing both bounds to
// epoch milliseconds.
func (q *Query[T]) SetParametersDate(propertyID uint32, v1, v2 time.Time) error {
	return q.SetParametersLong(propertyID, v1.UnixMilli(), v2.UnixMilli())
}

// --- reactive notification ---

// Publish asks the store's Publisher to re-broadcast this query's current
// results to its registered observers.
func (q *Query[T]) Publish(ctx context.Context) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	if q.store.pub == nil {
		return unsupported("publish() requires a Store constructed with a Publisher")
	}
	return q.store.pub.Publish(ctx, q.handle)
}

// Subscribe registers observer to be invoked (serially, on this Store's
// shared dispatcher) whenever Publish fires for this query. Deliveries for
// one Subscription never interleave; distinct Subscriptions may run
// concurrently.
func (q *Query[T]) Subscribe(observer func()) (*Subscription, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	if q.store.pub == nil {
		return nil, unsupported("subscribe() requires a Store constructed with a Publisher")
	}
	lane := q.store.dispatcher.newLane()
	sub := &Subscription{handle: q.handle, pub: q.store.pub, lane: lane}
	token, err := q.store.pub.Register(q.handle, func() {
		lane.deliver(observer)
	})
	if err != nil {
		lane.close()
		return nil, err
	}
	sub.token = token
	q.mu.Lock()
	q.subs = append(q.subs, sub)
	q.mu.Unlock()
	return sub, nil
}
