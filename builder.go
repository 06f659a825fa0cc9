package objectbind

import (
	"context"
	"time"

	"golang.org/x/exp/constraints"
)

// combineOp is the builder's pending-operator state, `combine_next_with` in
// spec terms.
type combineOp int

const (
	cNone combineOp = iota
	cAnd
	cOr
)

// StringOrder controls case sensitivity for string predicates and for
// distinct() on a String PropertyQuery. The zero value is case-insensitive,
// matching the engine's default.
type StringOrder int

const (
	CaseInsensitive StringOrder = iota
	CaseSensitive
)

func resolveStringOrder(order []StringOrder) StringOrder {
	if len(order) > 0 {
		return order[0]
	}
	return CaseInsensitive
}

// QueryBuilder accumulates typed predicates, orderings, eager-load specs, a
// post-filter and a comparator against entity type T, then compiles to a
// repeatable Query[T]. A QueryBuilder is single-use: Build consumes it.
//
// Leaf predicates are package-level generic functions (Equal, Contains,
// Between, ...) rather than methods, because a method cannot introduce a
// type parameter beyond its receiver's — each predicate needs its own
// PropertyRef[V] type parameter distinct from T.
type QueryBuilder[T any] struct {
	store      *Store
	entityName string
	handle     BuilderHandle
	mapper     func(Row) (*T, error)

	combineNext combineOp
	pending     []ConditionHandle
	base        ConditionHandle
	baseSet     bool

	hasOrder bool
	orders   []OrderClause

	eager []EagerSpec[T]

	hasFilter bool
	filter    func(*T) bool

	comparator func(a, b *T) int

	built bool
	err   error
}

// NewQueryBuilder opens a builder bound to entityName on store. mapper
// converts one backend Row into a *T; it is normally supplied by an
// EntityMeta implementation (see the entity package's ReflectMeta).
func NewQueryBuilder[T any](ctx context.Context, store *Store, entityName string, mapper func(Row) (*T, error)) (*QueryBuilder[T], error) {
	h, err := store.backend.CreateBuilder(ctx, entityName)
	if err != nil {
		return nil, err
	}
	return &QueryBuilder[T]{store: store, entityName: entityName, handle: h, mapper: mapper}, nil
}

func (b *QueryBuilder[T]) ok() bool {
	return b.err == nil && !b.built
}

func (b *QueryBuilder[T]) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *QueryBuilder[T]) hasLastCondition() bool {
	return b.baseSet || len(b.pending) > 0
}

// reduceWithBase folds every pending implicit-AND condition (plus any
// previously combined base) into a single handle, issuing backend.Combine
// calls as needed. It is the mechanism behind both explicit-operator
// combination and build()'s final implicit-AND fold.
func (b *QueryBuilder[T]) reduceWithBase() (ConditionHandle, error) {
	var acc ConditionHandle
	have := false
	if b.baseSet {
		acc = b.base
		have = true
	}
	for _, c := range b.pending {
		if !have {
			acc = c
			have = true
			continue
		}
		combined, err := b.store.backend.Combine(b.handle, acc, c, false)
		if err != nil {
			return 0, err
		}
		acc = combined
	}
	if !have {
		return 0, illegalState("no condition to combine")
	}
	b.base = acc
	b.baseSet = true
	b.pending = nil
	return acc, nil
}

// applyCondition is the sink every leaf predicate funnels its freshly
// obtained ConditionHandle through, implementing §4.1's combinator protocol.
func (b *QueryBuilder[T]) applyCondition(c ConditionHandle) {
	if b.combineNext == cNone {
		b.pending = append(b.pending, c)
		return
	}
	left, err := b.reduceWithBase()
	if err != nil {
		b.fail(err)
		return
	}
	result, err := b.store.backend.Combine(b.handle, left, c, b.combineNext == cOr)
	if err != nil {
		b.fail(err)
		return
	}
	b.base = result
	b.baseSet = true
	b.pending = nil
	b.combineNext = cNone
}

// And sets the pending combinator to AND; the next leaf predicate is combined
// with everything accumulated so far via AND instead of appended implicitly.
func (b *QueryBuilder[T]) And() *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	if !b.hasLastCondition() {
		b.fail(illegalState("and() called with no prior condition"))
		return b
	}
	if b.combineNext != cNone {
		b.fail(illegalState("and() called with an operator already pending"))
		return b
	}
	b.combineNext = cAnd
	return b
}

// Or is And's OR counterpart.
func (b *QueryBuilder[T]) Or() *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	if !b.hasLastCondition() {
		b.fail(illegalState("or() called with no prior condition"))
		return b
	}
	if b.combineNext != cNone {
		b.fail(illegalState("or() called with an operator already pending"))
		return b
	}
	b.combineNext = cOr
	return b
}

// Filter attaches a post-fetch predicate; at most one per builder.
func (b *QueryBuilder[T]) Filter(f func(*T) bool) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	if b.hasFilter {
		b.fail(illegalState("filter() already set"))
		return b
	}
	b.filter = f
	b.hasFilter = true
	return b
}

// Sort attaches an in-process comparator applied after engine ordering and
// the post-filter.
func (b *QueryBuilder[T]) Sort(cmp func(a, b *T) int) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	b.comparator = cmp
	return b
}

// Eager appends one EagerSpec per relation, all sharing the given prefix
// limit (0 means "resolve for every result").
func (b *QueryBuilder[T]) Eager(limit uint32, relations ...RelationDescriptor[T]) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	for _, r := range relations {
		if err := r.validate(); err != nil {
			b.fail(err)
			return b
		}
		b.eager = append(b.eager, EagerSpec[T]{Relation: r, Limit: limit})
	}
	return b
}

// EagerAll is Eager(0, relations...): resolve every relation for every
// result.
func (b *QueryBuilder[T]) EagerAll(relations ...RelationDescriptor[T]) *QueryBuilder[T] {
	return b.Eager(0, relations...)
}

// Build validates the builder, compiles it via the backend and returns the
// resulting repeatable Query[T]. The builder must not be used afterwards.
func (b *QueryBuilder[T]) Build(ctx context.Context) (*Query[T], error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return nil, illegalState("build() called on an already-built builder")
	}
	if b.combineNext != cNone {
		return nil, illegalState("build() called with an operator pending")
	}
	if b.hasLastCondition() {
		root, err := b.reduceWithBase()
		if err != nil {
			return nil, err
		}
		if err := b.store.backend.SetRoot(b.handle, root); err != nil {
			return nil, err
		}
	}

	qh, err := b.store.backend.Compile(ctx, b.handle)
	if err != nil {
		return nil, err
	}
	b.built = true
	b.store.backend.DestroyBuilder(b.handle)

	q := &Query[T]{
		store:      b.store,
		handle:     qh,
		entityName: b.entityName,
		mapper:     b.mapper,
		hasOrder:   b.hasOrder,
		eager:      b.eager,
		hasFilter:  b.hasFilter,
		filter:     b.filter,
		comparator: b.comparator,
	}
	return newQueryFinalized(q), nil
}

// --- ordering ---

// OrderBy appends an ordering clause for prop with explicit flags.
func OrderBy[T any, V any](b *QueryBuilder[T], prop PropertyRef[V], flags OrderFlags) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	if b.combineNext != cNone {
		b.fail(illegalState("order() called with an operator pending"))
		return b
	}
	if err := b.store.backend.AddOrder(b.handle, prop.ID, flags); err != nil {
		b.fail(err)
		return b
	}
	b.orders = append(b.orders, OrderClause{PropertyID: prop.ID, Flags: flags})
	b.hasOrder = true
	return b
}

// Order is OrderBy(b, prop, 0): ascending, default collation.
func Order[T any, V any](b *QueryBuilder[T], prop PropertyRef[V]) *QueryBuilder[T] {
	return OrderBy(b, prop, 0)
}

// OrderDesc is OrderBy(b, prop, Descending).
func OrderDesc[T any, V any](b *QueryBuilder[T], prop PropertyRef[V]) *QueryBuilder[T] {
	return OrderBy(b, prop, Descending)
}

// --- nullness ---

func IsNull[T any, V any](b *QueryBuilder[T], prop PropertyRef[V]) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.IsNull(b.handle, prop.ID)
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func NotNull[T any, V any](b *QueryBuilder[T], prop PropertyRef[V]) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.NotNull(b.handle, prop.ID)
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

// --- integer / long comparisons ---

func Equal[T any, V constraints.Integer](b *QueryBuilder[T], prop PropertyRef[V], v V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.EqualInt(b.handle, prop.ID, int64(v))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func NotEqual[T any, V constraints.Integer](b *QueryBuilder[T], prop PropertyRef[V], v V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.NotEqualInt(b.handle, prop.ID, int64(v))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func Less[T any, V constraints.Integer](b *QueryBuilder[T], prop PropertyRef[V], v V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.LessInt(b.handle, prop.ID, int64(v))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func Greater[T any, V constraints.Integer](b *QueryBuilder[T], prop PropertyRef[V], v V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.GreaterInt(b.handle, prop.ID, int64(v))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func Between[T any, V constraints.Integer](b *QueryBuilder[T], prop PropertyRef[V], v1, v2 V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.BetweenInt(b.handle, prop.ID, int64(v1), int64(v2))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func toInt64Slice[V constraints.Integer](vs []V) []int64 {
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = int64(v)
	}
	return out
}

func In[T any, V constraints.Integer](b *QueryBuilder[T], prop PropertyRef[V], values []V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.InInt(b.handle, prop.ID, toInt64Slice(values))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func NotIn[T any, V constraints.Integer](b *QueryBuilder[T], prop PropertyRef[V], values []V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.NotInInt(b.handle, prop.ID, toInt64Slice(values))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

// --- floating point comparisons ---

func LessFloat[T any, V constraints.Float](b *QueryBuilder[T], prop PropertyRef[V], v V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.LessFloat(b.handle, prop.ID, float64(v))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func GreaterFloat[T any, V constraints.Float](b *QueryBuilder[T], prop PropertyRef[V], v V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.GreaterFloat(b.handle, prop.ID, float64(v))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func BetweenFloat[T any, V constraints.Float](b *QueryBuilder[T], prop PropertyRef[V], v1, v2 V) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.BetweenFloat(b.handle, prop.ID, float64(v1), float64(v2))
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

// EqualFloat is equal(property, value, tolerance) ≡ between(v-tolerance,
// v+tolerance); floating-point equality is never exposed directly.
func EqualFloat[T any, V constraints.Float](b *QueryBuilder[T], prop PropertyRef[V], v, tolerance V) *QueryBuilder[T] {
	return BetweenFloat(b, prop, v-tolerance, v+tolerance)
}

// --- boolean ---

func EqualBool[T any](b *QueryBuilder[T], prop PropertyRef[bool], v bool) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.EqualBool(b.handle, prop.ID, v)
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func NotEqualBool[T any](b *QueryBuilder[T], prop PropertyRef[bool], v bool) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.NotEqualBool(b.handle, prop.ID, v)
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

// --- date (null means "no value supplied": InvalidArgument) ---

func EqualDate[T any](b *QueryBuilder[T], prop PropertyRef[time.Time], v *time.Time) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	if v == nil {
		b.fail(invalidArgument("equal date on property %d: value is nil", prop.ID))
		return b
	}
	c, err := b.store.backend.EqualDate(b.handle, prop.ID, v.UnixMilli())
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func NotEqualDate[T any](b *QueryBuilder[T], prop PropertyRef[time.Time], v *time.Time) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	if v == nil {
		b.fail(invalidArgument("not_equal date on property %d: value is nil", prop.ID))
		return b
	}
	c, err := b.store.backend.NotEqualDate(b.handle, prop.ID, v.UnixMilli())
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func LessDate[T any](b *QueryBuilder[T], prop PropertyRef[time.Time], v *time.Time) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	if v == nil {
		b.fail(invalidArgument("less date on property %d: value is nil", prop.ID))
		return b
	}
	c, err := b.store.backend.LessDate(b.handle, prop.ID, v.UnixMilli())
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func GreaterDate[T any](b *QueryBuilder[T], prop PropertyRef[time.Time], v *time.Time) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	if v == nil {
		b.fail(invalidArgument("greater date on property %d: value is nil", prop.ID))
		return b
	}
	c, err := b.store.backend.GreaterDate(b.handle, prop.ID, v.UnixMilli())
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func BetweenDate[T any](b *QueryBuilder[T], prop PropertyRef[time.Time], v1, v2 *time.Time) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	if v1 == nil || v2 == nil {
		b.fail(invalidArgument("between date on property %d: nil bound", prop.ID))
		return b
	}
	c, err := b.store.backend.BetweenDate(b.handle, prop.ID, v1.UnixMilli(), v2.UnixMilli())
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

// --- string ---

func EqualString[T any](b *QueryBuilder[T], prop PropertyRef[string], v string, order ...StringOrder) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.EqualString(b.handle, prop.ID, v, resolveStringOrder(order) == CaseSensitive)
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func NotEqualString[T any](b *QueryBuilder[T], prop PropertyRef[string], v string, order ...StringOrder) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.NotEqualString(b.handle, prop.ID, v, resolveStringOrder(order) == CaseSensitive)
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func Contains[T any](b *QueryBuilder[T], prop PropertyRef[string], v string, order ...StringOrder) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.ContainsString(b.handle, prop.ID, v, resolveStringOrder(order) == CaseSensitive)
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func StartsWith[T any](b *QueryBuilder[T], prop PropertyRef[string], v string, order ...StringOrder) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.StartsWithString(b.handle, prop.ID, v, resolveStringOrder(order) == CaseSensitive)
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}

func EndsWith[T any](b *QueryBuilder[T], prop PropertyRef[string], v string, order ...StringOrder) *QueryBuilder[T] {
	if !b.ok() {
		return b
	}
	c, err := b.store.backend.EndsWithString(b.handle, prop.ID, v, resolveStringOrder(order) == CaseSensitive)
	if err != nil {
		b.fail(err)
		return b
	}
	b.applyCondition(c)
	return b
}
