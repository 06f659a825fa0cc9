// Package sqlitebackend is the reference StorageBackend binding: it compiles
// QueryBuilder condition trees into the clause package's SQL algebra and
// executes them against a SQLite database via squirrel and sqlx, the same
// stack the teacher's Session/Dialect layer is built on.
package sqlitebackend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/objectbind/objectbind"
	"github.com/objectbind/objectbind/clause"
)

// builderState is the mutable, in-progress compilation state for one
// BuilderHandle.
type builderState struct {
	entityName string
	conditions map[objectbind.ConditionHandle]clause.Expression
	nextCond   uint64
	orders     []clause.OrderByColumn
	root       clause.Expression
	hasRoot    bool
}

// queryState is a compiled, repeatable query.
type queryState struct {
	entityName string
	where      clause.Expression
	orders     []clause.OrderByColumn
}

// Backend implements objectbind.StorageBackend against a single SQLite
// database. A global mutex guards the handle tables and the mutable
// queryState.where tree (parameter rebinding swaps in a rewritten tree;
// execution reads a snapshot of the queryState taken under the lock), matching
// the serialize-concurrent-access requirement spec.md places on
// set_parameter*.
type Backend struct {
	db *sqlx.DB

	mu       sync.Mutex
	metas    map[string]objectbind.EntityMeta
	builders map[objectbind.BuilderHandle]*builderState
	queries  map[objectbind.QueryHandle]*queryState

	nextBuilder uint64
	nextQuery   uint64
}

// New wraps db. Call RegisterEntity once per entity type before building
// queries against it.
func New(db *sqlx.DB) *Backend {
	return &Backend{
		db:       db,
		metas:    make(map[string]objectbind.EntityMeta),
		builders: make(map[objectbind.BuilderHandle]*builderState),
		queries:  make(map[objectbind.QueryHandle]*queryState),
	}
}

// RegisterEntity makes meta's entity queryable. The query layer has no other
// way to learn a property's column name or declared type.
func (b *Backend) RegisterEntity(meta objectbind.EntityMeta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metas[meta.EntityName()] = meta
}

func (b *Backend) column(entityName string, propertyID uint32) (clause.Column, objectbind.TypeTag, error) {
	meta, ok := b.metas[entityName]
	if !ok {
		return clause.Column{}, 0, fmt.Errorf("sqlitebackend: entity %q not registered", entityName)
	}
	name, tag, ok := meta.PropertyColumn(propertyID)
	if !ok {
		return clause.Column{}, 0, fmt.Errorf("sqlitebackend: entity %q has no property %d", entityName, propertyID)
	}
	return clause.Column{Name: name}, tag, nil
}

// --- builder lifecycle ---

func (b *Backend) CreateBuilder(ctx context.Context, entityName string) (objectbind.BuilderHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.metas[entityName]; !ok {
		return 0, fmt.Errorf("sqlitebackend: entity %q not registered", entityName)
	}
	b.nextBuilder++
	h := objectbind.BuilderHandle(b.nextBuilder)
	b.builders[h] = &builderState{
		entityName: entityName,
		conditions: make(map[objectbind.ConditionHandle]clause.Expression),
	}
	return h, nil
}

func (b *Backend) DestroyBuilder(h objectbind.BuilderHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.builders, h)
}

func (b *Backend) DestroyQuery(h objectbind.QueryHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queries, h)
}

func (b *Backend) addCondition(h objectbind.BuilderHandle, expr clause.Expression) (objectbind.ConditionHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bs, ok := b.builders[h]
	if !ok {
		return 0, fmt.Errorf("sqlitebackend: unknown builder handle")
	}
	bs.nextCond++
	c := objectbind.ConditionHandle(bs.nextCond)
	bs.conditions[c] = expr
	return c, nil
}

func (b *Backend) Combine(h objectbind.BuilderHandle, c1, c2 objectbind.ConditionHandle, useOr bool) (objectbind.ConditionHandle, error) {
	b.mu.Lock()
	bs, ok := b.builders[h]
	if !ok {
		b.mu.Unlock()
		return 0, fmt.Errorf("sqlitebackend: unknown builder handle")
	}
	e1, ok1 := bs.conditions[c1]
	e2, ok2 := bs.conditions[c2]
	b.mu.Unlock()
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("sqlitebackend: unknown condition handle")
	}
	var combined clause.Expression
	if useOr {
		combined = clause.Or{e1, e2}
	} else {
		combined = clause.And{e1, e2}
	}
	return b.addCondition(h, combined)
}

func (b *Backend) SetRoot(h objectbind.BuilderHandle, c objectbind.ConditionHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bs, ok := b.builders[h]
	if !ok {
		return fmt.Errorf("sqlitebackend: unknown builder handle")
	}
	expr, ok := bs.conditions[c]
	if !ok {
		return fmt.Errorf("sqlitebackend: unknown condition handle")
	}
	bs.root = expr
	bs.hasRoot = true
	return nil
}

func (b *Backend) AddOrder(h objectbind.BuilderHandle, propertyID uint32, flags objectbind.OrderFlags) error {
	b.mu.Lock()
	bs, ok := b.builders[h]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("sqlitebackend: unknown builder handle")
	}
	col, _, err := b.column(bs.entityName, propertyID)
	if err != nil {
		return err
	}
	obc := clause.OrderByColumn{
		Column:        col,
		Desc:          flags.Has(objectbind.Descending),
		CaseSensitive: flags.Has(objectbind.CaseSensitiveOrder),
		NullsLast:     flags.Has(objectbind.NullsLast),
		NullsAsZero:   flags.Has(objectbind.NullsAsZero),
	}
	b.mu.Lock()
	bs.orders = append(bs.orders, obc)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Compile(ctx context.Context, h objectbind.BuilderHandle) (objectbind.QueryHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bs, ok := b.builders[h]
	if !ok {
		return 0, fmt.Errorf("sqlitebackend: unknown builder handle")
	}
	where := bs.root
	if !bs.hasRoot {
		where = clause.And{}
	}
	b.nextQuery++
	qh := objectbind.QueryHandle(b.nextQuery)
	b.queries[qh] = &queryState{
		entityName: bs.entityName,
		where:      where,
		orders:     append([]clause.OrderByColumn(nil), bs.orders...),
	}
	return qh, nil
}

// --- transactions ---

type sqlTx struct {
	tx       *sqlx.Tx
	writable bool
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }
func (t *sqlTx) Writable() bool  { return t.writable }

func (b *Backend) BeginRead(ctx context.Context) (objectbind.Tx, error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classifyErr(err)
	}
	return &sqlTx{tx: tx, writable: false}, nil
}

func (b *Backend) BeginWrite(ctx context.Context) (objectbind.Tx, error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classifyErr(err)
	}
	return &sqlTx{tx: tx, writable: true}, nil
}

func txOf(tx objectbind.Tx) (*sqlx.Tx, error) {
	t, ok := tx.(*sqlTx)
	if !ok {
		return nil, fmt.Errorf("sqlitebackend: foreign Tx implementation %T", tx)
	}
	return t.tx, nil
}

// classifyErr wraps a driver error as a objectbind.BackendError, marking
// SQLITE_BUSY/SQLITE_LOCKED as transient so the Store's retry envelope
// retries only lock contention, never logical errors.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	transient := errors.As(err, &serr) && (serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked)
	return &objectbind.BackendError{Transient: transient, Err: err}
}

func (b *Backend) querySQL(qs *queryState, limit, offset int64, useLimit bool) (string, []any, error) {
	sb := sq.Select("*").From(qs.entityName)
	whereSQL, whereArgs := qs.where.Build()
	if whereSQL != "" {
		sb = sb.Where(whereSQL, whereArgs...)
	}
	for _, o := range qs.orders {
		sb = sb.OrderBy(o.Build())
	}
	if useLimit {
		sb = sb.Limit(uint64(limit))
		if offset > 0 {
			sb = sb.Offset(uint64(offset))
		}
	}
	return sb.ToSql()
}
