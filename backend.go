package objectbind

import "context"

// BuilderHandle is an opaque native handle identifying one in-progress
// QueryBuilder compilation on the backend side.
type BuilderHandle uint64

// QueryHandle is an opaque native handle identifying one compiled, repeatable
// query on the backend side.
type QueryHandle uint64

// ConditionHandle is the opaque token the backend returns for one leaf
// predicate (or for the result of combining two predicates).
type ConditionHandle uint64

// Tx is a transaction-scoped cursor source. Retrievals and mutations must
// acquire their cursor from the Tx passed to them and must not let it escape
// the transaction's scope.
type Tx interface {
	// Commit finalizes the transaction. Only meaningful for write
	// transactions obtained via BeginWrite.
	Commit() error
	// Rollback aborts the transaction.
	Rollback() error
	// Writable reports whether this Tx was opened for writing.
	Writable() bool
}

// Row is a backend-agnostic materialized record: column name to scanned
// value. EntityMeta-driven mapping from Row to a concrete *T happens above
// the backend boundary.
type Row map[string]any

// Scalar is one value (or null) read from a single property, as returned by
// PropertyQuery's retrievals. Exactly the field matching the requested
// TypeTag is populated when Null is false.
type Scalar struct {
	Null    bool
	Str     string
	Int     int64
	Float   float64
	Bool    bool
	Bytes   []byte
}

// PropertyFetchOptions configures a single-property retrieval, mirroring
// PropertyQuery's distinct/unique/null_value configuration.
type PropertyFetchOptions struct {
	Distinct          bool
	DistinctCaseless  bool // for String properties only, when !CaseSensitive
	Unique            bool
	HasNullValue      bool
	NullValueStr      string
	NullValueFloat    float64
	NullValueDouble   float64
	NullValueLong     int64
}

// StorageBackend is the external, consumed-not-implemented capability
// providing native query compilation and execution. One concrete
// implementation, internal/sqlitebackend, is supplied as the reference
// binding for tests.
type StorageBackend interface {
	// --- builder lifecycle ---

	CreateBuilder(ctx context.Context, entityName string) (BuilderHandle, error)
	DestroyBuilder(h BuilderHandle)
	Compile(ctx context.Context, h BuilderHandle) (QueryHandle, error)
	DestroyQuery(h QueryHandle)

	AddOrder(h BuilderHandle, propertyID uint32, flags OrderFlags) error
	Combine(h BuilderHandle, c1, c2 ConditionHandle, useOr bool) (ConditionHandle, error)
	// SetRoot records which compiled condition is the builder's top-level
	// predicate at the time of Compile. QueryBuilder calls it at most once,
	// right before Compile, with the fully-reduced condition handle; a
	// builder with no condition never calls it.
	SetRoot(h BuilderHandle, c ConditionHandle) error

	// --- per-predicate constructors (spec.md §4.1) ---

	IsNull(h BuilderHandle, propertyID uint32) (ConditionHandle, error)
	NotNull(h BuilderHandle, propertyID uint32) (ConditionHandle, error)

	EqualInt(h BuilderHandle, propertyID uint32, v int64) (ConditionHandle, error)
	NotEqualInt(h BuilderHandle, propertyID uint32, v int64) (ConditionHandle, error)
	LessInt(h BuilderHandle, propertyID uint32, v int64) (ConditionHandle, error)
	GreaterInt(h BuilderHandle, propertyID uint32, v int64) (ConditionHandle, error)
	BetweenInt(h BuilderHandle, propertyID uint32, v1, v2 int64) (ConditionHandle, error)
	InInt(h BuilderHandle, propertyID uint32, values []int64) (ConditionHandle, error)
	NotInInt(h BuilderHandle, propertyID uint32, values []int64) (ConditionHandle, error)

	EqualDate(h BuilderHandle, propertyID uint32, epochMillis int64) (ConditionHandle, error)
	NotEqualDate(h BuilderHandle, propertyID uint32, epochMillis int64) (ConditionHandle, error)
	LessDate(h BuilderHandle, propertyID uint32, epochMillis int64) (ConditionHandle, error)
	GreaterDate(h BuilderHandle, propertyID uint32, epochMillis int64) (ConditionHandle, error)
	BetweenDate(h BuilderHandle, propertyID uint32, v1, v2 int64) (ConditionHandle, error)

	EqualBool(h BuilderHandle, propertyID uint32, v bool) (ConditionHandle, error)
	NotEqualBool(h BuilderHandle, propertyID uint32, v bool) (ConditionHandle, error)

	LessFloat(h BuilderHandle, propertyID uint32, v float64) (ConditionHandle, error)
	GreaterFloat(h BuilderHandle, propertyID uint32, v float64) (ConditionHandle, error)
	BetweenFloat(h BuilderHandle, propertyID uint32, v1, v2 float64) (ConditionHandle, error)

	EqualString(h BuilderHandle, propertyID uint32, v string, caseSensitive bool) (ConditionHandle, error)
	NotEqualString(h BuilderHandle, propertyID uint32, v string, caseSensitive bool) (ConditionHandle, error)
	ContainsString(h BuilderHandle, propertyID uint32, v string, caseSensitive bool) (ConditionHandle, error)
	StartsWithString(h BuilderHandle, propertyID uint32, v string, caseSensitive bool) (ConditionHandle, error)
	EndsWithString(h BuilderHandle, propertyID uint32, v string, caseSensitive bool) (ConditionHandle, error)

	// --- execution ---

	FindFirst(ctx context.Context, tx Tx, h QueryHandle) (Row, bool, error)
	FindUnique(ctx context.Context, tx Tx, h QueryHandle) (Row, bool, int, error) // int = match count
	FindList(ctx context.Context, tx Tx, h QueryHandle) ([]Row, error)
	FindListPage(ctx context.Context, tx Tx, h QueryHandle, offset, limit uint64) ([]Row, error)
	FindIDs(ctx context.Context, tx Tx, h QueryHandle) ([]int64, error)
	// LoadByID loads a single row of entityName by primary key, for
	// LazyList's on-access resolution. Returns ok=false if absent.
	LoadByID(ctx context.Context, tx Tx, entityName string, id int64) (Row, bool, error)
	Count(ctx context.Context, tx Tx, h QueryHandle) (uint64, error)
	Remove(ctx context.Context, tx Tx, h QueryHandle) (uint64, error)

	// --- property-scoped retrieval ---

	FindScalars(ctx context.Context, tx Tx, h QueryHandle, propertyID uint32, tag TypeTag, opts PropertyFetchOptions) ([]Scalar, error)
	FindScalar(ctx context.Context, tx Tx, h QueryHandle, propertyID uint32, tag TypeTag, opts PropertyFetchOptions) (Scalar, bool, int, error)

	// --- aggregates ---

	Sum(ctx context.Context, tx Tx, h QueryHandle, propertyID uint32) (int64, error)
	SumDouble(ctx context.Context, tx Tx, h QueryHandle, propertyID uint32) (float64, error)
	Max(ctx context.Context, tx Tx, h QueryHandle, propertyID uint32) (int64, error)
	MaxDouble(ctx context.Context, tx Tx, h QueryHandle, propertyID uint32) (float64, error)
	Min(ctx context.Context, tx Tx, h QueryHandle, propertyID uint32) (int64, error)
	MinDouble(ctx context.Context, tx Tx, h QueryHandle, propertyID uint32) (float64, error)
	Avg(ctx context.Context, tx Tx, h QueryHandle, propertyID uint32) (float64, error)

	// --- parameter rebinding ---

	SetParameterString(h QueryHandle, propertyID uint32, v string) error
	SetParameterLong(h QueryHandle, propertyID uint32, v int64) error
	SetParameterDouble(h QueryHandle, propertyID uint32, v float64) error
	SetParametersString(h QueryHandle, propertyID uint32, v1, v2 string) error
	SetParametersLong(h QueryHandle, propertyID uint32, v1, v2 int64) error
	SetParametersDouble(h QueryHandle, propertyID uint32, v1, v2 float64) error

	// --- transactions ---

	BeginRead(ctx context.Context) (Tx, error)
	BeginWrite(ctx context.Context) (Tx, error)
}
