package objectbind

// OrderFlags is a bitmask controlling how one ordering clause compiles and
// sorts. Exact bit positions are stable but backend-defined; callers should
// only ever refer to the named constants.
type OrderFlags uint32

const (
	// Descending sorts this clause highest-to-lowest instead of the default
	// ascending order.
	Descending OrderFlags = 1 << iota
	// CaseSensitiveOrder compares strings byte-for-byte instead of the
	// default case-insensitive ASCII comparison.
	CaseSensitiveOrder
	// NullsLast places null values after all non-null values regardless of
	// sort direction; by default nulls sort first.
	NullsLast
	// NullsAsZero substitutes 0 for null numeric values instead of treating
	// them as nulls for ordering purposes.
	NullsAsZero
	// Unsigned interprets the property's stored integer bits as unsigned
	// when comparing, instead of the default signed interpretation. The
	// bundled SQLite backend ignores this flag and orders signed values.
	Unsigned
)

// Has reports whether flag is set in f.
func (f OrderFlags) Has(flag OrderFlags) bool { return f&flag != 0 }

// OrderClause is one (property, flags) ordering directive. QueryBuilder
// retains clauses in call order; earlier clauses dominate when the engine
// sorts, exactly like a multi-key sort's primary/secondary/... keys.
type OrderClause struct {
	PropertyID uint32
	Flags      OrderFlags
}
