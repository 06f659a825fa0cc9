// Package objectbind is a type-safe query layer for an object/embedded
// database binding. It provides a fluent QueryBuilder that accumulates typed
// predicates against schema-defined properties, compiles them into a
// backend-bound Query, and executes repeatable retrievals, aggregates and
// mutations against an underlying transactional StorageBackend.
//
// The storage engine itself, entity code-generation and the relation graph
// are external collaborators (StorageBackend, EntityMeta, RelationDescriptor)
// consumed — not implemented — by this package.
package objectbind

// TypeTag identifies the declared storage type of a property. Date is
// represented at the backend as Long (milliseconds since the Unix epoch).
type TypeTag int

const (
	Bool TypeTag = iota
	Byte
	Short
	Char
	Int
	Long
	Float
	Double
	String
	ByteArray
	Date
)

// String renders the tag's name, mostly useful in error messages.
func (t TypeTag) String() string {
	switch t {
	case Bool:
		return "Bool"
	case Byte:
		return "Byte"
	case Short:
		return "Short"
	case Char:
		return "Char"
	case Int:
		return "Int"
	case Long:
		return "Long"
	case Float:
		return "Float"
	case Double:
		return "Double"
	case String:
		return "String"
	case ByteArray:
		return "ByteArray"
	case Date:
		return "Date"
	default:
		return "Unknown"
	}
}

// PropertyRef is an immutable handle identifying one schema-defined property:
// its backend-assigned id and its declared type. The type parameter V is the
// Go type leaf predicates on this property accept (int64, float64, string,
// bool, time.Time, ...); it exists purely to let QueryBuilder dispatch typed
// predicate methods at compile time and carries no runtime state of its own.
type PropertyRef[V any] struct {
	ID           uint32
	DeclaredType TypeTag
}

// NewProperty constructs a PropertyRef. Callers are normally generated code or
// an EntityMeta implementation, never end users composing queries.
func NewProperty[V any](id uint32, declared TypeTag) PropertyRef[V] {
	return PropertyRef[V]{ID: id, DeclaredType: declared}
}
