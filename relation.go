package objectbind

// RelationKind distinguishes a to-one traversal (single related entity) from
// a to-many traversal (a collection), matching the dual-getter contract a
// code generator would normally emit for a relation.
type RelationKind int

const (
	ToOne RelationKind = iota
	ToMany
)

// ToManyCollection is the minimal capability Query needs from a to-many
// relation's loaded result: forcing its size computation is what the
// underlying binding uses to trigger the actual load, mirroring the "invoke
// size() to force load" contract described in spec.md's design notes.
type ToManyCollection interface {
	// Size forces materialization of the collection and returns its length.
	Size() int
}

// RelationDescriptor identifies a to-one or to-many relation and how to
// traverse it from an entity of type T. The getter matching Kind must be set;
// a descriptor without it is rejected with an IllegalStateError by
// QueryBuilder.Eager (reported from Build), and again by resolve.
type RelationDescriptor[T any] struct {
	Name string
	Kind RelationKind

	// ToOneGetter, when Kind == ToOne, loads (and materializes) the related
	// entity reachable from entity. Returning (nil, nil) means "no related
	// entity"; that is not an error.
	ToOneGetter func(entity *T) (any, error)

	// ToManyGetter, when Kind == ToMany, returns the (possibly lazy)
	// collection reachable from entity. Query forces its Size() to trigger
	// load, per the materialization contract above.
	ToManyGetter func(entity *T) (ToManyCollection, error)
}

func (r RelationDescriptor[T]) validate() error {
	switch r.Kind {
	case ToOne:
		if r.ToOneGetter == nil {
			return illegalState("relation %q declared ToOne but has no ToOneGetter", r.Name)
		}
	case ToMany:
		if r.ToManyGetter == nil {
			return illegalState("relation %q declared ToMany but has no ToManyGetter", r.Name)
		}
	default:
		return illegalState("relation %q has neither a to-one nor a to-many getter", r.Name)
	}
	return nil
}

// resolve performs the traversal for a single entity, forcing materialization
// per Kind.
func (r RelationDescriptor[T]) resolve(entity *T) error {
	if err := r.validate(); err != nil {
		return err
	}
	switch r.Kind {
	case ToOne:
		_, err := r.ToOneGetter(entity)
		return err
	case ToMany:
		coll, err := r.ToManyGetter(entity)
		if err != nil {
			return err
		}
		if coll != nil {
			coll.Size()
		}
		return nil
	default:
		return illegalState("relation %q has neither a to-one nor a to-many getter", r.Name)
	}
}

// EagerSpec pairs a relation with an optional prefix limit. A limit of 0
// means "resolve for every result"; otherwise only the first Limit results
// (by index in the result slice) are eagerly resolved.
type EagerSpec[T any] struct {
	Relation RelationDescriptor[T]
	Limit    uint32
}

// shouldResolve reports whether the entity at the given zero-based index
// should have this eager spec resolved, per spec.md §4.2's eager resolution
// policy.
func (e EagerSpec[T]) shouldResolve(index int) bool {
	return e.Limit == 0 || index < int(e.Limit)
}
