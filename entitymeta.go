package objectbind

// EntityMeta is the external, consumed-not-implemented capability describing
// one entity type's schema: its storage name, its property-id-to-column
// mapping, and its identity property. Code generation that would normally
// produce this is out of scope; the entity package supplies a reflect-tag
// driven reference implementation.
type EntityMeta interface {
	EntityName() string
	PropertyColumn(id uint32) (name string, tag TypeTag, ok bool)
	IDProperty() PropertyRef[int64]
}
