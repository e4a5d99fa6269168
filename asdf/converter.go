package asdf

// Converter translates between tagged tree nodes and in-memory values.
type Converter interface {
	// Tags lists the tag URIs the converter reads and may write.
	Tags() []string
	// Types lists the type keys the converter writes. A key is a
	// reflect.Type or the value returned by Keyed.TypeKey.
	Types() []any
	// SelectTag picks the tag v is written under, or "" to write v untagged.
	SelectTag(v any, tags []string) string
	// ToTree returns the tree form of v. Nested values in the result are
	// converted by the engine.
	ToTree(v any, tag string) (any, error)
	// FromTree builds a value from a tree whose nested tagged nodes have
	// already been converted (or deferred as *Lazy).
	FromTree(tree any, tag string) (any, error)
	// Lazy reports whether nested occurrences may be deferred.
	Lazy() bool
}

// Keyed values select their converter by key instead of by Go type. A nil
// key falls back to the Go type.
type Keyed interface {
	TypeKey() any
}
