package incremental

// ingredient is the capability set a query's storage must expose so
// the engine can operate on it without knowing its concrete key and
// value types. Every *Storage[K, V] implements it; the database keeps
// a []ingredient table indexed by IngredientIndex and dispatches
// through this interface whenever it needs to reach across query
// types - most importantly from inside maybeChangedAfter, which
// recurses from one query's dependency list into arbitrary other
// queries.
type ingredient interface {
	// name is the query's declared name, used for diagnostics.
	name() string

	// maybeChangedAfter reports whether the entry for key may have
	// produced a different value since revision after. It drives
	// §4.3's validation recursion.
	maybeChangedAfter(s *Session, key any, after Revision) bool

	// debugKey renders a key for cycle reports and event logs.
	debugKey(key any) string

	// dependenciesOf returns the exact dependency set recorded for
	// key's current entry, in execution order. Used by the
	// accumulator walk and by cycle reporting.
	dependenciesOf(key any) []QueryDescriptor

	// ownAccumulated returns the values of type typeName this key's
	// own executor accumulated directly (not including nested
	// queries' own buckets - the caller walks dependenciesOf to
	// gather those).
	ownAccumulated(key any, typeName string) []any
}
