package incremental

import "reflect"

// Query is a declared query's handle: its name and the storage
// backing it. A user assembles one of these per query with
// NewInputQuery / NewMemoizedQuery / NewTransparentQuery /
// NewVolatileQuery, the same way a package declares one
// `var FooQuery = &Query[...]{...}` per query it exposes.
type Query[K comparable, V any] struct {
	storage *Storage[K, V]
}

// Option configures a declared query at construction time.
type Option[K comparable, V any] func(*queryOptions[K, V])

type queryOptions[K comparable, V any] struct {
	recover RecoverFunc[K, V]
	eq      func(a, b V) bool
}

// WithRecover installs a cycle-recovery fallback (§4.5): when a fetch
// chain would revisit this query, recover's return value is used
// instead of raising CycleError.
func WithRecover[K comparable, V any](recover RecoverFunc[K, V]) Option[K, V] {
	return func(o *queryOptions[K, V]) { o.recover = recover }
}

// WithEq overrides the equality used to decide backdating (§4.3).
// Defaults to reflect.DeepEqual, which works for any V but is slower
// than a hand-written comparison for large or comparable values.
func WithEq[K comparable, V any](eq func(a, b V) bool) Option[K, V] {
	return func(o *queryOptions[K, V]) { o.eq = eq }
}

func defaultEq[V any](a, b V) bool {
	return reflect.DeepEqual(a, b)
}

func applyOptions[K comparable, V any](opts []Option[K, V]) queryOptions[K, V] {
	o := queryOptions[K, V]{eq: defaultEq[V]}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewInputQuery declares an input query: its value is never computed
// by the engine, only set via the package-level Set function.
func NewInputQuery[K comparable, V any](db *Database, name string) *Query[K, V] {
	st := newStorage[K, V](db, name, FlavorInput, nil, nil, nil)
	return &Query[K, V]{storage: st}
}

// NewMemoizedQuery declares a memoized query: exec runs at most once
// per revision per key, validated against its recorded dependencies
// on subsequent fetches (§4.3).
func NewMemoizedQuery[K comparable, V any](db *Database, name string, exec Executor[K, V], opts ...Option[K, V]) *Query[K, V] {
	o := applyOptions(opts)
	st := newStorage[K, V](db, name, FlavorMemoized, exec, o.recover, o.eq)
	return &Query[K, V]{storage: st}
}

// NewTransparentQuery declares a transparent query: exec runs on
// every fetch, and the dependencies it reads are attributed directly
// to the caller (§4.4).
func NewTransparentQuery[K comparable, V any](db *Database, name string, exec Executor[K, V], opts ...Option[K, V]) *Query[K, V] {
	o := applyOptions(opts)
	st := newStorage[K, V](db, name, FlavorTransparent, exec, o.recover, o.eq)
	return &Query[K, V]{storage: st}
}

// NewVolatileQuery declares a volatile query: memoized within a
// revision, but always re-executed on the first fetch after any
// revision bump (§4.4) - the engine-level escape hatch for wrapping
// non-pure sources (clocks, file mtimes) so they still participate
// correctly in change propagation.
func NewVolatileQuery[K comparable, V any](db *Database, name string, exec Executor[K, V], opts ...Option[K, V]) *Query[K, V] {
	o := applyOptions(opts)
	st := newStorage[K, V](db, name, FlavorVolatile, exec, o.recover, o.eq)
	return &Query[K, V]{storage: st}
}

// Descriptor returns the QueryDescriptor identifying key within q,
// the handle ReadAccumulated and event hooks key off of.
func (q *Query[K, V]) Descriptor(key K) QueryDescriptor {
	return q.storage.descriptor(key)
}

// Fetch executes q for key on session s, returning a cached result if
// one is fresh or can be validated, executing (or re-executing)
// otherwise. It is the sole read path through every storage flavor.
func Fetch[K comparable, V any](s *Session, q *Query[K, V], key K) (V, error) {
	return q.storage.Fetch(s, key)
}

// Set installs value for an input query, advancing the database's
// revision first, and returns the value that was previously set (the
// zero value if none). It is a fatal misuse to call Set on a snapshot
// or from within an executing query.
func Set[K comparable, V any](s *Session, q *Query[K, V], key K, value V) V {
	if q.storage.flavor != FlavorInput {
		panic(MisuseError{Op: "Set", Message: "Set may only be called on an input query"})
	}
	if s.snapshot {
		panic(MisuseError{Op: "Set", Message: "cannot set an input from a snapshot"})
	}
	if s.stack.depth() > 0 {
		panic(MisuseError{Op: "Set", Message: "cannot set an input while a query is executing"})
	}
	return q.storage.setInputValue(s, key, value)
}
