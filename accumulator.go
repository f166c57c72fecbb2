package incremental

import "reflect"

// typeKey names a Go type for use as an accumulator bucket key. Two
// distinct types T1, T2 with the same underlying representation still
// get distinct buckets, since reflect.Type identity (not structural
// equality) is what backs the string.
func typeKey[T any]() string {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	return t.PkgPath() + "." + t.Name()
}

// Accumulate appends value to the accumulator bucket for T, attached
// to whichever query is currently executing on s. It is a usage error
// to call it outside of an executing query - accumulation only makes
// sense attributed to some entry's recorded output, the way
// original_source's accumulate() call only makes sense inside a
// tracked query body.
//
// A transparent query's accumulation is forwarded to its caller's
// frame (§4.4), since transparent storage never holds an entry of its
// own to attach a bucket to.
func Accumulate[T any](s *Session, value T) {
	f := s.stack.top()
	if f == nil {
		panic(MisuseError{Op: "Accumulate", Message: "Accumulate called outside of an executing query"})
	}
	f.pushAccum(typeKey[T](), value)
}

// ReadAccumulated gathers every T accumulated at desc or at any query
// desc transitively depends on, in dependency order (desc's own
// direct accumulations first, then each dependency's in the order
// they were recorded). A query participates in the walk whether its
// entry is Fresh, just-Validated, or just-Executed: accum is part of
// the cached entry precisely like changed_at and deps, so reading it
// requires no special-casing by flavor (§4.6 accumulator semantics).
//
// This also records desc (and the queries it walks through) as
// dependencies of the caller, since the result changes whenever any
// of those entries' own accumulation would change.
func ReadAccumulated[T any](s *Session, desc QueryDescriptor) []T {
	typeName := typeKey[T]()
	visited := make(map[QueryDescriptor]struct{})
	var out []T
	walkAccumulated[T](s, desc, typeName, visited, &out)
	return out
}

func walkAccumulated[T any](s *Session, desc QueryDescriptor, typeName string, visited map[QueryDescriptor]struct{}, out *[]T) {
	if _, ok := visited[desc]; ok {
		return
	}
	visited[desc] = struct{}{}
	s.stack.recordRead(desc, false)

	ing := s.db.ingredientAt(desc.Index)
	for _, v := range ing.ownAccumulated(desc.Key, typeName) {
		if tv, ok := v.(T); ok {
			*out = append(*out, tv)
		}
	}
	for _, dep := range ing.dependenciesOf(desc.Key) {
		walkAccumulated(s, dep, typeName, visited, out)
	}
}
