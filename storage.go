package incremental

import (
	"fmt"
	"sync"
)

// Flavor selects one of the four storage behaviours of §4.
type Flavor int

const (
	// FlavorInput holds user-set values; only Set may write it.
	FlavorInput Flavor = iota
	// FlavorMemoized caches its executor's result and validates it
	// against its recorded dependencies before re-executing.
	FlavorMemoized
	// FlavorTransparent never caches: every fetch re-executes, and
	// the reads it performs are attributed to the caller.
	FlavorTransparent
	// FlavorVolatile is memoized but always treated as possibly
	// changed across a revision bump (§4.4).
	FlavorVolatile
)

// Executor computes a query's value given a fetch handle and a key.
type Executor[K any, V any] func(s *Session, key K) (V, error)

// RecoverFunc supplies a fallback value for a query whose fetch would
// otherwise close a cycle (§4.5).
type RecoverFunc[K any, V any] func(key K) V

// Storage is the per-query-type table of §2's component D: a map
// from key to cached value, dependency record, and verification
// metadata, plus the flavor-specific fetch/validate/execute logic of
// §4.3-§4.4. It implements ingredient so the runtime can dispatch
// into it without knowing K or V.
type Storage[K comparable, V any] struct {
	db      *Database
	index   IngredientIndex
	queryName string
	flavor  Flavor
	exec    Executor[K, V]
	recover RecoverFunc[K, V]
	eq      func(a, b V) bool

	mu    sync.RWMutex
	slots map[K]*slot[V]
}

func newStorage[K comparable, V any](db *Database, name string, flavor Flavor, exec Executor[K, V], recover RecoverFunc[K, V], eq func(a, b V) bool) *Storage[K, V] {
	st := &Storage[K, V]{
		db:        db,
		queryName: name,
		flavor:    flavor,
		exec:      exec,
		recover:   recover,
		eq:        eq,
		slots:     make(map[K]*slot[V]),
	}
	st.index = db.register(st)
	return st
}

func (st *Storage[K, V]) descriptor(key K) QueryDescriptor {
	return QueryDescriptor{Index: st.index, Key: key}
}

func (st *Storage[K, V]) getSlot(key K) *slot[V] {
	st.mu.RLock()
	sl, ok := st.slots[key]
	st.mu.RUnlock()
	if ok {
		return sl
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if sl, ok = st.slots[key]; ok {
		return sl
	}
	sl = &slot[V]{}
	st.slots[key] = sl
	return sl
}

// ingredient implementation

func (st *Storage[K, V]) name() string { return st.queryName }

func (st *Storage[K, V]) debugKey(key any) string {
	k, _ := key.(K)
	return fmt.Sprintf("%v", k)
}

func (st *Storage[K, V]) dependenciesOf(key any) []QueryDescriptor {
	k, _ := key.(K)
	sl := st.getSlot(k)
	_, _, _, _, deps, _, _, _ := sl.snapshotEntry()
	return deps
}

func (st *Storage[K, V]) ownAccumulated(key any, typeName string) []any {
	k, _ := key.(K)
	sl := st.getSlot(k)
	_, _, _, _, _, _, accum, _ := sl.snapshotEntry()
	return accum[typeName]
}

func (st *Storage[K, V]) maybeChangedAfter(s *Session, key any, after Revision) bool {
	k, _ := key.(K)
	current := s.CurrentRevision()

	sl := st.getSlot(k)
	_, _, changedAt, verifiedAt, _, _, _, has := sl.snapshotEntry()

	if st.flavor == FlavorInput {
		return changedAt > after
	}
	if has && verifiedAt >= current {
		return changedAt > after
	}
	// Not yet fresh at the current revision: run Validate (possibly
	// falling through to Execute) on it directly, then compare its
	// (possibly just-updated) changed_at against after. Whether the
	// entry backdated or re-executed with a new value, changed_at
	// alone carries the answer.
	if _, err := st.fetch(s, k); err != nil {
		return true
	}
	_, _, changedAt, _, _, _, _, _ = sl.snapshotEntry()
	return changedAt > after
}

// Fetch is the public entry point used by the package-level Fetch
// function.
func (st *Storage[K, V]) Fetch(s *Session, key K) (V, error) {
	// A snapshot holds the read side of the database lock for its
	// whole lifetime; a top-level session takes it for the duration of
	// its outermost fetch, so no input is set underneath the fetch tree.
	if !s.snapshot && s.stack.depth() == 0 {
		s.db.rw.RLock()
		defer s.db.rw.RUnlock()
	}
	return st.fetch(s, key)
}

// fetch implements §4.3's protocol, dispatched per flavor.
func (st *Storage[K, V]) fetch(s *Session, key K) (V, error) {
	desc := st.descriptor(key)

	if cycle, found := s.stack.contains(desc); found {
		return st.handleCycle(s, key, cycle)
	}

	switch st.flavor {
	case FlavorInput:
		return st.fetchInput(s, key, desc)
	case FlavorTransparent:
		return st.fetchTransparent(s, key, desc)
	default:
		return st.fetchMemoized(s, key, desc)
	}
}

func (st *Storage[K, V]) handleCycle(s *Session, key K, cycle []QueryDescriptor) (V, error) {
	if st.recover != nil {
		return st.recover(key), nil
	}
	var zero V
	return zero, s.db.cycleErrorFor(cycle)
}

func (st *Storage[K, V]) fetchInput(s *Session, key K, desc QueryDescriptor) (V, error) {
	sl := st.getSlot(key)
	value, err, _, _, _, _, _, has := sl.snapshotEntry()
	if !has {
		var zero V
		return zero, fmt.Errorf("incremental: input %s has no value set", st.debugKey(key))
	}
	sl.setVerifiedAt(s.CurrentRevision())
	s.stack.recordRead(desc, false)
	return value, err
}

func (st *Storage[K, V]) fetchTransparent(s *Session, key K, desc QueryDescriptor) (V, error) {
	s.db.emit(s, EventWillExecute, desc)
	s.stack.pushTransparent(desc)
	value, err := st.exec(s, key)
	s.stack.pop()
	s.db.emit(s, EventDidExecute, desc)
	// A transparent query never populates a slot of its own (§4.4), so
	// its own descriptor must never be recorded as a dependency - only
	// the reads it forwarded to the caller while executing. Recording
	// desc here would give the caller a "dependency" that never holds
	// an entry (has=false forever): every validation of the caller
	// would re-execute this query just to check it, and its changed_at
	// would stay at zero, so it would never report a change.
	return value, err
}

func (st *Storage[K, V]) fetchMemoized(s *Session, key K, desc QueryDescriptor) (V, error) {
	sl := st.getSlot(key)
	current := s.CurrentRevision()

	_, _, _, verifiedAt, _, _, _, has := sl.snapshotEntry()
	if has && verifiedAt == current {
		value, err, _, _, _, _, _, _ := sl.snapshotEntry()
		s.stack.recordRead(desc, st.flavor == FlavorVolatile)
		return value, err
	}

	if has {
		// Validation recurses into this entry's dependencies, which
		// may themselves need to execute; a frame is pushed for desc
		// for the duration so those nested fetches attribute their
		// reads to this entry rather than to whatever ancestor query
		// is really on top of the stack, and so a cycle closing back
		// through desc is still caught.
		s.stack.push(desc)
		ok, value, err := st.tryValidate(s, desc, sl, current)
		s.stack.pop()
		if ok {
			s.stack.recordRead(desc, st.flavor == FlavorVolatile)
			return value, err
		}
	}

	return st.execute(s, key, desc, sl, current)
}

// tryValidate attempts the Validate branch of §4.3. ok is false when
// the entry must fall through to Execute. The caller has already
// pushed desc's own frame on the stack.
func (st *Storage[K, V]) tryValidate(s *Session, desc QueryDescriptor, sl *slot[V], current Revision) (ok bool, value V, err error) {
	value, err, _, verifiedAt, deps, untracked, _, _ := sl.snapshotEntry()
	if untracked || len(deps) == 0 {
		return false, value, err
	}
	for _, dep := range deps {
		ing := s.db.ingredientAt(dep.Index)
		if ing.maybeChangedAfter(s, dep.Key, verifiedAt) {
			return false, value, err
		}
	}
	sl.setVerifiedAt(current)
	s.db.emit(s, EventDidValidate, desc)
	value, err, _, _, _, _, _, _ = sl.snapshotEntry()
	return true, value, err
}

// execute runs the Execute branch of §4.3, with duplicate-work
// suppression across sessions (§5) and panic safety (§7).
func (st *Storage[K, V]) execute(s *Session, key K, desc QueryDescriptor, sl *slot[V], current Revision) (V, error) {
	for {
		done, holder, ok := sl.beginCompute(s)
		if ok {
			break
		}
		s.db.emit(s, EventWillBlockOn, desc)
		if cycle := s.db.waitsFor(s, holder); cycle {
			var zero V
			return zero, s.db.cycleErrorFor([]QueryDescriptor{desc})
		}
		<-done
		s.db.doneWaiting(s)
		// Another session may have just installed a fresh entry;
		// re-enter the full fetch so a Fresh/Validate short-circuit
		// is taken if possible instead of unconditionally executing.
		return st.fetch(s, key)
	}

	s.db.emit(s, EventWillExecute, desc)
	f := s.stack.push(desc)

	value, execErr := st.runExecutor(s, key)

	s.stack.pop()
	deps := f.deps
	// A volatile entry is unconditionally untracked (§3/§4.4): it must
	// force re-execution on the next fetch after any revision bump
	// regardless of whether the reads it happened to make were
	// themselves volatile.
	untracked := f.untracked || st.flavor == FlavorVolatile
	accum := f.accum

	backdated := sl.finishCompute(value, execErr, current, deps, untracked, accum, st.eq)
	if backdated {
		s.db.emit(s, EventWillBackdate, desc)
	}
	s.db.emit(s, EventDidExecute, desc)

	s.stack.recordRead(desc, st.flavor == FlavorVolatile)
	return value, execErr
}

// runExecutor calls the user's executor, translating a panic into a
// slot release before re-raising it (§7: user panics never leave a
// poisoned "computing" slot, nor an unpopped stack frame).
func (st *Storage[K, V]) runExecutor(s *Session, key K) (value V, err error) {
	sl := st.getSlot(key)
	panicked := true
	defer func() {
		if panicked {
			s.stack.pop()
			sl.abortCompute()
		}
	}()
	value, err = st.exec(s, key)
	panicked = false
	return value, err
}

func (st *Storage[K, V]) sweep(current Revision, keep int) {
	if st.flavor == FlavorInput {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for k, sl := range st.slots {
		_, _, _, verifiedAt, _, _, _, has := sl.snapshotEntry()
		if has && int(current-verifiedAt) > keep {
			delete(st.slots, k)
		}
	}
}

// setInputValue installs value directly, bumping the revision first.
// Only meaningful for FlavorInput storages; called by the package
// level Set function.
func (st *Storage[K, V]) setInputValue(s *Session, key K, value V) V {
	var previous V
	s.db.writeLocked(func() {
		r := s.db.revision.advance()
		sl := st.getSlot(key)
		previous, _ = sl.setInput(value, r)
	})
	return previous
}
