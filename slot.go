package incremental

import "sync"

// slot is the per-key storage cell for a memoized, volatile, or input
// query. It is the mechanism behind §5's "per-entry locking, not a
// single global lock" and the "computing" hand-off that makes a
// second session block on the first rather than duplicate work.
type slot[V any] struct {
	mu sync.Mutex

	computing bool
	computedBy *Session
	done       chan struct{}

	has        bool
	value      V
	err        error
	changedAt  Revision
	verifiedAt Revision
	deps       []QueryDescriptor
	untracked  bool
	accum      map[string][]any
}

// beginCompute transitions the slot to "computing" under the given
// session, or - if another session is already computing this slot -
// returns the channel to wait on and that session's handle. The
// caller must check ok: when false, it must wait on done (after
// registering the wait edge) and retry from the top once it closes.
func (sl *slot[V]) beginCompute(by *Session) (done chan struct{}, holder *Session, ok bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.computing {
		return sl.done, sl.computedBy, false
	}
	sl.computing = true
	sl.computedBy = by
	sl.done = make(chan struct{})
	return nil, nil, true
}

// finishCompute installs the result of an execution - its value and
// its error, if any - releasing any waiters. eq is used to decide backdating: if an older
// entry existed and compares equal to the new value, changedAt is
// left untouched.
func (sl *slot[V]) finishCompute(value V, err error, at Revision, deps []QueryDescriptor, untracked bool, accum map[string][]any, eq func(a, b V) bool) (backdated bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.has && err == nil && sl.err == nil && eq != nil && eq(sl.value, value) {
		backdated = true
		sl.verifiedAt = at
	} else {
		sl.changedAt = at
		sl.verifiedAt = at
	}
	sl.has = true
	sl.value = value
	sl.err = err
	sl.deps = deps
	sl.untracked = untracked
	sl.accum = accum

	sl.computing = false
	sl.computedBy = nil
	close(sl.done)
	sl.done = nil
	return backdated
}

// abortCompute releases the slot without installing a new value,
// used when the executor panics (§7: "no poisoned half-computed entry
// is ever observable").
func (sl *slot[V]) abortCompute() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.computing = false
	sl.computedBy = nil
	close(sl.done)
	sl.done = nil
}

// snapshotEntry returns a copy of the currently installed entry, if
// any.
func (sl *slot[V]) snapshotEntry() (value V, err error, changedAt, verifiedAt Revision, deps []QueryDescriptor, untracked bool, accum map[string][]any, has bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.value, sl.err, sl.changedAt, sl.verifiedAt, sl.deps, sl.untracked, sl.accum, sl.has
}

// setVerifiedAt bumps verifiedAt without touching the rest of the
// entry - used when validation confirms an entry is still good.
func (sl *slot[V]) setVerifiedAt(r Revision) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.verifiedAt = r
}

// setInput directly installs a user-provided value for an input
// query, returning the previous value (the zero value if none).
func (sl *slot[V]) setInput(value V, at Revision) (previous V, hadPrevious bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	previous, hadPrevious = sl.value, sl.has
	sl.value = value
	sl.err = nil
	sl.changedAt = at
	sl.verifiedAt = at
	sl.has = true
	return previous, hadPrevious
}
