package incremental

import (
	"sync"
	"sync/atomic"
)

// Database is the shared runtime (component E, minus the per-session
// stack which lives on each Session): the revision counter, the
// ingredient table, the reader-writer lock coordinating input
// mutation against live readers, the set of live sessions, the
// waiter->holder map used for cross-session cycle detection, and the
// cancellation flag.
//
// A Database is created once via NewDatabase. Fetching and setting
// queries happens through a *Session obtained from Database.Top or
// from another Session's Snapshot.
type Database struct {
	revision *revisionCounter
	rw       sync.RWMutex

	mu          sync.Mutex
	ingredients []ingredient
	sessions    map[*Session]struct{}
	waitFor     map[*Session]*Session

	cancel  atomic.Bool
	cfg     *Config
	onEvent EventHook
}

// NewDatabase creates a new, empty runtime. Pass nil for cfg to get
// NewConfig's defaults.
func NewDatabase(cfg *Config) *Database {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Database{
		revision: newRevisionCounter(),
		cfg:      cfg,
		sessions: make(map[*Session]struct{}),
		waitFor:  make(map[*Session]*Session),
	}
}

// Config returns the runtime's configuration.
func (db *Database) Config() *Config { return db.cfg }

// OnEvent installs the synchronous event subscriber and flips the
// "runtime.event_log" config key to match, so emit's gate and the
// presence of a subscriber never disagree. Pass nil to remove it.
// Must be called before any Session starts fetching; installing it
// concurrently with in-flight fetches is undefined.
func (db *Database) OnEvent(hook EventHook) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.onEvent = hook
	db.cfg.SetBool("runtime.event_log", hook != nil)
}

// Top returns a new top-level, read-write session. Top-level sessions
// may set inputs and take snapshots; only snapshots (see
// Session.Snapshot) are restricted to reads.
func (db *Database) Top() *Session {
	s := &Session{id: newSessionID(), db: db, stack: newQueryStack()}
	db.registerSession(s)
	return s
}

// register adds ing to the ingredient table and returns its index.
// Called once per declared query, at construction time.
func (db *Database) register(ing ingredient) IngredientIndex {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.ingredients = append(db.ingredients, ing)
	return IngredientIndex(len(db.ingredients) - 1)
}

func (db *Database) ingredientAt(idx IngredientIndex) ingredient {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.ingredients[idx]
}

func (db *Database) registerSession(s *Session) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.sessions[s] = struct{}{}
}

func (db *Database) unregisterSession(s *Session) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.sessions, s)
	delete(db.waitFor, s)
}

// writeLocked runs fn holding the database's exclusive write lock,
// setting the cancellation flag for the duration that the writer was
// forced to wait for outstanding snapshots to drop (§5).
func (db *Database) writeLocked(fn func()) {
	if !db.rw.TryLock() {
		db.cancel.Store(true)
		db.rw.Lock()
	}
	defer func() {
		db.cancel.Store(false)
		db.rw.Unlock()
	}()
	fn()
}

// describe renders a descriptor using its ingredient's debug name,
// falling back to the numeric index if the ingredient is unknown.
func (db *Database) describe(d QueryDescriptor) string {
	db.mu.Lock()
	known := d.Index >= 0 && int(d.Index) < len(db.ingredients)
	db.mu.Unlock()
	if !known {
		return d.String()
	}
	ing := db.ingredientAt(d.Index)
	return ing.name() + "(" + ing.debugKey(d.Key) + ")"
}

// cycleErrorFor builds a CycleError with resolved names for the given
// stack-order cycle.
func (db *Database) cycleErrorFor(cycle []QueryDescriptor) CycleError {
	names := make([]string, len(cycle))
	for i, d := range cycle {
		names[i] = db.describe(d)
	}
	return CycleError{Cycle: cycle, names: names}
}

// waitsFor records that waiter is blocked on holder's in-progress
// computation, and reports whether doing so would close a cycle
// (holder, transitively via the wait graph, is itself waiting on
// waiter). Must be called before parking on a slot's done channel.
//
// This is a best-effort approximation of §5's "the active-query
// stacks of all threads are introspectable by the runtime": Go gives
// no cheap way to walk another goroutine's call stack, so cross-session
// cycles are detected only through this explicit waiter->holder edge
// map, not by inspecting the other session's actual in-progress query
// stack. It catches every cycle that actually blocks (A waits on B
// waits on A), which is the deadlock this check exists to prevent; it
// cannot catch a cycle that never causes blocking in the first place.
func (db *Database) waitsFor(waiter, holder *Session) (cycle bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for cur := holder; cur != nil; cur = db.waitFor[cur] {
		if cur == waiter {
			return true
		}
	}
	db.waitFor[waiter] = holder
	return false
}

func (db *Database) doneWaiting(waiter *Session) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.waitFor, waiter)
}

// Sweep implements the opt-in eviction policy of §4.7: it asks every
// ingredient to drop entries whose verified_at lags the current
// revision by more than keep revisions. Evicting an entry never
// corrupts a dependent: the dependent still names the evicted
// (index, key) in its own dependency list, so the next validation
// pass simply re-executes it instead of finding it cached - at worst
// a cache miss, never a wrong answer. Sweep never runs on its own; a
// user must call it explicitly, e.g. from a periodic maintenance
// task.
func (db *Database) Sweep(keep int) {
	current := db.revision.load()
	db.mu.Lock()
	ingredients := append([]ingredient(nil), db.ingredients...)
	db.mu.Unlock()
	for _, ing := range ingredients {
		if sweeper, ok := ing.(sweepable); ok {
			sweeper.sweep(current, keep)
		}
	}
}

// SweepDefault runs Sweep using the "runtime.sweep_keep_revisions"
// config value, for callers that want the maintenance task driven
// entirely by configuration rather than a call-site constant.
func (db *Database) SweepDefault() {
	db.Sweep(db.cfg.GetInt("runtime.sweep_keep_revisions"))
}

// sweepable is implemented by storages that support eviction.
type sweepable interface {
	sweep(current Revision, keep int)
}
