package incremental

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// sessionID identifies a Session for event-hook diagnostics.
type sessionID = uuid.UUID

func newSessionID() sessionID { return uuid.New() }

// Session is a handle onto a Database: either the top-level,
// read-write handle returned by Database.Top, or a read-only
// Snapshot obtained from another Session. Each Session owns its own
// active-query stack (§4.2) and is not safe to drive from more than
// one goroutine concurrently - that is exactly what Snapshot is for:
// hand a fresh Session to another goroutine instead of sharing one.
type Session struct {
	id       sessionID
	db       *Database
	stack    *queryStack
	snapshot bool
	closed   atomic.Bool
}

// ID returns the session's identity, stable for its lifetime.
func (s *Session) ID() sessionID { return s.id }

// Database returns the shared runtime backing this session.
func (s *Session) Database() *Database { return s.db }

// IsSnapshot reports whether this session is a read-only snapshot.
func (s *Session) IsSnapshot() bool { return s.snapshot }

// CurrentRevision returns the revision this session currently
// observes. Stable for the lifetime of a snapshot; may advance on a
// top-level session between fetches.
func (s *Session) CurrentRevision() Revision { return s.db.revision.load() }

// Snapshot takes a read-only handle sharing this session's storage
// and revision counter, suitable for moving to another goroutine for
// parallel read-only query execution (§4.6). It is a usage error to
// snapshot from within an executing query.
func (s *Session) Snapshot() *Session {
	if s.stack.depth() > 0 {
		panic(MisuseError{Op: "Snapshot", Message: "cannot snapshot from within an executing query"})
	}
	s.db.rw.RLock()
	snap := &Session{id: newSessionID(), db: s.db, stack: newQueryStack(), snapshot: true}
	s.db.registerSession(snap)
	return snap
}

// Close releases a session. For a snapshot this drops its read hold
// on the database, potentially unblocking a writer waiting in Set or
// NextRevision; it is idempotent but must not be called while one of
// its queries is still executing (that would only happen from a bug
// in the caller, since Close runs on the same goroutine driving the
// fetch tree).
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	if s.stack.depth() > 0 {
		panic(MisuseError{Op: "Close", Message: "dropping a session while one of its queries is still running"})
	}
	s.db.unregisterSession(s)
	if s.snapshot {
		s.db.rw.RUnlock()
	}
}

// NextRevision manually advances the revision counter, for testing
// and for signalling that externally observed volatile values may
// have changed. Only a top-level session may call it.
func (s *Session) NextRevision() {
	if s.snapshot {
		panic(MisuseError{Op: "NextRevision", Message: "snapshots cannot mutate the database"})
	}
	if s.stack.depth() > 0 {
		panic(MisuseError{Op: "NextRevision", Message: "cannot advance the revision while a query is executing"})
	}
	s.db.writeLocked(func() {
		s.db.revision.advance()
	})
}

// IsCurrentRevisionCanceled is the cooperative cancellation flag of
// §5: it becomes true for every outstanding session once a writer is
// waiting on the write lock, and resets once the writer proceeds.
func (s *Session) IsCurrentRevisionCanceled() bool {
	return s.db.cancel.Load()
}
