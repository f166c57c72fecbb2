package demo

import "github.com/clarete/incremental"

// Queries bundles every declared query against a single Database.
// They cannot be plain package-level variables: a Storage registers
// itself with one Database at construction time (§4.1), so each
// Database needs its own set of query handles rather than sharing a
// single global one.
type Queries struct {
	Source     *incremental.Query[FilePath, string]
	Parse      *incremental.Query[FilePath, Expr]
	Value      *incremental.Query[FilePath, float64]
	Length     *incremental.Query[FilePath, int]
	Half       *incremental.Query[FilePath, int]
	DoubleHalf *incremental.Query[FilePath, int]
	Ping       *incremental.Query[FilePath, int]
	Pong       *incremental.Query[FilePath, int]
	Pipeline   *Pipeline
	Normalized *incremental.Query[FilePath, string]
	// Describe is a memoized query wrapping Normalized, added purely
	// to exercise the interaction of a transparent query with a
	// memoized caller: Describe must validate against Parse (the
	// dependency Normalized forwards to it), not against Normalized
	// itself, which never has a cached entry of its own.
	Describe *incremental.Query[FilePath, string]

	Clock *incremental.Query[ClockKey, int64]
}

// NewQueries declares the full demo query set against db, and returns
// the LogicalClock backing the Clock query alongside it since that clock
// is mutated directly (Tick), not through Set.
func NewQueries(db *incremental.Database) (*Queries, *LogicalClock) {
	q := &Queries{}
	q.Source = NewSourceQuery(db)
	q.Parse = newParseQuery(db, q.Source)
	q.Value = newValueQuery(db, q.Parse)
	q.Length = newLengthQuery(db, q.Source)
	q.Half = newHalfQuery(db, q.Length)
	q.DoubleHalf = newDoubleHalfQuery(db, q.Half)
	q.Ping, q.Pong = newPingPongQueries(db, q.Source)
	q.Pipeline = newPipeline(db, q.Source)
	q.Normalized = newNormalizedQuery(db, q.Parse)
	q.Describe = incremental.NewMemoizedQuery(db, "Describe", func(s *incremental.Session, key FilePath) (string, error) {
		return incremental.Fetch(s, q.Normalized, key)
	})

	clock := &LogicalClock{}
	q.Clock = newClockQuery(db, clock)

	return q, clock
}
