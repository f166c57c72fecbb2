package demo

import "github.com/clarete/incremental"

// PingKey/PongKey are shared across both queries below purely so the
// demo can force a cycle on demand: fetching Ping(k) for a key whose
// text says "pong" makes it fetch Pong(k), which fetches Ping(k)
// right back, closing the cycle the engine detects via
// the active-query stack (§4.2) rather than by recursing forever.

// newPingPongQueries declares two mutually recursive memoized queries
// over the same FilePath keyspace, each falling back to -1 via
// WithRecover when the engine reports that completing the fetch would
// close a cycle - the minimal realization of §4.5's recovery hook.
func newPingPongQueries(db *incremental.Database, source *incremental.Query[FilePath, string]) (ping, pong *incremental.Query[FilePath, int]) {
	var pingQ, pongQ *incremental.Query[FilePath, int]

	pingQ = incremental.NewMemoizedQuery(db, "Ping",
		func(s *incremental.Session, key FilePath) (int, error) {
			text, err := incremental.Fetch(s, source, key)
			if err != nil {
				return 0, err
			}
			if text == "pong" {
				v, err := incremental.Fetch(s, pongQ, key)
				return v + 1, err
			}
			return 0, nil
		},
		incremental.WithRecover[FilePath, int](func(FilePath) int { return -1 }),
	)

	pongQ = incremental.NewMemoizedQuery(db, "Pong",
		func(s *incremental.Session, key FilePath) (int, error) {
			v, err := incremental.Fetch(s, pingQ, key)
			return v + 1, err
		},
		incremental.WithRecover[FilePath, int](func(FilePath) int { return -1 }),
	)

	return pingQ, pongQ
}
