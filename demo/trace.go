package demo

import (
	"fmt"

	"github.com/clarete/incremental"
)

// newNormalizedQuery declares a transparent query: it formats a
// human-readable rendering of a file's parsed expression, re-running
// its executor on every fetch rather than caching a slot the way
// Parse does. It exists to exercise FlavorTransparent end to end: the
// reads it performs while formatting (Fetch of parse) are attributed
// to whichever query calls Normalized, not to Normalized itself, since
// a transparent query never has an entry of its own to attach a
// dependency record to.
func newNormalizedQuery(db *incremental.Database, parse *incremental.Query[FilePath, Expr]) *incremental.Query[FilePath, string] {
	return incremental.NewTransparentQuery(db, "Normalized", func(s *incremental.Session, key FilePath) (string, error) {
		expr, err := incremental.Fetch(s, parse, key)
		if err != nil {
			return "", err
		}
		if expr.IsRef {
			return fmt.Sprintf("ref:%s", expr.Ref), nil
		}
		return fmt.Sprintf("%g", expr.Literal), nil
	})
}
