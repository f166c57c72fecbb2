package demo

import "github.com/clarete/incremental"

// newValueQuery declares the memoized query that resolves an Expr to
// its numeric value, following ref chains by fetching the Value query
// again on the referenced file - so a cycle of refs surfaces through
// the engine's own cycle detection rather than blowing the Go stack.
func newValueQuery(db *incremental.Database, parse *incremental.Query[FilePath, Expr]) *incremental.Query[FilePath, float64] {
	var self *incremental.Query[FilePath, float64]
	self = incremental.NewMemoizedQuery(db, "Value", func(s *incremental.Session, key FilePath) (float64, error) {
		expr, err := incremental.Fetch(s, parse, key)
		if err != nil {
			return 0, err
		}
		if expr.IsRef {
			return incremental.Fetch(s, self, expr.Ref)
		}
		return expr.Literal, nil
	})
	return self
}

// newLengthQuery declares the memoized query returning a file's raw
// source length. It exists purely to set up the backdating chain
// below: two source texts of the same length produce the same
// Length result even when their contents differ.
func newLengthQuery(db *incremental.Database, source *incremental.Query[FilePath, string]) *incremental.Query[FilePath, int] {
	return incremental.NewMemoizedQuery(db, "Length", func(s *incremental.Session, key FilePath) (int, error) {
		text, err := incremental.Fetch(s, source, key)
		if err != nil {
			return 0, err
		}
		return len(text), nil
	})
}

// newHalfQuery and newDoubleHalfQuery form the backdating demonstration:
// editing a source file so its length keeps the same floor(len/2)
// leaves Half's value unchanged. Half's changed_at is then left at
// its old revision (it backdates), and DoubleHalf, which only depends
// on Half, is confirmed Valid on the next fetch
// without its own executor ever running again.
func newHalfQuery(db *incremental.Database, length *incremental.Query[FilePath, int]) *incremental.Query[FilePath, int] {
	return incremental.NewMemoizedQuery(db, "Half", func(s *incremental.Session, key FilePath) (int, error) {
		n, err := incremental.Fetch(s, length, key)
		if err != nil {
			return 0, err
		}
		return n / 2, nil
	})
}

func newDoubleHalfQuery(db *incremental.Database, half *incremental.Query[FilePath, int]) *incremental.Query[FilePath, int] {
	return incremental.NewMemoizedQuery(db, "DoubleHalf", func(s *incremental.Session, key FilePath) (int, error) {
		h, err := incremental.Fetch(s, half, key)
		if err != nil {
			return 0, err
		}
		return h * 2, nil
	})
}
