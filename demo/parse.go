package demo

import "github.com/clarete/incremental"

// newParseQuery declares the memoized query turning a file's raw
// source text into an Expr: a leaf query over an input, returning a
// parsed value plus any diagnostics, which downstream queries then
// read through Fetch without ever touching the source text directly.
//
// A parse failure is reported as an accumulated Diagnostic rather
// than folded into the returned value, since Expr has no error-node
// variant of its own - see ast.go.
func newParseQuery(db *incremental.Database, source *incremental.Query[FilePath, string]) *incremental.Query[FilePath, Expr] {
	return incremental.NewMemoizedQuery(db, "Parse", func(s *incremental.Session, key FilePath) (Expr, error) {
		text, err := incremental.Fetch(s, source, key)
		if err != nil {
			return Expr{}, err
		}
		expr, diags := parseExpr(key, text)
		for _, d := range diags {
			incremental.Accumulate(s, d)
		}
		return expr, nil
	})
}
