// Package demo is a small on-demand expression-language front end used
// to exercise every storage flavor the engine provides. It plays the
// same role here that the grammar/parsing pipeline plays in the
// teacher repo: the thing the query system actually sits underneath.
package demo

import "github.com/clarete/incremental"

// FilePath names a unit of source text, the key of the Source query.
type FilePath string

// NewSourceQuery declares the input query holding raw expression-language
// source text, one file per key. Nothing in this package computes
// it - callers populate it with incremental.Set before fetching
// anything downstream, the way a file-content input is populated from
// a loader before any parse query runs.
func NewSourceQuery(db *incremental.Database) *incremental.Query[FilePath, string] {
	return incremental.NewInputQuery[FilePath, string](db, "Source")
}
