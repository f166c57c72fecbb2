package demo

import (
	"strings"

	"github.com/clarete/incremental"
)

// newPipeline declares three chained memoized stages over source
// text: each stage Fetches only the one before it, so a change to
// source text only forces re-validation down the chain, not a flat
// re-run of every stage from scratch.
type Pipeline struct {
	Trimmed *incremental.Query[FilePath, string]
	Upper   *incremental.Query[FilePath, string]
	Wrapped *incremental.Query[FilePath, string]
}

func newPipeline(db *incremental.Database, source *incremental.Query[FilePath, string]) *Pipeline {
	trimmed := incremental.NewMemoizedQuery(db, "Trimmed", func(s *incremental.Session, key FilePath) (string, error) {
		text, err := incremental.Fetch(s, source, key)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			incremental.Accumulate(s, Diagnostic{File: key, Message: "source is blank"})
		}
		return strings.TrimSpace(text), nil
	})

	upper := incremental.NewMemoizedQuery(db, "Upper", func(s *incremental.Session, key FilePath) (string, error) {
		text, err := incremental.Fetch(s, trimmed, key)
		if err != nil {
			return "", err
		}
		return strings.ToUpper(text), nil
	})

	wrapped := incremental.NewMemoizedQuery(db, "Wrapped", func(s *incremental.Session, key FilePath) (string, error) {
		text, err := incremental.Fetch(s, upper, key)
		if err != nil {
			return "", err
		}
		return "[" + text + "]", nil
	})

	return &Pipeline{Trimmed: trimmed, Upper: upper, Wrapped: wrapped}
}

// Diagnostics returns every Diagnostic accumulated while computing
// p.Wrapped(key) - both its own (none; Wrapped never accumulates
// directly) and those of every stage it transitively depends on,
// gathered via the dependency walk in accumulator.go.
func (p *Pipeline) Diagnostics(s *incremental.Session, key FilePath) []Diagnostic {
	return incremental.ReadAccumulated[Diagnostic](s, p.Wrapped.Descriptor(key))
}
