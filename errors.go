package incremental

import (
	"fmt"
	"strings"
)

// CycleError is raised when a fetch chain revisits a query that is
// already active on the same session, or when two sessions would
// deadlock waiting on each other's in-progress computations. Cycle
// is the simple cycle starting at the repeated descriptor, in stack
// order (§4.2, §4.5). In the cross-session case Cycle holds only the
// descriptor whose in-progress slot the waiting session would have
// blocked on.
type CycleError struct {
	Cycle []QueryDescriptor
	names []string
}

// Error returns the human readable representation of a cycle error.
func (e CycleError) Error() string {
	if len(e.names) == len(e.Cycle) {
		return fmt.Sprintf("cycle detected: %s", strings.Join(e.names, " -> "))
	}
	parts := make([]string, len(e.Cycle))
	for i, d := range e.Cycle {
		parts[i] = d.String()
	}
	return fmt.Sprintf("cycle detected: %s", strings.Join(parts, " -> "))
}

// MisuseError reports a fatal API misuse: setting an input while a
// query is executing, snapshotting from inside a query, or dropping a
// snapshot while one of its queries is still running (§7).
type MisuseError struct {
	Op      string
	Message string
}

// Error returns the human readable representation of a misuse error.
func (e MisuseError) Error() string {
	return fmt.Sprintf("incremental: misuse in %s: %s", e.Op, e.Message)
}

// IsCycleError reports whether err is a CycleError, for callers that
// want to distinguish "this query has no recovery function and its
// cycle surfaced as an error" from any other failure.
func IsCycleError(err error) bool {
	_, ok := err.(CycleError)
	return ok
}
