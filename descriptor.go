package incremental

import "fmt"

// IngredientIndex tags a query type within a database. It plays the
// role the source's trait-object table plays: a stable handle the
// engine can use to look up the capability set of a query's storage
// (maybeChangedAfter, debugging, accumulation) without knowing the
// query's concrete key/value types.
type IngredientIndex int

// QueryDescriptor is the tagged sum over all declared queries: an
// ingredient index paired with that query's key. It is used wherever
// the engine must refer to a query abstractly - dependency lists,
// cycle reports, accumulator lookups. It is comparable so it can be
// used as a map key and stored in dependency sets directly.
type QueryDescriptor struct {
	Index IngredientIndex
	Key   any
}

// String renders a descriptor using its own index; callers that want
// the query's human name should prefer Database.describe, which
// resolves through the ingredient's debugKey.
func (d QueryDescriptor) String() string {
	return fmt.Sprintf("ingredient#%d(%v)", d.Index, d.Key)
}
