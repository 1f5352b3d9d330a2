package executor

import (
	"context"

	"github.com/paneq/meta-search/pkg/predicates"
	"github.com/paneq/meta-search/pkg/schema"
)

// Row is one result record, keyed by column name.
type Row map[string]any

// Query is the backend-independent form of a built search: the root entity,
// the accumulated predicate clauses (always ANDed together), the sort order
// and the pagination window.
type Query struct {
	Root    *schema.EntityType
	Clauses []predicates.Clause
	Sorts   []predicates.SortSpec
	Limit   int
	Offset  int
}

// Executor materializes queries against a backing store. Errors returned
// from the store are propagated to the caller as-is so that callers can
// inspect driver-specific error values.
type Executor interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Count(ctx context.Context, q Query) (int64, error)
}
