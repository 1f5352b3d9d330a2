// Package builder is the entry point for running searches. A Dispatch
// holds the process-wide state: registry bindings, the key parser and a
// lazily populated, never-evicted cache of per-entity builder types.
//
// Searches are lazy and single-use:
//
//	s := builder.Search(article, builder.Params{
//	    "title_contains":             "go",
//	    "comments_author_name_equals": "alice",
//	    "sorts":                      "created_at.desc",
//	    "limit":                      25,
//	}, builder.WithSearchContext(registry.SearchContext{"role": "admin"}))
//
//	rows, err := s.All(ctx)
//
// Creating a search does nothing. Building it resolves and authorizes the
// parameters, silently dropping anything unknown, unauthorized, blank or
// uncoercible. Materializing it executes exactly one query per operation
// and caches the result; a materialized search can no longer be rebuilt.
package builder
