// Package predicates implements the naming grammar for search parameters:
// it splits a flat key such as "comments_created_at_greater_than" into an
// association path, a terminal attribute (or _or_ union of attributes), and
// a comparison predicate, and coerces the parameter value to the column's
// declared type.
//
// Matching is longest-suffix over a fixed predicate table, so
// "greater_than_or_equal_to" is never mis-split as "greater_than". Parse
// results depend only on the static schema and are memoized; authorization
// is deliberately kept out of this package because it varies per search
// context.
package predicates
