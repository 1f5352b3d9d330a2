// Package executor turns built searches into SQL and runs them. The SQL
// executor resolves association paths into table joins with stable aliases,
// compiles predicate clauses into a parameterized WHERE clause for the
// configured dialect, and optionally serves repeated queries from a Redis
// result cache. Store errors pass through untouched.
package executor
