package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/paneq/meta-search/pkg/observability"
	"github.com/paneq/meta-search/pkg/predicates"
	"github.com/paneq/meta-search/pkg/schema"
)

// Dialect selects the placeholder style of the backing database.
type Dialect int

const (
	// DialectSQLite uses ? placeholders (also fits MySQL).
	DialectSQLite Dialect = iota
	// DialectPostgres uses $1, $2, ... placeholders.
	DialectPostgres
)

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Option configures the SQL executor.
type Option func(*SQLExecutor)

// WithResultCache serves repeated identical queries from a Redis-backed
// result cache.
func WithResultCache(cache *ResultCache) Option {
	return func(e *SQLExecutor) { e.cache = cache }
}

// WithLogger sets the executor's logger.
func WithLogger(logger *observability.Logger) Option {
	return func(e *SQLExecutor) { e.logger = logger }
}

// WithMetrics instruments query execution.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *SQLExecutor) { e.metrics = metrics }
}

// SQLExecutor materializes queries against a database/sql connection pool.
type SQLExecutor struct {
	db      *sql.DB
	dialect Dialect
	cache   *ResultCache
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewSQL creates a SQL executor for the given pool and dialect.
func NewSQL(db *sql.DB, dialect Dialect, opts ...Option) *SQLExecutor {
	e := &SQLExecutor{
		db:      db,
		dialect: dialect,
		logger:  observability.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Select compiles and runs the query, returning the matching rows.
func (e *SQLExecutor) Select(ctx context.Context, q Query) ([]Row, error) {
	stmt, args, err := e.compileSelect(q)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "metasearch.executor.select",
		attribute.String("entity", q.Root.Name),
		attribute.String("db.statement", stmt),
	)

	if e.cache != nil {
		if rows, ok := e.cache.GetRows(ctx, stmt, args); ok {
			e.countCache(true)
			observability.EndSpan(span, nil)
			return rows, nil
		}
		e.countCache(false)
	}

	start := time.Now()
	rows, err := e.queryRows(ctx, stmt, args)
	e.observeQuery(q.Root.Name, "select", start, err)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.SetRows(ctx, stmt, args, rows)
	}
	return rows, nil
}

// Count compiles and runs the counting form of the query. Pagination is
// ignored: the count covers every matching record.
func (e *SQLExecutor) Count(ctx context.Context, q Query) (int64, error) {
	stmt, args, err := e.compileCount(q)
	if err != nil {
		return 0, err
	}

	ctx, span := observability.StartSpan(ctx, "metasearch.executor.count",
		attribute.String("entity", q.Root.Name),
		attribute.String("db.statement", stmt),
	)

	if e.cache != nil {
		if n, ok := e.cache.GetCount(ctx, stmt, args); ok {
			e.countCache(true)
			observability.EndSpan(span, nil)
			return n, nil
		}
		e.countCache(false)
	}

	start := time.Now()
	var n int64
	err = e.db.QueryRowContext(ctx, stmt, args...).Scan(&n)
	e.observeQuery(q.Root.Name, "count", start, err)
	observability.EndSpan(span, err)
	if err != nil {
		return 0, err
	}

	if e.cache != nil {
		e.cache.SetCount(ctx, stmt, args, n)
	}
	return n, nil
}

func (e *SQLExecutor) queryRows(ctx context.Context, stmt string, args []any) ([]Row, error) {
	rs, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rs.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

func (e *SQLExecutor) observeQuery(entity, operation string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.QueryDuration.WithLabelValues(entity, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.QueryErrorsTotal.WithLabelValues(entity, operation).Inc()
	}
}

func (e *SQLExecutor) countCache(hit bool) {
	if e.metrics == nil {
		return
	}
	if hit {
		e.metrics.CacheHitsTotal.WithLabelValues("result").Inc()
	} else {
		e.metrics.CacheMissesTotal.WithLabelValues("result").Inc()
	}
}

// compiler accumulates the WHERE clause, joins and bound arguments for one
// statement. Placeholder numbering is sequential across the statement.
type compiler struct {
	dialect Dialect
	root    *schema.EntityType

	joins      []string
	aliases    map[string]string // path key -> table alias
	aliasCount int

	conds []string
	args  []any
}

func newCompiler(dialect Dialect, root *schema.EntityType) *compiler {
	return &compiler{
		dialect: dialect,
		root:    root,
		aliases: map[string]string{"": "t0"},
	}
}

func (c *compiler) placeholder() string {
	return c.dialect.placeholder(len(c.args))
}

// aliasFor resolves the table alias for an association path, adding the
// necessary joins the first time a path prefix is seen. Paths were already
// validated during parsing, so a dangling association is an internal error.
func (c *compiler) aliasFor(path []string) (string, error) {
	entity := c.root
	key := ""
	alias := "t0"

	for _, assocName := range path {
		assoc, ok := entity.Association(assocName)
		if !ok {
			return "", fmt.Errorf("entity type %s has no association %q", entity.Name, assocName)
		}

		parentAlias := alias
		if key == "" {
			key = assocName
		} else {
			key = key + "." + assocName
		}

		if existing, ok := c.aliases[key]; ok {
			alias = existing
		} else {
			c.aliasCount++
			alias = fmt.Sprintf("t%d", c.aliasCount)
			c.aliases[key] = alias
			c.joins = append(c.joins, fmt.Sprintf("JOIN %s AS %s ON %s.%s = %s.%s",
				assoc.Target.Table, alias,
				parentAlias, assoc.OwnerColumn,
				alias, assoc.TargetColumn))
		}
		entity = assoc.Target
	}
	return alias, nil
}

func (c *compiler) addClause(clause predicates.Clause) error {
	if clause.Raw != "" {
		return c.addRawClause(clause)
	}

	alias, err := c.aliasFor(clause.Path)
	if err != nil {
		return err
	}

	parts := make([]string, 0, len(clause.Attributes))
	for _, attr := range clause.Attributes {
		expr, err := c.comparison(alias, attr, clause)
		if err != nil {
			return err
		}
		parts = append(parts, expr)
	}

	if len(parts) == 1 {
		c.conds = append(c.conds, parts[0])
	} else {
		c.conds = append(c.conds, "("+strings.Join(parts, " OR ")+")")
	}
	return nil
}

func (c *compiler) comparison(alias, attr string, clause predicates.Clause) (string, error) {
	pred := clause.Predicate
	col := fmt.Sprintf("%s.%s", alias, attr)

	switch {
	case pred.Unary:
		return fmt.Sprintf("%s %s", col, pred.Operator), nil

	case pred.Fixed != nil:
		c.args = append(c.args, pred.Fixed)
		return fmt.Sprintf("%s %s %s", col, pred.Operator, c.placeholder()), nil

	case pred.Operator == "IN" || pred.Operator == "NOT IN":
		values, ok := clause.Value.([]any)
		if !ok || len(values) == 0 {
			return "", fmt.Errorf("predicate %s on %s requires a value list", pred.Name, attr)
		}
		placeholders := make([]string, 0, len(values))
		for _, v := range values {
			c.args = append(c.args, v)
			placeholders = append(placeholders, c.placeholder())
		}
		return fmt.Sprintf("%s %s (%s)", col, pred.Operator, strings.Join(placeholders, ", ")), nil

	default:
		value := clause.Value
		if pred.Format != "" {
			value = fmt.Sprintf(pred.Format, value)
		}
		c.args = append(c.args, value)
		return fmt.Sprintf("%s %s %s", col, pred.Operator, c.placeholder()), nil
	}
}

// addRawClause splices a custom search method fragment into the WHERE
// clause. Fragments use ? placeholders regardless of dialect and reference
// root columns unqualified; both are rewritten here.
func (c *compiler) addRawClause(clause predicates.Clause) error {
	var b strings.Builder
	bound := 0
	for _, r := range clause.Raw {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		if bound >= len(clause.Args) {
			return fmt.Errorf("raw clause %q has more placeholders than arguments", clause.Raw)
		}
		c.args = append(c.args, clause.Args[bound])
		bound++
		b.WriteString(c.placeholder())
	}
	if bound != len(clause.Args) {
		return fmt.Errorf("raw clause %q binds %d of %d arguments", clause.Raw, bound, len(clause.Args))
	}
	c.conds = append(c.conds, "("+b.String()+")")
	return nil
}

func (c *compiler) addSort(s predicates.SortSpec) (string, error) {
	alias, err := c.aliasFor(s.Path)
	if err != nil {
		return "", err
	}
	direction := "ASC"
	if s.Descending {
		direction = "DESC"
	}
	return fmt.Sprintf("%s.%s %s", alias, s.Attribute, direction), nil
}

func (e *SQLExecutor) compileSelect(q Query) (string, []any, error) {
	c := newCompiler(e.dialect, q.Root)

	for _, clause := range q.Clauses {
		if err := c.addClause(clause); err != nil {
			return "", nil, err
		}
	}
	orders := make([]string, 0, len(q.Sorts))
	for _, s := range q.Sorts {
		order, err := c.addSort(s)
		if err != nil {
			return "", nil, err
		}
		orders = append(orders, order)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	// Joining one-to-many associations can multiply root rows.
	if len(c.joins) > 0 {
		b.WriteString("DISTINCT ")
	}
	fmt.Fprintf(&b, "t0.* FROM %s AS t0", q.Root.Table)
	for _, join := range c.joins {
		b.WriteString(" ")
		b.WriteString(join)
	}
	if len(c.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(c.conds, " AND "))
	}
	if len(orders) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orders, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}

	return b.String(), c.args, nil
}

func (e *SQLExecutor) compileCount(q Query) (string, []any, error) {
	c := newCompiler(e.dialect, q.Root)

	for _, clause := range q.Clauses {
		if err := c.addClause(clause); err != nil {
			return "", nil, err
		}
	}
	// Sorts only force joins; the order itself is irrelevant to a count.
	for _, s := range q.Sorts {
		if _, err := c.addSort(s); err != nil {
			return "", nil, err
		}
	}

	var b strings.Builder
	if len(c.joins) > 0 {
		fmt.Fprintf(&b, "SELECT COUNT(DISTINCT t0.%s) FROM %s AS t0", q.Root.PrimaryKey(), q.Root.Table)
	} else {
		fmt.Fprintf(&b, "SELECT COUNT(*) FROM %s AS t0", q.Root.Table)
	}
	for _, join := range c.joins {
		b.WriteString(" ")
		b.WriteString(join)
	}
	if len(c.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(c.conds, " AND "))
	}

	return b.String(), c.args, nil
}
