package builder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/paneq/meta-search/pkg/executor"
	"github.com/paneq/meta-search/pkg/predicates"
	"github.com/paneq/meta-search/pkg/registry"
	"github.com/paneq/meta-search/pkg/schema"
)

// ErrMaterialized is returned by Build once a search has executed. A
// materialized search is frozen; start a new one to search again.
var ErrMaterialized = errors.New("search already materialized")

// ErrNoExecutor is returned when a search is materialized on a dispatch
// configured without an executor.
var ErrNoExecutor = errors.New("no executor configured")

// Params are the raw search parameters, typically decoded from a query
// string or request body. Keys that do not resolve to an authorized
// attribute, association path or search method are silently dropped.
type Params map[string]any

// Reserved parameter keys handled by the builder itself rather than
// resolved against the entity schema.
const (
	keyLimit  = "limit"
	keyOffset = "offset"
	keySorts  = "sorts"
)

// Drop reasons reported by DroppedParams and the params_dropped metric.
const (
	DropUnknown      = "unknown"
	DropUnauthorized = "unauthorized"
	DropBlank        = "blank"
	DropInvalid      = "invalid"
)

// DroppedParam records one ignored parameter and why it was ignored.
type DroppedParam struct {
	Key    string
	Reason string
}

// SearchOption configures a single search.
type SearchOption func(*Builder)

// WithSearchContext supplies the request context authorization predicates
// are evaluated against.
func WithSearchContext(ctx registry.SearchContext) SearchOption {
	return func(b *Builder) { b.searchCtx = ctx }
}

// WithSearchKeyName overrides the parameter namespace name carried for
// downstream link renderers. The builder itself never consults it.
func WithSearchKeyName(name string) SearchOption {
	return func(b *Builder) { b.searchKeyName = name }
}

// BuilderType is the cached per-entity search constructor. One instance
// exists per entity type per dispatch, created on first use.
type BuilderType struct {
	dispatch *Dispatch
	entity   *schema.EntityType
}

func newBuilderType(d *Dispatch, entity *schema.EntityType) *BuilderType {
	return &BuilderType{dispatch: d, entity: entity}
}

// Entity returns the entity type this builder type searches.
func (bt *BuilderType) Entity() *schema.EntityType { return bt.entity }

// New creates an unbuilt search over the builder type's entity. The
// parameter map is copied; later Build calls never mutate the caller's map.
func (bt *BuilderType) New(params Params, opts ...SearchOption) *Builder {
	copied := make(Params, len(params))
	for key, value := range params {
		copied[key] = value
	}
	b := &Builder{
		typ:      bt,
		params:   copied,
		resolved: make(map[string]struct{}),
		state:    StateUnbuilt,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State is the builder lifecycle phase.
type State int

const (
	// StateUnbuilt: parameters held raw, nothing resolved.
	StateUnbuilt State = iota
	// StateBuilt: parameters resolved and authorized into clauses.
	StateBuilt
	// StateMaterialized: the query has executed; results are cached.
	StateMaterialized
)

// Builder is a lazy, single-use search. It accumulates raw parameters,
// resolves them into predicate clauses on Build (or on first
// materialization), and caches results after executing. A builder is safe
// for concurrent use; materialization executes at most one query per
// operation.
type Builder struct {
	typ           *BuilderType
	params        Params
	searchCtx     registry.SearchContext
	searchKeyName string

	mu       sync.Mutex
	state    State
	resolved map[string]struct{}
	clauses  []predicates.Clause
	sorts    []predicates.SortSpec
	limit    int
	offset   int
	dropped  []DroppedParam

	rows        []executor.Row
	rowsLoaded  bool
	count       int64
	countLoaded bool
}

// Entity returns the entity type being searched.
func (b *Builder) Entity() *schema.EntityType { return b.typ.entity }

// SearchKeyName returns the naming override set via WithSearchKeyName, or
// "" when none was given.
func (b *Builder) SearchKeyName() string { return b.searchKeyName }

// State returns the current lifecycle phase.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Build resolves the raw parameters into clauses: reserved keys are
// extracted, search methods dispatched, remaining keys parsed against the
// schema and authorized against the search context. Unknown, unauthorized,
// blank and uncoercible parameters are silently dropped.
//
// Build is re-entrant: additional parameter maps accumulate further
// clauses, and a key already resolved by an earlier call is skipped, so
// Build(Params{"a": 1}) followed by Build(Params{"b": 2}) matches a single
// Build over both keys. Once the search has executed, Build returns
// ErrMaterialized.
func (b *Builder) Build(extra ...Params) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateMaterialized {
		return ErrMaterialized
	}
	for _, params := range extra {
		for key, value := range params {
			if _, done := b.resolved[key]; !done {
				b.params[key] = value
			}
		}
	}
	return b.buildLocked()
}

func (b *Builder) buildLocked() error {
	if b.state == StateMaterialized {
		return ErrMaterialized
	}

	// Deterministic clause order regardless of map iteration.
	keys := make([]string, 0, len(b.params))
	for key := range b.params {
		if _, done := b.resolved[key]; !done {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if b.state == StateBuilt && len(keys) == 0 {
		return nil
	}

	start := time.Now()
	d := b.typ.dispatch
	rootReg := d.RegistryFor(b.typ.entity)

	for _, key := range keys {
		value := b.params[key]
		b.resolved[key] = struct{}{}

		switch key {
		case keyLimit:
			b.limit = b.intParam(key, value)
			continue
		case keyOffset:
			b.offset = b.intParam(key, value)
			continue
		case keySorts:
			b.applySorts(value)
			continue
		}

		if blank(value) {
			b.drop(key, DropBlank)
			continue
		}

		if _, registered := rootReg.Method(key); registered {
			method, ok := d.evaluator.MethodAuthorized(rootReg, key, b.searchCtx)
			if !ok {
				b.drop(key, DropUnauthorized)
				continue
			}
			clause, err := method.Apply(value)
			if err != nil {
				return fmt.Errorf("failed to apply search method %q: %w", key, err)
			}
			b.accept(key, "method", clause)
			continue
		}

		parsed, ok := d.parser.Parse(b.typ.entity, key)
		if !ok {
			b.drop(key, DropUnknown)
			continue
		}
		if !b.authorizedPath(parsed) {
			b.drop(key, DropUnauthorized)
			continue
		}

		clause, ok := b.clauseFor(key, parsed, value)
		if !ok {
			continue
		}
		b.accept(key, "predicate", clause)
	}

	b.state = StateBuilt
	if d.metrics != nil {
		d.metrics.BuildsTotal.WithLabelValues(b.typ.entity.Name).Inc()
		d.metrics.BuildDuration.WithLabelValues(b.typ.entity.Name).Observe(time.Since(start).Seconds())
	}
	return nil
}

// authorizedPath checks every association hop against the registry of the
// entity owning it, and every terminal attribute against the terminal
// entity's registry. One unauthorized segment drops the whole parameter.
func (b *Builder) authorizedPath(parsed predicates.Parsed) bool {
	d := b.typ.dispatch
	entity := b.typ.entity

	for _, assocName := range parsed.Path {
		reg := d.RegistryFor(entity)
		if !d.evaluator.AssociationAuthorized(reg, assocName, b.searchCtx) {
			return false
		}
		assoc, ok := entity.Association(assocName)
		if !ok {
			return false
		}
		entity = assoc.Target
	}

	terminalReg := d.RegistryFor(parsed.Entity)
	for _, attr := range parsed.Attributes {
		if !d.evaluator.AttributeAuthorized(terminalReg, attr, b.searchCtx) {
			return false
		}
	}
	return true
}

// clauseFor converts an accepted key and value into a clause, handling
// toggle predicates and value coercion. Returns false when the parameter
// must be dropped instead.
func (b *Builder) clauseFor(key string, parsed predicates.Parsed, value any) (predicates.Clause, bool) {
	pred := parsed.Predicate

	if !pred.NeedsValue() {
		if !predicates.Truthy(value) {
			b.drop(key, DropBlank)
			return predicates.Clause{}, false
		}
		return predicates.Clause{
			Path:       parsed.Path,
			Attributes: parsed.Attributes,
			Predicate:  pred,
		}, true
	}

	col, ok := parsed.Entity.Column(parsed.Attributes[0])
	if !ok {
		b.drop(key, DropUnknown)
		return predicates.Clause{}, false
	}
	coerced, err := predicates.Coerce(col, pred, value)
	if err != nil {
		b.typ.dispatch.logger.WithError(err).
			WithField("key", key).
			Debug("dropping uncoercible search parameter")
		b.drop(key, DropInvalid)
		return predicates.Clause{}, false
	}

	return predicates.Clause{
		Path:       parsed.Path,
		Attributes: parsed.Attributes,
		Predicate:  pred,
		Value:      coerced,
	}, true
}

// applySorts resolves the reserved sorts parameter, accepting a single
// value or a list. Unauthorized or unresolvable entries are dropped.
func (b *Builder) applySorts(value any) {
	var entries []string
	switch v := value.(type) {
	case string:
		entries = []string{v}
	case []string:
		entries = v
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				entries = append(entries, s)
			}
		}
	default:
		b.drop(keySorts, DropInvalid)
		return
	}

	d := b.typ.dispatch
	for _, entry := range entries {
		spec, ok := d.parser.ParseSort(b.typ.entity, entry)
		if !ok {
			b.drop(keySorts+":"+entry, DropUnknown)
			continue
		}
		parsed := predicates.Parsed{
			Path:       spec.Path,
			Entity:     spec.Entity,
			Attributes: []string{spec.Attribute},
		}
		if !b.authorizedPath(parsed) {
			b.drop(keySorts+":"+entry, DropUnauthorized)
			continue
		}
		b.sorts = append(b.sorts, spec)
	}
}

func (b *Builder) intParam(key string, value any) int {
	switch v := value.(type) {
	case int:
		if v >= 0 {
			return v
		}
	case int64:
		if v >= 0 {
			return int(v)
		}
	case float64:
		if v >= 0 {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	b.drop(key, DropInvalid)
	return 0
}

func (b *Builder) accept(key, kind string, clause predicates.Clause) {
	b.clauses = append(b.clauses, clause)
	d := b.typ.dispatch
	d.logger.WithFields(map[string]interface{}{
		"entity": b.typ.entity.Name,
		"key":    key,
		"kind":   kind,
	}).Debug("accepted search parameter")
	if d.metrics != nil {
		d.metrics.ParamsAcceptedTotal.WithLabelValues(b.typ.entity.Name, kind).Inc()
	}
}

func (b *Builder) drop(key, reason string) {
	b.dropped = append(b.dropped, DroppedParam{Key: key, Reason: reason})
	d := b.typ.dispatch
	d.logger.WithFields(map[string]interface{}{
		"entity": b.typ.entity.Name,
		"key":    key,
		"reason": reason,
	}).Debug("dropped search parameter")
	if d.metrics != nil {
		d.metrics.ParamsDroppedTotal.WithLabelValues(b.typ.entity.Name, reason).Inc()
	}
}

// blank reports whether a parameter value carries no usable content.
// Blank values mean "this form field was left empty", not "match empty".
func blank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}

// Clauses returns the resolved clauses, building first if needed.
func (b *Builder) Clauses() ([]predicates.Clause, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateUnbuilt {
		if err := b.buildLocked(); err != nil {
			return nil, err
		}
	}
	out := make([]predicates.Clause, len(b.clauses))
	copy(out, b.clauses)
	return out, nil
}

// DroppedParams returns the parameters ignored during build, with reasons.
// Useful for debugging; the search API itself never reports them.
func (b *Builder) DroppedParams() []DroppedParam {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DroppedParam, len(b.dropped))
	copy(out, b.dropped)
	return out
}

// All builds the search if necessary, executes it and returns the matching
// rows. The first call freezes the builder; repeated calls return the
// cached result without touching the store. Store errors pass through
// untouched.
func (b *Builder) All(ctx context.Context) ([]executor.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rowsLoaded {
		return b.rows, nil
	}
	if err := b.prepareLocked(); err != nil {
		return nil, err
	}

	rows, err := b.typ.dispatch.executor.Select(ctx, b.queryLocked())
	if err != nil {
		return nil, err
	}

	b.rows = rows
	b.rowsLoaded = true
	b.markMaterialized("select")
	return rows, nil
}

// Count builds the search if necessary and returns the number of matching
// records, ignoring pagination. The count is computed once and cached.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.countLoaded {
		return b.count, nil
	}
	if err := b.prepareLocked(); err != nil {
		return 0, err
	}

	n, err := b.typ.dispatch.executor.Count(ctx, b.queryLocked())
	if err != nil {
		return 0, err
	}

	b.count = n
	b.countLoaded = true
	b.markMaterialized("count")
	return n, nil
}

func (b *Builder) prepareLocked() error {
	if b.typ.dispatch.executor == nil {
		return ErrNoExecutor
	}
	if b.state == StateUnbuilt {
		return b.buildLocked()
	}
	return nil
}

func (b *Builder) queryLocked() executor.Query {
	return executor.Query{
		Root:    b.typ.entity,
		Clauses: b.clauses,
		Sorts:   b.sorts,
		Limit:   b.limit,
		Offset:  b.offset,
	}
}

func (b *Builder) markMaterialized(operation string) {
	b.state = StateMaterialized
	if m := b.typ.dispatch.metrics; m != nil {
		m.MaterializationsTotal.WithLabelValues(b.typ.entity.Name, operation).Inc()
	}
}
