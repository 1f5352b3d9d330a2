package builder

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/paneq/meta-search/pkg/authz"
	"github.com/paneq/meta-search/pkg/executor"
	"github.com/paneq/meta-search/pkg/observability"
	"github.com/paneq/meta-search/pkg/predicates"
	"github.com/paneq/meta-search/pkg/registry"
	"github.com/paneq/meta-search/pkg/schema"
)

// DispatchOption configures a Dispatch.
type DispatchOption func(*Dispatch)

// WithExecutor sets the executor searches materialize against.
func WithExecutor(exec executor.Executor) DispatchOption {
	return func(d *Dispatch) { d.executor = exec }
}

// WithLogger sets the dispatch logger.
func WithLogger(logger *observability.Logger) DispatchOption {
	return func(d *Dispatch) { d.logger = logger }
}

// WithMetrics instruments parameter handling and materialization.
func WithMetrics(metrics *observability.Metrics) DispatchOption {
	return func(d *Dispatch) { d.metrics = metrics }
}

// WithParser overrides the key parser, e.g. to tune memoization.
func WithParser(parser *predicates.Parser) DispatchOption {
	return func(d *Dispatch) { d.parser = parser }
}

// Dispatch owns the process-wide search machinery: the registry bindings,
// the parser, and the cache of per-entity builder types. Builder types are
// resolved lazily on first search for an entity and never evicted.
type Dispatch struct {
	mu         sync.RWMutex
	registries map[string]*registry.Registry
	types      map[string]*BuilderType
	group      singleflight.Group

	parser    *predicates.Parser
	evaluator *authz.Evaluator
	executor  executor.Executor
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewDispatch creates a dispatch with no registry bindings.
func NewDispatch(opts ...DispatchOption) *Dispatch {
	d := &Dispatch{
		registries: make(map[string]*registry.Registry),
		types:      make(map[string]*BuilderType),
		parser:     predicates.NewParser(),
		evaluator:  authz.New(),
		logger:     observability.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bind attaches a configured registry to its entity type. Entities searched
// without a binding get an implicit empty registry, under which every
// column and association is searchable.
func (d *Dispatch) Bind(reg *registry.Registry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registries[reg.Entity().Name] = reg
}

// RegistryFor returns the registry bound to the entity type, or an empty
// one. The empty registry is bound so later lookups observe the same
// instance.
func (d *Dispatch) RegistryFor(entity *schema.EntityType) *registry.Registry {
	d.mu.RLock()
	reg, ok := d.registries[entity.Name]
	d.mu.RUnlock()
	if ok {
		return reg
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if reg, ok := d.registries[entity.Name]; ok {
		return reg
	}
	reg = registry.New(entity)
	d.registries[entity.Name] = reg
	return reg
}

// ResolveBuilderType returns the builder type for the entity, constructing
// it on first access. Concurrent first accesses for the same entity are
// collapsed so exactly one builder type is ever built and cached.
func (d *Dispatch) ResolveBuilderType(entity *schema.EntityType) *BuilderType {
	d.mu.RLock()
	bt, ok := d.types[entity.Name]
	d.mu.RUnlock()
	if ok {
		d.countCache(true)
		return bt
	}
	d.countCache(false)

	v, _, _ := d.group.Do(entity.Name, func() (any, error) {
		d.mu.RLock()
		bt, ok := d.types[entity.Name]
		d.mu.RUnlock()
		if ok {
			return bt, nil
		}

		bt = newBuilderType(d, entity)

		d.mu.Lock()
		d.types[entity.Name] = bt
		d.mu.Unlock()
		return bt, nil
	})
	return v.(*BuilderType)
}

// Search creates an unbuilt search for the entity from raw parameters.
// Nothing is parsed, authorized or executed until the search is built or
// materialized.
func (d *Dispatch) Search(entity *schema.EntityType, params Params, opts ...SearchOption) *Builder {
	return d.ResolveBuilderType(entity).New(params, opts...)
}

func (d *Dispatch) countCache(hit bool) {
	if d.metrics == nil {
		return
	}
	if hit {
		d.metrics.CacheHitsTotal.WithLabelValues("dispatch").Inc()
	} else {
		d.metrics.CacheMissesTotal.WithLabelValues("dispatch").Inc()
	}
}

// defaultDispatch serves the package-level convenience API.
var defaultDispatch = NewDispatch()

// Default returns the package-level dispatch.
func Default() *Dispatch { return defaultDispatch }

// Bind attaches a registry to the package-level dispatch.
func Bind(reg *registry.Registry) { defaultDispatch.Bind(reg) }

// Search creates a search on the package-level dispatch.
func Search(entity *schema.EntityType, params Params, opts ...SearchOption) *Builder {
	return defaultDispatch.Search(entity, params, opts...)
}
