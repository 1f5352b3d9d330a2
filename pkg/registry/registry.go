package registry

import (
	"fmt"
	"sync"

	"github.com/paneq/meta-search/pkg/predicates"
	"github.com/paneq/meta-search/pkg/schema"
)

// SearchContext carries request-specific data (identity, roles, tenant)
// into authorization predicates. It is supplied per search call and never
// stored beyond the builder that received it.
type SearchContext map[string]any

// Predicate is an authorization gate evaluated against the search context.
// A nil predicate means "always authorized".
type Predicate func(SearchContext) bool

// Always is the default authorization predicate.
func Always(SearchContext) bool { return true }

// Rule is one whitelist or blacklist entry with its optional gate.
type Rule struct {
	Name string
	If   Predicate
}

// Authorized evaluates the rule's gate against the search context.
func (r Rule) Authorized(ctx SearchContext) bool {
	if r.If == nil {
		return true
	}
	return r.If(ctx)
}

// MethodFunc builds the clause for a custom search method from the raw
// parameter value.
type MethodFunc func(value any) (predicates.Clause, error)

// SearchMethod is a named custom search predicate: a clause constructor
// gated by an optional authorization predicate.
type SearchMethod struct {
	Name  string
	If    Predicate
	Apply MethodFunc
}

// ConfigurationError reports a searchable/unsearchable declaration naming a
// column or association that does not exist on the entity type. It is
// returned synchronously at declaration time; it always indicates a code or
// config defect, never a runtime condition.
type ConfigurationError struct {
	Entity string
	Kind   string // "column" or "association"
	Name   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no %s named %q on entity type %s", e.Kind, e.Name, e.Entity)
}

// DeclareOption modifies a declaration; currently only If.
type DeclareOption func(*declareOptions)

type declareOptions struct {
	pred Predicate
}

// If attaches an authorization predicate to every name in the declaration.
// The predicate is evaluated lazily against each search's context.
func If(pred Predicate) DeclareOption {
	return func(o *declareOptions) { o.pred = pred }
}

// Registry holds the searchable configuration for one entity type: the
// whitelist and blacklist of attributes and associations, and the custom
// search methods. For either kind, a non-empty whitelist wins exclusively;
// the blacklist is consulted only while the whitelist is empty.
//
// Declarations are mutex-guarded so configuration from init goroutines is
// safe; after configuration the registry is effectively read-only.
type Registry struct {
	mu     sync.Mutex
	entity *schema.EntityType

	includeAttrs  map[string]Rule
	excludeAttrs  map[string]Rule
	includeAssocs map[string]Rule
	excludeAssocs map[string]Rule
	methods       map[string]SearchMethod
}

// New creates an empty registry bound to the entity type. With no
// declarations at all, every column and association is searchable.
func New(entity *schema.EntityType) *Registry {
	return &Registry{
		entity:        entity,
		includeAttrs:  make(map[string]Rule),
		excludeAttrs:  make(map[string]Rule),
		includeAssocs: make(map[string]Rule),
		excludeAssocs: make(map[string]Rule),
		methods:       make(map[string]SearchMethod),
	}
}

// Entity returns the entity type this registry is bound to.
func (r *Registry) Entity() *schema.EntityType { return r.entity }

// DeclareSearchableAttributes adds names to the attribute whitelist.
// Later calls merge with earlier ones. Fails fast when a name is not a
// persisted column.
func (r *Registry) DeclareSearchableAttributes(names []string, opts ...DeclareOption) error {
	return r.declare(names, r.includeAttrs, "column", r.entity.HasColumn, opts)
}

// DeclareUnsearchableAttributes adds names to the attribute blacklist.
func (r *Registry) DeclareUnsearchableAttributes(names []string, opts ...DeclareOption) error {
	return r.declare(names, r.excludeAttrs, "column", r.entity.HasColumn, opts)
}

// DeclareSearchableAssociations adds names to the association whitelist.
func (r *Registry) DeclareSearchableAssociations(names []string, opts ...DeclareOption) error {
	return r.declare(names, r.includeAssocs, "association", r.entity.HasAssociation, opts)
}

// DeclareUnsearchableAssociations adds names to the association blacklist.
func (r *Registry) DeclareUnsearchableAssociations(names []string, opts ...DeclareOption) error {
	return r.declare(names, r.excludeAssocs, "association", r.entity.HasAssociation, opts)
}

func (r *Registry) declare(names []string, dst map[string]Rule, kind string, valid func(string) bool, opts []DeclareOption) error {
	var o declareOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		if !valid(name) {
			return &ConfigurationError{Entity: r.entity.Name, Kind: kind, Name: name}
		}
	}
	for _, name := range names {
		dst[name] = Rule{Name: name, If: o.pred}
	}
	return nil
}

// DeclareSearchMethod registers a custom search method. Re-declaring the
// same name overwrites the earlier entry.
func (r *Registry) DeclareSearchMethod(m SearchMethod) error {
	if m.Name == "" {
		return fmt.Errorf("search method name is required")
	}
	if m.Apply == nil {
		return fmt.Errorf("search method %q has no clause constructor", m.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m.Name] = m
	return nil
}

// DeclareSearchMethods registers several custom search methods.
func (r *Registry) DeclareSearchMethods(methods ...SearchMethod) error {
	for _, m := range methods {
		if err := r.DeclareSearchMethod(m); err != nil {
			return err
		}
	}
	return nil
}

// Method returns the search method registered under name.
func (r *Registry) Method(name string) (SearchMethod, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.methods[name]
	return m, ok
}

// HasIncludedAttributes reports whether the attribute whitelist is in effect.
func (r *Registry) HasIncludedAttributes() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.includeAttrs) > 0
}

// IncludedAttribute returns the whitelist rule for name.
func (r *Registry) IncludedAttribute(name string) (Rule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.includeAttrs[name]
	return rule, ok
}

// ExcludedAttribute returns the blacklist rule for name.
func (r *Registry) ExcludedAttribute(name string) (Rule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.excludeAttrs[name]
	return rule, ok
}

// HasIncludedAssociations reports whether the association whitelist is in effect.
func (r *Registry) HasIncludedAssociations() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.includeAssocs) > 0
}

// IncludedAssociation returns the whitelist rule for name.
func (r *Registry) IncludedAssociation(name string) (Rule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.includeAssocs[name]
	return rule, ok
}

// ExcludedAssociation returns the blacklist rule for name.
func (r *Registry) ExcludedAssociation(name string) (Rule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.excludeAssocs[name]
	return rule, ok
}

// Clone copies the registry onto another entity type. Derived entity types
// extend the parent's configuration by cloning and declaring more; there is
// no implicit inheritance.
func (r *Registry) Clone(entity *schema.EntityType) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := New(entity)
	copyRules(c.includeAttrs, r.includeAttrs)
	copyRules(c.excludeAttrs, r.excludeAttrs)
	copyRules(c.includeAssocs, r.includeAssocs)
	copyRules(c.excludeAssocs, r.excludeAssocs)
	for name, m := range r.methods {
		c.methods[name] = m
	}
	return c
}

func copyRules(dst, src map[string]Rule) {
	for name, rule := range src {
		dst[name] = rule
	}
}
