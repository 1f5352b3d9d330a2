package authz

import (
	"github.com/paneq/meta-search/pkg/registry"
)

// Evaluator decides, per search context, whether a given attribute,
// association or custom method of an entity type may be searched. It is
// stateless: all configuration lives in the registry, all request data in
// the context, so one evaluator serves every request concurrently.
type Evaluator struct{}

// New creates an evaluator.
func New() *Evaluator { return &Evaluator{} }

// AttributeAuthorized reports whether the named attribute is searchable
// under the given context.
//
// When the registry carries an attribute whitelist, it is consulted
// exclusively: the attribute must be whitelisted and its gate must pass.
// Otherwise the blacklist applies, and a blacklisted attribute is still
// searchable when its gate evaluates false for this context (the exclusion
// is "authorized away").
func (e *Evaluator) AttributeAuthorized(reg *registry.Registry, name string, ctx registry.SearchContext) bool {
	if reg.HasIncludedAttributes() {
		rule, ok := reg.IncludedAttribute(name)
		return ok && rule.Authorized(ctx)
	}
	if rule, ok := reg.ExcludedAttribute(name); ok {
		return !rule.Authorized(ctx)
	}
	return true
}

// AssociationAuthorized reports whether the named association may be
// traversed under the given context. Same whitelist/blacklist semantics as
// AttributeAuthorized.
func (e *Evaluator) AssociationAuthorized(reg *registry.Registry, name string, ctx registry.SearchContext) bool {
	if reg.HasIncludedAssociations() {
		rule, ok := reg.IncludedAssociation(name)
		return ok && rule.Authorized(ctx)
	}
	if rule, ok := reg.ExcludedAssociation(name); ok {
		return !rule.Authorized(ctx)
	}
	return true
}

// MethodAuthorized returns the custom search method registered under name
// when it exists and its gate passes for the context.
func (e *Evaluator) MethodAuthorized(reg *registry.Registry, name string, ctx registry.SearchContext) (registry.SearchMethod, bool) {
	m, ok := reg.Method(name)
	if !ok {
		return registry.SearchMethod{}, false
	}
	if m.If != nil && !m.If(ctx) {
		return registry.SearchMethod{}, false
	}
	return m, true
}
