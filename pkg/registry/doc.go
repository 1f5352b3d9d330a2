// Package registry holds the per-entity-type searchable configuration:
// whitelists and blacklists of attributes and associations, plus custom
// named search methods, each entry optionally gated by an authorization
// predicate evaluated against the per-request search context.
//
// # Declarations
//
// All declarations are configuration-time, fail-fast operations. Naming a
// column or association that does not exist on the entity type returns a
// *ConfigurationError immediately:
//
//	reg := registry.New(article)
//	err := reg.DeclareUnsearchableAttributes([]string{"password_digest"})
//	err = reg.DeclareSearchableAssociations([]string{"comments"},
//		registry.If(func(ctx registry.SearchContext) bool {
//			return ctx["role"] == "admin"
//		}))
//
// For each kind, a non-empty whitelist is consulted exclusively; the
// blacklist only applies while the whitelist is empty. An entry's If gate
// makes the same static declaration behave differently per request: an
// exclusion whose gate evaluates false for a given context does not apply
// to that context.
//
// # Custom search methods
//
//	reg.DeclareSearchMethod(registry.SearchMethod{
//		Name: "backwards_name",
//		If:   adminOnly,
//		Apply: func(value any) (predicates.Clause, error) {
//			return predicates.Clause{
//				Raw:  "reverse(name) = ?",
//				Args: []any{value},
//			}, nil
//		},
//	})
//
// # Derived entity types
//
// There is no implicit configuration inheritance. A derived entity type
// copies and extends its parent's registry explicitly with Clone.
package registry
