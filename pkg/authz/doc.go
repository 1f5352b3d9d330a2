// Package authz evaluates searchable declarations against a per-request
// search context. The rules are asymmetric on purpose: a non-empty
// whitelist is the only thing consulted for its kind, while blacklist
// entries are conditional and can be suspended for a context when their
// gate evaluates false. Unknown-but-valid names with no declaration at all
// are searchable.
package authz
