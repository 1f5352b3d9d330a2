package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paneq/meta-search/pkg/predicates"
	"github.com/paneq/meta-search/pkg/registry"
	"github.com/paneq/meta-search/pkg/schema"
)

func newArticleRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	comment := schema.NewEntityType("Comment", "comments").
		AddColumn("id", schema.TypeInteger).
		AddColumn("body", schema.TypeString)
	article := schema.NewEntityType("Article", "articles").
		AddColumn("id", schema.TypeInteger).
		AddColumn("title", schema.TypeString).
		AddColumn("body", schema.TypeString).
		AddColumn("internal_notes", schema.TypeString).
		AddAssociation("comments", comment, "id", "article_id").
		AddAssociation("drafts", comment, "id", "article_id")
	return registry.New(article)
}

func adminOnly(ctx registry.SearchContext) bool { return ctx["role"] == "admin" }

func TestAttributeAuthorized_NoDeclarations(t *testing.T) {
	reg := newArticleRegistry(t)
	ev := New()

	assert.True(t, ev.AttributeAuthorized(reg, "title", nil))
	assert.True(t, ev.AttributeAuthorized(reg, "internal_notes", registry.SearchContext{"role": "guest"}))
}

func TestAttributeAuthorized_WhitelistExclusive(t *testing.T) {
	reg := newArticleRegistry(t)
	require.NoError(t, reg.DeclareSearchableAttributes([]string{"title"}))
	ev := New()

	assert.True(t, ev.AttributeAuthorized(reg, "title", nil))
	// Valid column, but not whitelisted: blacklist absence does not help.
	assert.False(t, ev.AttributeAuthorized(reg, "body", nil))
}

func TestAttributeAuthorized_GatedWhitelist(t *testing.T) {
	reg := newArticleRegistry(t)
	require.NoError(t, reg.DeclareSearchableAttributes([]string{"internal_notes"}, registry.If(adminOnly)))
	ev := New()

	assert.True(t, ev.AttributeAuthorized(reg, "internal_notes", registry.SearchContext{"role": "admin"}))
	assert.False(t, ev.AttributeAuthorized(reg, "internal_notes", registry.SearchContext{"role": "guest"}))
}

func TestAttributeAuthorized_ConditionalBlacklist(t *testing.T) {
	reg := newArticleRegistry(t)
	// Exclusion only applies to non-admins: the gate passing means the
	// exclusion is in force, so admins (gate false) search it anyway.
	nonAdmin := func(ctx registry.SearchContext) bool { return ctx["role"] != "admin" }
	require.NoError(t, reg.DeclareUnsearchableAttributes([]string{"internal_notes"}, registry.If(nonAdmin)))
	ev := New()

	assert.False(t, ev.AttributeAuthorized(reg, "internal_notes", registry.SearchContext{"role": "guest"}))
	assert.True(t, ev.AttributeAuthorized(reg, "internal_notes", registry.SearchContext{"role": "admin"}))
	assert.True(t, ev.AttributeAuthorized(reg, "title", registry.SearchContext{"role": "guest"}))
}

func TestAttributeAuthorized_UngatedBlacklist(t *testing.T) {
	reg := newArticleRegistry(t)
	require.NoError(t, reg.DeclareUnsearchableAttributes([]string{"internal_notes"}))
	ev := New()

	assert.False(t, ev.AttributeAuthorized(reg, "internal_notes", nil))
	assert.False(t, ev.AttributeAuthorized(reg, "internal_notes", registry.SearchContext{"role": "admin"}))
}

func TestAssociationAuthorized(t *testing.T) {
	reg := newArticleRegistry(t)
	require.NoError(t, reg.DeclareSearchableAssociations([]string{"comments"}))
	ev := New()

	assert.True(t, ev.AssociationAuthorized(reg, "comments", nil))
	assert.False(t, ev.AssociationAuthorized(reg, "drafts", nil))
}

func TestAssociationAuthorized_ConditionalBlacklist(t *testing.T) {
	reg := newArticleRegistry(t)
	nonAdmin := func(ctx registry.SearchContext) bool { return ctx["role"] != "admin" }
	require.NoError(t, reg.DeclareUnsearchableAssociations([]string{"drafts"}, registry.If(nonAdmin)))
	ev := New()

	assert.False(t, ev.AssociationAuthorized(reg, "drafts", registry.SearchContext{"role": "guest"}))
	assert.True(t, ev.AssociationAuthorized(reg, "drafts", registry.SearchContext{"role": "admin"}))
}

func TestMethodAuthorized(t *testing.T) {
	reg := newArticleRegistry(t)
	require.NoError(t, reg.DeclareSearchMethod(registry.SearchMethod{
		Name: "recent",
		If:   adminOnly,
		Apply: func(any) (predicates.Clause, error) {
			return predicates.Clause{Raw: "created_at > ?"}, nil
		},
	}))
	ev := New()

	_, ok := ev.MethodAuthorized(reg, "recent", registry.SearchContext{"role": "admin"})
	assert.True(t, ok)
	_, ok = ev.MethodAuthorized(reg, "recent", registry.SearchContext{"role": "guest"})
	assert.False(t, ok)
	_, ok = ev.MethodAuthorized(reg, "unregistered", registry.SearchContext{"role": "admin"})
	assert.False(t, ok)
}
