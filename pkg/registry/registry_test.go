package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paneq/meta-search/pkg/predicates"
	"github.com/paneq/meta-search/pkg/schema"
)

func articleType() *schema.EntityType {
	comment := schema.NewEntityType("Comment", "comments").
		AddColumn("id", schema.TypeInteger).
		AddColumn("body", schema.TypeString)
	return schema.NewEntityType("Article", "articles").
		AddColumn("id", schema.TypeInteger).
		AddColumn("title", schema.TypeString).
		AddColumn("secret_field", schema.TypeString).
		AddAssociation("comments", comment, "id", "article_id")
}

func TestDeclare_UnknownColumnFailsFast(t *testing.T) {
	reg := New(articleType())

	for _, declare := range []func([]string, ...DeclareOption) error{
		reg.DeclareSearchableAttributes,
		reg.DeclareUnsearchableAttributes,
	} {
		err := declare([]string{"title", "no_such_column"})
		require.Error(t, err)

		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "Article", cfgErr.Entity)
		assert.Equal(t, "column", cfgErr.Kind)
		assert.Equal(t, "no_such_column", cfgErr.Name)

		// A failed declaration registers nothing, including valid names.
		_, ok := reg.IncludedAttribute("title")
		assert.False(t, ok)
		_, ok = reg.ExcludedAttribute("title")
		assert.False(t, ok)
	}
}

func TestDeclare_UnknownAssociationFailsFast(t *testing.T) {
	reg := New(articleType())

	err := reg.DeclareSearchableAssociations([]string{"tags"})
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "association", cfgErr.Kind)

	err = reg.DeclareUnsearchableAssociations([]string{"tags"})
	assert.Error(t, err)
}

func TestDeclare_MergesAcrossCalls(t *testing.T) {
	reg := New(articleType())

	require.NoError(t, reg.DeclareUnsearchableAttributes([]string{"secret_field"}))
	require.NoError(t, reg.DeclareUnsearchableAttributes([]string{"id"}))

	_, ok := reg.ExcludedAttribute("secret_field")
	assert.True(t, ok)
	_, ok = reg.ExcludedAttribute("id")
	assert.True(t, ok)
}

func TestDeclare_IfGate(t *testing.T) {
	reg := New(articleType())
	adminOnly := func(ctx SearchContext) bool { return ctx["role"] == "admin" }

	require.NoError(t, reg.DeclareSearchableAttributes([]string{"title"}, If(adminOnly)))

	rule, ok := reg.IncludedAttribute("title")
	require.True(t, ok)
	assert.True(t, rule.Authorized(SearchContext{"role": "admin"}))
	assert.False(t, rule.Authorized(SearchContext{"role": "guest"}))
}

func TestRule_NilPredicateAlwaysAuthorized(t *testing.T) {
	rule := Rule{Name: "title"}
	assert.True(t, rule.Authorized(nil))
	assert.True(t, rule.Authorized(SearchContext{"role": "guest"}))
}

func TestDeclareSearchMethod(t *testing.T) {
	reg := New(articleType())

	err := reg.DeclareSearchMethod(SearchMethod{Name: "no_apply"})
	assert.Error(t, err)
	err = reg.DeclareSearchMethod(SearchMethod{Apply: func(any) (predicates.Clause, error) {
		return predicates.Clause{}, nil
	}})
	assert.Error(t, err)

	first := SearchMethod{
		Name: "recent",
		Apply: func(any) (predicates.Clause, error) {
			return predicates.Clause{Raw: "created_at > now() - interval '7 days'"}, nil
		},
	}
	require.NoError(t, reg.DeclareSearchMethod(first))

	// Re-declaring the same name overwrites.
	second := first
	second.If = func(SearchContext) bool { return false }
	require.NoError(t, reg.DeclareSearchMethod(second))

	m, ok := reg.Method("recent")
	require.True(t, ok)
	assert.NotNil(t, m.If)
}

func TestClone(t *testing.T) {
	parent := New(articleType())
	require.NoError(t, parent.DeclareUnsearchableAttributes([]string{"secret_field"}))

	derived := schema.NewEntityType("FeaturedArticle", "articles").
		AddColumn("id", schema.TypeInteger).
		AddColumn("title", schema.TypeString).
		AddColumn("secret_field", schema.TypeString).
		AddColumn("featured_at", schema.TypeTime)

	child := parent.Clone(derived)
	_, ok := child.ExcludedAttribute("secret_field")
	assert.True(t, ok)

	// Extending the clone does not touch the parent.
	require.NoError(t, child.DeclareUnsearchableAttributes([]string{"featured_at"}))
	_, ok = parent.ExcludedAttribute("featured_at")
	assert.False(t, ok)
}
