package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paneq/meta-search/pkg/registry"
)

const testSchemaYAML = `
entities:
  - name: Article
    table: articles
    columns:
      - {name: id, type: integer}
      - {name: title, type: string}
      - {name: internal_notes, type: string}
      - {name: published_at, type: time}
    associations:
      - {name: comments, target: Comment, owner_column: id, target_column: article_id}
  - name: Comment
    table: comments
    columns:
      - {name: id, type: integer}
      - {name: article_id, type: integer}
      - {name: body, type: string}

search:
  Article:
    unsearchable_attributes:
      - name: internal_notes
        if_role: guest
    searchable_associations: [comments]
    methods:
      - name: published_before
        sql: "t0.published_at < ?"
`

func TestLoadSchema(t *testing.T) {
	model, err := LoadSchema([]byte(testSchemaYAML))
	require.NoError(t, err)

	article, ok := model.Set.Lookup("Article")
	require.True(t, ok)
	assert.Equal(t, "articles", article.Table)
	assert.True(t, article.HasColumn("title"))

	// Forward reference resolved in the second pass.
	assoc, ok := article.Association("comments")
	require.True(t, ok)
	assert.Equal(t, "Comment", assoc.Target.Name)
	assert.Equal(t, "article_id", assoc.TargetColumn)

	require.Len(t, model.Registries, 1)
	reg := model.Registries[0]
	assert.Equal(t, "Article", reg.Entity().Name)

	rule, ok := reg.ExcludedAttribute("internal_notes")
	require.True(t, ok)
	assert.True(t, rule.Authorized(registry.SearchContext{"role": "guest"}))
	assert.False(t, rule.Authorized(registry.SearchContext{"role": "admin"}))

	_, ok = reg.IncludedAssociation("comments")
	assert.True(t, ok)

	method, ok := reg.Method("published_before")
	require.True(t, ok)
	clause, err := method.Apply("2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "t0.published_at < ?", clause.Raw)
	assert.Equal(t, []any{"2024-01-01"}, clause.Args)
}

func TestLoadSchema_UnknownColumnInDeclaration(t *testing.T) {
	yaml := `
entities:
  - name: Article
    table: articles
    columns:
      - {name: id, type: integer}
search:
  Article:
    unsearchable_attributes: [no_such_column]
`
	_, err := LoadSchema([]byte(yaml))
	require.Error(t, err)

	var cfgErr *registry.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "no_such_column", cfgErr.Name)
}

func TestLoadSchema_UnknownAssociationTarget(t *testing.T) {
	yaml := `
entities:
  - name: Article
    table: articles
    columns:
      - {name: id, type: integer}
    associations:
      - {name: comments, target: Missing, owner_column: id, target_column: article_id}
`
	_, err := LoadSchema([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target entity")
}

func TestLoadSchema_UnknownColumnType(t *testing.T) {
	yaml := `
entities:
  - name: Article
    table: articles
    columns:
      - {name: id, type: uuid}
`
	_, err := LoadSchema([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column type")
}

func TestLoadSchema_SearchForUnknownEntity(t *testing.T) {
	yaml := `
entities: []
search:
  Ghost:
    searchable_attributes: [id]
`
	_, err := LoadSchema([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity")
}
