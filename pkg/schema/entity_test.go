package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityType_Columns(t *testing.T) {
	article := NewEntityType("Article", "articles").
		AddColumn("id", TypeInteger).
		AddColumn("title", TypeString).
		AddColumn("published", TypeBoolean)

	assert.True(t, article.HasColumn("title"))
	assert.False(t, article.HasColumn("secret"))

	col, ok := article.Column("published")
	require.True(t, ok)
	assert.Equal(t, TypeBoolean, col.Type)

	assert.Equal(t, []string{"id", "published", "title"}, article.Columns())
}

func TestEntityType_Associations(t *testing.T) {
	comment := NewEntityType("Comment", "comments").
		AddColumn("id", TypeInteger).
		AddColumn("article_id", TypeInteger)
	article := NewEntityType("Article", "articles").
		AddColumn("id", TypeInteger).
		AddAssociation("comments", comment, "id", "article_id")

	assert.True(t, article.HasAssociation("comments"))
	assert.False(t, article.HasAssociation("tags"))

	assoc, ok := article.Association("comments")
	require.True(t, ok)
	assert.Equal(t, comment, assoc.Target)
	assert.Equal(t, "id", assoc.OwnerColumn)
	assert.Equal(t, "article_id", assoc.TargetColumn)

	assert.Equal(t, []string{"comments"}, article.Associations())
}

func TestSet_Register(t *testing.T) {
	set := NewSet()
	article := NewEntityType("Article", "articles")

	require.NoError(t, set.Register(article))
	// Re-registering the same descriptor is idempotent.
	require.NoError(t, set.Register(article))

	// A different descriptor under the same name conflicts.
	err := set.Register(NewEntityType("Article", "articles_v2"))
	assert.Error(t, err)

	got, ok := set.Lookup("Article")
	require.True(t, ok)
	assert.Equal(t, article, got)

	_, ok = set.Lookup("Missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"Article"}, set.Names())
}
