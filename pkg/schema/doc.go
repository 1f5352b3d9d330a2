// Package schema describes the searchable relational model: entity types,
// their persisted columns, and the associations between them.
//
// Entity descriptors are built once at process configuration time and are
// immutable afterwards. They serve two purposes: fail-fast validation of
// searchable/unsearchable declarations (a declaration naming an unknown
// column or association is a configuration defect, not a runtime condition)
// and join resolution when a search parameter reaches through an
// association, as in comments_created_at_greater_than.
//
// Example:
//
//	comment := schema.NewEntityType("Comment", "comments").
//		AddColumn("id", schema.TypeInteger).
//		AddColumn("body", schema.TypeString).
//		AddColumn("created_at", schema.TypeTime)
//
//	article := schema.NewEntityType("Article", "articles").
//		AddColumn("id", schema.TypeInteger).
//		AddColumn("title", schema.TypeString).
//		AddAssociation("comments", comment, "id", "article_id")
package schema
