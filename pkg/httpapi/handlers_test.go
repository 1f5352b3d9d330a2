package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paneq/meta-search/pkg/builder"
	"github.com/paneq/meta-search/pkg/executor"
	"github.com/paneq/meta-search/pkg/registry"
	"github.com/paneq/meta-search/pkg/schema"
)

type fixture struct {
	server  *httptest.Server
	article *schema.EntityType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE articles (id INTEGER PRIMARY KEY, title TEXT, internal_notes TEXT)`,
		`CREATE TABLE comments (id INTEGER PRIMARY KEY, article_id INTEGER, author_id INTEGER, body TEXT)`,
		`INSERT INTO users VALUES (1, 'alice')`,
		`INSERT INTO articles VALUES
			(1, 'Go concurrency', 'draft quality'),
			(2, 'Rust ownership', 'ready')`,
		`INSERT INTO comments VALUES (1, 1, 1, 'nice post')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	user := schema.NewEntityType("User", "users").
		AddColumn("id", schema.TypeInteger).
		AddColumn("name", schema.TypeString)
	comment := schema.NewEntityType("Comment", "comments").
		AddColumn("id", schema.TypeInteger).
		AddColumn("article_id", schema.TypeInteger).
		AddColumn("body", schema.TypeString).
		AddAssociation("author", user, "author_id", "id")
	article := schema.NewEntityType("Article", "articles").
		AddColumn("id", schema.TypeInteger).
		AddColumn("title", schema.TypeString).
		AddColumn("internal_notes", schema.TypeString).
		AddAssociation("comments", comment, "id", "article_id")

	set := schema.NewSet()
	for _, e := range []*schema.EntityType{user, comment, article} {
		require.NoError(t, set.Register(e))
	}

	reg := registry.New(article)
	nonAdmin := func(ctx registry.SearchContext) bool { return ctx["role"] != "admin" }
	require.NoError(t, reg.DeclareUnsearchableAttributes([]string{"internal_notes"}, registry.If(nonAdmin)))

	dispatch := builder.NewDispatch(
		builder.WithExecutor(executor.NewSQL(db, executor.DialectSQLite)))
	dispatch.Bind(reg)

	srv := httptest.NewServer(NewServer(dispatch, set).Router())
	t.Cleanup(srv.Close)
	return &fixture{server: srv, article: article}
}

func get(t *testing.T, url string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestSearch_Filters(t *testing.T) {
	f := newFixture(t)

	resp, body := get(t, f.server.URL+"/api/v1/search/Article?title_contains=Go", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "Go concurrency", data[0].(map[string]any)["title"])
	assert.Equal(t, float64(1), body["total"])
}

func TestSearch_AssociationPath(t *testing.T) {
	f := newFixture(t)

	_, body := get(t, f.server.URL+"/api/v1/search/Article?comments_author_name_equals=alice", nil)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "Go concurrency", data[0].(map[string]any)["title"])
}

func TestSearch_UnknownParamIgnored(t *testing.T) {
	f := newFixture(t)

	_, body := get(t, f.server.URL+"/api/v1/search/Article?bogus_filter=1", nil)
	assert.Equal(t, float64(2), body["total"])
}

func TestSearch_AuthorizationByRole(t *testing.T) {
	f := newFixture(t)
	url := f.server.URL + "/api/v1/search/Article?internal_notes_contains=ready"

	// Guests cannot filter on internal_notes: the parameter is dropped
	// and every article matches.
	_, body := get(t, url, nil)
	assert.Equal(t, float64(2), body["total"])

	// Admins can.
	_, body = get(t, url, map[string]string{"X-Search-Role": "admin"})
	assert.Equal(t, float64(1), body["total"])
}

func TestSearch_Pagination(t *testing.T) {
	f := newFixture(t)

	_, body := get(t, f.server.URL+"/api/v1/search/Article?sorts=title.asc&limit=1&offset=1", nil)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "Rust ownership", data[0].(map[string]any)["title"])
	// Total counts all matches, not the page.
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(1), body["limit"])
}

func TestSearch_UnknownEntity(t *testing.T) {
	f := newFixture(t)

	resp, body := get(t, f.server.URL+"/api/v1/search/Ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "Ghost")
}

func TestListEntities(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/api/v1/entities")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entities []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entities))
	require.Len(t, entities, 3)

	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e["name"].(string))
	}
	assert.Equal(t, []string{"Article", "Comment", "User"}, names)
}

func TestSearch_RequestIDHeader(t *testing.T) {
	f := newFixture(t)

	resp, _ := get(t, f.server.URL+"/api/v1/search/Article", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
