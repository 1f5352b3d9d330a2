package httpapi

import (
	"fmt"
	"net/http"

	"github.com/paneq/meta-search/pkg/builder"
	"github.com/paneq/meta-search/pkg/executor"
	"github.com/paneq/meta-search/pkg/httputil"
	"github.com/paneq/meta-search/pkg/observability"
)

// searchResponse is the JSON shape of a search result page.
type searchResponse struct {
	Data   []executor.Row `json:"data"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

// entityDescriptor is the JSON shape of one entity in the listing.
type entityDescriptor struct {
	Name         string   `json:"name"`
	Table        string   `json:"table"`
	Columns      []string `json:"columns"`
	Associations []string `json:"associations,omitempty"`
}

// listEntities handles GET /api/v1/entities
func (s *Server) listEntities(w http.ResponseWriter, r *http.Request) {
	names := s.entities.Names()
	out := make([]entityDescriptor, 0, len(names))
	for _, name := range names {
		entity, _ := s.entities.Lookup(name)
		out = append(out, entityDescriptor{
			Name:         entity.Name,
			Table:        entity.Table,
			Columns:      entity.Columns(),
			Associations: entity.Associations(),
		})
	}
	httputil.WriteSuccess(w, out)
}

// search handles GET /api/v1/search/{entity}.
//
// Every query parameter is handed to the search builder as-is: parameter
// keys like title_contains or comments_author_name_equals become
// predicates, limit/offset/sorts are reserved, and anything unknown or
// unauthorized is silently ignored rather than rejected.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "entity")
	if !ok {
		return
	}
	entity, ok := s.entities.Lookup(name)
	if !ok {
		httputil.WriteNotFoundError(w, fmt.Sprintf("unknown entity %q", name))
		return
	}

	params := make(builder.Params, len(r.URL.Query()))
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			params[key] = values[0]
		} else {
			params[key] = values
		}
	}

	search := s.dispatch.Search(entity, params,
		builder.WithSearchContext(s.contextFn(r)))

	ctx := r.Context()
	rows, err := search.All(ctx)
	if err != nil {
		s.searchError(w, r, name, err)
		return
	}
	total, err := search.Count(ctx)
	if err != nil {
		s.searchError(w, r, name, err)
		return
	}
	if rows == nil {
		rows = []executor.Row{}
	}

	limit, _ := httputil.ParseQueryInt(r, "limit", 0)
	offset, _ := httputil.ParseQueryInt(r, "offset", 0)
	httputil.WriteSuccess(w, searchResponse{
		Data:   rows,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) searchError(w http.ResponseWriter, r *http.Request, entity string, err error) {
	s.logger.WithError(err).
		WithField("entity", entity).
		WithField("request_id", observability.GetRequestID(r.Context())).
		Error("search failed")
	httputil.WriteErrorMessage(w, http.StatusInternalServerError, "search failed")
}
