package web

import (
	"net/http"
	"strconv"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/errors"
	"github.com/mwaldrop/lore/internal/store"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	unit     *db.Unit
	cfg      *config.Config
	renderer *Renderer
}

// HandleList handles GET /learnings: the newest entries.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	limit := parseIntParam(r, "limit", 20)

	result, err := store.Recall(h.unit, nil, store.RecallInput{
		Mode:  store.ModeRecent,
		Limit: limit,
		Type:  typ,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData: PageData{
			Title:     "Learnings",
			Version:   h.renderer.version,
			Namespace: displayNamespace(h.unit),
			Nav:       "learnings",
		},
		Results: result.Results,
		Type:    typ,
		Limit:   limit,
	})
}

// HandleSearch handles GET /learnings/search: ranked full-text search.
// Returned entries get their access records touched like any other recall.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	typ := r.URL.Query().Get("type")

	data := SearchPageData{
		PageData: PageData{
			Title:     "Search",
			Version:   h.renderer.version,
			Namespace: displayNamespace(h.unit),
			Nav:       "search",
		},
		Query:    query,
		Type:     typ,
		HasQuery: query != "",
	}

	if query == "" {
		h.renderer.renderPage(w, "search", data)
		return
	}

	result, err := store.Recall(h.unit, nil, store.RecallInput{
		Query: query,
		Mode:  store.ModeSearch,
		Limit: parseIntParam(r, "limit", 20),
		Type:  typ,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data.Results = result.Results
	h.renderer.renderPage(w, "search", data)
}

// HandleDetail handles GET /learnings/{id}: one learning with its lineage.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("learning ID is required"))
		return
	}

	item, err := store.Get(h.unit, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	history, err := store.History(h.unit, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData: PageData{
			Title:     shortID(id),
			Version:   h.renderer.version,
			Namespace: displayNamespace(h.unit),
			Nav:       "learnings",
		},
		Item:         item,
		RenderedHTML: renderMarkdown(item.Learning.Content),
		History:      history,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func displayNamespace(unit *db.Unit) string {
	if unit.Namespace == "" {
		return "global"
	}
	return unit.Namespace
}
