package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mwaldrop/lore/internal/config"
	"github.com/mwaldrop/lore/internal/db"
	"github.com/mwaldrop/lore/internal/store"
)

func newTestServer(t *testing.T) (*db.Unit, http.Handler) {
	t.Helper()
	cfg := config.DefaultConfig()
	unit, err := db.Open(t.TempDir(), "", cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { unit.Close() })
	return unit, NewServer(unit, cfg, "test", "127.0.0.1", 0).Handler
}

func seedLearning(t *testing.T, unit *db.Unit, content string) string {
	t.Helper()
	out, err := store.Store(unit, config.DefaultConfig(), nil, store.StoreInput{
		Content: content,
		Type:    "WORKING_SOLUTION",
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	return out.ID
}

func get(handler http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRootRedirectsToList(t *testing.T) {
	_, handler := newTestServer(t)

	rec := get(handler, "/", nil)
	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/learnings" {
		t.Errorf("location = %q, want /learnings", loc)
	}
}

func TestListPage(t *testing.T) {
	unit, handler := newTestServer(t)
	seedLearning(t, unit, "a learning worth listing")

	rec := get(handler, "/learnings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "a learning worth listing") {
		t.Error("list page missing the stored learning")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
}

func TestSearchPage(t *testing.T) {
	unit, handler := newTestServer(t)
	id := seedLearning(t, unit, "searchable entry about timeouts")
	seedLearning(t, unit, "unrelated entry about caching")

	// Without a query the page renders the empty form.
	rec := get(handler, "/learnings/search", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = get(handler, "/learnings/search?q=timeouts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "searchable entry about timeouts") {
		t.Error("search results missing the match")
	}
	if strings.Contains(body, "unrelated entry about caching") {
		t.Error("search results include a non-match")
	}

	// Viewing a search result counts as an access.
	access, err := unit.GetAccess(id)
	if err != nil {
		t.Fatalf("GetAccess: %v", err)
	}
	if access == nil || access.AccessCount != 1 {
		t.Errorf("access after search = %+v, want count 1", access)
	}
}

func TestDetailPageRendersMarkdown(t *testing.T) {
	unit, handler := newTestServer(t)
	id := seedLearning(t, unit, "# Heading\n\nUse `retry` with backoff")

	rec := get(handler, "/learnings/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h1>Heading</h1>") {
		t.Error("markdown heading not rendered")
	}
	if !strings.Contains(body, "<code>retry</code>") {
		t.Error("inline code not rendered")
	}
}

func TestDetailPageShowsLineage(t *testing.T) {
	unit, handler := newTestServer(t)
	parent := seedLearning(t, unit, "the original advice")
	child := seedLearning(t, unit, "the revised advice")
	if _, err := store.Link(unit, store.LinkInput{ID: child, SupersedesID: parent}); err != nil {
		t.Fatalf("Link: %v", err)
	}

	rec := get(handler, "/learnings/"+child, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), parent[:10]) {
		t.Error("detail page missing the superseded ancestor")
	}
}

func TestDetailPageNotFound(t *testing.T) {
	_, handler := newTestServer(t)

	rec := get(handler, "/learnings/01NOSUCHID0000000000000000", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestErrorContentNegotiation(t *testing.T) {
	_, handler := newTestServer(t)

	rec := get(handler, "/learnings/01NOSUCHID0000000000000000",
		map[string]string{"Accept": "application/json"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if payload.Error.Code != "NOT_FOUND" {
		t.Errorf("error code = %q, want NOT_FOUND", payload.Error.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	_, handler := newTestServer(t)

	rec := get(handler, "/learnings", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'self'") {
		t.Errorf("Content-Security-Policy = %q", got)
	}
}

func TestStaticAssets(t *testing.T) {
	_, handler := newTestServer(t)

	rec := get(handler, "/static/style.css", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
