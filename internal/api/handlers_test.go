package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"simpleblog/internal/auth"
	"simpleblog/internal/blog"
	"simpleblog/internal/config"
	"simpleblog/internal/core"
	"simpleblog/internal/fediverse"
	"simpleblog/internal/geo"
	"simpleblog/internal/github"
	"simpleblog/internal/store"
)

// newTestServer wires a full router over a temp database, with no real
// outbound endpoints: geo lookups fail fast and the thumbnail chain is
// placeholder-only.
func newTestServer(t *testing.T) (*httptest.Server, *blog.Snapshot) {
	t.Helper()
	config.AppConfig.JWTSecret = "test-secret"
	config.AppConfig.BaseURL = "https://blog.example"

	dbStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = dbStore.Close() })

	hash, err := auth.HashPassword("admin")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := dbStore.EnsureAdminCredential("admin", hash); err != nil {
		t.Fatalf("EnsureAdminCredential: %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	geoClient := geo.New(time.Second)
	geoClient.BaseURL = closed.URL

	snapshot := blog.NewSnapshot()
	handler := NewAPIHandler(
		core.NewAdminService(dbStore, snapshot),
		core.NewScanService(dbStore, github.New("", time.Second), snapshot, 200, nil),
		core.NewThumbnailService(dbStore, snapshot, []core.ImageProvider{core.PlaceholderProvider{}}),
		core.NewAnalyticsService(dbStore, geoClient),
		snapshot,
		fediverse.NewService(config.AppConfig.BaseURL, snapshot),
	)

	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv, snapshot
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest("POST", url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

// TestLoginAndAdminAccess covers the credential check, the must_change
// flag on the shipped default, and token-gated admin routes.
func TestLoginAndAdminAccess(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/login", "", map[string]string{"username": "admin", "password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/admin/login", "", map[string]string{"username": "admin", "password": "admin"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 login, got %d", resp.StatusCode)
	}
	var login struct {
		Token      string `json:"token"`
		MustChange bool   `json:"must_change"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	resp.Body.Close()
	if login.Token == "" || !login.MustChange {
		t.Fatalf("expected token and must_change, got %+v", login)
	}

	// Admin routes demand the token.
	r, _ := http.Get(srv.URL + "/api/admin/repositories")
	if r.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", r.StatusCode)
	}
	r.Body.Close()

	resp = postJSON(t, srv.URL+"/api/admin/repositories", login.Token, map[string]string{"owner": "octocat", "name": "Hello-World"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Malformed names fail validation before any network call.
	resp = postJSON(t, srv.URL+"/api/admin/repositories", login.Token, map[string]string{"owner": "bad", "name": "format/name"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad name, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// TestThumbnailsUnknownIDsReported: every requested id shows up in the
// batch report, unknown ones as not_found.
func TestThumbnailsUnknownIDsReported(t *testing.T) {
	srv, snapshot := newTestServer(t)
	snapshot.ReplaceRepo("o/r", []blog.Post{{ID: "p1", Title: "Hello"}})

	resp := postJSON(t, srv.URL+"/api/admin/login", "", map[string]string{"username": "admin", "password": "admin"})
	var login struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/admin/thumbnails", login.Token, map[string]any{"post_ids": []string{"p1", "ghost"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var report core.BatchReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	resp.Body.Close()

	if len(report.Posts) != 2 {
		t.Fatalf("expected 2 outcomes, got %+v", report.Posts)
	}
	outcomes := make(map[string]string, len(report.Posts))
	for _, p := range report.Posts {
		outcomes[p.PostID] = p.Outcome
	}
	if outcomes["p1"] != core.OutcomePlaceholder {
		t.Fatalf("expected placeholder for p1, got %q", outcomes["p1"])
	}
	if outcomes["ghost"] != core.OutcomeNotFound {
		t.Fatalf("expected not_found for ghost, got %q", outcomes["ghost"])
	}
}

// TestVisitorSurface exercises list/get/view/like against a populated
// snapshot.
func TestVisitorSurface(t *testing.T) {
	srv, snapshot := newTestServer(t)
	snapshot.ReplaceRepo("o/r", []blog.Post{{ID: "p1", Title: "Hello"}})

	r, err := http.Get(srv.URL + "/api/posts")
	if err != nil {
		t.Fatalf("GET posts: %v", err)
	}
	var posts []blog.Post
	if err := json.NewDecoder(r.Body).Decode(&posts); err != nil {
		t.Fatalf("decode posts: %v", err)
	}
	r.Body.Close()
	if len(posts) != 1 || posts[0].ID != "p1" {
		t.Fatalf("unexpected posts: %+v", posts)
	}

	r, _ = http.Get(srv.URL + "/api/posts/unknown")
	if r.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown post, got %d", r.StatusCode)
	}
	r.Body.Close()

	resp := postJSON(t, srv.URL+"/api/posts/p1/view", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 view, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/posts/p1/like", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 like, got %d", resp.StatusCode)
	}
	var like struct {
		Likes int64 `json:"likes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&like); err != nil {
		t.Fatalf("decode like: %v", err)
	}
	resp.Body.Close()
	if like.Likes != 1 {
		t.Fatalf("expected 1 like, got %d", like.Likes)
	}

	resp = postJSON(t, srv.URL+"/api/posts/unknown/like", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 like for unknown post, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// TestWebfingerEndpoint checks actor discovery.
func TestWebfingerEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	r, err := http.Get(srv.URL + "/.well-known/webfinger?resource=acct:blog@blog.example")
	if err != nil {
		t.Fatalf("GET webfinger: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", r.StatusCode)
	}

	r2, _ := http.Get(srv.URL + "/.well-known/webfinger?resource=acct:nobody@blog.example")
	if r2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", r2.StatusCode)
	}
	r2.Body.Close()
}
