package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeGitHub serves a small nested repository tree:
//
//	readme.md
//	docs/intro.md
//	docs/img/logo.png
//	src/main.go
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := func(name, path, typ string) map[string]any {
			e := map[string]any{"name": name, "path": path, "type": typ}
			if typ == "file" {
				e["download_url"] = srv.URL + "/raw/" + path
			}
			return e
		}
		switch r.URL.Path {
		case "/repos/octocat/Hello-World/contents/":
			json.NewEncoder(w).Encode([]any{
				entry("readme.md", "readme.md", "file"),
				entry("docs", "docs", "dir"),
				entry("src", "src", "dir"),
			})
		case "/repos/octocat/Hello-World/contents/docs":
			json.NewEncoder(w).Encode([]any{
				entry("intro.md", "docs/intro.md", "file"),
				entry("img", "docs/img", "dir"),
			})
		case "/repos/octocat/Hello-World/contents/docs/img":
			json.NewEncoder(w).Encode([]any{
				entry("logo.png", "docs/img/logo.png", "file"),
			})
		case "/repos/octocat/Hello-World/contents/src":
			json.NewEncoder(w).Encode([]any{
				entry("main.go", "src/main.go", "file"),
			})
		case "/repos/octocat/binary-only/contents/":
			json.NewEncoder(w).Encode([]any{
				entry("app.bin", "app.bin", "file"),
				entry("data.csv", "data.csv", "file"),
			})
		case "/raw/readme.md":
			w.Write([]byte("# Hello"))
		case "/raw/docs/intro.md":
			w.Write([]byte("# Intro"))
		case "/repos/octocat/throttled/contents/":
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	c := New("", 5*time.Second)
	c.BaseURL = srv.URL
	return c
}

// TestListMarkdownFiles walks nested directories and collects only
// markdown files, each exactly once.
func TestListMarkdownFiles(t *testing.T) {
	c := newTestClient(fakeGitHub(t))

	files, err := c.ListMarkdownFiles(context.Background(), "octocat", "Hello-World")
	if err != nil {
		t.Fatalf("ListMarkdownFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 markdown files, got %d", len(files))
	}

	byPath := make(map[string]string)
	for _, f := range files {
		if _, dup := byPath[f.Path]; dup {
			t.Fatalf("file %s visited twice", f.Path)
		}
		byPath[f.Path] = string(f.Content)
	}
	if byPath["readme.md"] != "# Hello" || byPath["docs/intro.md"] != "# Intro" {
		t.Fatalf("unexpected files: %v", byPath)
	}
}

// TestNonMarkdownRepoYieldsNothing checks the zero-post property for a
// repository holding only non-markdown files.
func TestNonMarkdownRepoYieldsNothing(t *testing.T) {
	c := newTestClient(fakeGitHub(t))

	files, err := c.ListMarkdownFiles(context.Background(), "octocat", "binary-only")
	if err != nil {
		t.Fatalf("ListMarkdownFiles: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %d", len(files))
	}
}

// TestMissingRepoIsSourceUnavailable maps 404 onto the sentinel.
func TestMissingRepoIsSourceUnavailable(t *testing.T) {
	c := newTestClient(fakeGitHub(t))

	_, err := c.ListMarkdownFiles(context.Background(), "octocat", "deleted")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

// TestRateLimitDetection maps 403-with-exhausted-quota onto the
// rate-limit sentinel.
func TestRateLimitDetection(t *testing.T) {
	c := newTestClient(fakeGitHub(t))

	_, err := c.ListMarkdownFiles(context.Background(), "octocat", "throttled")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
