package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestPlaceholderDeterministic: same post id, same image; different
// ids, different images.
func TestPlaceholderDeterministic(t *testing.T) {
	a := PlaceholderImage("p1")
	if a != PlaceholderImage("p1") {
		t.Fatalf("expected deterministic placeholder")
	}
	if a == PlaceholderImage("q2") {
		t.Fatalf("expected id-dependent placeholder")
	}

	ref, err := PlaceholderProvider{}.Generate(context.Background(), "p1", "whatever")
	if err != nil {
		t.Fatalf("placeholder Generate: %v", err)
	}
	if ref != a {
		t.Fatalf("provider and helper disagree")
	}
}

// TestDalleProvider covers the success path and the unavailable
// mapping for auth/quota errors.
func TestDalleProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data":[{"url":"https://img.example/out.png"}]}`))
	}))
	t.Cleanup(srv.Close)

	p := NewDalleProvider("k", 2*time.Second)
	p.BaseURL = srv.URL

	ref, err := p.Generate(context.Background(), "p1", "a sunset")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ref != "https://img.example/out.png" {
		t.Fatalf("unexpected image ref %q", ref)
	}

	bad := NewDalleProvider("wrong", 2*time.Second)
	bad.BaseURL = srv.URL
	if _, err := bad.Generate(context.Background(), "p1", "a sunset"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	unkeyed := NewDalleProvider("", 2*time.Second)
	if _, err := unkeyed.Generate(context.Background(), "p1", "a sunset"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable without key, got %v", err)
	}
}
