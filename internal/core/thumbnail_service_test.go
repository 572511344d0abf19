package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"simpleblog/internal/blog"
	"simpleblog/internal/store"
)

type fakeProvider struct {
	name  string
	fail  bool
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Generate(ctx context.Context, postID, prompt string) (string, error) {
	p.calls++
	if p.fail {
		return "", fmt.Errorf("%w: test provider down", ErrProviderUnavailable)
	}
	return "https://img.example/" + p.name + "/" + postID, nil
}

func newThumbTest(t *testing.T, providers ...ImageProvider) (*ThumbnailService, *store.SQLiteStore, *blog.Snapshot) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	snapshot := blog.NewSnapshot()
	return NewThumbnailService(s, snapshot, providers), s, snapshot
}

// TestCacheHitShortCircuit verifies an existing cache entry suppresses
// generation entirely.
func TestCacheHitShortCircuit(t *testing.T) {
	primary := &fakeProvider{name: "dalle"}
	svc, dbStore, _ := newThumbTest(t, primary, PlaceholderProvider{})
	post := blog.Post{ID: "p1", Title: "T"}

	entry, outcome, err := svc.Generate(context.Background(), post)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if outcome != OutcomeGenerated || entry.Provider != "dalle" {
		t.Fatalf("expected primary generation, got %s/%+v", outcome, entry)
	}
	if primary.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", primary.calls)
	}

	// Second call must hit the cache, even if the content changed.
	entry, outcome, err = svc.Generate(context.Background(), blog.Post{ID: "p1", Title: "New title"})
	if err != nil {
		t.Fatalf("Generate(cached): %v", err)
	}
	if outcome != OutcomeCached {
		t.Fatalf("expected cached outcome, got %s", outcome)
	}
	if primary.calls != 1 {
		t.Fatalf("expected no further provider calls, got %d", primary.calls)
	}

	cached, err := dbStore.GetThumbnail("p1")
	if err != nil || cached == nil {
		t.Fatalf("expected cache entry, got %v, %v", cached, err)
	}
}

// TestCacheHitRefreshesSnapshot: a re-scan rebuilds posts without
// thumbnail references, so a later batch that only hits the cache must
// still restore the image on the visitor-visible post.
func TestCacheHitRefreshesSnapshot(t *testing.T) {
	primary := &fakeProvider{name: "dalle"}
	svc, dbStore, snapshot := newThumbTest(t, primary, PlaceholderProvider{})

	entry, err := dbStore.PutThumbnail("p1", "dalle", "https://img/p1.png")
	if err != nil {
		t.Fatalf("PutThumbnail: %v", err)
	}
	snapshot.ReplaceRepo("o/r", []blog.Post{{ID: "p1", Title: "T"}})

	report := svc.GenerateBatch(context.Background(), []blog.Post{{ID: "p1", Title: "T"}})
	if report.Cached != 1 {
		t.Fatalf("expected cache hit, got %+v", report)
	}
	if primary.calls != 0 {
		t.Fatalf("expected no provider calls, got %d", primary.calls)
	}

	post, ok := snapshot.Get("p1")
	if !ok {
		t.Fatalf("post missing from snapshot")
	}
	if post.ThumbnailURL != entry.ImageRef {
		t.Fatalf("expected snapshot thumbnail %q, got %q", entry.ImageRef, post.ThumbnailURL)
	}
}

// TestFallbackOrder exercises the chain: primary down, secondary up.
func TestFallbackOrder(t *testing.T) {
	primary := &fakeProvider{name: "dalle", fail: true}
	secondary := &fakeProvider{name: "gemini"}
	svc, _, _ := newThumbTest(t, primary, secondary, PlaceholderProvider{})

	entry, outcome, err := svc.Generate(context.Background(), blog.Post{ID: "p1", Title: "T"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if outcome != OutcomeFallback || entry.Provider != "gemini" {
		t.Fatalf("expected gemini fallback, got %s/%+v", outcome, entry)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("unexpected call counts: %d, %d", primary.calls, secondary.calls)
	}
}

// TestPlaceholderGuarantee: with every real provider failing, the post
// still ends with a non-empty thumbnail reference.
func TestPlaceholderGuarantee(t *testing.T) {
	svc, _, snapshot := newThumbTest(t,
		&fakeProvider{name: "dalle", fail: true},
		&fakeProvider{name: "gemini", fail: true},
		PlaceholderProvider{},
	)
	snapshot.ReplaceRepo("o/r", []blog.Post{{ID: "p1", Title: "T"}})

	entry, outcome, err := svc.Generate(context.Background(), blog.Post{ID: "p1", Title: "T"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if outcome != OutcomePlaceholder || entry.Provider != "placeholder" {
		t.Fatalf("expected placeholder, got %s/%+v", outcome, entry)
	}
	if entry.ImageRef == "" || !strings.HasPrefix(entry.ImageRef, "data:image/svg+xml;base64,") {
		t.Fatalf("expected inline svg reference, got %q", entry.ImageRef)
	}
	if entry.ImageRef != PlaceholderImage("p1") {
		t.Fatalf("expected deterministic placeholder")
	}

	post, _ := snapshot.Get("p1")
	if post.ThumbnailURL != entry.ImageRef {
		t.Fatalf("expected snapshot updated with thumbnail")
	}
}

// TestBatchPartialFailure checks per-post outcomes and that one post's
// failure never aborts the rest.
func TestBatchPartialFailure(t *testing.T) {
	svc, dbStore, _ := newThumbTest(t,
		&fakeProvider{name: "dalle", fail: true},
		PlaceholderProvider{},
	)

	posts := []blog.Post{
		{ID: "p1", Title: "A"},
		{ID: "p2", Title: "B"},
		{ID: "p3", Title: "C"},
	}
	// p2 already cached by a real provider.
	if _, err := dbStore.PutThumbnail("p2", "dalle", "https://img/p2.png"); err != nil {
		t.Fatalf("PutThumbnail: %v", err)
	}

	report := svc.GenerateBatch(context.Background(), posts)
	if report.Placeholder != 2 || report.Cached != 1 || report.Generated != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Posts) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(report.Posts))
	}
	for _, outcome := range report.Posts {
		if outcome.ImageRef == "" {
			t.Fatalf("post %s left without a thumbnail", outcome.PostID)
		}
	}
}

// TestRegenerateClearsCache confirms regenerate is the one invalidation
// path: entries are cleared, then rebuilt by the current chain.
func TestRegenerateClearsCache(t *testing.T) {
	primary := &fakeProvider{name: "dalle"}
	svc, dbStore, _ := newThumbTest(t, primary, PlaceholderProvider{})

	if _, err := dbStore.PutThumbnail("p1", "placeholder", PlaceholderImage("p1")); err != nil {
		t.Fatalf("PutThumbnail: %v", err)
	}

	report, err := svc.Regenerate(context.Background(), []blog.Post{{ID: "p1", Title: "T"}})
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if report.Generated != 1 {
		t.Fatalf("expected regeneration by primary, got %+v", report)
	}

	entry, err := dbStore.GetThumbnail("p1")
	if err != nil {
		t.Fatalf("GetThumbnail: %v", err)
	}
	if entry == nil || entry.Provider != "dalle" {
		t.Fatalf("expected fresh dalle entry, got %+v", entry)
	}
}
