package core

import (
	"context"
	"errors"
	"fmt"
	"log"

	"simpleblog/internal/blog"
	"simpleblog/internal/store"
)

// Thumbnail outcomes reported per post in batch results.
const (
	OutcomeCached      = "cached"      // cache entry already existed
	OutcomeGenerated   = "generated"   // primary provider succeeded
	OutcomeFallback    = "fallback"    // a secondary provider succeeded
	OutcomePlaceholder = "placeholder" // every real provider failed
	OutcomeNotFound    = "not_found"   // requested id is not in the current post list
)

type ThumbnailService struct {
	dbStore   *store.SQLiteStore
	snapshot  *blog.Snapshot
	providers []ImageProvider // tried in order; last one must not fail
}

func NewThumbnailService(db *store.SQLiteStore, snapshot *blog.Snapshot, providers []ImageProvider) *ThumbnailService {
	return &ThumbnailService{
		dbStore:   db,
		snapshot:  snapshot,
		providers: providers,
	}
}

// PostOutcome is the per-post result of a batch generation.
type PostOutcome struct {
	PostID   string `json:"post_id"`
	Outcome  string `json:"outcome"`
	Provider string `json:"provider,omitempty"`
	ImageRef string `json:"image_ref,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchReport summarizes a batch: every post is accounted for and every
// post ends up with an image reference.
type BatchReport struct {
	Generated   int           `json:"generated"`
	Fallback    int           `json:"fallback"`
	Placeholder int           `json:"placeholder"`
	Cached      int           `json:"cached"`
	Posts       []PostOutcome `json:"posts"`
}

// Generate returns the thumbnail for a post, producing and caching one
// if needed. An existing cache entry wins unconditionally; there is no
// freshness check against the post's current content.
func (s *ThumbnailService) Generate(ctx context.Context, post blog.Post) (*store.ThumbnailCacheEntry, string, error) {
	cached, err := s.dbStore.GetThumbnail(post.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check thumbnail cache: %w", err)
	}
	if cached != nil {
		// A re-scan rebuilds posts with an empty thumbnail reference,
		// so a cache hit must still push the image into the snapshot.
		s.snapshot.SetThumbnail(post.ID, cached.ImageRef)
		return cached, OutcomeCached, nil
	}

	prompt := post.Title
	if post.Excerpt != "" {
		prompt += ". " + post.Excerpt
	}

	for i, provider := range s.providers {
		imageRef, err := provider.Generate(ctx, post.ID, prompt)
		if err != nil {
			if errors.Is(err, ErrProviderUnavailable) {
				log.Printf("Provider %s unavailable for post %s: %v", provider.Name(), post.ID, err)
				continue
			}
			return nil, "", fmt.Errorf("provider %s failed for post %s: %w", provider.Name(), post.ID, err)
		}

		entry, err := s.dbStore.PutThumbnail(post.ID, provider.Name(), imageRef)
		if err != nil {
			return nil, "", err
		}
		s.snapshot.SetThumbnail(post.ID, entry.ImageRef)

		outcome := OutcomeGenerated
		switch {
		case entry.Provider == "placeholder":
			outcome = OutcomePlaceholder
		case i > 0:
			outcome = OutcomeFallback
		}
		return entry, outcome, nil
	}

	return nil, "", fmt.Errorf("%w: provider chain exhausted for post %s", ErrProviderUnavailable, post.ID)
}

// GenerateBatch fills in a thumbnail for every post lacking a cache
// entry. Individual failures never abort the batch; a post whose
// generation errored out entirely is still covered by a stored
// placeholder before the batch returns.
func (s *ThumbnailService) GenerateBatch(ctx context.Context, posts []blog.Post) BatchReport {
	var report BatchReport
	for _, post := range posts {
		entry, outcome, err := s.Generate(ctx, post)
		if err != nil {
			log.Printf("Thumbnail generation failed for post %s: %v", post.ID, err)
			entry, err = s.dbStore.PutThumbnail(post.ID, "placeholder", PlaceholderImage(post.ID))
			if err != nil {
				// The store itself is failing; report the post but keep going.
				report.Posts = append(report.Posts, PostOutcome{PostID: post.ID, Outcome: OutcomePlaceholder, Error: err.Error()})
				report.Placeholder++
				continue
			}
			s.snapshot.SetThumbnail(post.ID, entry.ImageRef)
			outcome = OutcomePlaceholder
		}

		switch outcome {
		case OutcomeGenerated:
			report.Generated++
		case OutcomeFallback:
			report.Fallback++
		case OutcomePlaceholder:
			report.Placeholder++
		case OutcomeCached:
			report.Cached++
		}
		report.Posts = append(report.Posts, PostOutcome{
			PostID:   post.ID,
			Outcome:  outcome,
			Provider: entry.Provider,
			ImageRef: entry.ImageRef,
		})
	}
	return report
}

// Regenerate clears the cache entries for the given posts and runs a
// fresh batch. This is the only path that invalidates cached
// thumbnails.
func (s *ThumbnailService) Regenerate(ctx context.Context, posts []blog.Post) (BatchReport, error) {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	if err := s.dbStore.DeleteThumbnails(ids); err != nil {
		return BatchReport{}, fmt.Errorf("failed to clear thumbnail cache: %w", err)
	}
	return s.GenerateBatch(ctx, posts), nil
}
