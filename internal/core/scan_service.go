package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"simpleblog/internal/blog"
	"simpleblog/internal/config"
	"simpleblog/internal/github"
	"simpleblog/internal/store"
)

// Per-repository scan statuses.
const (
	ScanOK           = "ok"
	ScanUnavailable  = "unavailable"   // repo missing or private
	ScanRateLimited  = "rate_limited"  // upstream throttled this repo
	ScanNotProcessed = "not_processed" // skipped after a rate limit
	ScanError        = "error"
)

// RepoResult is the per-repository outcome reported to the admin.
type RepoResult struct {
	Repository string `json:"repository"`
	Status     string `json:"status"`
	Posts      int    `json:"posts,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ScanReport summarizes one scan run. When RateLimited is true the
// not_processed entries tell the admin where a retry should resume.
type ScanReport struct {
	Results     []RepoResult `json:"results"`
	RateLimited bool         `json:"rate_limited"`
}

// CrossPoster publishes a newly scanned post to an external network.
// Failures are logged and swallowed; syndication never fails a scan.
type CrossPoster interface {
	PostArticle(ctx context.Context, title, excerpt, articleURL, imageURL string) error
}

type ScanService struct {
	dbStore     *store.SQLiteStore
	gh          *github.Client
	snapshot    *blog.Snapshot
	excerptLen  int
	crossPoster CrossPoster // nil when syndication is not configured
}

func NewScanService(db *store.SQLiteStore, gh *github.Client, snapshot *blog.Snapshot, excerptLen int, crossPoster CrossPoster) *ScanService {
	return &ScanService{
		dbStore:     db,
		gh:          gh,
		snapshot:    snapshot,
		excerptLen:  excerptLen,
		crossPoster: crossPoster,
	}
}

// ScanAll re-fetches every configured repository in registry order.
// Repositories are independent: one being unavailable does not stop the
// others. A rate limit aborts the rest of the run, since every further
// request would fail the same way.
func (s *ScanService) ScanAll(ctx context.Context) (*ScanReport, error) {
	repos, err := s.dbStore.ListRepositories()
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	return s.Scan(ctx, repos), nil
}

func (s *ScanService) Scan(ctx context.Context, repos []store.SourceRepository) *ScanReport {
	report := &ScanReport{}

	for i, repo := range repos {
		if report.RateLimited {
			report.Results = append(report.Results, RepoResult{
				Repository: repo.FullName(),
				Status:     ScanNotProcessed,
			})
			continue
		}

		result := s.scanRepo(ctx, repo)
		report.Results = append(report.Results, result)
		if result.Status == ScanRateLimited {
			report.RateLimited = true
		}
		log.Printf("Scanned %d/%d repositories (%s: %s)", i+1, len(repos), repo.FullName(), result.Status)
	}
	return report
}

// scanRepo fetches one repository and, only on full success, replaces
// its posts in the snapshot. A failed fetch leaves the previously
// scanned posts untouched.
func (s *ScanService) scanRepo(ctx context.Context, repo store.SourceRepository) RepoResult {
	result := RepoResult{Repository: repo.FullName()}

	files, err := s.gh.ListMarkdownFiles(ctx, repo.Owner, repo.Name)
	if err != nil {
		switch {
		case errors.Is(err, github.ErrRateLimited):
			result.Status = ScanRateLimited
		case errors.Is(err, github.ErrSourceUnavailable):
			result.Status = ScanUnavailable
		default:
			result.Status = ScanError
		}
		result.Error = err.Error()
		return result
	}

	fetchedAt := time.Now()
	posts := make([]blog.Post, 0, len(files))
	for _, file := range files {
		posts = append(posts, blog.Normalize(repo, file, s.excerptLen, fetchedAt))
	}

	previous := make(map[string]bool)
	for _, p := range s.snapshot.Posts() {
		previous[p.ID] = true
	}

	s.snapshot.ReplaceRepo(repo.FullName(), posts)

	if s.crossPoster != nil {
		for _, p := range posts {
			if !previous[p.ID] {
				s.syndicate(ctx, p)
			}
		}
	}

	result.Status = ScanOK
	result.Posts = len(posts)
	return result
}

func (s *ScanService) syndicate(ctx context.Context, p blog.Post) {
	articleURL := fmt.Sprintf("%s/posts/%s", config.AppConfig.BaseURL, p.ID)
	imageURL := p.ThumbnailURL
	if imageURL == "" {
		// Posts come out of a scan without a thumbnail reference; reuse
		// whatever an earlier generation batch cached for this id.
		if entry, err := s.dbStore.GetThumbnail(p.ID); err == nil && entry != nil {
			imageURL = entry.ImageRef
		}
	}
	if err := s.crossPoster.PostArticle(ctx, p.Title, p.Excerpt, articleURL, imageURL); err != nil {
		log.Printf("Cross-post failed for post %s: %v", p.ID, err)
	}
}
