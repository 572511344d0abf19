package store

import "time"

type SourceRepository struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (r SourceRepository) FullName() string {
	return r.Owner + "/" + r.Name
}

// ThumbnailCacheEntry maps a post id to a previously generated image.
// At most one entry exists per post; it is only removed by an explicit
// regenerate action.
type ThumbnailCacheEntry struct {
	PostID    string    `json:"post_id"`
	Provider  string    `json:"provider"` // "dalle", "gemini" or "placeholder"
	ImageRef  string    `json:"image_ref"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalyticsEvent is an append-only view record. PostID is nil for
// site-level views.
type AnalyticsEvent struct {
	ID        string    `json:"id"` // UUID
	PostID    *string   `json:"post_id"`
	Visitor   string    `json:"visitor"`
	Country   string    `json:"country"` // empty when geolocation failed
	CreatedAt time.Time `json:"created_at"`
}

type AdminCredential struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Do not expose this in JSON responses
	MustChange   bool   `json:"must_change"`
}

type PostViewCount struct {
	PostID string `json:"post_id"`
	Views  int64  `json:"views"`
}

type CountryViewCount struct {
	Country string `json:"country"`
	Views   int64  `json:"views"`
}

type PostLikeCount struct {
	PostID string `json:"post_id"`
	Likes  int64  `json:"likes"`
}
