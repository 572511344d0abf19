package core

import (
	"context"
	"fmt"

	"simpleblog/internal/geo"
	"simpleblog/internal/store"
)

type AnalyticsService struct {
	dbStore *store.SQLiteStore
	geo     *geo.Client
}

func NewAnalyticsService(db *store.SQLiteStore, geoClient *geo.Client) *AnalyticsService {
	return &AnalyticsService{dbStore: db, geo: geoClient}
}

// RecordView appends a view event. postID is empty for site-level
// views. Geolocation is best-effort enrichment: a failed lookup still
// records the event with an unknown country.
func (s *AnalyticsService) RecordView(ctx context.Context, postID, visitor, ip string) (*store.AnalyticsEvent, error) {
	country := s.geo.Country(ctx, ip)

	var pid *string
	if postID != "" {
		pid = &postID
	}
	event, err := s.dbStore.InsertEvent(pid, visitor, country)
	if err != nil {
		return nil, fmt.Errorf("failed to record view: %w", err)
	}
	return event, nil
}

func (s *AnalyticsService) RecordLike(postID string) (int64, error) {
	return s.dbStore.IncrementLike(postID)
}

// Summary is the aggregate snapshot returned to the admin. Everything
// except likes is derived from the append-only event log on demand.
type Summary struct {
	TotalViews     int64                    `json:"total_views"`
	ViewsByPost    []store.PostViewCount    `json:"views_by_post"`
	ViewsByCountry []store.CountryViewCount `json:"views_by_country"`
	LikesByPost    []store.PostLikeCount    `json:"likes_by_post"`
	RecentEvents   []store.AnalyticsEvent   `json:"recent_events"`
}

const recentEventLimit = 50

func (s *AnalyticsService) Summarize() (*Summary, error) {
	total, err := s.dbStore.TotalViews()
	if err != nil {
		return nil, err
	}
	byPost, err := s.dbStore.ViewsByPost()
	if err != nil {
		return nil, err
	}
	byCountry, err := s.dbStore.ViewsByCountry()
	if err != nil {
		return nil, err
	}
	likes, err := s.dbStore.LikesByPost()
	if err != nil {
		return nil, err
	}
	recent, err := s.dbStore.RecentEvents(recentEventLimit)
	if err != nil {
		return nil, err
	}

	return &Summary{
		TotalViews:     total,
		ViewsByPost:    byPost,
		ViewsByCountry: byCountry,
		LikesByPost:    likes,
		RecentEvents:   recent,
	}, nil
}
