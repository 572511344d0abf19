// Package fediverse exposes the blog as a read-only ActivityPub actor:
// webfinger discovery, an actor document and an outbox listing recent
// posts as Create activities.
package fediverse

import (
	"fmt"
	"sort"

	"simpleblog/internal/blog"
)

const (
	activityStreamsContext = "https://www.w3.org/ns/activitystreams"
	actorName              = "blog"
	outboxLimit            = 20
	contentPreviewLen      = 500
)

type Service struct {
	baseURL  string
	snapshot *blog.Snapshot
}

func NewService(baseURL string, snapshot *blog.Snapshot) *Service {
	return &Service{baseURL: baseURL, snapshot: snapshot}
}

// WebfingerResource reports whether the queried resource is this blog's
// actor and, if so, returns the webfinger document.
func (s *Service) WebfingerResource(resource string) (map[string]any, bool) {
	expected := fmt.Sprintf("acct:%s@", actorName)
	if len(resource) < len(expected) || resource[:len(expected)] != expected {
		return nil, false
	}
	return map[string]any{
		"subject": resource,
		"links": []map[string]any{
			{
				"rel":  "self",
				"type": "application/activity+json",
				"href": fmt.Sprintf("%s/users/%s", s.baseURL, actorName),
			},
		},
	}, true
}

// Actor builds the actor document representing the blog.
func (s *Service) Actor() map[string]any {
	actorID := fmt.Sprintf("%s/users/%s", s.baseURL, actorName)
	return map[string]any{
		"@context":          activityStreamsContext,
		"type":              "Person",
		"id":                actorID,
		"name":              "SimpleBlog",
		"preferredUsername": actorName,
		"summary":           "Markdown blog mirrored from GitHub repositories",
		"inbox":             actorID + "/inbox",
		"outbox":            actorID + "/outbox",
		"followers":         actorID + "/followers",
		"following":         actorID + "/following",
	}
}

// Outbox lists the most recently fetched posts as Create activities.
func (s *Service) Outbox() map[string]any {
	posts := append([]blog.Post(nil), s.snapshot.Posts()...)
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].FetchedAt.After(posts[j].FetchedAt)
	})
	if len(posts) > outboxLimit {
		posts = posts[:outboxLimit]
	}

	actorID := fmt.Sprintf("%s/users/%s", s.baseURL, actorName)
	activities := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		content := p.Content
		if runes := []rune(content); len(runes) > contentPreviewLen {
			content = string(runes[:contentPreviewLen]) + "..."
		}
		postURL := fmt.Sprintf("%s/posts/%s", s.baseURL, p.ID)
		activities = append(activities, map[string]any{
			"@context":  activityStreamsContext,
			"type":      "Create",
			"id":        fmt.Sprintf("%s/activities/%s", s.baseURL, p.ID),
			"actor":     actorID,
			"published": p.FetchedAt.UTC().Format("2006-01-02T15:04:05Z"),
			"object": map[string]any{
				"type":         "Article",
				"id":           postURL,
				"name":         p.Title,
				"content":      content,
				"url":          postURL,
				"attributedTo": actorID,
			},
		})
	}

	return map[string]any{
		"@context":     activityStreamsContext,
		"type":         "OrderedCollection",
		"totalItems":   len(activities),
		"orderedItems": activities,
	}
}
