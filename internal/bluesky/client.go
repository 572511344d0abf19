// Package bluesky cross-posts new blog entries to Bluesky over XRPC.
package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL     string
	Handle      string
	AppPassword string
	Client      *http.Client
}

func New(handle, appPassword string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:     "https://bsky.social/xrpc",
		Handle:      handle,
		AppPassword: appPassword,
		Client:      &http.Client{Timeout: timeout},
	}
}

type session struct {
	AccessJWT string `json:"accessJwt"`
	DID       string `json:"did"`
}

func (c *Client) createSession(ctx context.Context) (*session, error) {
	body, err := json.Marshal(map[string]string{
		"identifier": c.Handle,
		"password":   c.AppPassword,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/com.atproto.server.createSession", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bluesky auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bluesky auth http %d: %s", resp.StatusCode, raw)
	}

	var s session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode bluesky session: %w", err)
	}
	return &s, nil
}

// uploadThumb downloads the thumbnail and registers it as a blob so the
// external embed can carry a card image.
func (c *Client) uploadThumb(ctx context.Context, sess *session, imageURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch thumbnail http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read thumbnail: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	upload, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	upload.Header.Set("Content-Type", contentType)
	upload.Header.Set("Authorization", "Bearer "+sess.AccessJWT)

	uploadResp, err := c.Client.Do(upload)
	if err != nil {
		return nil, fmt.Errorf("bluesky blob upload failed: %w", err)
	}
	defer uploadResp.Body.Close()
	if uploadResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(uploadResp.Body, 512))
		return nil, fmt.Errorf("bluesky blob upload http %d: %s", uploadResp.StatusCode, raw)
	}

	var out struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.NewDecoder(uploadResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode bluesky blob: %w", err)
	}
	return out.Blob, nil
}

// PostArticle announces a new post with an external-link embed. A fresh
// session is created per call; app passwords make that cheap and it
// avoids holding token state across scans.
func (c *Client) PostArticle(ctx context.Context, title, excerpt, articleURL, imageURL string) error {
	sess, err := c.createSession(ctx)
	if err != nil {
		return err
	}

	preview := excerpt
	if runes := []rune(preview); len(runes) > 200 {
		preview = string(runes[:200]) + "..."
	}
	text := fmt.Sprintf("New blog post: %s\n\n%s\n\nRead more: %s", title, preview, articleURL)

	external := map[string]any{
		"uri":         articleURL,
		"title":       title,
		"description": preview,
	}
	// The thumbnail is best effort: a failed upload never blocks the post.
	if strings.HasPrefix(imageURL, "http") {
		if blob, err := c.uploadThumb(ctx, sess, imageURL); err != nil {
			log.Printf("bluesky thumbnail upload failed: %v", err)
		} else {
			external["thumb"] = blob
		}
	}

	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      text,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"embed": map[string]any{
			"$type":    "app.bsky.embed.external",
			"external": external,
		},
	}

	body, err := json.Marshal(map[string]any{
		"repo":       sess.DID,
		"collection": "app.bsky.feed.post",
		"record":     record,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/com.atproto.repo.createRecord", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sess.AccessJWT)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("bluesky post request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bluesky post http %d: %s", resp.StatusCode, raw)
	}
	return nil
}
