package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrSourceUnavailable marks a repository that does not exist or is
	// not readable (private or deleted).
	ErrSourceUnavailable = errors.New("source repository unavailable")

	// ErrRateLimited marks an upstream throttling response. Callers
	// should stop issuing requests for this run.
	ErrRateLimited = errors.New("github rate limit exceeded")
)

// RawFile is one markdown file discovered during a scan.
type RawFile struct {
	Path    string
	Content []byte
}

type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func New(token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: "https://api.github.com",
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

// contentEntry is the subset of the contents API response we care about.
type contentEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // "file", "dir", "symlink", "submodule"
	DownloadURL string `json:"download_url"`
}

// ListMarkdownFiles walks the repository tree from its root and returns
// every file whose path ends in ".md", each fetched exactly once.
// Traversal is depth-first; callers must not depend on the order.
func (c *Client) ListMarkdownFiles(ctx context.Context, owner, repo string) ([]RawFile, error) {
	var files []RawFile
	if err := c.walk(ctx, owner, repo, "", &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) walk(ctx context.Context, owner, repo, dir string, files *[]RawFile) error {
	entries, err := c.listContents(ctx, owner, repo, dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		switch entry.Type {
		case "dir":
			if err := c.walk(ctx, owner, repo, entry.Path, files); err != nil {
				return err
			}
		case "file":
			if !strings.HasSuffix(entry.Name, ".md") {
				continue
			}
			content, err := c.download(ctx, entry.DownloadURL)
			if err != nil {
				return err
			}
			*files = append(*files, RawFile{Path: entry.Path, Content: content})
		}
	}
	return nil
}

func (c *Client) listContents(ctx context.Context, owner, repo, dir string) ([]contentEntry, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.BaseURL, url.PathEscape(owner), url.PathEscape(repo), escapePath(dir))

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		// Timeouts and transport failures count as the source being
		// unreachable for this run.
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var entries []contentEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode contents listing: %w", err)
	}
	return entries, nil
}

func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "simpleblog/1.0")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		// Unauthenticated callers hit this after 60 requests/hour.
		return ErrRateLimited
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return ErrSourceUnavailable
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github http %d: %s", resp.StatusCode, raw)
	}
}

// escapePath escapes each segment of a repo-relative path while keeping
// the separators.
func escapePath(p string) string {
	if p == "" {
		return ""
	}
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
