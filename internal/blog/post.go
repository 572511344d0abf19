package blog

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strings"
	"time"

	"simpleblog/internal/github"
	"simpleblog/internal/store"
)

// Post is one normalized blog entry derived from a markdown file.
type Post struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	Repo         string    `json:"repo"`
	Path         string    `json:"path"`
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	Excerpt      string    `json:"excerpt"`
	Content      string    `json:"content"`
	FetchedAt    time.Time `json:"fetched_at"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// PostID derives the stable identifier for a file. It depends only on
// where the file lives, never on its content, so re-scans keep ids
// stable and thumbnail/like data survives.
func PostID(owner, repo, filePath string) string {
	sum := sha256.Sum256([]byte(owner + "/" + repo + "/" + filePath))
	return hex.EncodeToString(sum[:])[:16]
}

// Normalize builds a Post from a raw markdown file.
func Normalize(repo store.SourceRepository, file github.RawFile, excerptLen int, fetchedAt time.Time) Post {
	content := string(file.Content)
	return Post{
		ID:        PostID(repo.Owner, repo.Name, file.Path),
		Owner:     repo.Owner,
		Repo:      repo.Name,
		Path:      file.Path,
		Title:     titleFor(file.Path, content),
		Tags:      tagsFor(file.Path),
		Excerpt:   excerptFor(content, excerptLen),
		Content:   content,
		FetchedAt: fetchedAt,
	}
}

var headingRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// titleFor prefers the first level-1 heading, then the filename without
// its extension, then the full path.
func titleFor(filePath, content string) string {
	if m := headingRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	base := strings.TrimSuffix(path.Base(filePath), ".md")
	if base != "" && base != "." {
		return base
	}
	return filePath
}

// tagsFor turns the directory segments above the file into tags,
// lower-cased, de-duplicated while preserving first-seen order.
func tagsFor(filePath string) []string {
	dir := path.Dir(filePath)
	if dir == "." || dir == "/" {
		return nil
	}
	var tags []string
	seen := make(map[string]bool)
	for _, segment := range strings.Split(dir, "/") {
		if segment == "" {
			continue
		}
		tag := strings.ToLower(segment)
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

var (
	linkRe   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	imageRe  = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	inlineRe = regexp.MustCompile("[*_`~]")
)

// excerptFor strips markdown syntax and truncates to n runes with an
// ellipsis. The result is deterministic for identical input.
func excerptFor(content string, n int) string {
	var parts []string
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" {
			continue
		}
		trimmed = strings.TrimLeft(trimmed, "#>")
		trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "- ")
		trimmed = imageRe.ReplaceAllString(trimmed, "")
		trimmed = linkRe.ReplaceAllString(trimmed, "$1")
		trimmed = inlineRe.ReplaceAllString(trimmed, "")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}

	text := strings.Join(parts, " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
