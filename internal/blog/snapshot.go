package blog

import "sync"

// Snapshot holds the in-memory post list served to visitors. Posts for
// a repository are replaced wholesale once its scan succeeds; readers
// always observe a complete list, never a partial update. The snapshot
// is a rebuildable cache and is not persisted: after a restart the list
// stays empty until an admin runs a scan.
type Snapshot struct {
	mu      sync.RWMutex
	byRepo  map[string][]Post // keyed by "owner/name"
	ordered []Post
}

func NewSnapshot() *Snapshot {
	return &Snapshot{byRepo: make(map[string][]Post)}
}

// ReplaceRepo swaps in a repository's freshly scanned posts and
// rebuilds the published list off to the side.
func (s *Snapshot) ReplaceRepo(repoKey string, posts []Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRepo[repoKey] = posts
	s.rebuildLocked()
}

// DropRepo removes a repository's posts, used when the repository is
// removed from the registry.
func (s *Snapshot) DropRepo(repoKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRepo, repoKey)
	s.rebuildLocked()
}

func (s *Snapshot) rebuildLocked() {
	next := make([]Post, 0, len(s.ordered))
	for _, posts := range s.byRepo {
		next = append(next, posts...)
	}
	s.ordered = next
}

// Posts returns the current list. The slice is replaced, never mutated,
// so callers may read it without holding the lock.
func (s *Snapshot) Posts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ordered
}

func (s *Snapshot) Get(id string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.ordered {
		if p.ID == id {
			return p, true
		}
	}
	return Post{}, false
}

// SetThumbnail records a generated image on the in-memory copy of a
// post. A miss is fine; the post may have been dropped by a re-scan.
func (s *Snapshot) SetThumbnail(id, imageRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, posts := range s.byRepo {
		for i, p := range posts {
			if p.ID != id {
				continue
			}
			next := make([]Post, len(posts))
			copy(next, posts)
			next[i].ThumbnailURL = imageRef
			s.byRepo[key] = next
			s.rebuildLocked()
			return
		}
	}
}
