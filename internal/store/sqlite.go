package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	// WAL plus a busy timeout so concurrent request handlers serialize
	// on conflicting writes instead of failing with SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dataSourceName)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS repositories (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        owner TEXT NOT NULL,
        name TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (owner, name)
    );

    CREATE TABLE IF NOT EXISTS thumbnails (
        post_id TEXT PRIMARY KEY,
        provider TEXT NOT NULL CHECK (provider IN ('dalle', 'gemini', 'placeholder')),
        image_ref TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS analytics_events (
        id TEXT PRIMARY KEY, -- UUID
        post_id TEXT,        -- NULL for site-level views
        visitor TEXT NOT NULL,
        country TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_events_post ON analytics_events(post_id);
    CREATE INDEX IF NOT EXISTS idx_events_created ON analytics_events(created_at);

    CREATE TABLE IF NOT EXISTS likes (
        post_id TEXT PRIMARY KEY,
        count INTEGER NOT NULL DEFAULT 0
    );

    CREATE TABLE IF NOT EXISTS admin_credential (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        username TEXT NOT NULL,
        password_hash TEXT NOT NULL,
        must_change BOOLEAN NOT NULL DEFAULT TRUE
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Repository registry methods

func (s *SQLiteStore) AddRepository(owner, name string) (*SourceRepository, error) {
	res, err := s.db.Exec("INSERT INTO repositories (owner, name) VALUES (?, ?)", owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to insert repository: %w", err)
	}
	id, _ := res.LastInsertId()

	var repo SourceRepository
	err = s.db.QueryRow("SELECT id, owner, name, created_at FROM repositories WHERE id = ?", id).
		Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read back repository: %w", err)
	}
	return &repo, nil
}

func (s *SQLiteStore) GetRepository(owner, name string) (*SourceRepository, error) {
	var repo SourceRepository
	err := s.db.QueryRow("SELECT id, owner, name, created_at FROM repositories WHERE owner = ? AND name = ?", owner, name).
		Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query repository: %w", err)
	}
	return &repo, nil
}

func (s *SQLiteStore) ListRepositories() ([]SourceRepository, error) {
	rows, err := s.db.Query("SELECT id, owner, name, created_at FROM repositories ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories: %w", err)
	}
	defer rows.Close()

	var repos []SourceRepository
	for rows.Next() {
		var repo SourceRepository
		if err := rows.Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan repository row: %w", err)
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

func (s *SQLiteStore) RemoveRepository(owner, name string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM repositories WHERE owner = ? AND name = ?", owner, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete repository: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Thumbnail cache methods

func (s *SQLiteStore) GetThumbnail(postID string) (*ThumbnailCacheEntry, error) {
	var entry ThumbnailCacheEntry
	err := s.db.QueryRow("SELECT post_id, provider, image_ref, created_at FROM thumbnails WHERE post_id = ?", postID).
		Scan(&entry.PostID, &entry.Provider, &entry.ImageRef, &entry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not cached
		}
		return nil, fmt.Errorf("failed to query thumbnail: %w", err)
	}
	return &entry, nil
}

// PutThumbnail stores a cache entry unless one already exists for the
// post. The stored entry is returned either way, so a losing concurrent
// insert adopts the winner's image.
func (s *SQLiteStore) PutThumbnail(postID, provider, imageRef string) (*ThumbnailCacheEntry, error) {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO thumbnails (post_id, provider, image_ref, created_at) VALUES (?, ?, ?, ?)",
		postID, provider, imageRef, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert thumbnail: %w", err)
	}
	entry, err := s.GetThumbnail(postID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("thumbnail for post %s missing after insert", postID)
	}
	return entry, nil
}

func (s *SQLiteStore) DeleteThumbnails(postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin thumbnail delete: %w", err)
	}
	stmt, err := tx.Prepare("DELETE FROM thumbnails WHERE post_id = ?")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare thumbnail delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range postIDs {
		if _, err := stmt.Exec(id); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to delete thumbnail for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Analytics methods

func (s *SQLiteStore) InsertEvent(postID *string, visitor, country string) (*AnalyticsEvent, error) {
	event := AnalyticsEvent{
		ID:        uuid.NewString(),
		PostID:    postID,
		Visitor:   visitor,
		Country:   country,
		CreatedAt: time.Now(),
	}
	_, err := s.db.Exec(
		"INSERT INTO analytics_events (id, post_id, visitor, country, created_at) VALUES (?, ?, ?, ?, ?)",
		event.ID, event.PostID, event.Visitor, event.Country, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert analytics event: %w", err)
	}
	return &event, nil
}

// IncrementLike adds one to a post's like counter. The upsert runs as a
// single statement, so concurrent likes cannot lose updates. Repeat
// likes from one visitor all count; the original behaves the same way.
func (s *SQLiteStore) IncrementLike(postID string) (int64, error) {
	_, err := s.db.Exec(
		"INSERT INTO likes (post_id, count) VALUES (?, 1) ON CONFLICT(post_id) DO UPDATE SET count = count + 1",
		postID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to increment like: %w", err)
	}
	var count int64
	if err := s.db.QueryRow("SELECT count FROM likes WHERE post_id = ?", postID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read like count: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) TotalViews() (int64, error) {
	var total int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM analytics_events").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) ViewsByPost() ([]PostViewCount, error) {
	rows, err := s.db.Query(`
        SELECT post_id, COUNT(*) AS views
        FROM analytics_events
        WHERE post_id IS NOT NULL
        GROUP BY post_id
        ORDER BY views DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query views by post: %w", err)
	}
	defer rows.Close()

	var counts []PostViewCount
	for rows.Next() {
		var c PostViewCount
		if err := rows.Scan(&c.PostID, &c.Views); err != nil {
			return nil, fmt.Errorf("failed to scan view count row: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, nil
}

func (s *SQLiteStore) ViewsByCountry() ([]CountryViewCount, error) {
	rows, err := s.db.Query(`
        SELECT country, COUNT(*) AS views
        FROM analytics_events
        GROUP BY country
        ORDER BY views DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query views by country: %w", err)
	}
	defer rows.Close()

	var counts []CountryViewCount
	for rows.Next() {
		var c CountryViewCount
		if err := rows.Scan(&c.Country, &c.Views); err != nil {
			return nil, fmt.Errorf("failed to scan country count row: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, nil
}

func (s *SQLiteStore) RecentEvents(n int) ([]AnalyticsEvent, error) {
	rows, err := s.db.Query(`
        SELECT id, post_id, visitor, country, created_at
        FROM analytics_events
        ORDER BY created_at DESC
        LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []AnalyticsEvent
	for rows.Next() {
		var e AnalyticsEvent
		var postID sql.NullString
		if err := rows.Scan(&e.ID, &postID, &e.Visitor, &e.Country, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if postID.Valid {
			e.PostID = &postID.String
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *SQLiteStore) LikesByPost() ([]PostLikeCount, error) {
	rows, err := s.db.Query("SELECT post_id, count FROM likes ORDER BY count DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}
	defer rows.Close()

	var counts []PostLikeCount
	for rows.Next() {
		var c PostLikeCount
		if err := rows.Scan(&c.PostID, &c.Likes); err != nil {
			return nil, fmt.Errorf("failed to scan like count row: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, nil
}

// Admin credential methods

// EnsureAdminCredential seeds the single credential row when missing.
// The shipped default is flagged must_change until the first successful
// password change.
func (s *SQLiteStore) EnsureAdminCredential(username, passwordHash string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO admin_credential (id, username, password_hash, must_change) VALUES (1, ?, ?, TRUE)",
		username, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to seed admin credential: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAdminCredential() (*AdminCredential, error) {
	var cred AdminCredential
	err := s.db.QueryRow("SELECT username, password_hash, must_change FROM admin_credential WHERE id = 1").
		Scan(&cred.Username, &cred.PasswordHash, &cred.MustChange)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query admin credential: %w", err)
	}
	return &cred, nil
}

func (s *SQLiteStore) UpdateAdminPassword(passwordHash string) error {
	res, err := s.db.Exec("UPDATE admin_credential SET password_hash = ?, must_change = FALSE WHERE id = 1", passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update admin password: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("admin credential not found, password not updated")
	}
	return nil
}
