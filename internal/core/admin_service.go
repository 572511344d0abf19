package core

import (
	"errors"
	"fmt"
	"regexp"

	"simpleblog/internal/auth"
	"simpleblog/internal/blog"
	"simpleblog/internal/store"
)

var (
	// ErrValidation marks malformed admin input; the message is safe to
	// show to the caller.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown repository or post id.
	ErrNotFound = errors.New("not found")

	// ErrBadCredentials marks a failed login or password verification.
	ErrBadCredentials = errors.New("invalid credentials")
)

// repoPartRe matches a single GitHub owner or repository name. Slashes
// are rejected, so "bad/format/name" fails before any network call.
var repoPartRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,99}$`)

const minPasswordLength = 6

type AdminService struct {
	dbStore  *store.SQLiteStore
	snapshot *blog.Snapshot
}

func NewAdminService(db *store.SQLiteStore, snapshot *blog.Snapshot) *AdminService {
	return &AdminService{dbStore: db, snapshot: snapshot}
}

func validateRepoName(owner, name string) error {
	if !repoPartRe.MatchString(owner) {
		return fmt.Errorf("%w: invalid repository owner %q", ErrValidation, owner)
	}
	if !repoPartRe.MatchString(name) {
		return fmt.Errorf("%w: invalid repository name %q", ErrValidation, name)
	}
	return nil
}

func (s *AdminService) AddRepository(owner, name string) (*store.SourceRepository, error) {
	if err := validateRepoName(owner, name); err != nil {
		return nil, err
	}
	existing, err := s.dbStore.GetRepository(owner, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: repository %s/%s already configured", ErrValidation, owner, name)
	}
	return s.dbStore.AddRepository(owner, name)
}

func (s *AdminService) ListRepositories() ([]store.SourceRepository, error) {
	return s.dbStore.ListRepositories()
}

// RemoveRepository drops a repository from the registry and its posts
// from the snapshot. Cached thumbnails and analytics stay: post ids are
// stable, so a re-added repository picks them back up.
func (s *AdminService) RemoveRepository(owner, name string) error {
	if err := validateRepoName(owner, name); err != nil {
		return err
	}
	removed, err := s.dbStore.RemoveRepository(owner, name)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: repository %s/%s is not configured", ErrNotFound, owner, name)
	}
	s.snapshot.DropRepo(owner + "/" + name)
	return nil
}

// Login verifies the admin credential and reports whether the password
// still needs its forced first change.
func (s *AdminService) Login(username, password string) (mustChange bool, err error) {
	cred, err := s.dbStore.GetAdminCredential()
	if err != nil {
		return false, err
	}
	if cred == nil || cred.Username != username || !auth.CheckPasswordHash(password, cred.PasswordHash) {
		return false, ErrBadCredentials
	}
	return cred.MustChange, nil
}

// ChangePassword rotates the admin password. A successful change clears
// the must_change flag set on the shipped default credential.
func (s *AdminService) ChangePassword(oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	cred, err := s.dbStore.GetAdminCredential()
	if err != nil {
		return err
	}
	if cred == nil || !auth.CheckPasswordHash(oldPassword, cred.PasswordHash) {
		return ErrBadCredentials
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.dbStore.UpdateAdminPassword(hash)
}
