package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"simpleblog/internal/auth"
	"simpleblog/internal/blog"
	"simpleblog/internal/core"
	"simpleblog/internal/fediverse"
)

type APIHandler struct {
	adminService     *core.AdminService
	scanService      *core.ScanService
	thumbnailService *core.ThumbnailService
	analyticsService *core.AnalyticsService
	snapshot         *blog.Snapshot
	fediverse        *fediverse.Service
}

func NewAPIHandler(
	admin *core.AdminService,
	scan *core.ScanService,
	thumbs *core.ThumbnailService,
	analytics *core.AnalyticsService,
	snapshot *blog.Snapshot,
	fedi *fediverse.Service,
) *APIHandler {
	return &APIHandler{
		adminService:     admin,
		scanService:      scan,
		thumbnailService: thumbs,
		analyticsService: analytics,
		snapshot:         snapshot,
		fediverse:        fedi,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		username, err := auth.ValidateJWT(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), adminUserKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey string

const adminUserKey ctxKey = "adminUser"

// Admin handlers

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Username and password are required")
		return
	}

	mustChange, err := h.adminService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials")
			return
		}
		log.Printf("Error during login for %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Login failed")
		return
	}

	token, err := auth.GenerateJWT(req.Username)
	if err != nil {
		log.Printf("Error generating JWT for %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":       token,
		"must_change": mustChange,
	})
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *APIHandler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body: "+err.Error())
		return
	}

	if err := h.adminService.ChangePassword(req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, core.ErrValidation):
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		case errors.Is(err, core.ErrBadCredentials):
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials")
		default:
			log.Printf("Error changing admin password: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to change password")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AddRepositoryRequest struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (h *APIHandler) AddRepositoryHandler(w http.ResponseWriter, r *http.Request) {
	var req AddRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body: "+err.Error())
		return
	}

	repo, err := h.adminService.AddRepository(req.Owner, req.Name)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		log.Printf("Error adding repository %s/%s: %v", req.Owner, req.Name, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to add repository")
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (h *APIHandler) ListRepositoriesHandler(w http.ResponseWriter, r *http.Request) {
	repos, err := h.adminService.ListRepositories()
	if err != nil {
		log.Printf("Error listing repositories: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list repositories")
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (h *APIHandler) RemoveRepositoryHandler(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	if err := h.adminService.RemoveRepository(owner, name); err != nil {
		switch {
		case errors.Is(err, core.ErrValidation):
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		case errors.Is(err, core.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
		default:
			log.Printf("Error removing repository %s/%s: %v", owner, name, err)
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to remove repository")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.scanService.ScanAll(r.Context())
	if err != nil {
		log.Printf("Error running scan: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Scan failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type ThumbnailsRequest struct {
	PostIDs    []string `json:"post_ids,omitempty"` // empty means every current post
	Regenerate bool     `json:"regenerate,omitempty"`
}

func (h *APIHandler) ThumbnailsHandler(w http.ResponseWriter, r *http.Request) {
	var req ThumbnailsRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body: "+err.Error())
			return
		}
	}

	posts := h.snapshot.Posts()
	var missing []string
	if len(req.PostIDs) > 0 {
		byID := make(map[string]bool, len(posts))
		for _, p := range posts {
			byID[p.ID] = true
		}
		wanted := make(map[string]bool, len(req.PostIDs))
		for _, id := range req.PostIDs {
			if wanted[id] {
				continue
			}
			wanted[id] = true
			if !byID[id] {
				missing = append(missing, id)
			}
		}
		filtered := posts[:0:0]
		for _, p := range posts {
			if wanted[p.ID] {
				filtered = append(filtered, p)
			}
		}
		posts = filtered
	}

	var report core.BatchReport
	if req.Regenerate {
		var err error
		report, err = h.thumbnailService.Regenerate(r.Context(), posts)
		if err != nil {
			log.Printf("Error regenerating thumbnails: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to regenerate thumbnails")
			return
		}
	} else {
		report = h.thumbnailService.GenerateBatch(r.Context(), posts)
	}
	// Every requested id gets an outcome, including ids no current post has.
	for _, id := range missing {
		report.Posts = append(report.Posts, core.PostOutcome{PostID: id, Outcome: core.OutcomeNotFound})
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *APIHandler) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analyticsService.Summarize()
	if err != nil {
		log.Printf("Error building analytics summary: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to build analytics summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Visitor handlers

func (h *APIHandler) ListPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts := h.snapshot.Posts()
	if posts == nil {
		posts = []blog.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *APIHandler) GetPostHandler(w http.ResponseWriter, r *http.Request) {
	post, ok := h.snapshot.Get(chi.URLParam(r, "postID"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *APIHandler) RecordPostViewHandler(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	if _, ok := h.snapshot.Get(postID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "Post not found")
		return
	}
	h.recordView(w, r, postID)
}

func (h *APIHandler) RecordSiteViewHandler(w http.ResponseWriter, r *http.Request) {
	h.recordView(w, r, "")
}

func (h *APIHandler) recordView(w http.ResponseWriter, r *http.Request, postID string) {
	event, err := h.analyticsService.RecordView(r.Context(), postID, visitorFingerprint(r), clientIP(r))
	if err != nil {
		log.Printf("Error recording view for post %q: %v", postID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to record view")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": event.ID})
}

func (h *APIHandler) RecordLikeHandler(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	if _, ok := h.snapshot.Get(postID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "Post not found")
		return
	}

	count, err := h.analyticsService.RecordLike(postID)
	if err != nil {
		log.Printf("Error recording like for post %s: %v", postID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to record like")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"likes": count})
}

// ActivityPub handlers

func (h *APIHandler) WebfingerHandler(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.fediverse.WebfingerResource(r.URL.Query().Get("resource"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Resource not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *APIHandler) ActorHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/activity+json")
	json.NewEncoder(w).Encode(h.fediverse.Actor())
}

func (h *APIHandler) OutboxHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/activity+json")
	json.NewEncoder(w).Encode(h.fediverse.Outbox())
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// visitorFingerprint prefers an explicit header set by the frontend and
// falls back to hashing the address and user agent. Good enough for
// per-country and recent-visitor summaries; this is not an identity.
func visitorFingerprint(r *http.Request) string {
	if v := r.Header.Get("X-Visitor-ID"); v != "" {
		return v
	}
	sum := sha256.Sum256([]byte(clientIP(r) + "|" + r.UserAgent()))
	return hex.EncodeToString(sum[:])[:16]
}
