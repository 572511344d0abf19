package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		// Visitor routes
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		r.Get("/posts", apiHandler.ListPostsHandler)
		r.Get("/posts/{postID}", apiHandler.GetPostHandler)
		r.Post("/posts/{postID}/view", apiHandler.RecordPostViewHandler)
		r.Post("/posts/{postID}/like", apiHandler.RecordLikeHandler)
		r.Post("/views", apiHandler.RecordSiteViewHandler)

		// Admin routes
		r.Post("/admin/login", apiHandler.LoginHandler)
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/admin/password", apiHandler.ChangePasswordHandler)
			r.Get("/admin/repositories", apiHandler.ListRepositoriesHandler)
			r.Post("/admin/repositories", apiHandler.AddRepositoryHandler)
			r.Delete("/admin/repositories/{owner}/{name}", apiHandler.RemoveRepositoryHandler)
			r.Post("/admin/scan", apiHandler.ScanHandler)
			r.Post("/admin/thumbnails", apiHandler.ThumbnailsHandler)
			r.Get("/admin/analytics", apiHandler.AnalyticsHandler)
		})
	})

	// ActivityPub surface
	r.Get("/.well-known/webfinger", apiHandler.WebfingerHandler)
	r.Get("/users/blog", apiHandler.ActorHandler)
	r.Get("/users/blog/outbox", apiHandler.OutboxHandler)

	return r
}
