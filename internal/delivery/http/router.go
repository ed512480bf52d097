package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"letterpress/internal/delivery/http/controllers"
	"letterpress/internal/delivery/http/middleware"
	"letterpress/internal/domain"
	"letterpress/internal/ratelimit"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(
	logger *slog.Logger,
	posts *controllers.PostController,
	subscribers *controllers.SubscriberController,
	dispatch *controllers.DispatchController,
	verifier domain.TokenVerifier,
	limiter *ratelimit.Limiter,
	cronSecret string,
) *http.ServeMux {
	mux := http.NewServeMux()

	auth := middleware.RequireAuth(verifier, logger)
	limited := middleware.RateLimit(limiter, logger)
	cron := middleware.RequireCronSecret(cronSecret)

	// Public
	mux.HandleFunc("POST /subscribers", limited(subscribers.Subscribe))
	mux.HandleFunc("GET /subscribers/confirm/{token}", subscribers.Confirm)
	mux.HandleFunc("GET /subscribers/unsubscribe", subscribers.Unsubscribe)
	mux.HandleFunc("GET /posts", posts.PublicList)
	mux.HandleFunc("GET /posts/{slug}", posts.GetBySlug)

	// Scheduler trigger
	mux.HandleFunc("GET /cron/publish", cron(dispatch.CronPublish))

	// Admin
	mux.HandleFunc("POST /admin/posts", auth(posts.Create))
	mux.HandleFunc("GET /admin/posts", auth(posts.AdminList))
	mux.HandleFunc("GET /admin/posts/{postID}", auth(posts.GetByID))
	mux.HandleFunc("PUT /admin/posts/{postID}", auth(posts.Update))
	mux.HandleFunc("POST /admin/posts/{postID}/publish", auth(posts.Publish))
	mux.HandleFunc("POST /admin/posts/{postID}/transition", auth(posts.Transition))
	mux.HandleFunc("GET /admin/posts/{postID}/dispatches", auth(dispatch.History))
	mux.HandleFunc("POST /admin/email/send", auth(dispatch.Send))
	mux.HandleFunc("GET /admin/subscribers", auth(subscribers.List))

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
