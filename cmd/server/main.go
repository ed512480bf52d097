// Letterpress is a content publishing backend with newsletter distribution:
// posts move through a draft, scheduled, published, archived lifecycle and a
// publish fans the newsletter out to the confirmed subscriber list.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"letterpress/config"
	"letterpress/internal/adapters/auth"
	"letterpress/internal/adapters/email"
	delivery "letterpress/internal/delivery/http"
	"letterpress/internal/delivery/http/controllers"
	"letterpress/internal/delivery/http/middleware"
	"letterpress/internal/ratelimit"
	"letterpress/internal/repository/postgres"
	"letterpress/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := config.NewLogger()

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Error("database unreachable", "err", err)
		os.Exit(1)
	}
	if err := postgres.Migrate(db); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.EmailFrom,
		FromName:    cfg.EmailFromName,
		SES: email.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		},
	})
	if err != nil {
		logger.Error("failed to create mailer", "err", err)
		os.Exit(1)
	}
	renderer := email.NewTemplateRenderer()

	// REDIS_URL shares the rate limit counters across instances; without it
	// each instance keeps its own in-memory window.
	var store ratelimit.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		store = ratelimit.NewRedisStore(redis.NewClient(opts))
		logger.Info("rate limiting backed by redis")
	} else {
		mem := ratelimit.NewMemoryStore(time.Minute)
		defer mem.Stop()
		store = mem
	}
	limiter, err := ratelimit.New(store, cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		logger.Error("failed to create rate limiter", "err", err)
		os.Exit(1)
	}

	postRepo := postgres.NewPostRepository(db)
	subscriberRepo := postgres.NewSubscriberRepository(db)
	dispatchLogRepo := postgres.NewDispatchLogRepository(db)

	postSvc := services.NewPostService(postRepo)
	subscriberSvc := services.NewSubscriberService(subscriberRepo, mailer, renderer, logger, cfg.SiteURL, cfg.SiteName)
	dispatcher := services.NewBatchMailer(mailer, cfg.BatchSize, logger)
	publisherSvc := services.NewPublisherService(postRepo, dispatchLogRepo, subscriberSvc, dispatcher,
		mailer, renderer, logger, cfg.SiteURL, cfg.SiteName, 0)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	postController := controllers.NewPostController(logger, postSvc, publisherSvc)
	subscriberController := controllers.NewSubscriberController(logger, subscriberSvc, cfg.SiteURL)
	dispatchController := controllers.NewDispatchController(logger, publisherSvc, dispatchLogRepo)

	mux := delivery.NewRouter(logger, postController, subscriberController, dispatchController,
		verifier, limiter, cfg.CronSecret)

	handler := middleware.LoggingMiddleware(logger, middleware.CORS(cfg.CORSOrigins, mux))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Dispatching a large list from the publish endpoint takes a while.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
		}
	}
}
