package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/lessonsync/internal/api/http"
	"github.com/mind-engage/lessonsync/internal/config"
	"github.com/mind-engage/lessonsync/internal/directory"
	"github.com/mind-engage/lessonsync/internal/grading"
	"github.com/mind-engage/lessonsync/internal/logger"
	"github.com/mind-engage/lessonsync/internal/resolve"
	"github.com/mind-engage/lessonsync/internal/session"
	"github.com/mind-engage/lessonsync/internal/stages"
	"github.com/mind-engage/lessonsync/internal/store"
	"github.com/mind-engage/lessonsync/internal/submit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := store.Open(ctx, store.Driver(cfg.Store.Driver), cfg.Store.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("state store open failed")
	}
	st := store.New(dbh)

	dir := directory.NewHTTPClient(directory.Config{
		BaseURL:   cfg.Directory.URL,
		StudentID: cfg.Directory.StudentID,
		Timeout:   cfg.Directory.Timeout,
	}, log)

	catalog := stages.Default()
	engine := resolve.NewEngine(st, dir, catalog, cfg.Resolver.FetchTimeout, log)
	mgr := session.NewManager(st, engine, catalog, log)
	mgr.Restore(ctx)

	scorer := grading.NewStageScorer(catalog)
	coord := submit.NewCoordinator(st, dir, scorer, cfg.Submission.RetryDelay, log)

	if cfg.Submission.FlushOnStart {
		if n, err := coord.FlushDeferred(ctx); err != nil {
			log.Warn().Err(err).Msg("deferred submission flush failed")
		} else if n > 0 {
			log.Info().Int("flushed", n).Msg("deferred submissions completed")
		}
	}
	if cfg.Submission.FlushInterval > 0 {
		go func() {
			t := time.NewTicker(cfg.Submission.FlushInterval)
			defer t.Stop()
			for range t.C {
				if _, err := coord.FlushDeferred(context.Background()); err != nil {
					log.Warn().Err(err).Msg("periodic flush failed")
				}
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	api.Mount(r, mgr, coord)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Address).Str("db", cfg.Store.Driver).Msg("lessonsyncd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	_ = dbh.Close()
}
