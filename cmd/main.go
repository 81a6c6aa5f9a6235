package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sublate/sublate/internal/cache"
	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/httpapi"
	"github.com/sublate/sublate/internal/jobs"
	"github.com/sublate/sublate/internal/persistence"
	"github.com/sublate/sublate/internal/pipeline"
	"github.com/sublate/sublate/internal/provider"
	"github.com/sublate/sublate/internal/ratelimit"
	"github.com/sublate/sublate/internal/translate"
	"github.com/sublate/sublate/pkg/log"
)

const version = "1.0.0"

func main() {
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	level := log.ParseLevel(cfg.Log.Level)
	if cfg.Log.File != "" {
		fileLogger, err := log.NewFileLogger(cfg.Log.File, level)
		if err != nil {
			log.Fatal("Failed to open log file: %v", err)
		}
		defer fileLogger.Close()
		log.SetGlobalLogger(fileLogger.Logger)
	} else {
		log.InitLogger(level)
	}

	store, err := cache.NewStore(cfg.Cache.Dir, cfg.Cache.TTL())
	if err != nil {
		log.Fatal("Failed to open subtitle cache: %v", err)
	}

	jobStore, err := persistence.NewSQLiteStore(cfg.Jobs.DBPath)
	if err != nil {
		log.Fatal("Failed to open job store: %v", err)
	}
	defer jobStore.Close()

	limiter := ratelimit.NewLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.Window())

	p := pipeline.New(
		provider.NewClient(cfg.Provider.APIURL, cfg.Provider.APIKey),
		translate.Factory(),
		store,
		limiter,
		pipeline.Options{SourceLanguages: cfg.Provider.Languages},
	)

	queue := jobs.NewQueue(cfg.Jobs.Workers, jobStore)
	p.AttachQueue(queue)
	queue.Start(p.RunContinuation)

	janitor := cron.New()
	_, err = janitor.AddFunc("@hourly", func() {
		if removed := store.Sweep(); removed > 0 {
			log.Info("Cache sweep removed %d expired records", removed)
		}
		limiter.Reap(time.Hour)
	})
	if err != nil {
		log.Fatal("Failed to schedule janitor: %v", err)
	}
	janitor.Start()

	server := httpapi.NewServer(p,
		httpapi.WithBaseURL(cfg.Server.BaseURL),
		httpapi.WithVersion(version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("Listening on %s", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown: %v", err)
	}
	janitor.Stop()
	queue.Stop()
}
