package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/matval/catalog-crawler/internal/api"
	"github.com/matval/catalog-crawler/internal/browser"
	"github.com/matval/catalog-crawler/internal/config"
	"github.com/matval/catalog-crawler/internal/crawl"
	"github.com/matval/catalog-crawler/internal/database"
	"github.com/matval/catalog-crawler/internal/events"
	"github.com/matval/catalog-crawler/internal/fetch"
	"github.com/matval/catalog-crawler/internal/ratelimit"
	"github.com/matval/catalog-crawler/internal/session"
	"github.com/matval/catalog-crawler/internal/site"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgent:      cfg.Crawl.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	})
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	catalog := database.NewCatalogStore(db)
	publisher := events.NewPublisher(redisClient, cfg.Redis.Stream, logger)
	sink := events.NewFanoutSink(catalog, publisher)

	handlers := api.NewHandlers(logger)

	var wg sync.WaitGroup
	for _, name := range cfg.Crawl.Sites {
		st, err := site.New(strings.TrimSpace(name), site.Options{
			StoreID:       cfg.Crawl.StoreID,
			SeedFile:      cfg.Crawl.SeedFile,
			MathemBuildID: cfg.Crawl.MathemBuildID,
		})
		if err != nil {
			logger.Error("failed to configure site", "site", name, "error", err)
			os.Exit(1)
		}

		solver := session.NewBrowserSolver(b, st.BootstrapURL(), logger)
		mgr := session.NewManager(solver, cfg.Session.TokenTTL, cfg.Session.SolveTimeout, logger)
		client := fetch.NewClient(cfg.Crawl.RequestTimeout, cfg.Crawl.UserAgent, logger)
		limiter := ratelimit.NewAdaptiveRateLimiter(cfg.Crawl.MinDelay, cfg.Crawl.MaxDelay)
		policy := crawl.NewPolicy(cfg.Crawl.MaxRetries, mgr, limiter, logger)

		state := crawl.NewCrawlState(st.Name())
		handlers.Track(state, mgr.Solves)

		scheduler := crawl.NewScheduler(
			st,
			crawl.NewPaginator(st, client, policy, logger),
			crawl.NewBatchFetcher(st, client, policy, logger),
			sink,
			state,
			cfg.Crawl.BatchSize,
			cfg.Crawl.Concurrency,
			logger,
		)

		wg.Add(1)
		go func(s *crawl.Scheduler, siteName string) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("crawl failed", "site", siteName, "error", err)
			}
		}(scheduler, st.Name())
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Get("/health", handlers.Health)
	r.Get("/stats", handlers.Stats)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	crawlsDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(crawlsDone)
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
		case <-crawlsDone:
			logger.Info("all crawls finished")
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr, "sites", cfg.Crawl.Sites)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	wg.Wait()
	logger.Info("crawler stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
