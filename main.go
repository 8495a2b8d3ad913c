package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"news-faces/config"
	"news-faces/metrics"
	"news-faces/providers"
	"news-faces/providers/commons"
	"news-faces/providers/groq"
	"news-faces/providers/newsapi"
	"news-faces/providers/wikipedia"
	"news-faces/services"
	"news-faces/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Config load error", zap.Error(err))
	}

	logging, err := config.NewLogger(cfg)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Logger setup failed", zap.Error(err))
	}
	defer func() { _ = logging.Sync() }()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenDatabase(cfg)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	if cfg.AutoMigrate {
		if err := storage.Migrate(db); err != nil {
			logging.Fatal("Database migration failed", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.RunLockBackend == "redis" || cfg.ImageCacheBackend == "redis" {
		redisClient, err = storage.NewRedisClient(ctx, cfg, logging)
		if err != nil {
			logging.Fatal("Redis connection failed", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var lock services.RunLock = services.NewLocalLock()
	if cfg.RunLockBackend == "redis" {
		lock = services.NewRedisLock(redisClient, "newsfaces:run-lock", cfg.RunLockTTL, logging)
	}

	var cache services.ImageCache = services.NewMemoryImageCache(cfg.ImageCacheTTL)
	if cfg.ImageCacheBackend == "redis" {
		cache = services.NewRedisImageCache(redisClient, cfg.ImageCacheTTL)
	}

	// Wikipedia und Commons teilen sich das Wikimedia-Limit.
	wikimediaLimiter := rate.NewLimiter(rate.Limit(cfg.WikimediaRPS), 1)
	imageSources := []providers.ImageSource{
		wikipedia.NewFetcher(cfg, logging, wikimediaLimiter),
		commons.NewFetcher(cfg, logging, wikimediaLimiter),
	}

	var host services.ImageHost
	if cfg.ImageHostingEnabled {
		s3Client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		host = storage.NewS3ImageHost(cfg, s3Client, logging)
	}

	latest := services.NewLatestCards()
	fanout := services.NewFanout(cfg.SubscriberBuffer, logging)

	pipeline := &services.IngestionPipeline{
		DB:            db,
		Source:        newsapi.NewFetcher(cfg, logging),
		Extractor:     groq.NewExtractor(cfg, logging),
		Validator:     services.NewNameValidator(cfg.BannedTerms()),
		Images:        services.NewImageResolver(cache, imageSources, host, cfg.AvatarBaseURL, logging),
		Identity:      services.NewIdentityResolver(db, logging),
		Latest:        latest,
		Notifier:      fanout,
		TitleMaxWords: cfg.TitleMaxWords,
		Logger:        logging.Named("pipeline"),
	}
	coordinator := services.NewRunCoordinator(ctx, pipeline, lock, cfg.RefreshInterval, cfg.StartupDelay, logging)

	router := newRouter(&app{
		cfg:         cfg,
		db:          db,
		log:         logging,
		coordinator: coordinator,
		latest:      latest,
		fanout:      fanout,
		queries:     services.NewQueryService(db),
	})

	// Kein WriteTimeout: SSE- und Websocket-Streams bleiben offen. Über BaseContext
	// enden sie beim Herunterfahren.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	coordinator.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := coordinator.Stop(shutdownCtx); err != nil {
			logging.Warn("Pipeline did not stop in time", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
