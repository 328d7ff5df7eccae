package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"newsroom/api/internal/app"
	"newsroom/api/internal/archive"
	"newsroom/api/internal/config"
	"newsroom/api/internal/enrich"
	"newsroom/api/internal/feed"
	"newsroom/api/internal/ingest"
	"newsroom/api/internal/maintenance"
	"newsroom/api/internal/search"
	"newsroom/api/internal/seen"
	"newsroom/api/internal/source"
	"newsroom/api/internal/store"
	"newsroom/api/internal/threads"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}
	searchService.ReindexAllFromPG(ctx)

	// Delivery window: Redis when configured, in-process memory otherwise.
	var window ingest.DeliveryWindow
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for the delivery window")
		redisStore, err := seen.NewRedisStore(cfg.RedisURL, 24*time.Hour)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		window = redisStore
	} else {
		log.Printf("Using in-memory delivery window")
		window = seen.NewMemoryStore(24 * time.Hour)
	}

	var snapshots maintenance.Snapshotter
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archiveStore, err := archive.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("WARNING: cold archive unavailable: %v", err)
		} else {
			snapshots = archiveStore
		}
	}

	enricher := enrich.New(enrich.HeuristicModel{}, cfg.EnrichTimeout)
	threadStore := threads.NewStore()
	matcher := threads.NewMatcher(nil, threads.DefaultMatcherConfig())
	queue := ingest.NewQueue(window, 0)
	client := source.NewClient(cfg.SourceBaseURL, cfg.SourceUserAgent, 15*time.Second)
	sink := ingest.SinkFunc(func(ctx context.Context, item feed.EnrichedItem) error {
		return dataStore.InsertLiveItem(ctx, store.LiveItemFromEnriched(item))
	})
	pipeline := ingest.NewPipeline(queue, enricher, matcher, threadStore, client, sink, cfg.StopGracePeriod)

	maintainer := maintenance.New(dataStore, enricher, threadStore, searchService, snapshots, maintenance.Config{
		LiveFeedCap: cfg.LiveFeedCap,
		EnrichBatch: cfg.EnrichBatchSize,
		ArchiveAge:  cfg.ArchiveAge,
		Agent:       "newsroom-maintenance",
	})

	service := app.NewService(dataStore, threadStore, pipeline, maintainer, searchService, cfg)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Newsroom API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	pipeline.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
