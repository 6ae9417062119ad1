// Package main is the entry point for the SiteVault API.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/aggregate"
	"github.com/dharsanguruparan/SiteVault/internal/api"
	"github.com/dharsanguruparan/SiteVault/internal/attachment"
	"github.com/dharsanguruparan/SiteVault/internal/config"
	"github.com/dharsanguruparan/SiteVault/internal/database"
	"github.com/dharsanguruparan/SiteVault/internal/logging"
	"github.com/dharsanguruparan/SiteVault/internal/queue"
	"github.com/dharsanguruparan/SiteVault/internal/registry"
	"github.com/dharsanguruparan/SiteVault/internal/repository"
	"github.com/dharsanguruparan/SiteVault/internal/s3storage"
	"github.com/dharsanguruparan/SiteVault/internal/scope"
	"github.com/dharsanguruparan/SiteVault/internal/server"
	"github.com/dharsanguruparan/SiteVault/internal/signing"
	"github.com/dharsanguruparan/SiteVault/internal/storage"
	"github.com/dharsanguruparan/SiteVault/internal/store"
	"github.com/dharsanguruparan/SiteVault/internal/submission"
	"github.com/dharsanguruparan/SiteVault/internal/telemetry"
)

// backend groups the storage collaborators of one deployment mode.
type backend interface {
	store.Directory
	store.RequirementStore
	store.SubmissionStore
	store.DocumentQuerier
	store.AttachmentStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	shutdown, err := telemetry.Setup(ctx, "sitevault-api", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	var (
		db      backend
		objects store.ObjectStore
		bus     registry.Broadcaster
		jobs    *queue.Client
		files   *server.FileServer
	)
	cache := registry.NewCache(cfg.RegistryCacheTTL)

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseConns)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		db = repository.New(pool)

		s3, err := s3storage.New(cfg)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
		objects = s3

		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		broadcaster := registry.NewRedisBroadcaster(rdb, cfg.RegistryChannel, log)
		go registry.ListenOrDisable(ctx, cache, broadcaster.Listen, log)
		bus = broadcaster

		qc := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer qc.Close()
		jobs = queue.NewClient(qc)
	default:
		log.Warn("using in-memory storage; data is lost on restart")
		db = storage.NewMemoryStore()
		mem := storage.NewMemoryObjects(cfg.PublicBaseURL, signing.NewSigner(cfg.Secret()))
		objects = mem
		if u, err := url.Parse(cfg.PublicBaseURL); err == nil && u.Path != "" {
			files = server.NewFileServer(mem, u.Path, log)
		}
	}

	resolver := scope.NewResolver(db, log)
	reg := registry.New(db, cache, bus, log)

	subOpts := submission.Options{
		Backfiller:   submission.StoreBackfiller{Store: db},
		Metrics:      metrics,
		SignedURLTTL: cfg.SignedURLTTL,
	}
	attOpts := attachment.Options{
		Categories: cfg.AttachmentCategories,
		MaxBytes:   cfg.MaxFileBytes,
		Metrics:    metrics,
	}
	if jobs != nil {
		subOpts.Backfiller = jobs
		subOpts.Inspector = jobs
		attOpts.Renderer = jobs
	}

	sources := []aggregate.Source{
		aggregate.NewCurrentSource(db, objects, cfg.SourceLimit),
		aggregate.NewLegacySource(db, objects, cfg.SourceLimit),
		aggregate.NewBlueprintSource(db, objects, cfg.SourceLimit),
	}

	srv := api.New(cfg, api.Deps{
		Registry:    reg,
		Submissions: submission.NewService(reg, db, db, resolver, objects, subOpts, log),
		Documents:   aggregate.NewPipeline(resolver, sources, cfg.SourceTimeout, metrics, log),
		Attachments: attachment.NewManager(db, objects, resolver, attOpts, log),
		Metrics:     metrics,
		Files:       files,
	}, log)
	return srv.Run(ctx)
}
