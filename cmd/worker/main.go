package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/config"
	"github.com/dharsanguruparan/SiteVault/internal/database"
	"github.com/dharsanguruparan/SiteVault/internal/imaging"
	"github.com/dharsanguruparan/SiteVault/internal/logging"
	"github.com/dharsanguruparan/SiteVault/internal/repository"
	"github.com/dharsanguruparan/SiteVault/internal/s3storage"
	"github.com/dharsanguruparan/SiteVault/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	if cfg.StorageBackend != config.BackendPostgres {
		log.Fatal("the worker requires the postgres backend", zap.String("backend", cfg.StorageBackend))
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseConns)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}
	repo := repository.New(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		log.Fatal("init storage", zap.Error(err))
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal("ensure bucket", zap.Error(err))
	}

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.Workers,
		Logger:      log.Sugar(),
	})
	processor := worker.NewProcessor(repo, store, imaging.NewRenderer(85), log)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info("worker started", zap.Int("concurrency", cfg.Workers))
	if err := server.Run(mux); err != nil {
		log.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}
