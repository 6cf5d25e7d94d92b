package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fieldwork-backend-go/internal/config"
	"fieldwork-backend-go/internal/db"
	httpapi "fieldwork-backend-go/internal/http"
	"fieldwork-backend-go/internal/logging"
	"fieldwork-backend-go/internal/migrations"
	"fieldwork-backend-go/internal/policy"
	"fieldwork-backend-go/internal/services"
	"fieldwork-backend-go/internal/storage"
	"fieldwork-backend-go/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, cleanupLogs, err := logging.New(logging.Options{
		Level:         cfg.LogLevel,
		Dir:           cfg.LogDir,
		RetentionDays: cfg.LogRetentionDays,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer cleanupLogs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		cleanupLogs()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	applied, err := migrations.Apply(ctx, database, os.DirFS(cfg.MigrationsDir))
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}

	blobs, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	rules, err := policy.New()
	if err != nil {
		return err
	}

	hub := services.NewEventHub(logger.Named("events"))
	records := store.NewPostgresStore(database)
	svc := services.New(services.Service{
		Store:  records,
		Blobs:  blobs,
		Policy: rules,
		Tokens: services.TokenService{
			Secret:     []byte(cfg.JWTSecret),
			Issuer:     cfg.JWTIssuer,
			AccessTTL:  cfg.AccessTTL(),
			RefreshTTL: cfg.RefreshTTL(),
		},
		Events:         hub,
		Log:            logger.Named("service"),
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		svc.Revoker = store.NewRedisRevocations(client)
	} else {
		logger.Warn("REDIS_ADDR not set, logout will not revoke tokens before they expire")
	}

	sampler := &services.Sampler{
		Store:    records,
		DiskPath: cfg.MetricsDiskPath,
		Interval: time.Duration(cfg.MetricsSampleSeconds) * time.Second,
		Events:   hub,
		Log:      logger.Named("sampler"),
	}

	server := httpapi.NewServer(svc, hub, cfg, logger.Named("http"))
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(ctx),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sampler.Run(gctx) })
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", httpServer.Addr), zap.String("storage", cfg.StorageBackend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStorage(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	if cfg.StorageBackend == config.StorageS3 {
		backend, err := storage.NewS3Backend(storage.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := backend.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	}
	backend, err := storage.NewLocalBackend(cfg.MediaStoragePath)
	if err != nil {
		return nil, err
	}
	return backend, nil
}
