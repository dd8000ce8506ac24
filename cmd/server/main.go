package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Sansi-28/byteguard/internal/blobstore"
	"github.com/Sansi-28/byteguard/internal/config"
	"github.com/Sansi-28/byteguard/internal/db"
	"github.com/Sansi-28/byteguard/internal/httpapi"
	"github.com/Sansi-28/byteguard/internal/ledger"
	"github.com/Sansi-28/byteguard/internal/ratelimit"
	"github.com/Sansi-28/byteguard/internal/registry"
)

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "byteguard",
		Level: hclog.LevelFromString(os.Getenv("LOGLEVEL")),
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[server] config: %v", err)
	}
	logger.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	database, err := db.Open(cfg.DatabaseURL, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		logger.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.RunMigrations("migrations"); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	sessions := registry.NewSessions(database.Redis, time.Duration(cfg.SessionTTLSeconds)*time.Second)
	registrySvc := registry.NewService(database.Postgres, sessions, logger, cfg.SearchResultLimit, cfg.WeakPasswordMinLen)

	var mirror blobstore.Mirror
	if cfg.BlobMirrorEnabled {
		client, err := minio.New(cfg.S3Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			Secure: cfg.S3UseSSL,
		})
		if err != nil {
			logger.Warn("blob mirror disabled, minio client failed to initialize", "error", err)
		} else {
			ensureBucket(client, cfg.S3Bucket, cfg.S3Region, logger)
			mirror = client
		}
	}

	var blobSvc *blobstore.Service
	var ledgerSvc *ledger.Service

	blobSvc, err = blobstore.NewService(database.Postgres, logger, cfg.BlobDir, mirror, cfg.S3Bucket, func(ctx context.Context, fileID int64, caller string) (bool, error) {
		return ledgerSvc.AuthorizeRead(ctx, fileID, caller)
	}, func(ctx context.Context, fileID int64) error {
		return ledgerSvc.DeleteSharesForFile(ctx, fileID)
	})
	if err != nil {
		logger.Error("initialize blob store", "error", err)
		os.Exit(1)
	}

	ledgerSvc = ledger.NewService(database.Postgres, logger, func(ctx context.Context, fileID int64) (string, error) {
		rec, err := blobSvc.Metadata(ctx, fileID)
		if err != nil {
			return "", err
		}
		return rec.Owner, nil
	}, registrySvc.LookupPublicKey)

	var limiter *ratelimit.Limiter
	if database.Redis != nil {
		limiter = ratelimit.NewLimiter(database.Redis, logger)
	}

	server := httpapi.NewServer(registrySvc, sessions, blobSvc, ledgerSvc, limiter, logger)
	router := server.Router()

	httpServer := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("exited gracefully")
}

func ensureBucket(client *minio.Client, bucket, region string, logger hclog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		logger.Warn("check blob mirror bucket", "error", err)
		return
	}
	if exists {
		return
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		logger.Warn("create blob mirror bucket", "error", err)
	}
}
