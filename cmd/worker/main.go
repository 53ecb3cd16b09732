// Package main runs the standalone mirror worker (video upload and purge on S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cinehome/backend/config"
	"github.com/cinehome/backend/internal/worker"
	"github.com/cinehome/backend/pkg/logging"
	"github.com/cinehome/backend/pkg/queue"
	"github.com/cinehome/backend/pkg/redis"
	"github.com/cinehome/backend/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.MustNew(logging.Config{}).Fatal("load config", zap.Error(err))
	}
	logger := logging.MustNew(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logger.Sync()

	if !cfg.Redis.Enabled() {
		logger.Fatal("worker needs REDIS_ADDR")
	}
	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		VideosBucket:         cfg.AWS.VideosBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	if !s3Cfg.Enabled() {
		logger.Fatal("worker needs AWS_S3_VIDEOS_BUCKET")
	}

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewMirrorProcessor(afero.NewOsFs(), cfg.Storage.VideoDir, s3Client, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	logger.Info("worker started", zap.String("bucket", s3Client.Bucket()), zap.String("video_dir", cfg.Storage.VideoDir))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}
