// Package main runs the video library HTTP server with the library feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cinehome/backend/config"
	"github.com/cinehome/backend/internal/chunked"
	"github.com/cinehome/backend/internal/library"
	"github.com/cinehome/backend/internal/realtime"
	"github.com/cinehome/backend/internal/router"
	"github.com/cinehome/backend/internal/videos"
	"github.com/cinehome/backend/internal/worker"
	"github.com/cinehome/backend/pkg/database"
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

	ctx := context.Background()
	fs := afero.NewOsFs()

	// Videos
	store, err := videos.NewStore(fs, cfg.Storage.VideoDir, logger)
	if err != nil {
		logger.Fatal("video store", zap.Error(err))
	}
	videoHandler := videos.NewHandler(store, chunked.NewEmitter(fs, cfg.Storage.StreamChunkBytes), logger)
	videoHandler.SetMaxUploadBytes(cfg.Storage.MaxUploadBytes())

	// User libraries: PostgreSQL when configured, JSON files otherwise
	var repo library.Repository
	if cfg.Database.Enabled() {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		repo = library.NewPostgresRepository(pool)
	} else {
		fileRepo, err := library.NewFileRepository(fs, cfg.Storage.DataDir)
		if err != nil {
			logger.Fatal("library store", zap.Error(err))
		}
		repo = fileRepo
	}
	librarySvc := library.NewService(repo, store, cfg.Storage.RecentLimit, logger)
	libraryHandler := library.NewHandler(librarySvc, logger)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	// Library feed, job queue and mirror need Redis
	var hub *realtime.Hub
	var jobQueue *queue.Queue
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()

		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, pubsub, pubsub)
		if err := hub.Start(workerCtx); err != nil {
			logger.Fatal("library feed subscribe", zap.Error(err))
		}
		jobQueue = queue.NewQueue(rdb.Client, logger)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}
	videoHandler.SetNotifier(hub)

	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		VideosBucket:         cfg.AWS.VideosBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	if s3Cfg.Enabled() {
		s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 mirror disabled", zap.Error(err))
		} else {
			videoHandler.SetMirror(s3Client)
			if jobQueue != nil {
				videoHandler.SetEnqueuer(jobQueue)
				processor := worker.NewMirrorProcessor(fs, store.Dir(), s3Client, jobQueue, logger)
				go processor.Run(workerCtx)
				logger.Info("mirror enabled", zap.String("bucket", s3Client.Bucket()))
			} else {
				logger.Warn("mirror jobs disabled: REDIS_ADDR not set")
			}
		}
	}

	engine := router.New(router.Deps{
		Logger:         logger,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Videos:         videoHandler,
		Library:        libraryHandler,
		Hub:            hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.String("video_dir", store.Dir()),
			zap.Int("videos", store.Count()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
