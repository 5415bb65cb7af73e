// Package main runs the transcription worker. The whisper model is loaded once
// at startup and shared across jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voicevault/backend/config"
	"github.com/voicevault/backend/internal/audio"
	"github.com/voicevault/backend/internal/realtime"
	"github.com/voicevault/backend/internal/recordings"
	"github.com/voicevault/backend/internal/transcribe"
	"github.com/voicevault/backend/internal/worker"
	"github.com/voicevault/backend/pkg/database"
	"github.com/voicevault/backend/pkg/queue"
	"github.com/voicevault/backend/pkg/redis"
	"github.com/voicevault/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	engine, err := transcribe.NewWhisperEngine(cfg.Whisper.ModelPath, cfg.Whisper.Language, cfg.Whisper.Threads, logger)
	if err != nil {
		logger.Fatal("whisper model", zap.Error(err))
	}
	defer engine.Close()

	recRepo := recordings.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewTranscriptionProcessor(recRepo, audio.NewDecoder(), engine, jobQueue, logger)
	processor.SetStatusPublisher(realtime.NewRedisPubSub(rdb.Client, logger))

	if cfg.AWS.Region != "" && cfg.AWS.RecordingsBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 archive disabled", zap.Error(err))
		} else {
			processor.SetArchiver(s3Client)
		}
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started", zap.String("model", cfg.Whisper.ModelPath), zap.Int("threads", cfg.Whisper.Threads))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
