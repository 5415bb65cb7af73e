// Package main runs the voice vault HTTP server with WebSocket status push
// and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voicevault/backend/config"
	"github.com/voicevault/backend/internal/auth"
	"github.com/voicevault/backend/internal/middleware"
	"github.com/voicevault/backend/internal/realtime"
	"github.com/voicevault/backend/internal/recordings"
	"github.com/voicevault/backend/internal/vaults"
	"github.com/voicevault/backend/pkg/database"
	"github.com/voicevault/backend/pkg/queue"
	"github.com/voicevault/backend/pkg/redis"
	"github.com/voicevault/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		logger.Fatal("upload dir", zap.Error(err))
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" && cfg.AWS.RecordingsBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Recordings
	recordingRepo := recordings.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	recordingHandler := recordings.NewHandler(recordingRepo, jobQueue, s3Client, cfg.Upload.Dir, logger)

	// Vaults
	vaultRepo := vaults.NewRepository(pool)
	vaultHandler := vaults.NewHandler(vaultRepo, recordingRepo, logger)

	jwtValidate := func(token string) (userID string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.UserID.String(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Upload accepts anonymous recordings; attaching to a vault requires auth.
	router.POST("/recordings", middleware.OptionalJWT(jwtService), recordingHandler.Upload)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Recordings
		api.GET("/recordings", recordingHandler.List)
		api.GET("/recordings/:id", recordingHandler.Get)
		api.DELETE("/recordings/:id", recordingHandler.Delete)
		api.POST("/recordings/:id/transcribe", recordingHandler.Retranscribe)
		api.GET("/recordings/:id/download-url", recordingHandler.DownloadURL)

		// Vaults
		api.POST("/vaults", vaultHandler.Create)
		api.GET("/vaults", vaultHandler.List)
		api.GET("/vaults/:id", vaultHandler.Show)
		api.GET("/vaults/:id/transcript", vaultHandler.Transcript)
		api.PATCH("/vaults/:id", vaultHandler.Update)
		api.DELETE("/vaults/:id", vaultHandler.Delete)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWs(hub, logger, jwtValidate)(c)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
