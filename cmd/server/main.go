package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/internal/app"
	"github.com/makeasinger/controlpanel/internal/config"
	"github.com/makeasinger/controlpanel/internal/logger"
	"github.com/makeasinger/controlpanel/internal/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	defer logger.Sync()

	ctx := context.Background()

	// Initialize Redis client
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var srv *app.Server
	if redisClient != nil {
		srv, err = app.New(ctx, cfg, redisClient)
	} else {
		srv, err = app.New(ctx, cfg, nil)
	}
	if err != nil {
		logger.Error("Failed to build server", zap.Error(err))
		return 1
	}
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
		return 1
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- srv.Listen(":" + cfg.Server.Port)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	code := service.ExitShutdown
	select {
	case sig := <-quit:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	case code = <-srv.Process.Requested():
		logger.Info("Stop requested by client", zap.Int("exitCode", code))
	case err := <-listenErr:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
			code = 1
		}
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	return code
}
