package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/skyvault/backend/internal/config"
	"github.com/skyvault/backend/internal/database"
	"github.com/skyvault/backend/internal/handlers"
	"github.com/skyvault/backend/internal/middleware"
	"github.com/skyvault/backend/internal/services"
	"github.com/skyvault/backend/internal/storage"
	"github.com/skyvault/backend/pkg/logger"
	"github.com/skyvault/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		logger.Error("database_connect_failed", err, nil)
		os.Exit(1)
	}

	store, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		logger.Error("minio_init_failed", err, nil)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureBucket(ctx); err != nil {
		cancel()
		logger.Error("minio_bucket_failed", err, nil)
		os.Exit(1)
	}
	cancel()

	presence := services.NewPresenceRegistry()
	quota := services.NewQuotaService(db)

	app := fiber.New(fiber.Config{
		BodyLimit: 512 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
	app.Use(middleware.RequestLogger())

	authmw := middleware.NewAuthMiddleware(db)
	handlers.RegisterRoutes(app, authmw, handlers.Handlers{
		Auth:    handlers.NewAuthHandler(db),
		Users:   handlers.NewUsersHandler(db, store),
		Folders: handlers.NewFoldersHandler(db),
		Files:   handlers.NewFilesHandler(db, store, quota),
		Shares:  handlers.NewSharesHandler(db, store, presence, cfg.Server.FrontendURL),
		WS:      handlers.NewWSHandler(presence),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()

	logger.Info("server_started", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server_failed", err, nil)
		os.Exit(1)
	case sig := <-quit:
		logger.Info("server_shutting_down", map[string]interface{}{
			"signal": sig.String(),
		})
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("server_shutdown_failed", err, nil)
			os.Exit(1)
		}
	}
}
