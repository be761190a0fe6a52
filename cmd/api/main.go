package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vereinsheim/portal/internal/config"
	"github.com/vereinsheim/portal/internal/connect"
	"github.com/vereinsheim/portal/internal/container"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/routes"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(".env.local", ".env")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("Starting Vereinsheim API server", "config", cfg)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	supaClient, err := connect.InitSupabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to Supabase", "error", err)
		os.Exit(1)
	}

	validator, err := helpers.NewTokenValidator(startCtx, cfg.SupabaseURL)
	if err != nil {
		logger.Error("Failed to load JWKS", "error", err)
		os.Exit(1)
	}

	mongoClient, err := connect.MongoDBConnect(startCtx, cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}

	// Redis and Cloudinary are optional; failures degrade to no cache / bucket uploads
	redisClient, err := connect.RedisConnect(startCtx, cfg, logger)
	if err != nil {
		logger.Warn("Redis unavailable, presence cache disabled", "error", err)
	}
	cld, err := connect.CloudinaryCredentials(cfg, logger)
	if err != nil {
		logger.Warn("Cloudinary unavailable, using storage bucket for images", "error", err)
	}

	appContainer, err := container.NewContainer(cfg, logger, container.Clients{
		Supabase:   supaClient,
		MongoDB:    mongoClient,
		Redis:      redisClient,
		Cloudinary: cld,
	}, validator)
	if err != nil {
		logger.Error("Failed to build container", "error", err)
		os.Exit(1)
	}

	if err := appContainer.Activity.EnsureIndexes(startCtx); err != nil {
		logger.Warn("Failed to ensure activity indexes", "error", err)
	}

	// Setup routes
	router := routes.SetupRoutes(appContainer)

	// Create HTTP server; the write timeout leaves room for contract uploads
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 20*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// let queued notifications finish before the clients go away
	appContainer.Notifier.Wait()
	validator.Close()

	if err := connect.MongoDBDisconnect(mongoClient); err != nil {
		logger.Error("Error disconnecting from MongoDB", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Error closing Redis", "error", err)
		}
	}

	logger.Info("Server exited")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	if cfg.IsProduction() {
		// JSON logging for production
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		})
	}

	return slog.New(handler)
}
