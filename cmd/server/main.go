package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/stockflow/internal/api"
	"github.com/rpattn/stockflow/internal/config"
	"github.com/rpattn/stockflow/internal/db"
	"github.com/rpattn/stockflow/internal/importer"
	"github.com/rpattn/stockflow/internal/jobstore"
	"github.com/rpattn/stockflow/internal/middleware"
	"github.com/rpattn/stockflow/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load("./")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Optional Redis layer for job status polling
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	// Create repositories
	productRepo := repository.NewProductRepository(conn.Pool)
	supplierRepo := repository.NewSupplierRepository(conn.Pool)
	movementRepo := repository.NewMovementRepository(conn.Pool)
	logRepo := repository.NewImportLogRepository(conn.Pool)
	jobRepo := jobstore.NewStore(
		repository.NewImportJobRepository(conn.Pool),
		jobstore.NewStatusCache(redisClient, cfg.Redis.TTL),
		logger,
	)

	// Create the import pipeline
	cache := importer.NewValidationCache(cfg.Cache, importer.NewRepositoryLoader(productRepo, supplierRepo))
	defer cache.Close()

	tracker := importer.NewTracker(logger)
	defer tracker.Close()

	service := importer.NewService(
		productRepo, supplierRepo, movementRepo, jobRepo, logRepo,
		cache, tracker, cfg.Batch, logger,
	)

	// HTTP surface
	mux := http.NewServeMux()
	api.NewImportHandler(service, logger).Register(mux)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	handler := corsHandler.Handler(
		middleware.LoggingMiddleware(logger)(
			middleware.TenantMiddleware(mux),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("starting import server", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
}
