package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/learning-hub/internal/bootstrap"
	"github.com/cuongbtq/learning-hub/internal/config"
	"github.com/cuongbtq/learning-hub/internal/monitor"
	"github.com/cuongbtq/learning-hub/internal/processor"
	"github.com/cuongbtq/learning-hub/internal/worker"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	hostname, _ := os.Hostname()
	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An unreachable database does not stop startup; claims fail and back off
	// until it comes up.
	store, db, err := bootstrap.OpenWorkerStore(ctx, cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	appLogger.Info("Queue store initialized",
		slog.String("driver", cfg.Database.Driver),
		slog.Bool("migrated", store.Migrated()),
	)

	// Startup stats are informational only
	if stats, err := store.GetStats(ctx); err != nil {
		appLogger.Warn("Failed to get initial queue stats", slog.String("error", err.Error()))
	} else {
		appLogger.Info("Initial queue stats",
			slog.Int("total", stats.Total),
			slog.Int("pending", stats.Pending),
			slog.Int("processing", stats.Processing),
			slog.Int("completed", stats.Completed),
			slog.Int("failed", stats.Failed),
		)
	}

	proc := processor.WithTimeout(
		processor.NewHTTPProcessor(cfg.Processor.Endpoint, &http.Client{}, appLogger.Logger),
		cfg.Processor.Timeout,
	)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		ID:                workerID,
		Logger:            appLogger.Logger,
		Queue:             store,
		Processor:         proc,
		PollInterval:      cfg.Worker.PollInterval,
		MaxBackoff:        cfg.Worker.MaxBackoff,
		BackoffMultiplier: cfg.Worker.BackoffMultiplier,
	})

	if err := workerInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	// Enqueue notifications wake the worker between polls
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			workerInstance.Stop()
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		consumerTag := cfg.RabbitMQ.Consumer.Tag
		if consumerTag == "" {
			consumerTag = workerID
		}

		deliveries, err := rabbitClient.Consume(consumerTag)
		if err != nil {
			workerInstance.Stop()
			return fmt.Errorf("failed to start consuming: %w", err)
		}

		go workerInstance.ListenForNotifications(ctx, deliveries)
		appLogger.Info("RabbitMQ connection established")
	}

	// Worker directory
	var directory *monitor.Directory
	if cfg.Redis.Enabled {
		redisClient, err := bootstrap.InitRedis(&cfg.Redis, appLogger.Logger)
		if err != nil {
			workerInstance.Stop()
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()

		directory = monitor.NewDirectory(redisClient.GetRedis(), cfg.Redis.KeyPrefix, cfg.Redis.StatusTTL, appLogger.Logger)
	}

	reporter := monitor.NewReporter(appLogger.Logger, store, workerInstance, directory, hostname)
	reporter.Report(ctx)
	go reporter.Run(ctx, cfg.Worker.StatusInterval)

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	// Cancel context to stop the loop, listener and reporter
	cancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if directory != nil {
		removeCtx, removeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := directory.Remove(removeCtx, workerID); err != nil {
			appLogger.Warn("Failed to remove worker status", slog.String("error", err.Error()))
		}
		removeCancel()
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
