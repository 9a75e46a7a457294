// Package bootstrap turns configuration sections into connected clients. It
// is shared by every binary under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/learning-hub/internal/config"
	"github.com/cuongbtq/learning-hub/internal/storage"
	"github.com/cuongbtq/learning-hub/shared/logger"
	"github.com/cuongbtq/learning-hub/shared/postgresql"
	"github.com/cuongbtq/learning-hub/shared/rabbitmq"
	"github.com/cuongbtq/learning-hub/shared/redis"
	"github.com/cuongbtq/learning-hub/shared/sqlite"
	"github.com/jmoiron/sqlx"
)

// Database is implemented by the postgresql and sqlite clients
type Database interface {
	GetDB() *sqlx.DB
	HealthCheck(ctx context.Context) error
	Close() error
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		NoColor:      cfg.NoColor,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// OpenDatabase connects with the driver named in cfg.Driver
func OpenDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (Database, error) {
	return openDatabase(cfg, false, logger)
}

// openDatabase with lazy set returns a usable pool even when the server
// cannot be reached yet.
func openDatabase(cfg *config.DatabaseConfig, lazy bool, logger *slog.Logger) (Database, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		client, err := sqlite.NewClient(&sqlite.Config{Path: cfg.Path, Lazy: lazy}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil

	case config.DriverPostgres, config.DriverPGX, "":
		client, err := postgresql.NewClient(&postgresql.Config{
			Driver:          cfg.Driver,
			Host:            cfg.Host,
			Port:            cfg.Port,
			User:            cfg.User,
			Password:        cfg.Password,
			Database:        cfg.Database,
			SSLMode:         cfg.SSLMode,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			Lazy:            lazy,
		}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// OpenQueueStore opens the database, applies migrations when
// database.auto_migrate is set and returns the queue store. The caller owns
// the returned Database and must close it.
func OpenQueueStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Store, Database, error) {
	db, err := OpenDatabase(&cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store := storage.NewStore(db.GetDB(), logger, cfg.Queue.MaxAttempts)

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return store, db, nil
}

// OpenWorkerStore is OpenQueueStore for long-running workers. An unreachable
// database is not fatal: migrations are deferred to the first claim and the
// worker's backoff paces reconnects. A migration that fails against a
// reachable database is still returned as an error.
func OpenWorkerStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.MigratingStore, Database, error) {
	db, err := openDatabase(&cfg.Database, true, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store := storage.NewStore(db.GetDB(), logger, cfg.Queue.MaxAttempts)

	if !cfg.Database.AutoMigrate {
		return storage.NewMigratingStore(store, true), db, nil
	}

	if err := store.Migrate(ctx); err != nil {
		if hcErr := db.HealthCheck(ctx); hcErr == nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Warn("Database unreachable, deferring migrations to first claim",
			slog.String("error", err.Error()),
		)
		return storage.NewMigratingStore(store, false), db, nil
	}

	return storage.NewMigratingStore(store, true), db, nil
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// InitRedis initializes the Redis client used by the worker directory
func InitRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		URL:         cfg.URL,
		DialTimeout: cfg.DialTimeout,
	}, logger)
}
