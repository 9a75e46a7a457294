package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by go-sqlite3
const DriverName = "sqlite3"

// Config holds SQLite configuration
type Config struct {
	// Path is a file path or ":memory:"
	Path        string
	BusyTimeout time.Duration
	// Lazy keeps the client when the initial ping fails
	Lazy bool
}

// DSN returns the go-sqlite3 connection string
func (c *Config) DSN() string {
	busy := c.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	path := c.Path
	if path == "" {
		path = ":memory:"
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", path, busy.Milliseconds())
}

// Client represents a SQLite database client
type Client struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewClient opens the database. SQLite allows one writer at a time, so the
// pool is limited to a single connection.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	logger.Info("Opening SQLite database",
		slog.String("path", config.Path),
	)

	db, err := sqlx.Open(DriverName, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if config.Lazy {
			logger.Warn("SQLite database not reachable yet, continuing",
				slog.Any("error", err),
			)
			return &Client{db: db, logger: logger}, nil
		}
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &Client{db: db, logger: logger}, nil
}

// GetDB returns the underlying sqlx.DB instance
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// Close closes the database
func (c *Client) Close() error {
	c.logger.Info("Closing SQLite database")
	return c.db.Close()
}

// HealthCheck pings the database
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
