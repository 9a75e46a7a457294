package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultPollInterval is the worker poll interval when none is configured
	DefaultPollInterval = 5 * time.Second
	// DefaultStatusInterval is how often the worker service reports its status
	DefaultStatusInterval = 60 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown of both services
	DefaultShutdownTimeout = 30 * time.Second
)

// Database drivers accepted in database.driver
const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite3"
)

// Environment variables that override file values
const (
	EnvPollIntervalMs    = "QUEUE_POLL_INTERVAL_MS"
	EnvDatabasePassword  = "DATABASE_PASSWORD"
	EnvProcessorEndpoint = "PROCESSOR_ENDPOINT"
	EnvRabbitMQPassword  = "RABBITMQ_PASSWORD"
	EnvRedisURL          = "REDIS_URL"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Processor ProcessorConfig `yaml:"processor"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds queue database configuration. Host/port fields apply
// to the postgres and pgx drivers, Path to sqlite3.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      AMQPQueueConfig  `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// AMQPQueueConfig holds RabbitMQ queue configuration
type AMQPQueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// RedisConfig holds the worker directory settings
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URL         string        `yaml:"url"`
	KeyPrefix   string        `yaml:"key_prefix"`
	StatusTTL   time.Duration `yaml:"status_ttl"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// QueueConfig holds queue semantics shared by every service
type QueueConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// WorkerConfig holds worker loop configuration
type WorkerConfig struct {
	ID                string        `yaml:"id"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	StatusInterval    time.Duration `yaml:"status_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// ProcessorConfig holds the text extraction service settings
type ProcessorConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Load reads and parses the configuration file and fills in defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = DefaultPollInterval
	}
	if c.Worker.StatusInterval == 0 {
		c.Worker.StatusInterval = DefaultStatusInterval
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Redis.Enabled && c.Redis.StatusTTL == 0 {
		c.Redis.StatusTTL = 3 * c.Worker.StatusInterval
	}
}

// ApplyEnv overrides file values with environment variables. Malformed values
// are an error rather than being ignored.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvPollIntervalMs); ok && v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPollIntervalMs, v, err)
		}
		if ms <= 0 {
			return fmt.Errorf("invalid %s %q: must be greater than 0", EnvPollIntervalMs, v)
		}
		c.Worker.PollInterval = time.Duration(ms) * time.Millisecond
	}

	if v, ok := os.LookupEnv(EnvDatabasePassword); ok {
		c.Database.Password = v
	}

	if v, ok := os.LookupEnv(EnvProcessorEndpoint); ok && v != "" {
		c.Processor.Endpoint = v
	}

	if v, ok := os.LookupEnv(EnvRabbitMQPassword); ok {
		c.RabbitMQ.Password = v
	}

	if v, ok := os.LookupEnv(EnvRedisURL); ok && v != "" {
		c.Redis.URL = v
	}

	return nil
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.ValidateDatabase(); err != nil {
		return err
	}

	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue max_attempts must be greater than 0")
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	return c.validateRedis()
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}

	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue max_attempts must be greater than 0")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if c.Worker.MaxBackoff <= 0 {
		return fmt.Errorf("worker max_backoff must be greater than 0")
	}

	if c.Worker.MaxBackoff < c.Worker.PollInterval {
		return fmt.Errorf("worker max_backoff (%s) must not be less than poll_interval (%s)", c.Worker.MaxBackoff, c.Worker.PollInterval)
	}

	if c.Worker.BackoffMultiplier < 1 {
		return fmt.Errorf("worker backoff_multiplier must be at least 1")
	}

	if c.Worker.StatusInterval <= 0 {
		return fmt.Errorf("worker status_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Processor.Endpoint == "" {
		return fmt.Errorf("processor endpoint is required")
	}

	if c.Processor.Timeout < 0 {
		return fmt.Errorf("processor timeout must not be negative")
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	return c.validateRedis()
}

// ValidateDatabase checks the database section alone; the operator CLI needs
// nothing else.
func (c *Config) ValidateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for driver %s", DriverSQLite)
		}
		return nil
	case DriverPostgres, DriverPGX:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.Enabled {
		return nil
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateRedis() error {
	if !c.Redis.Enabled {
		return nil
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis url is required")
	}

	if c.Redis.StatusTTL <= 0 {
		return fmt.Errorf("redis status_ttl must be greater than 0")
	}

	return nil
}
