package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, DriverPostgres, cfg.Database.Driver)
				assert.Equal(t, "learning_hub", cfg.Database.Database)
				assert.True(t, cfg.Database.AutoMigrate)
				assert.Equal(t, "materials_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, 10, cfg.RabbitMQ.Consumer.PrefetchCount)
				assert.Equal(t, 3, cfg.Queue.MaxAttempts)
				assert.Equal(t, 60*time.Second, cfg.Worker.MaxBackoff)
				assert.Equal(t, 2.0, cfg.Worker.BackoffMultiplier)
				assert.Equal(t, 2*time.Minute, cfg.Processor.Timeout)
				assert.Equal(t, "learning-hub-worker", cfg.App.Name)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultPollInterval, cfg.Worker.PollInterval)
	assert.Equal(t, DefaultStatusInterval, cfg.Worker.StatusInterval)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Worker.ShutdownTimeout)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 3*DefaultStatusInterval, cfg.Redis.StatusTTL)

	missing, err := Load("testdata/missing_database.yaml")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, missing.Database.Driver)
}

func TestApplyEnv(t *testing.T) {
	t.Run("overrides file values", func(t *testing.T) {
		t.Setenv(EnvPollIntervalMs, "250")
		t.Setenv(EnvDatabasePassword, "s3cret")
		t.Setenv(EnvProcessorEndpoint, "http://extractor.internal/extract")
		t.Setenv(EnvRedisURL, "redis://cache:6379/1")

		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NoError(t, cfg.ApplyEnv())

		assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
		assert.Equal(t, "s3cret", cfg.Database.Password)
		assert.Equal(t, "http://extractor.internal/extract", cfg.Processor.Endpoint)
		assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	})

	t.Run("unset variables keep file values", func(t *testing.T) {
		cfg, err := Load("testdata/sqlite_worker.yaml")
		require.NoError(t, err)
		require.NoError(t, cfg.ApplyEnv())

		assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
		assert.Equal(t, "http://extractor:9000/extract", cfg.Processor.Endpoint)
	})

	for _, value := range []string{"fast", "0", "-10", "1.5"} {
		t.Run("malformed poll interval "+value, func(t *testing.T) {
			t.Setenv(EnvPollIntervalMs, value)

			cfg := validWorkerConfig()
			err := cfg.ApplyEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), EnvPollIntervalMs)
		})
	}
}

func validAPIConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			Database: "learning_hub",
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "materials_exchange"},
			Queue:    AMQPQueueConfig{Name: "material_processing"},
		},
		Queue: QueueConfig{MaxAttempts: 3},
	}
}

func validWorkerConfig() *Config {
	cfg := validAPIConfig()
	cfg.Worker = WorkerConfig{
		PollInterval:      5 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2,
		StatusInterval:    60 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
	cfg.Processor = ProcessorConfig{Endpoint: "http://localhost:9000/extract", Timeout: time.Minute}
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			errString: "database name is required",
		},
		{
			name:      "unknown driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			errString: "unsupported database driver",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverSQLite}
			},
			errString: "database path is required",
		},
		{
			name: "sqlite with path",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverSQLite, Path: "queue.db"}
			},
		},
		{
			name:   "pgx driver",
			mutate: func(c *Config) { c.Database.Driver = DriverPGX },
		},
		{
			name:      "zero max attempts",
			mutate:    func(c *Config) { c.Queue.MaxAttempts = 0 },
			errString: "queue max_attempts must be greater than 0",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			errString: "rabbitmq queue name is required",
		},
		{
			name:   "rabbitmq disabled skips its checks",
			mutate: func(c *Config) { c.RabbitMQ = RabbitMQConfig{} },
		},
		{
			name:      "redis enabled without url",
			mutate:    func(c *Config) { c.Redis = RedisConfig{Enabled: true, StatusTTL: time.Minute} },
			errString: "redis url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:   "server port is not required",
			mutate: func(c *Config) { c.Server.Port = 0 },
		},
		{
			name:      "zero max attempts",
			mutate:    func(c *Config) { c.Queue.MaxAttempts = 0 },
			errString: "queue max_attempts must be greater than 0",
		},
		{
			name:      "zero poll interval",
			mutate:    func(c *Config) { c.Worker.PollInterval = 0 },
			errString: "worker poll_interval must be greater than 0",
		},
		{
			name:      "zero max backoff",
			mutate:    func(c *Config) { c.Worker.MaxBackoff = 0 },
			errString: "worker max_backoff must be greater than 0",
		},
		{
			name:      "max backoff below poll interval",
			mutate:    func(c *Config) { c.Worker.MaxBackoff = time.Second },
			errString: "must not be less than poll_interval",
		},
		{
			name:      "zero multiplier",
			mutate:    func(c *Config) { c.Worker.BackoffMultiplier = 0 },
			errString: "worker backoff_multiplier must be at least 1",
		},
		{
			name:      "zero status interval",
			mutate:    func(c *Config) { c.Worker.StatusInterval = 0 },
			errString: "worker status_interval must be greater than 0",
		},
		{
			name:      "missing processor endpoint",
			mutate:    func(c *Config) { c.Processor.Endpoint = "" },
			errString: "processor endpoint is required",
		},
		{
			name:      "negative processor timeout",
			mutate:    func(c *Config) { c.Processor.Timeout = -time.Second },
			errString: "processor timeout must not be negative",
		},
		{
			name: "redis without ttl",
			mutate: func(c *Config) {
				c.Redis = RedisConfig{Enabled: true, URL: "redis://localhost:6379/0"}
			},
			errString: "redis status_ttl must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validWorkerConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("sqlite worker config", func(t *testing.T) {
		cfg, err := Load("testdata/sqlite_worker.yaml")
		require.NoError(t, err)

		require.NoError(t, cfg.ValidateWorkerConfig())
		assert.Equal(t, 1.5, cfg.Worker.BackoffMultiplier)
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}
