package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Export    ExportConfig    `mapstructure:"export"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// ReconcileConfig holds reconciliation engine configuration.
// Tolerance is kept as a string so "0.01" survives config parsing exactly.
type ReconcileConfig struct {
	Tolerance string `mapstructure:"tolerance"`
}

// ToleranceDecimal parses the configured tolerance.
func (c ReconcileConfig) ToleranceDecimal() (decimal.Decimal, error) {
	tol, err := decimal.NewFromString(c.Tolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid reconcile.tolerance %q: %w", c.Tolerance, err)
	}
	if tol.IsNegative() {
		return decimal.Zero, fmt.Errorf("reconcile.tolerance must not be negative, got %s", tol)
	}
	return tol, nil
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// ExportConfig holds report export configuration
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("BILLRECON")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/reconciler.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Reconciliation defaults
	viper.SetDefault("reconcile.tolerance", "0.01")

	// Worker defaults
	viper.SetDefault("worker.enabled", true)
	viper.SetDefault("worker.poll_interval", 5*time.Second)
	viper.SetDefault("worker.batch_size", 10)

	// Export defaults
	viper.SetDefault("export.output_dir", "reports")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// Validate checks configuration values
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := c.Reconcile.ToleranceDecimal(); err != nil {
		return err
	}
	if c.Worker.BatchSize < 1 {
		return fmt.Errorf("worker.batch_size must be positive, got %d", c.Worker.BatchSize)
	}
	return nil
}
