// Package config loads cdc-cli settings from config.yaml and CDC_*
// environment variables, and installs the global logger.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/cdc-cli/internal/db"
	"github.com/sells-group/cdc-cli/internal/resilience"
)

// Config is the root configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	CDC       CDCConfig       `yaml:"cdc" mapstructure:"cdc"`
	Loader    LoaderConfig    `yaml:"loader" mapstructure:"loader"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SourceConfig points at the operational orders database.
type SourceConfig struct {
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	AuditDeletes bool   `yaml:"audit_deletes" mapstructure:"audit_deletes"`
}

// WarehouseConfig selects the dimension store.
type WarehouseConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// Pool returns the pgx pool settings.
func (w WarehouseConfig) Pool() db.PoolConfig {
	return db.PoolConfig{MaxConns: w.MaxConns, MinConns: w.MinConns}
}

// CDCConfig configures change detection.
type CDCConfig struct {
	LogDir          string `yaml:"log_dir" mapstructure:"log_dir"`
	StateDir        string `yaml:"state_dir" mapstructure:"state_dir"`
	IntervalSecs    int    `yaml:"interval_secs" mapstructure:"interval_secs"`
	LookbackMinutes int    `yaml:"lookback_minutes" mapstructure:"lookback_minutes"`
}

// Interval is the pause between polls.
func (c CDCConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// Lookback bounds the first poll.
func (c CDCConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackMinutes) * time.Minute
}

// LoaderConfig configures the SCD2 loader.
type LoaderConfig struct {
	IntervalSecs         int     `yaml:"interval_secs" mapstructure:"interval_secs"`
	Workers              int     `yaml:"workers" mapstructure:"workers"`
	MaxTransitionsPerSec float64 `yaml:"max_transitions_per_sec" mapstructure:"max_transitions_per_sec"`
	RetentionHours       int     `yaml:"retention_hours" mapstructure:"retention_hours"`
	QuarantineDir        string  `yaml:"quarantine_dir" mapstructure:"quarantine_dir"`
}

// Interval is the pause between load cycles.
func (l LoaderConfig) Interval() time.Duration {
	return time.Duration(l.IntervalSecs) * time.Second
}

// Retention is how long applied artifacts are kept.
func (l LoaderConfig) Retention() time.Duration {
	return time.Duration(l.RetentionHours) * time.Hour
}

// RetryConfig is the backoff policy for connects and transient failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Policy converts r to a resilience.RetryConfig.
func (r RetryConfig) Policy() resilience.RetryConfig {
	return resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

// CircuitConfig configures the source circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Breaker converts c to a resilience.BreakerConfig.
func (c CircuitConfig) Breaker() resilience.BreakerConfig {
	return resilience.FromCircuitConfig(c.FailureThreshold, c.ResetTimeoutSecs)
}

// ServerConfig configures the status HTTP server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CDC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source.database_url", "")
	v.SetDefault("source.audit_deletes", false)
	v.SetDefault("warehouse.driver", "postgres")
	v.SetDefault("warehouse.database_url", "")
	v.SetDefault("warehouse.max_conns", 10)
	v.SetDefault("warehouse.min_conns", 2)
	v.SetDefault("cdc.log_dir", "data/cdc_logs")
	v.SetDefault("cdc.state_dir", "data/cdc_logs")
	v.SetDefault("cdc.interval_secs", 10)
	v.SetDefault("cdc.lookback_minutes", 5)
	v.SetDefault("loader.interval_secs", 30)
	v.SetDefault("loader.workers", 4)
	v.SetDefault("loader.max_transitions_per_sec", 0)
	v.SetDefault("loader.retention_hours", 24)
	v.SetDefault("loader.quarantine_dir", "")
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("server.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.Loader.QuarantineDir == "" {
		cfg.Loader.QuarantineDir = filepath.Join(cfg.CDC.LogDir, "quarantine")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "detect",
// "load", "run", "seed" or "report".
func (c *Config) Validate(mode string) error {
	var errs []string

	needSource := mode == "detect" || mode == "run" || mode == "seed"
	needWarehouse := mode == "load" || mode == "run" || mode == "report"

	switch mode {
	case "detect", "load", "run", "seed", "report":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needSource && c.Source.DatabaseURL == "" {
		errs = append(errs, "source.database_url is required")
	}
	if needWarehouse {
		switch c.Warehouse.Driver {
		case "postgres":
			if c.Warehouse.DatabaseURL == "" {
				errs = append(errs, "warehouse.database_url is required for the postgres driver")
			}
		case "sqlite":
		default:
			errs = append(errs, "warehouse.driver must be postgres or sqlite")
		}
	}
	if mode == "detect" || mode == "run" {
		if c.CDC.IntervalSecs <= 0 {
			errs = append(errs, "cdc.interval_secs must be positive")
		}
		if c.CDC.LookbackMinutes <= 0 {
			errs = append(errs, "cdc.lookback_minutes must be positive")
		}
	}
	if mode == "load" || mode == "run" {
		if c.Loader.IntervalSecs <= 0 {
			errs = append(errs, "loader.interval_secs must be positive")
		}
		if c.Loader.Workers < 1 || c.Loader.Workers > 64 {
			errs = append(errs, "loader.workers must be between 1 and 64")
		}
		if c.Loader.MaxTransitionsPerSec < 0 {
			errs = append(errs, "loader.max_transitions_per_sec must not be negative")
		}
		if c.Loader.RetentionHours < 0 {
			errs = append(errs, "loader.retention_hours must not be negative")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
