package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sells-group/spreadwatch/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Waterfall WaterfallConfig `yaml:"waterfall" mapstructure:"waterfall"`
	Baseline  BaselineConfig  `yaml:"baseline" mapstructure:"baseline"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// OutputConfig configures the persisted yields document.
type OutputConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	HistoryWindow int    `yaml:"history_window" mapstructure:"history_window"`
	// Timezone decides which calendar day a run belongs to.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// WaterfallConfig configures the source cascade.
type WaterfallConfig struct {
	// SourcesFile is an optional YAML file overriding source tiers, URLs and
	// timeouts.
	SourcesFile       string `yaml:"sources_file" mapstructure:"sources_file"`
	PolitenessDelayMs int    `yaml:"politeness_delay_ms" mapstructure:"politeness_delay_ms"`
	SourceTimeoutSecs int    `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
}

// BaselineConfig holds the versioned reference values.
type BaselineConfig struct {
	Version       string             `yaml:"version" mapstructure:"version"`
	Values        map[string]float64 `yaml:"values" mapstructure:"values"`
	LastKnownGood bool               `yaml:"last_known_good" mapstructure:"last_known_good"`
}

// FetchConfig configures outbound HTTP.
type FetchConfig struct {
	UserAgent    string      `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs  int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyBytes int64       `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	Retry        RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures retries of transient HTTP failures within one
// source attempt.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the per-source circuit breaker shared by
// scheduled runs. A negative threshold disables it.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutMins int `yaml:"reset_timeout_mins" mapstructure:"reset_timeout_mins"`
}

// StoreConfig configures the run audit store.
type StoreConfig struct {
	// Driver is "sqlite" or "none".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the read-only API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ScheduleConfig configures the refresh loop.
type ScheduleConfig struct {
	Cron           string `yaml:"cron" mapstructure:"cron"`
	RunTimeoutSecs int    `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	// RunOnStart triggers one refresh before waiting for the first tick.
	RunOnStart bool `yaml:"run_on_start" mapstructure:"run_on_start"`
}

// MonitoringConfig configures health alerts computed from the run audit
// trail. Alerts are only delivered when WebhookURL is set.
type MonitoringConfig struct {
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	// FailureRateThreshold is the fraction of failed runs that triggers an
	// alert.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	// StaleStreakThreshold is the number of consecutive runs without any live
	// field that triggers an alert.
	StaleStreakThreshold int `yaml:"stale_streak_threshold" mapstructure:"stale_streak_threshold"`
	// SourceFailureRateThreshold is the fraction of failed or blocked attempts
	// that marks a source as degraded.
	SourceFailureRateThreshold float64 `yaml:"source_failure_rate_threshold" mapstructure:"source_failure_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	// File enables an additional rotating JSON log file.
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPREADWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("output.path", "data/yields.json")
	v.SetDefault("output.history_window", 30)
	v.SetDefault("output.timezone", "Europe/Rome")
	v.SetDefault("waterfall.sources_file", "")
	v.SetDefault("waterfall.politeness_delay_ms", 1000)
	v.SetDefault("waterfall.source_timeout_secs", 20)
	v.SetDefault("baseline.version", "2025-01-builtin")
	v.SetDefault("baseline.values", map[string]float64{
		"btp2y":   2.22,
		"btp5y":   2.81,
		"btp10y":  3.50,
		"btp30y":  4.34,
		"bund10y": 2.89,
	})
	v.SetDefault("baseline.last_known_good", false)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_body_bytes", 2<<20)
	v.SetDefault("fetch.retry.max_attempts", 2)
	v.SetDefault("fetch.retry.initial_backoff_ms", 500)
	v.SetDefault("fetch.retry.max_backoff_ms", 5000)
	v.SetDefault("circuit.failure_threshold", 3)
	v.SetDefault("circuit.reset_timeout_mins", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/spreadwatch.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("schedule.cron", "*/30 8-18 * * 1-5")
	v.SetDefault("schedule.run_timeout_secs", 300)
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 900)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_streak_threshold", 3)
	v.SetDefault("monitoring.source_failure_rate_threshold", 0.8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

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

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "refresh", "schedule" and "serve".
func (c *Config) Validate(mode string) error {
	switch mode {
	case "refresh", "schedule", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "none", "":
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for the sqlite driver")
	}
	if c.Output.Path == "" {
		return eris.New("config: output.path is required")
	}

	if mode == "serve" || mode == "schedule" {
		if c.Server.Port < 0 || c.Server.Port > 65535 {
			return eris.Errorf("config: server.port %d out of range", c.Server.Port)
		}
		if mode == "serve" && c.Server.Port == 0 {
			return eris.New("config: server.port must be > 0")
		}
	}
	if mode == "serve" {
		return nil
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.BaselineValues(); err != nil {
		return err
	}
	if c.Baseline.Version == "" {
		return eris.New("config: baseline.version is required")
	}
	if mode == "schedule" {
		if c.Schedule.Cron == "" {
			return eris.New("config: schedule.cron is required")
		}
		m := c.Monitoring
		if m.FailureRateThreshold < 0 || m.FailureRateThreshold > 1 {
			return eris.Errorf("config: monitoring.failure_rate_threshold %v not in [0,1]", m.FailureRateThreshold)
		}
		if m.SourceFailureRateThreshold < 0 || m.SourceFailureRateThreshold > 1 {
			return eris.Errorf("config: monitoring.source_failure_rate_threshold %v not in [0,1]", m.SourceFailureRateThreshold)
		}
		if m.WebhookURL != "" && !strings.HasPrefix(m.WebhookURL, "http://") && !strings.HasPrefix(m.WebhookURL, "https://") {
			return eris.Errorf("config: monitoring.webhook_url %q must be an http(s) URL", m.WebhookURL)
		}
	}
	return nil
}

// Location resolves the output timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Output.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Output.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", c.Output.Timezone)
	}
	return loc, nil
}

// BaselineValues converts the configured baseline into a field map. Every
// declared field must be present.
func (c *Config) BaselineValues() (model.FieldMap, error) {
	out := make(model.FieldMap, len(c.Baseline.Values))
	for name, v := range c.Baseline.Values {
		k, err := model.ParseFieldKey(strings.ToLower(name))
		if err != nil {
			return nil, eris.Wrap(err, "config: baseline.values")
		}
		out[k] = model.FieldValue{Value: v}
	}
	if missing := out.Missing(); len(missing) > 0 {
		return nil, eris.Errorf("config: baseline.values missing %v", missing)
	}
	return out, nil
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

	var opts []zap.Option
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			zapCfg.Level,
		)
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
