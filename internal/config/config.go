package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config keeps runtime settings for the service.
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Retention RetentionConfig `mapstructure:"retention"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Ops       OpsConfig       `mapstructure:"ops"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// NotifyConfig tunes deadline reminder delivery.
type NotifyConfig struct {
	Timezone      string        `mapstructure:"timezone"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Concurrency   int           `mapstructure:"concurrency"`
	Lease         time.Duration `mapstructure:"lease"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

// ScheduleConfig holds cron specs for the background sweeps.
type ScheduleConfig struct {
	DeadlineSweep  string        `mapstructure:"deadline_sweep"`
	RetentionSweep string        `mapstructure:"retention_sweep"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
}

type RetentionConfig struct {
	Days int `mapstructure:"days"`
}

type TasksConfig struct {
	StrictTransitions bool `mapstructure:"strict_transitions"`
}

type OpsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Location resolves the notification timezone.
func (c NotifyConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Window returns the retention window as a duration.
func (c RetentionConfig) Window() time.Duration {
	return time.Duration(c.Days) * 24 * time.Hour
}

// Load reads configuration from an optional .env file, an optional config
// file and environment variables, in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	cfg.Database.DSN = strings.TrimSpace(cfg.Database.DSN)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings every command needs. The Telegram token is
// checked separately by commands that talk to Telegram.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if _, err := c.Notify.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Notify.SendTimeout <= 0 {
		errs = append(errs, errors.New("notify.send_timeout must be positive"))
	}
	if c.Notify.MaxAttempts < 1 {
		errs = append(errs, errors.New("notify.max_attempts must be at least 1"))
	}
	if c.Notify.Concurrency < 1 {
		errs = append(errs, errors.New("notify.concurrency must be at least 1"))
	}
	if c.Notify.Lease <= c.Notify.SendTimeout {
		errs = append(errs, errors.New("notify.lease must be longer than notify.send_timeout"))
	}
	if c.Retention.Days < 1 {
		errs = append(errs, errors.New("retention.days must be at least 1"))
	}
	if c.Schedule.JobTimeout <= 0 {
		errs = append(errs, errors.New("schedule.job_timeout must be positive"))
	}

	return errors.Join(errs...)
}

// RequireTelegram reports a missing bot token.
func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "deadline_planner.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("notify.timezone", "America/Adak")
	v.SetDefault("notify.send_timeout", "10s")
	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("notify.concurrency", 4)
	v.SetDefault("notify.lease", "1m")
	v.SetDefault("notify.rate_per_second", 25)

	v.SetDefault("schedule.deadline_sweep", "@every 5m")
	v.SetDefault("schedule.retention_sweep", "0 0 3 * * *")
	v.SetDefault("schedule.job_timeout", "2m")

	v.SetDefault("retention.days", 30)
	v.SetDefault("tasks.strict_transitions", false)
	v.SetDefault("ops.addr", ":9090")
}

func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("telegram.token", "TELEGRAM_TOKEN")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
	_ = v.BindEnv("notify.timezone", "NOTIFY_TIMEZONE")
	_ = v.BindEnv("retention.days", "RETENTION_DAYS")
	_ = v.BindEnv("ops.addr", "OPS_ADDR")
}
