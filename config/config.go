package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/scheduling-core/internal/email"
	"github.com/jwalitptl/scheduling-core/internal/service/booking"
	"github.com/jwalitptl/scheduling-core/internal/worker"
	"github.com/jwalitptl/scheduling-core/pkg/logger"
	"github.com/jwalitptl/scheduling-core/pkg/redisclient"
)

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN renders the lib/pq keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL renders the postgres:// form expected by golang-migrate.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

type BookingConfig struct {
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	LockAcquireTimeout time.Duration `mapstructure:"lock_acquire_timeout"`
	LockRetryInterval  time.Duration `mapstructure:"lock_retry_interval"`
	DefaultDuration    time.Duration `mapstructure:"default_duration"`
	ReminderLeadTime   time.Duration `mapstructure:"reminder_lead_time"`
	DirectoryCacheTTL  time.Duration `mapstructure:"directory_cache_ttl"`
}

type QueuesConfig struct {
	Reminders     string `mapstructure:"reminders"`
	LabResults    string `mapstructure:"lab_results"`
	Prescriptions string `mapstructure:"prescriptions"`
}

// All returns every configured queue name.
func (c QueuesConfig) All() []string {
	return []string{c.Reminders, c.LabResults, c.Prescriptions}
}

type WorkerConfig struct {
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`
	RedelayInterval time.Duration `mapstructure:"redelay_interval"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Concurrency     int           `mapstructure:"concurrency"`
	DepthInterval   time.Duration `mapstructure:"depth_interval"`
	HealthPort      int           `mapstructure:"health_port"`
}

// SMTPConfig is read from the environment by LoadSMTP, never from the
// config file.
type SMTPConfig struct {
	Enabled  bool          `envconfig:"SMTP_ENABLED" default:"false"`
	Host     string        `envconfig:"SMTP_HOST" default:"localhost"`
	Port     int           `envconfig:"SMTP_PORT" default:"587"`
	Username string        `envconfig:"SMTP_USERNAME"`
	Password string        `envconfig:"SMTP_PASSWORD"`
	From     string        `envconfig:"SMTP_FROM" default:"no-reply@clinic.local"`
	Timeout  time.Duration `envconfig:"SMTP_BREAKER_TIMEOUT" default:"30s"`
	// MaxFailures consecutive errors open the breaker.
	MaxFailures uint32 `envconfig:"SMTP_BREAKER_MAX_FAILURES" default:"5"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MonitoringConfig struct {
	Namespace   string `mapstructure:"namespace"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Booking    BookingConfig    `mapstructure:"booking"`
	Queues     QueuesConfig     `mapstructure:"queues"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	SMTP       SMTPConfig       `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "scheduling")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 8*time.Millisecond)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("booking.lock_ttl", 2*time.Second)
	v.SetDefault("booking.lock_acquire_timeout", 2*time.Second)
	v.SetDefault("booking.lock_retry_interval", 50*time.Millisecond)
	v.SetDefault("booking.default_duration", 30*time.Minute)
	v.SetDefault("booking.reminder_lead_time", 24*time.Hour)
	v.SetDefault("booking.directory_cache_ttl", time.Minute)

	v.SetDefault("queues.reminders", "queue:appointments:reminders")
	v.SetDefault("queues.lab_results", "queue:lab:results")
	v.SetDefault("queues.prescriptions", "queue:pharmacy:notifications")

	v.SetDefault("worker.poll_timeout", 5*time.Second)
	v.SetDefault("worker.redelay_interval", time.Second)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.depth_interval", 15*time.Second)
	v.SetDefault("worker.health_port", 8081)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50.0)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("monitoring.namespace", "scheduling")
	v.SetDefault("monitoring.metrics_path", "/metrics")
}

// LoadConfig reads config.yml (optional) from the usual locations, then
// applies environment overrides: database.host is overridden by DATABASE_HOST.
// A .env file in the working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	}
	v.AddConfigPath(".")           // current directory
	v.AddConfigPath("./config")    // config subdirectory
	v.AddConfigPath("/app/config") // container config directory

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	smtp, err := LoadSMTP()
	if err != nil {
		return nil, err
	}
	cfg.SMTP = *smtp

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadSMTP reads the SMTP_* environment variables.
func LoadSMTP() (*SMTPConfig, error) {
	var cfg SMTPConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load smtp config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Booking.LockTTL <= 0:
		return errors.New("booking.lock_ttl must be positive")
	case c.Booking.LockAcquireTimeout <= 0:
		return errors.New("booking.lock_acquire_timeout must be positive")
	case c.Worker.MaxRetries < 1:
		return errors.New("worker.max_retries must be at least 1")
	case c.Worker.Concurrency < 1:
		return errors.New("worker.concurrency must be at least 1")
	}
	for _, q := range c.Queues.All() {
		if q == "" {
			return errors.New("queue names must not be empty")
		}
	}
	return nil
}

// Conversion helpers from config sections to package configs

func (c *BookingConfig) ToServiceConfig(queues QueuesConfig) booking.Config {
	return booking.Config{
		LockTTL:            c.LockTTL,
		LockAcquireTimeout: c.LockAcquireTimeout,
		DefaultDuration:    c.DefaultDuration,
		ReminderLeadTime:   c.ReminderLeadTime,
		ReminderQueue:      queues.Reminders,
	}
}

func (c *WorkerConfig) ToWorkerConfig(queues QueuesConfig) worker.Config {
	return worker.Config{
		Queues:          queues.All(),
		PollTimeout:     c.PollTimeout,
		RedelayInterval: c.RedelayInterval,
		MaxRetries:      c.MaxRetries,
		Concurrency:     c.Concurrency,
		DepthInterval:   c.DepthInterval,
	}
}

func (c *RedisConfig) ToClientConfig() redisclient.Config {
	return redisclient.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
	}
}

func (c *SMTPConfig) ToNotifierConfig() email.SMTPConfig {
	return email.SMTPConfig{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Password:    c.Password,
		From:        c.From,
		MaxFailures: c.MaxFailures,
		Timeout:     c.Timeout,
	}
}

func (c *LoggingConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       c.JSON,
	}
}
