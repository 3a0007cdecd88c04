package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Environment string `mapstructure:"ENV"`
	DBDSN       string `mapstructure:"DB_DSN"`
	Store       string `mapstructure:"STORE"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	BaseURL     string `mapstructure:"BASE_URL"`
	AdminToken  string `mapstructure:"ADMIN_TOKEN"`
	Timezone    *time.Location

	Lifecycle LifecycleConfig
	Notify    NotifyConfig
	SMTP      SMTPConfig

	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`
	AMQPURL       string `mapstructure:"AMQP_URL"`
}

// LifecycleConfig сроки жизненного цикла бронирования и периоды фоновых задач
type LifecycleConfig struct {
	BookingExpiry         time.Duration `mapstructure:"BOOKING_EXPIRY"`
	ReminderLead          time.Duration `mapstructure:"REMINDER_LEAD"`
	ReminderSlack         time.Duration `mapstructure:"REMINDER_SLACK"`
	ExpirySweepInterval   time.Duration `mapstructure:"EXPIRY_SWEEP_INTERVAL"`
	ReminderSweepInterval time.Duration `mapstructure:"REMINDER_SWEEP_INTERVAL"`
}

type NotifyConfig struct {
	Workers   int           `mapstructure:"NOTIFY_WORKERS"`
	QueueSize int           `mapstructure:"NOTIFY_QUEUE_SIZE"`
	Timeout   time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"SMTP_HOST"`
	Port     int    `mapstructure:"SMTP_PORT"`
	Username string `mapstructure:"SMTP_USERNAME"`
	Password string `mapstructure:"SMTP_PASSWORD"`
	From     string `mapstructure:"MAIL_FROM"`
}

// Enabled SMTP канал включается только при заданном хосте
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфигурацию из произвольного источника переменных
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Environment: p.str("ENV", "development"),
		DBDSN:       getenv("DB_DSN"),
		Store:       p.str("STORE", StorePostgres),
		HTTPAddr:    p.str("HTTP_ADDR", ":8080"),
		BaseURL:     p.str("BASE_URL", "http://localhost:8080"),
		AdminToken:  getenv("ADMIN_TOKEN"),

		Lifecycle: LifecycleConfig{
			BookingExpiry:         p.duration("BOOKING_EXPIRY", 12*time.Hour),
			ReminderLead:          p.duration("REMINDER_LEAD", 60*time.Minute),
			ReminderSlack:         p.duration("REMINDER_SLACK", 5*time.Minute),
			ExpirySweepInterval:   p.duration("EXPIRY_SWEEP_INTERVAL", 10*time.Minute),
			ReminderSweepInterval: p.duration("REMINDER_SWEEP_INTERVAL", 5*time.Minute),
		},
		Notify: NotifyConfig{
			Workers:   p.integer("NOTIFY_WORKERS", 2),
			QueueSize: p.integer("NOTIFY_QUEUE_SIZE", 256),
			Timeout:   p.duration("NOTIFY_TIMEOUT", 15*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST"),
			Port:     p.integer("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME"),
			Password: getenv("SMTP_PASSWORD"),
			From:     getenv("MAIL_FROM"),
		},

		TelegramToken: getenv("TELEGRAM_TOKEN"),
		AMQPURL:       getenv("AMQP_URL"),
	}

	tz := p.str("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	cfg.Timezone = loc

	if len(p.errs) > 0 {
		return nil, p.errs[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет обязательные поля и согласованность интервалов
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required but not set")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	l := c.Lifecycle
	if l.BookingExpiry <= 0 || l.ReminderLead <= 0 || l.ReminderSlack <= 0 {
		return fmt.Errorf("BOOKING_EXPIRY, REMINDER_LEAD and REMINDER_SLACK must be positive")
	}
	if l.ExpirySweepInterval <= 0 || l.ReminderSweepInterval <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}
	if l.ReminderSlack >= l.ReminderLead {
		return fmt.Errorf("REMINDER_SLACK %s must be less than REMINDER_LEAD %s", l.ReminderSlack, l.ReminderLead)
	}

	if c.Notify.Workers <= 0 || c.Notify.QueueSize <= 0 || c.Notify.Timeout <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS, NOTIFY_QUEUE_SIZE and NOTIFY_TIMEOUT must be positive")
	}

	if c.SMTP.Enabled() && c.SMTP.From == "" {
		return fmt.Errorf("MAIL_FROM is required when SMTP_HOST is set")
	}

	return nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}
