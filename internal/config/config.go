package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreSheets   = "sheets"
	StoreMemory   = "memory"
)

// Lock drivers
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Telegram update delivery modes
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

type Config struct {
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"premium-bot"`

	Server struct {
		Port int `env:"PORT" envDefault:"8080"`
	}

	Telegram struct {
		BotToken      string `env:"BOT_TOKEN"`
		Mode          string `env:"TELEGRAM_MODE" envDefault:"polling"`
		WebhookURL    string `env:"TELEGRAM_WEBHOOK_URL"`
		WebhookSecret string `env:"TELEGRAM_WEBHOOK_SECRET"`
	}

	Stripe struct {
		WebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
		Tolerance     time.Duration `env:"STRIPE_TOLERANCE" envDefault:"5m"`
	}

	Store struct {
		Driver      string `env:"STORE_DRIVER" envDefault:"sqlite"`
		DBPath      string `env:"DB_PATH" envDefault:"./premium.db"`
		PostgresDSN string `env:"POSTGRES_DSN"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Sheets struct {
		SpreadsheetID   string `env:"SHEET_ID"`
		SheetName       string `env:"SHEET_NAME" envDefault:"users"`
		CredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE"`
	}

	Lock struct {
		Driver string        `env:"LOCK_DRIVER" envDefault:"local"`
		TTL    time.Duration `env:"LOCK_TTL" envDefault:"15s"`
	}

	// Timeouts applied by the core to each inbound event
	ReconcileTimeout time.Duration `env:"RECONCILE_TIMEOUT" envDefault:"10s"`
	ChatTimeout      time.Duration `env:"CHAT_TIMEOUT" envDefault:"5s"`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that only matter for the selected drivers.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for store driver %q", c.Store.Driver)
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for store driver %q", c.Store.Driver)
		}
	case StoreRedis, StoreMemory:
	case StoreSheets:
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("SHEET_ID is required for store driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Lock.Driver {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}

	switch c.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.Telegram.WebhookURL == "" {
			return fmt.Errorf("TELEGRAM_WEBHOOK_URL is required in webhook mode")
		}
	default:
		return fmt.Errorf("unknown telegram mode %q", c.Telegram.Mode)
	}

	return nil
}

// ValidateServe checks what the long-running bot needs on top of Validate.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	return nil
}
