package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, LockLocal, cfg.Lock.Driver)
	assert.Equal(t, ModePolling, cfg.Telegram.Mode)
	assert.Equal(t, "users", cfg.Sheets.SheetName)
	assert.Equal(t, 10*time.Second, cfg.ReconcileTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Stripe.Tolerance)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("LOCK_DRIVER", "redis")
	t.Setenv("LOCK_TTL", "30s")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, LockRedis, cfg.Lock.Driver)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Driver = "mongo" },
			wantErr: "unknown store driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Driver = StorePostgres },
			wantErr: "POSTGRES_DSN",
		},
		{
			name:    "sheets without id",
			mutate:  func(c *Config) { c.Store.Driver = StoreSheets },
			wantErr: "SHEET_ID",
		},
		{
			name:    "unknown lock",
			mutate:  func(c *Config) { c.Lock.Driver = "etcd" },
			wantErr: "unknown lock driver",
		},
		{
			name:    "webhook mode without url",
			mutate:  func(c *Config) { c.Telegram.Mode = ModeWebhook },
			wantErr: "TELEGRAM_WEBHOOK_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateServe(t *testing.T) {
	cfg := validConfig()
	require.ErrorContains(t, cfg.ValidateServe(), "BOT_TOKEN")

	cfg.Telegram.BotToken = "token"
	require.ErrorContains(t, cfg.ValidateServe(), "STRIPE_WEBHOOK_SECRET")

	cfg.Stripe.WebhookSecret = "whsec_test"
	assert.NoError(t, cfg.ValidateServe())
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Store.Driver = StoreSQLite
	cfg.Store.DBPath = "./test.db"
	cfg.Lock.Driver = LockLocal
	cfg.Telegram.Mode = ModePolling
	return cfg
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
