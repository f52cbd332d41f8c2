package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/suspectuso/premium-bot/internal/config"
	"github.com/suspectuso/premium-bot/internal/lock"
	"github.com/suspectuso/premium-bot/internal/logger"
	"github.com/suspectuso/premium-bot/internal/storage"
	"github.com/suspectuso/premium-bot/internal/storage/memstore"
	"github.com/suspectuso/premium-bot/internal/storage/redisstore"
	"github.com/suspectuso/premium-bot/internal/storage/sheetstore"
)

// deps holds the shared infrastructure every command needs.
type deps struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  storage.Store
	locker lock.Locker

	rdb     *redis.Client
	closers []func() error
}

func loadConfig(serve bool) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	validate := cfg.Validate
	if serve {
		validate = cfg.ValidateServe
	}
	if err := validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}

	return cfg, logger.New(cfg.ServiceName, cfg.Debug), nil
}

func openDeps(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*deps, error) {
	d := &deps{cfg: cfg, log: log}

	if err := d.openStore(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.openLocker(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *deps) openStore(ctx context.Context) error {
	cfg := d.cfg

	switch cfg.Store.Driver {
	case config.StoreSQLite:
		s, err := storage.New(cfg.Store.DBPath)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		d.closers = append(d.closers, s.Close)
		d.store = s
		d.log.Info().Str("path", cfg.Store.DBPath).Msg("sqlite storage initialized")

	case config.StorePostgres:
		s, err := storage.NewPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		d.closers = append(d.closers, s.Close)
		d.store = s
		d.log.Info().Msg("postgres storage initialized")

	case config.StoreRedis:
		client, err := d.redisClient(ctx)
		if err != nil {
			return err
		}
		d.store = redisstore.New(client)
		d.log.Info().Str("addr", cfg.Redis.Addr).Msg("redis storage initialized")

	case config.StoreSheets:
		var opts []option.ClientOption
		if cfg.Sheets.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Sheets.CredentialsFile))
		}
		s, err := sheetstore.New(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, opts...)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		if err := s.EnsureHeader(ctx); err != nil {
			return fmt.Errorf("init sheet header: %w", err)
		}
		d.store = s
		d.log.Info().Str("sheet", cfg.Sheets.SheetName).Msg("sheets storage initialized")

	case config.StoreMemory:
		d.store = memstore.New()
		d.log.Warn().Msg("memory storage: users are lost on restart")

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

func (d *deps) openLocker(ctx context.Context) error {
	switch d.cfg.Lock.Driver {
	case config.LockRedis:
		client, err := d.redisClient(ctx)
		if err != nil {
			return err
		}
		d.locker = lock.NewRedis(client, d.cfg.Lock.TTL)
	default:
		d.locker = lock.NewLocal()
	}
	d.log.Info().Str("driver", d.cfg.Lock.Driver).Msg("locker initialized")
	return nil
}

// redisClient returns one client shared by the store and the locker.
func (d *deps) redisClient(ctx context.Context) (*redis.Client, error) {
	if d.rdb != nil {
		return d.rdb, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     d.cfg.Redis.Addr,
		Password: d.cfg.Redis.Password,
		DB:       d.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	d.closers = append(d.closers, client.Close)
	d.rdb = client
	return client, nil
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.log.Warn().Err(err).Msg("close")
		}
	}
	d.closers = nil
}
