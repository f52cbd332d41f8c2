package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/suspectuso/premium-bot/internal/billing"
	"github.com/suspectuso/premium-bot/internal/chat"
	"github.com/suspectuso/premium-bot/internal/config"
	"github.com/suspectuso/premium-bot/internal/notifier"
	"github.com/suspectuso/premium-bot/internal/telegram"
	"github.com/suspectuso/premium-bot/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the telegram bot and the payment webhook server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(true)
	if err != nil {
		return err
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := openDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	router := chat.NewRouter(d.store, d.locker, log.With().Str("component", "router").Logger(),
		chat.WithTimeout(cfg.ChatTimeout))

	bot, err := telegram.New(cfg, router, log.With().Str("component", "telegram").Logger())
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	log.Info().Str("mode", cfg.Telegram.Mode).Msg("telegram bot initialized")

	notify := notifier.New(bot, log.With().Str("component", "notifier").Logger())

	reconciler := billing.NewReconciler(d.store, d.locker, log.With().Str("component", "billing").Logger(),
		billing.WithTimeout(cfg.ReconcileTimeout),
		billing.WithOnApplied(notify.PaymentApplied),
		billing.WithHookTimeout(cfg.NotifyTimeout))

	var tgHandler http.Handler
	if cfg.Telegram.Mode == config.ModeWebhook {
		tgHandler = bot.WebhookHandler()
	}

	// Start webhook server
	webhookServer := webhook.NewServer(cfg, reconciler, tgHandler, log.With().Str("component", "http").Logger())
	go func() {
		if err := webhookServer.Start(ctx, cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("webhook server")
			cancel()
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			log.Info().Msg("shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info().Msg("starting bot...")
	return bot.Start(ctx)
}
