package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// registerWebhook points Telegram at the configured public URL.
func (b *Bot) registerWebhook(ctx context.Context) error {
	ok, err := b.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            b.cfg.Telegram.WebhookURL,
		SecretToken:    b.cfg.Telegram.WebhookSecret,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !ok {
		return fmt.Errorf("set webhook: rejected by telegram")
	}

	b.log.Info().Str("url", b.cfg.Telegram.WebhookURL).Msg("telegram webhook registered")
	return nil
}

// dropWebhook removes any registered webhook so polling receives updates.
func (b *Bot) dropWebhook(ctx context.Context) error {
	if _, err := b.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
