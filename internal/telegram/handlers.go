package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/suspectuso/premium-bot/internal/chat"
	"github.com/suspectuso/premium-bot/internal/config"
)

// Handler produces the reply for an inbound message.
type Handler interface {
	Handle(ctx context.Context, msg chat.Message) chat.Reply
}

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot     *bot.Bot
	cfg     *config.Config
	handler Handler
	log     zerolog.Logger
}

// New creates a new telegram bot
func New(cfg *config.Config, handler Handler, log zerolog.Logger, extra ...bot.Option) (*Bot, error) {
	b := &Bot{
		cfg:     cfg,
		handler: handler,
		log:     log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}
	if cfg.Telegram.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.Telegram.WebhookSecret))
	}
	opts = append(opts, extra...)

	tgBot, err := bot.New(cfg.Telegram.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot
	return b, nil
}

// Start receives updates until ctx is done, by polling or from the webhook
// handler depending on the configured mode.
func (b *Bot) Start(ctx context.Context) error {
	if b.cfg.Telegram.Mode == config.ModeWebhook {
		if err := b.registerWebhook(ctx); err != nil {
			return err
		}
		b.bot.StartWebhook(ctx)
		return nil
	}

	if err := b.dropWebhook(ctx); err != nil {
		return err
	}
	b.bot.Start(ctx)
	return nil
}

// WebhookHandler serves Telegram update deliveries in webhook mode.
func (b *Bot) WebhookHandler() http.Handler {
	return b.bot.WebhookHandler()
}

// --- Handlers ---

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg, ok := fromMessage(update.Message)
	if !ok {
		return
	}

	reply := b.handle(ctx, msg)
	b.sendReply(ctx, msg.ChatID, reply)
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery

	// Answer callback to remove loading state
	if _, err := tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	}); err != nil {
		b.log.Warn().Err(err).Msg("answer callback")
	}

	msg := fromCallback(cb)
	reply := b.handle(ctx, msg)
	b.sendReply(ctx, msg.ChatID, reply)
}

func (b *Bot) handle(ctx context.Context, msg chat.Message) chat.Reply {
	reply := b.handler.Handle(ctx, msg)
	b.log.Debug().
		Str("external_id", msg.ExternalID).
		Int("actions", len(reply.Actions)).
		Msg("reply ready")
	return reply
}

// --- Helpers ---

func fromMessage(m *models.Message) (chat.Message, bool) {
	if m == nil || m.Text == "" || m.From == nil {
		return chat.Message{}, false
	}

	return chat.Message{
		ExternalID:  strconv.FormatInt(m.From.ID, 10),
		ChatID:      m.Chat.ID,
		Text:        m.Text,
		DisplayName: m.From.FirstName,
		Handle:      m.From.Username,
	}, true
}

func fromCallback(cb *models.CallbackQuery) chat.Message {
	chatID := cb.From.ID
	if cb.Message.Message != nil {
		chatID = cb.Message.Message.Chat.ID
	}

	return chat.Message{
		ExternalID:  strconv.FormatInt(cb.From.ID, 10),
		ChatID:      chatID,
		Text:        cb.Data,
		DisplayName: cb.From.FirstName,
		Handle:      cb.From.Username,
	}
}

func (b *Bot) sendReply(ctx context.Context, chatID int64, reply chat.Reply) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      reply.Text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard := ReplyKeyboard(reply); keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	// Delivery failures are not retried.
	if _, err := b.bot.SendMessage(ctx, params); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

// Notify sends a plain notification to a user's private chat.
func (b *Bot) Notify(ctx context.Context, externalID string, text string) error {
	userID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram user id %q: %w", externalID, err)
	}

	disablePreview := true
	_, err = b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	return err
}
