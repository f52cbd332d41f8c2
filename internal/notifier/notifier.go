// Package notifier tells users about payment state changes over the chat transport.
package notifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/suspectuso/premium-bot/internal/billing"
	"github.com/suspectuso/premium-bot/internal/storage"
)

// DefaultPaidText is sent once a payment has been applied.
const DefaultPaidText = "⭐ <b>Premium activated!</b>\n\nThanks for your support 💙"

// Sender delivers a text to a user's chat.
type Sender interface {
	Notify(ctx context.Context, externalID string, text string) error
}

// Notifier processes reconciled payments and sends confirmations
type Notifier struct {
	sender Sender
	text   string
	log    zerolog.Logger
}

// New creates a new Notifier
func New(sender Sender, log zerolog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		text:   DefaultPaidText,
		log:    log,
	}
}

// PaymentApplied is a billing.AppliedFunc.
func (n *Notifier) PaymentApplied(ctx context.Context, user *storage.User, ev billing.PaymentEvent) error {
	if err := n.sender.Notify(ctx, user.ExternalID, n.text); err != nil {
		return fmt.Errorf("send premium notification: %w", err)
	}

	n.log.Info().
		Str("external_id", user.ExternalID).
		Str("event_id", ev.EventID).
		Msg("premium notification sent")
	return nil
}
