package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/suspectuso/premium-bot/internal/billing"
	"github.com/suspectuso/premium-bot/internal/storage"
)

type fakeSender struct {
	sent map[string]string
	err  error
}

func (f *fakeSender) Notify(ctx context.Context, externalID, text string) error {
	if f.err != nil {
		return f.err
	}
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[externalID] = text
	return nil
}

func TestPaymentApplied(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, zerolog.Nop())

	err := n.PaymentApplied(context.Background(), &storage.User{ExternalID: "42"}, billing.PaymentEvent{EventID: "E1"})
	assert.NoError(t, err)
	assert.Equal(t, DefaultPaidText, sender.sent["42"])
}

func TestPaymentAppliedSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("blocked by user")}
	n := New(sender, zerolog.Nop())

	err := n.PaymentApplied(context.Background(), &storage.User{ExternalID: "42"}, billing.PaymentEvent{EventID: "E1"})
	assert.ErrorContains(t, err, "blocked by user")
}

// Compile-time check that the hook fits the reconciler.
var _ billing.AppliedFunc = (&Notifier{}).PaymentApplied
