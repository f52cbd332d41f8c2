package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/suspectuso/premium-bot/internal/billing"
)

const maxBodyBytes = 65536

const (
	eventCheckoutCompleted     = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

func (s *Server) handleStripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}
	if len(payload) > maxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), s.secret,
		webhook.ConstructEventOptions{
			Tolerance:                s.tolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		s.log.Warn().Err(err).Msg("stripe signature check failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ev, ok, err := toPaymentEvent(event)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", event.ID).Msg("malformed stripe event")
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"outcome": billing.OutcomeIgnored.String()})
		return
	}
	if ev.ExternalID == "" {
		s.log.Warn().Str("event_id", event.ID).Msg("checkout session without client_reference_id")
		c.JSON(http.StatusOK, gin.H{"outcome": billing.OutcomeDropped.String()})
		return
	}

	outcome, err := s.reconciler.Apply(c.Request.Context(), ev)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"outcome": outcome.String()})
	case errors.Is(err, billing.ErrUnverified), errors.Is(err, billing.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		// Not acknowledged: Stripe redelivers.
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporarily unable to process event"})
	}
}

// toPaymentEvent maps checkout events to payment events. ok is false for
// event types that carry no payment completion.
func toPaymentEvent(event stripe.Event) (billing.PaymentEvent, bool, error) {
	switch event.Type {
	case eventCheckoutCompleted, eventAsyncPaymentSucceeded:
	default:
		return billing.PaymentEvent{}, false, nil
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return billing.PaymentEvent{}, false, fmt.Errorf("event %s has no data", event.ID)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return billing.PaymentEvent{}, false, fmt.Errorf("decode checkout session: %w", err)
	}

	// Delayed payment methods complete the session before the money arrives.
	completed := true
	if event.Type == eventCheckoutCompleted && session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		completed = false
	}

	ev := billing.PaymentEvent{
		ExternalID: session.ClientReferenceID,
		EventID:    event.ID,
		Completed:  completed,
		Verified:   true,
		OccurredAt: time.Unix(event.Created, 0),
	}
	if session.Customer != nil {
		ev.CustomerRef = session.Customer.ID
	}
	if session.Subscription != nil {
		ev.SubscriptionRef = session.Subscription.ID
	}
	return ev, true, nil
}
