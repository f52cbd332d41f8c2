// Package billing applies verified payment events to user records exactly once.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/suspectuso/premium-bot/internal/lock"
	"github.com/suspectuso/premium-bot/internal/storage"
)

var (
	ErrUnverified   = errors.New("payment event not verified")
	ErrInvalidEvent = errors.New("payment event missing external id or event id")
	// ErrRetryable marks failures after which the event was not applied and
	// the provider should redeliver it.
	ErrRetryable = errors.New("retryable")
)

const (
	defaultTimeout     = 10 * time.Second
	defaultHookTimeout = 5 * time.Second
)

// AppliedFunc is called after an event changed a user.
type AppliedFunc func(ctx context.Context, user *storage.User, ev PaymentEvent) error

type Reconciler struct {
	store   storage.Store
	locker  lock.Locker
	guard   Guard
	log     zerolog.Logger
	timeout time.Duration
	now     func() time.Time

	onApplied   AppliedFunc
	hookTimeout time.Duration
}

type Option func(*Reconciler)

func WithGuard(g Guard) Option {
	return func(r *Reconciler) { r.guard = g }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func WithOnApplied(fn AppliedFunc) Option {
	return func(r *Reconciler) { r.onApplied = fn }
}

// WithHookTimeout bounds the OnApplied call, which runs after the user lock
// is released.
func WithHookTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.hookTimeout = d }
}

func NewReconciler(store storage.Store, locker lock.Locker, log zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:   store,
		locker:  locker,
		guard:   WatermarkGuard{},
		log:     log,
		timeout: defaultTimeout,
		now:     time.Now,

		hookTimeout: defaultHookTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply moves the event's user to paid unless the event was already applied.
//
// A nil error means the event may be acknowledged: it was applied, was a
// duplicate, had no matching user, or was not a completed payment. Errors
// wrapping ErrRetryable mean nothing was persisted.
func (r *Reconciler) Apply(ctx context.Context, ev PaymentEvent) (Outcome, error) {
	log := r.log.With().
		Str("external_id", ev.ExternalID).
		Str("event_id", ev.EventID).
		Logger()

	if !ev.Verified {
		return 0, ErrUnverified
	}
	if ev.ExternalID == "" || ev.EventID == "" {
		return 0, ErrInvalidEvent
	}
	if !ev.Completed {
		log.Debug().Msg("payment not completed, ignoring")
		return OutcomeIgnored, nil
	}

	outcome, user, err := r.applyLocked(ctx, ev)
	if err != nil {
		log.Error().Err(err).Msg("apply payment event")
		return 0, err
	}

	log.Info().Str("outcome", outcome.String()).Msg("payment event reconciled")

	if outcome == OutcomeApplied && r.onApplied != nil {
		hookCtx, cancel := context.WithTimeout(ctx, r.hookTimeout)
		defer cancel()
		if err := r.onApplied(hookCtx, user, ev); err != nil {
			log.Warn().Err(err).Msg("post-apply hook")
		}
	}
	return outcome, nil
}

// applyLocked runs the read-modify-write under the user lock and the
// reconcile timeout. Errors wrap ErrRetryable.
func (r *Reconciler) applyLocked(ctx context.Context, ev PaymentEvent) (Outcome, *storage.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	unlock, err := r.locker.Lock(ctx, ev.ExternalID)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: lock user: %w", ErrRetryable, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		outcome, user, err := r.applyOnce(ctx, ev)
		if errors.Is(err, storage.ErrConflict) && attempt == 1 {
			r.log.Warn().Str("external_id", ev.ExternalID).Msg("concurrent update, retrying")
			continue
		}
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %w", ErrRetryable, err)
		}
		return outcome, user, nil
	}
}

func (r *Reconciler) applyOnce(ctx context.Context, ev PaymentEvent) (Outcome, *storage.User, error) {
	user, err := r.store.FindByExternalID(ctx, ev.ExternalID)
	if errors.Is(err, storage.ErrNotFound) {
		// The user must have talked to the bot before checkout; nothing to credit.
		return OutcomeDropped, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("find user: %w", err)
	}

	if !r.guard.ShouldApply(user, ev.EventID) {
		return OutcomeDuplicate, user, nil
	}

	// A completed purchase wins over any prior status, gifts included.
	user.Status = storage.StatusPaid
	user.CustomerRef = ev.CustomerRef
	user.SubscriptionRef = ev.SubscriptionRef
	user.LastAppliedEventID = ev.EventID
	user.UpdatedAt = r.now()

	if err := r.store.Update(ctx, user); err != nil {
		return 0, nil, fmt.Errorf("persist user: %w", err)
	}
	return OutcomeApplied, user, nil
}

// IsRetryable reports whether the provider should redeliver the event.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
