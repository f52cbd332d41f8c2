// Package chat turns inbound chat messages into replies keyed off the
// sender's stored status.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/suspectuso/premium-bot/internal/lock"
	"github.com/suspectuso/premium-bot/internal/storage"
)

// startCommands are matched after lowercasing and trimming.
var startCommands = map[string]struct{}{
	"/start":  {},
	"start":   {},
	"hola":    {},
	"iniciar": {},
	"empezar": {},
}

// IsStartCommand reports whether text is a start/greeting command.
func IsStartCommand(text string) bool {
	_, ok := startCommands[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

const defaultTimeout = 5 * time.Second

type Router struct {
	store    storage.Store
	locker   lock.Locker
	messages Messages
	log      zerolog.Logger
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Router)

func WithMessages(m Messages) Option {
	return func(r *Router) { r.messages = m }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func NewRouter(store storage.Store, locker lock.Locker, log zerolog.Logger, opts ...Option) *Router {
	r := &Router{
		store:    store,
		locker:   locker,
		messages: DefaultMessages,
		log:      log,
		timeout:  defaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle makes sure the sender has a record and picks the reply. It never
// fails: store problems are logged and answered with the welcome message.
func (r *Router) Handle(ctx context.Context, msg Message) Reply {
	log := r.log.With().Str("external_id", msg.ExternalID).Logger()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	user, err := r.ensureUser(ctx, msg)
	if err != nil {
		log.Error().Err(err).Msg("resolve user")
		return r.messages.welcome(msg.DisplayName)
	}

	if IsStartCommand(msg.Text) {
		return r.messages.welcome(displayName(user, msg))
	}
	return r.replyFor(user, msg)
}

func (r *Router) replyFor(user *storage.User, msg Message) Reply {
	switch user.Status {
	case storage.StatusNew:
		return r.messages.welcome(displayName(user, msg))
	case storage.StatusFree:
		return r.messages.free()
	case storage.StatusPendingPayment:
		return r.messages.pending()
	case storage.StatusPaid, storage.StatusGiftedActive:
		return r.messages.paid()
	case storage.StatusGiftedPending:
		return r.messages.giftedPending()
	default:
		r.log.Warn().
			Str("external_id", user.ExternalID).
			Str("status", string(user.Status)).
			Msg("unrecognized status")
		return r.messages.welcome(displayName(user, msg))
	}
}

// ensureUser returns the sender's record, creating it on first contact.
func (r *Router) ensureUser(ctx context.Context, msg Message) (*storage.User, error) {
	if msg.ExternalID == "" {
		return nil, errors.New("message without external id")
	}

	user, err := r.store.FindByExternalID(ctx, msg.ExternalID)
	if errors.Is(err, storage.ErrNotFound) {
		return r.create(ctx, msg)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if profileChanged(user, msg) {
		if updated, err := r.updateProfile(ctx, msg); err != nil {
			r.log.Warn().Err(err).Str("external_id", msg.ExternalID).Msg("update profile")
		} else {
			user = updated
		}
	}
	return user, nil
}

func (r *Router) create(ctx context.Context, msg Message) (*storage.User, error) {
	unlock, err := r.locker.Lock(ctx, msg.ExternalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	created, err := r.store.Create(ctx, storage.NewUser(msg.ExternalID, msg.DisplayName, msg.Handle, r.now()))
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Another message from the same user got there first.
		return r.store.FindByExternalID(ctx, msg.ExternalID)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	r.log.Info().Str("external_id", msg.ExternalID).Msg("user created")
	return created, nil
}

// updateProfile writes changed informational fields. Status and payment
// fields are re-read under the lock and left untouched. A conflicting write
// is retried once.
func (r *Router) updateProfile(ctx context.Context, msg Message) (*storage.User, error) {
	unlock, err := r.locker.Lock(ctx, msg.ExternalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var user *storage.User
	for attempt := 1; ; attempt++ {
		user, err = r.updateProfileOnce(ctx, msg)
		if errors.Is(err, storage.ErrConflict) && attempt == 1 {
			continue
		}
		return user, err
	}
}

func (r *Router) updateProfileOnce(ctx context.Context, msg Message) (*storage.User, error) {
	user, err := r.store.FindByExternalID(ctx, msg.ExternalID)
	if err != nil {
		return nil, err
	}
	if !profileChanged(user, msg) {
		return user, nil
	}

	if msg.DisplayName != "" {
		user.DisplayName = msg.DisplayName
	}
	if msg.Handle != "" {
		user.Handle = msg.Handle
	}
	user.UpdatedAt = r.now()

	if err := r.store.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// profileChanged ignores empty incoming fields; a missing handle is not a rename.
func profileChanged(user *storage.User, msg Message) bool {
	return (msg.DisplayName != "" && msg.DisplayName != user.DisplayName) ||
		(msg.Handle != "" && msg.Handle != user.Handle)
}

func displayName(user *storage.User, msg Message) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return msg.DisplayName
}
