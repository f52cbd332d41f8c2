package billing

import "github.com/suspectuso/premium-bot/internal/storage"

// Guard decides whether an event still has to be applied to a user.
type Guard interface {
	ShouldApply(user *storage.User, eventID string) bool
}

// WatermarkGuard compares against the last applied event id only. Providers
// redeliver an event a few times at most, so one id per user is enough.
type WatermarkGuard struct{}

func (WatermarkGuard) ShouldApply(user *storage.User, eventID string) bool {
	if user.LastAppliedEventID == "" {
		return true
	}
	return user.LastAppliedEventID != eventID
}
