package storage

import "time"

// Status is the lifecycle stage of a user's access.
type Status string

const (
	StatusNew            Status = "new"
	StatusFree           Status = "free"
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusGiftedPending  Status = "gifted_pending"
	StatusGiftedActive   Status = "gifted_active"
)

// Statuses lists every defined status.
var Statuses = []Status{
	StatusNew,
	StatusFree,
	StatusPendingPayment,
	StatusPaid,
	StatusGiftedPending,
	StatusGiftedActive,
}

// Known reports whether s is one of the defined statuses.
// Stores keep unknown values verbatim (legacy rows).
func (s Status) Known() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// User is one record per external (chat platform) user id.
type User struct {
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	Status      Status `json:"status"`

	CustomerRef        string `json:"customer_ref,omitempty"`
	SubscriptionRef    string `json:"subscription_ref,omitempty"`
	LastAppliedEventID string `json:"last_applied_event_id,omitempty"`

	// Version is the compare-and-swap token for Update.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns an independent copy.
func (u *User) Clone() *User {
	c := *u
	return &c
}

// NewUser returns a first-contact record with status new.
func NewUser(externalID, displayName, handle string, now time.Time) *User {
	return &User{
		ExternalID:  externalID,
		DisplayName: displayName,
		Handle:      handle,
		Status:      StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
