package billing

import "time"

// PaymentEvent is a payment-completion notification whose authenticity the
// transport has already checked.
type PaymentEvent struct {
	ExternalID      string
	EventID         string
	CustomerRef     string
	SubscriptionRef string
	Completed       bool
	// Verified is set by the transport after a successful signature check.
	Verified   bool
	OccurredAt time.Time
}

// Outcome describes what Apply did with an event.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDuplicate
	OutcomeDropped
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDropped:
		return "dropped"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}
