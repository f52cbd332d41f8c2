package chat

import (
	"fmt"
	"html"
)

// Messages holds reply copy per status.
type Messages struct {
	Welcome       string
	WelcomeNamed  string // %s is the escaped display name
	Free          string
	Pending       string
	Paid          string
	GiftedPending string
}

// DefaultMessages is the bot's built-in copy.
var DefaultMessages = Messages{
	Welcome:       "👋 Welcome! Pick an option below to get started.",
	WelcomeNamed:  "👋 Welcome, <b>%s</b>! Pick an option below to get started.",
	Free:          "You're on the <b>free</b> plan. Upgrade any time to unlock Premium.",
	Pending:       "⏳ We're waiting for your payment to be confirmed. This usually takes a few seconds.",
	Paid:          "⭐ Your <b>Premium</b> access is active. Thanks for your support!",
	GiftedPending: "🎁 Someone gifted you Premium! It will be activated shortly.",
}

func (m Messages) welcome(displayName string) Reply {
	text := m.Welcome
	if displayName != "" && m.WelcomeNamed != "" {
		text = fmt.Sprintf(m.WelcomeNamed, html.EscapeString(displayName))
	}
	return Reply{
		Text: text,
		Actions: []Action{
			{Label: "⭐ Plans", ActionID: ActionPlans},
			{Label: "❓ Help", ActionID: ActionHelp},
		},
	}
}

func (m Messages) free() Reply {
	return Reply{
		Text:    m.Free,
		Actions: []Action{{Label: "⭐ Plans", ActionID: ActionPlans}},
	}
}

func (m Messages) pending() Reply {
	return Reply{Text: m.Pending}
}

func (m Messages) paid() Reply {
	return Reply{Text: m.Paid}
}

func (m Messages) giftedPending() Reply {
	return Reply{Text: m.GiftedPending}
}
