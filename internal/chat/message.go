package chat

// Message is one inbound chat message.
type Message struct {
	ExternalID  string
	ChatID      int64
	Text        string
	DisplayName string
	Handle      string
}

// Action is a selectable option rendered by the transport.
type Action struct {
	Label    string
	ActionID string
}

// Reply is handed to the transport for delivery.
type Reply struct {
	Text    string
	Actions []Action
}

// Action ids. A pressed action comes back as a Message whose Text is the id.
const (
	ActionPlans = "plans"
	ActionHelp  = "help"
)
