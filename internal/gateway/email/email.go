// Package email emits outbound notification mail. Delivery is asynchronous
// and callers never observe the outcome.
package email

import "context"

// Event names the notification being emitted.
type Event string

const (
	EventUserCreated    Event = "user_created"
	EventForgotPassword Event = "forgot.password"
	EventUserDeleted    Event = "user_deleted"
)

type Message struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	HTML       string   `json:"html"`
}

// Sender is fire-and-forget.
type Sender interface {
	Emit(ctx context.Context, event Event, msg Message)
}

// Transport performs the actual delivery for a Dispatcher.
type Transport interface {
	Deliver(ctx context.Context, event Event, msg Message) error
}
