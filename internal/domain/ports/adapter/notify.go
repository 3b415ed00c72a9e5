package adapter

import "context"

// Notifier delivers a message to an owner's chat, best effort. Failures are
// logged by implementations and never block the state transition that
// triggered the send.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}
