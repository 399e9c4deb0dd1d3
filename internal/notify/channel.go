// Package notify defines the reviewer notification boundary and its Telegram
// implementation.
package notify

import "context"

// Action is a button attached to a notification. ID is opaque to the
// channel; it is round-tripped back in the Decision for whoever encoded it.
type Action struct {
	Label string
	ID    string
}

// Ref is an opaque handle to a delivered notification, used later to edit
// the message with the decision outcome.
type Ref string

// Decision is a reviewer acting on a notification button. Decisions arrive
// as discrete events on a channel rather than as callbacks into the
// transport framework.
type Decision struct {
	ActionID string
	Actor    string
	Ref      Ref
}

// Channel delivers notifications to a single reviewer target and edits
// previously delivered ones.
type Channel interface {
	Send(ctx context.Context, target string, text string, actions []Action) (Ref, error)
	Edit(ctx context.Context, ref Ref, text string) error
}

// DecisionSource exposes the stream of reviewer decisions.
type DecisionSource interface {
	Decisions() <-chan Decision
}
