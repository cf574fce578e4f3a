package flow

import (
	"errors"

	"github.com/go-logr/logr"

	"github.com/checkout-flow/flow/page"
)

// Notifier is the single path for shopper-visible failures. It keeps the last message so it can
// be shown again after the host wipes the page.
type Notifier struct {
	ui     page.UI
	state  *State
	logger logr.Logger
}

// NewNotifier returns a notifier rendering into ui.
func NewNotifier(ui page.UI, state *State, logger logr.Logger) *Notifier {
	return &Notifier{ui: ui, state: state, logger: logger}
}

// Show renders the public message for err and remembers it.
func (n *Notifier) Show(err error) {
	if err == nil {
		return
	}
	msg := PublicMessage(err)
	var fe *Error
	if errors.As(err, &fe) {
		n.logger.Error(err, "payment flow failure", "type", fe.Type, "code", fe.Code)
	} else {
		n.logger.Error(err, "payment flow failure")
	}
	n.state.SetLastError(msg)
	n.ui.ShowNotice(msg)
}

// Redisplay shows the last message again.
func (n *Notifier) Redisplay() {
	if msg := n.state.LastError(); msg != "" {
		n.ui.ShowNotice(msg)
	}
}

// Clear removes the notice and forgets it.
func (n *Notifier) Clear() {
	n.state.ClearLastError()
	n.ui.ClearNotice()
}
