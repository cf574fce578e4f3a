package flow

import (
	"context"

	"github.com/checkout-flow/flow/page"
)

// Widget is the hosted payment component. Its internals and wire protocol are opaque.
type Widget interface {
	IsAvailable(ctx context.Context) (bool, error)
	Mount(container page.Element) error
	IsValid() bool
	Submit() error
	Unmount() error
}

// WidgetFactory creates widgets bound to one payment session.
type WidgetFactory interface {
	Create(name string, opts WidgetOptions) (Widget, error)
}

// WidgetFactoryFunc adapts a function to [WidgetFactory].
type WidgetFactoryFunc func(name string, opts WidgetOptions) (Widget, error)

// Create implements [WidgetFactory].
func (f WidgetFactoryFunc) Create(name string, opts WidgetOptions) (Widget, error) {
	return f(name, opts)
}

// WidgetOptions configures a new widget.
type WidgetOptions struct {
	Session   PaymentSession
	Callbacks Callbacks
}

// ChangeEvent is reported when the shopper changes the widget's state.
type ChangeEvent struct {
	// Method is the selected sub-method, such as "card" or "applepay".
	Method string
	Valid  bool
}

// PaymentResult is reported once the payment network accepted the payment.
type PaymentResult struct {
	ID     string
	Method string
	Status string
	// ChallengePending is set when a 3DS challenge redirect is about to happen.
	ChallengePending bool
}

// Callbacks are the lifecycle hooks a widget invokes.
type Callbacks struct {
	OnReady            func()
	OnChange           func(ev ChangeEvent)
	OnPaymentCompleted func(ctx context.Context, res PaymentResult)
	OnSubmit           func(ctx context.Context)
	// HandleClick reports whether the widget may continue with the payment.
	HandleClick func(ctx context.Context) bool
	OnError     func(ctx context.Context, err error)
}
