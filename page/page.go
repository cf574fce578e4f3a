// Package page describes the rendered checkout page as seen by the payment flow.
//
// The flow never touches a concrete DOM. A UI adapter implements [Document] on top of
// whatever it renders into, and [Memory] provides an in-process implementation used by
// tests and the simulator.
package page

import (
	"net/url"
	"time"
)

// Section identifies which part of the checkout form a field belongs to.
type Section string

const (
	SectionBilling  Section = "billing"
	SectionShipping Section = "shipping"
	SectionAccount  Section = "account"
	SectionOrder    Section = "order"
)

// FormKind names the forms the flow may serialize or submit.
type FormKind string

const (
	FormCheckout    FormKind = "checkout"
	FormOrderReview FormKind = "order_review"
)

// Field is a snapshot of one rendered input.
type Field struct {
	ID    string
	Value string
	// Section the field is rendered in.
	Section Section
	// RequiredMarker is set when the host marks the field's wrapper as required.
	RequiredMarker bool
	// RequiredAttr is set when the input itself carries a required attribute.
	RequiredAttr bool
	Visible      bool
	// PaymentMethod is non-empty when the field lives inside a payment method's own sub-form.
	PaymentMethod string
}

// Element is a handle to a rendered node.
type Element interface {
	ID() string
	// Attached reports whether the node is still part of the live document.
	Attached() bool
}

// Form exposes form state: inputs, hidden fields and submission.
type Form interface {
	Fields() []Field
	Field(id string) (Field, bool)
	Checked(id string) bool
	HasLoginForm() bool
	SelectedPaymentMethod() string

	// Hidden returns the value of a hidden input, or "" when absent.
	Hidden(name string) string
	// SetHidden creates or replaces a hidden input on the checkout form.
	SetHidden(name, value string)
	// FormValues serializes a form. ok is false when the form is not rendered.
	FormValues(kind FormKind) (values url.Values, ok bool)
	Submit(kind FormKind) error
	Redirect(rawURL string) error

	Cookie(name string) string
	SetCookie(name, value string, maxAge time.Duration)
}

// Layout exposes the nodes the flow mounts into.
type Layout interface {
	// PaymentBox is the element the host renders for this payment method.
	PaymentBox() (Element, bool)
	Element(id string) (Element, bool)
	CreateElement(parent Element, id string) (Element, error)
	// Wrap applies decorative wrapping around an element.
	Wrap(el Element)
	HasSavedInstruments() bool
	SelectedStoredInstrument() string
	DeselectStoredInstruments()
	// OnFirstInteraction calls fn once, the first time the shopper clicks, focuses or types
	// inside el.
	OnFirstInteraction(el Element, fn func())
}

// UI exposes the affordances whose state gates a transition.
type UI interface {
	ShowNotice(msg string)
	ClearNotice()
	ShowPlaceholder(el Element, msg string)
	SetLoading(on bool)
	SetSkeleton(on bool)
	SetSubmitEnabled(on bool)
	SetSubmitVisible(on bool)
	SetSaveInstrumentVisible(on bool)
}

// Document is the full page surface.
type Document interface {
	Form
	Layout
	UI
}
