package flow

import (
	"strings"

	"github.com/go-logr/logr"
	"github.com/thoas/go-funk"

	"github.com/checkout-flow/flow/page"
)

// Field ids rendered by the host checkout form.
const (
	FieldEmail          = "billing_email"
	FieldFirstName      = "billing_first_name"
	FieldLastName       = "billing_last_name"
	FieldPhone          = "billing_phone"
	FieldAddress1       = "billing_address_1"
	FieldAddress2       = "billing_address_2"
	FieldCity           = "billing_city"
	FieldState          = "billing_state"
	FieldPostcode       = "billing_postcode"
	FieldCountry        = "billing_country"
	FieldCreateAccount  = "createaccount"
	FieldShipElsewhere  = "ship_to_different_address"
	shippingFieldPrefix = "shipping_"
)

// fallbackBillingFields are checked when the form marks nothing as required.
var fallbackBillingFields = []string{
	FieldFirstName,
	FieldLastName,
	FieldEmail,
	FieldPhone,
	FieldAddress1,
	FieldCity,
	FieldPostcode,
	FieldCountry,
}

// Fields evaluates the rendered checkout form. Every method reads a fresh snapshot and has no
// side effects beyond diagnostic logging.
type Fields struct {
	form            page.Form
	data            ServerData
	paymentMethodID string
	logger          logr.Logger
}

// NewFields returns validation over form. paymentMethodID identifies this gateway so fields of
// other payment methods' sub-forms can be ignored.
func NewFields(form page.Form, data ServerData, paymentMethodID string, logger logr.Logger) *Fields {
	return &Fields{
		form:            form,
		data:            data,
		paymentMethodID: paymentMethodID,
		logger:          logger,
	}
}

// RequiredFieldsFilled reports whether every required field has a non-blank value.
func (f *Fields) RequiredFieldsFilled() bool {
	all := f.form.Fields()
	required := funk.Filter(all, func(fl page.Field) bool {
		return fl.RequiredMarker && f.eligible(fl)
	}).([]page.Field)

	if len(required) == 0 {
		required = funk.Filter(all, func(fl page.Field) bool {
			return funk.ContainsString(fallbackBillingFields, fl.ID) && fl.RequiredAttr && fl.Visible
		}).([]page.Field)
	}

	missing := funk.Filter(required, func(fl page.Field) bool {
		return strings.TrimSpace(fl.Value) == ""
	}).([]page.Field)
	if len(missing) > 0 {
		f.logger.V(4).Info("required fields missing", "fields", funk.Map(missing, func(fl page.Field) string {
			return fl.ID
		}))
		return false
	}
	return true
}

func (f *Fields) eligible(fl page.Field) bool {
	switch {
	case fl.Section == page.SectionShipping, strings.HasPrefix(fl.ID, shippingFieldPrefix):
		return false
	case fl.PaymentMethod != "" && fl.PaymentMethod != f.paymentMethodID:
		return false
	case fl.Section == page.SectionAccount:
		return f.form.Checked(FieldCreateAccount) && fl.Visible
	default:
		return true
	}
}

// HasCompleteBillingAddress reports whether address line, city and country are present, and a
// postcode unless the country does not use one.
func (f *Fields) HasCompleteBillingAddress() bool {
	if err := f.Billing().Validate(); err != nil {
		f.logger.V(4).Info("billing address incomplete", "reason", err.Error())
		return false
	}
	return true
}

// RequiredFieldsFilledAndValid composes the checks the guard gates on. On an order-pay page the
// server's order snapshot is used instead of the live fields.
func (f *Fields) RequiredFieldsFilledAndValid() bool {
	if op := f.data.OrderPay; op != nil {
		if !IsValidEmail(op.Email) {
			f.logger.V(4).Info("order snapshot email invalid")
			return false
		}
		return op.Billing.Validate() == nil
	}
	if !f.RequiredFieldsFilled() {
		return false
	}
	if !IsValidEmail(f.Email()) {
		f.logger.V(4).Info("billing email invalid")
		return false
	}
	return f.HasCompleteBillingAddress()
}

// IsUserLoggedIn trusts the server flag and falls back to the absence of a login form.
func (f *Fields) IsUserLoggedIn() bool {
	if f.data.LoggedIn != nil {
		return *f.data.LoggedIn
	}
	return !f.form.HasLoginForm()
}

func (f *Fields) value(id string) string {
	fl, ok := f.form.Field(id)
	if !ok {
		return ""
	}
	return strings.TrimSpace(fl.Value)
}

// Email returns the shopper email, preferring the order snapshot.
func (f *Fields) Email() string {
	if op := f.data.OrderPay; op != nil && op.Email != "" {
		return strings.TrimSpace(op.Email)
	}
	if v := f.value(FieldEmail); v != "" {
		return v
	}
	return strings.TrimSpace(f.data.CustomerEmail)
}

// Billing returns the billing address, preferring the order snapshot.
func (f *Fields) Billing() Address {
	if op := f.data.OrderPay; op != nil && !op.Billing.IsZero() {
		return op.Billing
	}
	return f.address("billing_")
}

// Shipping returns the shipping address. Without a separate shipping address it is the billing
// address.
func (f *Fields) Shipping() Address {
	if op := f.data.OrderPay; op != nil && !op.Shipping.IsZero() {
		return op.Shipping
	}
	if f.form.Checked(FieldShipElsewhere) {
		return f.address(shippingFieldPrefix)
	}
	return f.Billing()
}

func (f *Fields) address(prefix string) Address {
	return Address{
		AddressLine1: f.value(prefix + "address_1"),
		AddressLine2: f.value(prefix + "address_2"),
		City:         f.value(prefix + "city"),
		State:        f.value(prefix + "state"),
		Zip:          f.value(prefix + "postcode"),
		Country:      strings.ToUpper(f.value(prefix + "country")),
	}
}

// Customer returns the shopper identity, preferring the order snapshot.
func (f *Fields) Customer() Customer {
	if op := f.data.OrderPay; op != nil {
		return Customer{
			Email:      f.Email(),
			GivenName:  op.GivenName,
			FamilyName: op.FamilyName,
			Phone:      op.Phone,
		}
	}
	return Customer{
		Email:      f.Email(),
		GivenName:  f.value(FieldFirstName),
		FamilyName: f.value(FieldLastName),
		Phone:      f.value(FieldPhone),
	}
}
