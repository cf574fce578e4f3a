package flow

import (
	"strings"
	"unicode/utf8"

	"github.com/checkout-flow/flow/fingerprint"
)

const maxDescriptionLength = 100

// Snapshot builds the checkout data for one initialization attempt.
func (f *Fields) Snapshot() CheckoutSnapshot {
	return CheckoutSnapshot{
		Amount:       f.data.Amount,
		Currency:     strings.ToUpper(f.data.Currency),
		Customer:     f.Customer(),
		Billing:      f.Billing(),
		Shipping:     f.Shipping(),
		Items:        f.data.Items,
		Subscription: f.data.Subscription,
		PaymentType:  f.paymentType(),
		Description:  truncateDescription(f.data.Description),
	}
}

func (f *Fields) paymentType() PaymentType {
	switch {
	case f.data.MOTO:
		return PaymentTypeMOTO
	case f.data.Subscription:
		return PaymentTypeRecurring
	default:
		return PaymentTypeRegular
	}
}

// truncateDescription limits s to maxDescriptionLength runes, ending in an ellipsis when cut.
func truncateDescription(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxDescriptionLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxDescriptionLength-3]) + "..."
}

// criticalFields are the inputs whose change invalidates a live payment session.
type criticalFields struct {
	Email      string `json:"email"`
	Country    string `json:"country"`
	Postcode   string `json:"postcode"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Amount     int64  `json:"amount"`
}

// CriticalFingerprint hashes the inputs that require a new payment session when changed.
func (f *Fields) CriticalFingerprint() string {
	c := f.Customer()
	b := f.Billing()
	return fingerprint.MustOf(criticalFields{
		Email:      strings.ToLower(c.Email),
		Country:    b.Country,
		Postcode:   strings.ReplaceAll(strings.ToUpper(b.Zip), " ", ""),
		GivenName:  c.GivenName,
		FamilyName: c.FamilyName,
		Amount:     f.data.Amount,
	})
}
