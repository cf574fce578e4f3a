package flow

import (
	"context"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/checkout-flow/flow/fingerprint"
	"github.com/checkout-flow/flow/page"
)

const (
	// SaveCardField is the checkbox the shopper ticks to store the instrument.
	SaveCardField  = "flow-save-card"
	saveCardCookie = "flow_save_card"
	saveCardTTL    = 15 * time.Minute
)

// saveCardPreference resolves the save-instrument choice through the checkbox, then
// page-lifetime storage, then a short-lived cookie.
type saveCardPreference struct {
	form   page.Form
	store  sessionStore
	secret []byte
	logger logr.Logger
}

// Resolve returns the current preference. A rendered checkbox is authoritative.
func (p saveCardPreference) Resolve(ctx context.Context) bool {
	if _, ok := p.form.Field(SaveCardField); ok {
		on := p.form.Checked(SaveCardField)
		p.Remember(ctx, on)
		return on
	}
	if v, ok, err := p.store.get(ctx, keySaveCard); err != nil {
		p.logger.Error(err, "read save card preference")
	} else if ok {
		return v == "yes"
	}
	if v, ok := p.verifyCookie(p.form.Cookie(saveCardCookie)); ok {
		return v == "yes"
	}
	return false
}

// Remember writes the preference to storage and the cookie.
func (p saveCardPreference) Remember(ctx context.Context, on bool) {
	v := yesNo(on)
	if err := p.store.set(ctx, keySaveCard, v); err != nil {
		p.logger.Error(err, "persist save card preference")
	}
	p.form.SetCookie(saveCardCookie, p.signCookie(v), saveCardTTL)
}

func (p saveCardPreference) signCookie(value string) string {
	if len(p.secret) == 0 {
		return value
	}
	sig, err := fingerprint.Sign(p.secret, value)
	if err != nil {
		p.logger.Error(err, "sign save card cookie")
		return value
	}
	return value + "." + sig
}

func (p saveCardPreference) verifyCookie(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if len(p.secret) == 0 {
		return raw, true
	}
	value, sig, ok := strings.Cut(raw, ".")
	if !ok {
		return "", false
	}
	if err := fingerprint.Verify(p.secret, value, sig); err != nil {
		p.logger.V(2).Info("ignoring save card cookie", "err", err.Error())
		return "", false
	}
	return value, true
}

func yesNo(on bool) string {
	if on {
		return "yes"
	}
	return "no"
}
