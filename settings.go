package flow

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ChallengeIndicator values accepted by the 3DS block.
const (
	ChallengeNoPreference     = "no_preference"
	ChallengeNotRequested     = "no_challenge_requested"
	ChallengeRequested        = "challenge_requested"
	ChallengeRequestedMandate = "challenge_requested_mandate"
)

// validExemptions is the fixed set of SCA exemption codes the session accepts. Anything else is
// omitted from the request.
var validExemptions = map[string]bool{
	"low_value":                   true,
	"trusted_listing":             true,
	"trusted_listing_prompt":      true,
	"transaction_risk_assessment": true,
	"3ds_outage":                  true,
	"sca_delegation":              true,
	"out_of_sca_scope":            true,
	"low_risk_program":            true,
	"recurring_operation":         true,
	"data_share":                  true,
	"other":                       true,
}

// ThreeDSSettings configures strong customer authentication.
type ThreeDSSettings struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	AttemptN3D         bool   `json:"attempt_n3d" yaml:"attempt_n3d"`
	ChallengeIndicator string `json:"challenge_indicator" yaml:"challenge_indicator" validate:"omitempty,oneof=no_preference no_challenge_requested challenge_requested challenge_requested_mandate"`
	Exemption          string `json:"exemption" yaml:"exemption"`
	AllowUpgrade       bool   `json:"allow_upgrade" yaml:"allow_upgrade"`
}

// Endpoints lists the backend URLs the flow talks to.
type Endpoints struct {
	// PaymentSession creates payment sessions.
	PaymentSession string `json:"payment_session" yaml:"payment_session" validate:"required,url"`
	// Checkout is the host framework's full checkout-processing endpoint.
	Checkout string `json:"checkout" yaml:"checkout" validate:"required,url"`
	// ValidateCheckout runs server-side checkout field validation.
	ValidateCheckout string `json:"validate_checkout" yaml:"validate_checkout" validate:"omitempty,url"`
	// FailedOrder records declined attempts.
	FailedOrder string `json:"failed_order" yaml:"failed_order" validate:"omitempty,url"`
	// Callback receives the shopper back from the payment network.
	Callback string `json:"callback" yaml:"callback" validate:"required,url"`
	// RedirectBack finalizes an order after an in-page payment.
	RedirectBack string `json:"redirect_back" yaml:"redirect_back" validate:"required,url"`
}

// Settings are the gateway settings the server renders into the checkout page.
type Settings struct {
	// PaymentMethodID is the id of this gateway's payment method radio.
	PaymentMethodID string `json:"payment_method_id" yaml:"payment_method_id" validate:"required"`
	// ComponentName is passed to the widget factory.
	ComponentName         string          `json:"component_name" yaml:"component_name"`
	Endpoints             Endpoints       `json:"endpoints" yaml:"endpoints"`
	ThreeDS               ThreeDSSettings `json:"three_ds" yaml:"three_ds"`
	EnabledPaymentMethods []string        `json:"enabled_payment_methods" yaml:"enabled_payment_methods" validate:"omitempty,dive,required"`
	SaveInstrument        bool            `json:"save_instrument" yaml:"save_instrument"`
	// NoPrevalidationMethods skip the server validation round trip in HandleClick.
	NoPrevalidationMethods []string `json:"no_prevalidation_methods" yaml:"no_prevalidation_methods"`
	// SelfSubmittingMethods submit on their own, so the page submit button is hidden for them.
	SelfSubmittingMethods []string `json:"self_submitting_methods" yaml:"self_submitting_methods"`
	// RedirectMethods are alternative methods whose completion must go through form submission.
	RedirectMethods []string `json:"redirect_methods" yaml:"redirect_methods"`
	// NonceField is the name of the host's checkout verification token input.
	NonceField string `json:"nonce_field" yaml:"nonce_field"`
}

func (s *Settings) applyDefaults() {
	if s.ComponentName == "" {
		s.ComponentName = "flow"
	}
	if s.ThreeDS.ChallengeIndicator == "" {
		s.ThreeDS.ChallengeIndicator = ChallengeNoPreference
	}
	if s.NoPrevalidationMethods == nil {
		s.NoPrevalidationMethods = []string{"applepay"}
	}
	if s.SelfSubmittingMethods == nil {
		s.SelfSubmittingMethods = []string{"applepay", "googlepay", "paypal"}
	}
	if s.RedirectMethods == nil {
		s.RedirectMethods = []string{"ideal", "sofort", "giropay", "eps", "bancontact", "p24", "multibanco", "klarna", "alipay_cn", "knet"}
	}
	if s.NonceField == "" {
		s.NonceField = "checkout-nonce"
	}
}

// Validate checks the settings after defaults are applied.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

// exemption returns the configured exemption when it belongs to the accepted set.
func (s ThreeDSSettings) exemption() (string, bool) {
	if validExemptions[s.Exemption] {
		return s.Exemption, true
	}
	return "", false
}

// ParseSettings decodes settings rendered as JSON.
func ParseSettings(raw []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("flow: decode settings: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("flow: invalid settings: %w", err)
	}
	return s, nil
}

// ParseSettingsYAML decodes settings from a YAML document.
func ParseSettingsYAML(raw []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("flow: decode settings: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("flow: invalid settings: %w", err)
	}
	return s, nil
}

// Timings holds every debounce, retry and fallback window.
type Timings struct {
	// FieldDebounce throttles validity re-evaluation after field edits.
	FieldDebounce time.Duration
	// ReloadDebounce throttles widget reloads after critical field changes.
	ReloadDebounce time.Duration
	// ChangeSpacing is the minimum time between processed widget change events.
	ChangeSpacing time.Duration
	// FallbackInterval and FallbackCeiling bound the periodic validity check.
	FallbackInterval time.Duration
	FallbackCeiling  time.Duration
	// OrderLockWait is how long a second order precreation caller waits for the first.
	OrderLockWait time.Duration
	// ThreeDSFallback is how long to wait for the server-side redirect after a 3DS return.
	ThreeDSFallback time.Duration
	MountAttempts   int
	MountBaseDelay  time.Duration
	MountMaxDelay   time.Duration
}

// DefaultTimings returns the production windows.
func DefaultTimings() Timings {
	return Timings{
		FieldDebounce:    300 * time.Millisecond,
		ReloadDebounce:   time.Second,
		ChangeSpacing:    50 * time.Millisecond,
		FallbackInterval: time.Second,
		FallbackCeiling:  30 * time.Second,
		OrderLockWait:    1500 * time.Millisecond,
		ThreeDSFallback:  5 * time.Second,
		MountAttempts:    5,
		MountBaseDelay:   200 * time.Millisecond,
		MountMaxDelay:    time.Second,
	}
}

// mountDelay is the wait before mount attempt n (1-based).
func (t Timings) mountDelay(attempt int) time.Duration {
	d := t.MountBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= t.MountMaxDelay {
			return t.MountMaxDelay
		}
	}
	if d > t.MountMaxDelay {
		return t.MountMaxDelay
	}
	return d
}
