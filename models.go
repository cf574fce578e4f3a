package flow

// PaymentType classifies the transaction for the payment session.
type PaymentType string

// Defines values for PaymentType.
const (
	PaymentTypeRegular   PaymentType = "Regular"
	PaymentTypeRecurring PaymentType = "Recurring"
	PaymentTypeMOTO      PaymentType = "MOTO"
)

// Address defines a billing or shipping address.
type Address struct {
	AddressLine1 string `json:"address_line1" validate:"required"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state,omitempty"`
	Zip          string `json:"zip,omitempty" validate:"postcode_unless_exempt"`
	Country      string `json:"country" validate:"required,len=2,uppercase"`
}

// IsZero reports whether no address line was collected.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Customer defines the shopper identity sent with a payment session.
type Customer struct {
	Email      string `json:"email" validate:"required,flow_email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Phone      string `json:"phone,omitempty"`
}

// Name joins the given and family names.
func (c Customer) Name() string {
	switch {
	case c.GivenName == "":
		return c.FamilyName
	case c.FamilyName == "":
		return c.GivenName
	default:
		return c.GivenName + " " + c.FamilyName
	}
}

// LineItem defines one cart line in minor units.
type LineItem struct {
	Name        string `json:"name" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0"`
	TotalAmount int64  `json:"total_amount" validate:"gte=0"`
	Reference   string `json:"reference,omitempty"`
}

// CheckoutSnapshot is the checkout data collected for one initialization attempt. It is built
// fresh every time and never persisted.
type CheckoutSnapshot struct {
	Amount       int64       `json:"amount" validate:"gte=0"`
	Currency     string      `json:"currency" validate:"required,len=3"`
	Customer     Customer    `json:"customer"`
	Billing      Address     `json:"billing" validate:"-"`
	Shipping     Address     `json:"shipping" validate:"-"`
	Items        []LineItem  `json:"items" validate:"dive"`
	Subscription bool        `json:"subscription"`
	PaymentType  PaymentType `json:"payment_type" validate:"required,oneof=Regular Recurring MOTO"`
	Description  string      `json:"description"`
}

// OrderSnapshot is the server copy of an existing order rendered on an order-pay page.
type OrderSnapshot struct {
	Email      string  `json:"email"`
	GivenName  string  `json:"given_name"`
	FamilyName string  `json:"family_name"`
	Phone      string  `json:"phone"`
	Billing    Address `json:"billing"`
	Shipping   Address `json:"shipping"`
}

// ServerData is the cart and order blob the server injects into the page.
type ServerData struct {
	Amount            int64          `json:"amount"`
	Currency          string         `json:"currency"`
	Items             []LineItem     `json:"items"`
	Description       string         `json:"description"`
	Subscription      bool           `json:"is_subscription"`
	MOTO              bool           `json:"is_moto"`
	LoggedIn          *bool          `json:"is_logged_in,omitempty"`
	CustomerEmail     string         `json:"customer_email"`
	OrderPay          *OrderSnapshot `json:"order_pay,omitempty"`
	OrderID           string         `json:"order_id"`
	OrderKey          string         `json:"order_key"`
	CheckoutSessionID string         `json:"checkout_session_id"`
}

// PaymentSession is the server-issued session backing one widget lifetime. A new widget always
// gets a new session.
type PaymentSession struct {
	ID         string   `json:"id"`
	Token      string   `json:"payment_session_token"`
	Secret     string   `json:"payment_session_secret"`
	ErrorType  string   `json:"error_type,omitempty"`
	ErrorCodes []string `json:"error_codes,omitempty"`
}

// Failed reports whether the response carries an API error.
func (s *PaymentSession) Failed() bool {
	return s.ErrorType != "" || len(s.ErrorCodes) > 0
}

// OrderReference identifies the backing order. It is created at most once per checkout attempt.
type OrderReference struct {
	OrderID  string `json:"order_id"`
	OrderKey string `json:"order_key"`
}
