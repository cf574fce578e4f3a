package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// HTTPBackend calls the server's AJAX endpoints.
type HTTPBackend struct {
	client    *resty.Client
	endpoints Endpoints
}

// HTTPOption customizes an [HTTPBackend].
type HTTPOption func(*HTTPBackend)

// WithHTTPClient sends requests through hc.
func WithHTTPClient(hc *http.Client) HTTPOption {
	if hc == nil {
		panic("flow: http client must not be nil")
	}
	return func(b *HTTPBackend) {
		b.client = resty.NewWithClient(hc)
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) HTTPOption {
	if d <= 0 {
		panic("flow: timeout must be positive")
	}
	return func(b *HTTPBackend) {
		b.client.SetTimeout(d)
	}
}

// WithHeader adds a header to every request, such as a nonce the endpoints require.
func WithHeader(name, value string) HTTPOption {
	return func(b *HTTPBackend) {
		b.client.SetHeader(name, value)
	}
}

// NewHTTPBackend returns a backend for the given endpoints.
func NewHTTPBackend(endpoints Endpoints, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		client:    resty.New().SetTimeout(30 * time.Second),
		endpoints: endpoints,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(b)
	}
	b.client.SetHeader("Accept", "application/json")
	b.client.SetHeader("X-Requested-With", "XMLHttpRequest")
	return b
}

// CreatePaymentSession implements [Backend]. An error response that carries error_type or
// error_codes is returned as a session, not as an error.
func (b *HTTPBackend) CreatePaymentSession(ctx context.Context, req *PaymentSessionRequest) (*PaymentSession, error) {
	form, err := req.Form()
	if err != nil {
		return nil, err
	}
	resp, err := b.request(ctx).
		SetFormDataFromValues(form).
		Post(b.endpoints.PaymentSession)
	if err != nil {
		return nil, fmt.Errorf("flow: create payment session: %w", err)
	}

	session, err := decodeSession(resp.Body())
	if err != nil {
		if resp.IsError() {
			return nil, statusError("create payment session", resp)
		}
		return nil, fmt.Errorf("flow: decode payment session: %w", err)
	}
	if resp.IsError() && !session.Failed() {
		return nil, statusError("create payment session", resp)
	}
	return session, nil
}

// decodeSession accepts the session object itself or wrapped in {"success":..,"data":{..}}.
func decodeSession(body []byte) (*PaymentSession, error) {
	var envelope struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	raw := json.RawMessage(body)
	if envelope.Success != nil && len(envelope.Data) > 0 {
		raw = envelope.Data
	}
	var session PaymentSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ProcessCheckout implements [Backend].
func (b *HTTPBackend) ProcessCheckout(ctx context.Context, form url.Values) (json.RawMessage, error) {
	resp, err := b.request(ctx).
		SetFormDataFromValues(form).
		Post(b.endpoints.Checkout)
	if err != nil {
		return nil, fmt.Errorf("flow: process checkout: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("process checkout", resp)
	}
	return json.RawMessage(resp.Body()), nil
}

// ValidateCheckout implements [Backend]. Without a validation endpoint every form is accepted.
func (b *HTTPBackend) ValidateCheckout(ctx context.Context, form url.Values) (*CheckoutValidation, error) {
	if b.endpoints.ValidateCheckout == "" {
		return &CheckoutValidation{Valid: true}, nil
	}
	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Messages []string `json:"messages"`
		} `json:"data"`
		Messages []string `json:"messages"`
	}
	resp, err := b.request(ctx).
		SetFormDataFromValues(form).
		SetResult(&result).
		Post(b.endpoints.ValidateCheckout)
	if err != nil {
		return nil, fmt.Errorf("flow: validate checkout: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("validate checkout", resp)
	}
	messages := result.Messages
	if len(messages) == 0 {
		messages = result.Data.Messages
	}
	return &CheckoutValidation{Valid: result.Success, Messages: messages}, nil
}

// RecordFailedOrder implements [Backend].
func (b *HTTPBackend) RecordFailedOrder(ctx context.Context, order FailedOrder) error {
	if b.endpoints.FailedOrder == "" {
		return nil
	}
	resp, err := b.request(ctx).
		SetFormData(map[string]string{
			"payment_session_id": order.PaymentSessionID,
			"order_id":           order.OrderID,
			"email":              order.Email,
			"reason":             order.Reason,
		}).
		Post(b.endpoints.FailedOrder)
	if err != nil {
		return fmt.Errorf("flow: record failed order: %w", err)
	}
	if resp.IsError() {
		return statusError("record failed order", resp)
	}
	return nil
}

// request starts a call carrying the attempt headers from ctx.
func (b *HTTPBackend) request(ctx context.Context) *resty.Request {
	r := b.client.R().
		SetContext(ctx).
		SetHeader("Request-Id", uuid.NewString())
	if rc := RequestContextFromContext(ctx); rc != nil {
		if rc.IdempotencyKey != "" {
			r.SetHeader("Idempotency-Key", rc.IdempotencyKey)
		}
		if rc.SessionKey != "" {
			r.SetHeader("Checkout-Session", rc.SessionKey)
		}
	}
	return r
}

func statusError(op string, resp *resty.Response) error {
	body := strings.TrimSpace(string(resp.Body()))
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("flow: %s: unexpected status %d: %s", op, resp.StatusCode(), body)
}
