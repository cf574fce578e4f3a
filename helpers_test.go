package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/checkout-flow/flow/page"
)

const testMethodID = "flow_gateway"

func testSettings() Settings {
	return Settings{
		PaymentMethodID: testMethodID,
		Endpoints: Endpoints{
			PaymentSession: "https://shop.example/ajax/payment-session",
			Checkout:       "https://shop.example/?wc-ajax=checkout",
			Callback:       "https://shop.example/flow/callback",
			RedirectBack:   "https://shop.example/flow/complete",
		},
		ThreeDS: ThreeDSSettings{Enabled: true},
	}
}

func testServerData() ServerData {
	return ServerData{
		Amount:   2599,
		Currency: "eur",
		Items: []LineItem{
			{Name: "Mug", Quantity: 1, UnitPrice: 2599, TotalAmount: 2599},
		},
		Description: "Order from Example Shop",
	}
}

// validPage returns a checkout page with every required billing field filled and this gateway
// selected.
func validPage() *page.Memory {
	doc := page.NewMemory()
	for id, value := range map[string]string{
		FieldFirstName: "Ada",
		FieldLastName:  "Lovelace",
		FieldEmail:     "ada@example.com",
		FieldAddress1:  "1 Analytical Row",
		FieldCity:      "London",
		FieldPostcode:  "N1 9GU",
		FieldCountry:   "GB",
	} {
		doc.SetField(page.Field{
			ID:             id,
			Value:          value,
			Section:        page.SectionBilling,
			RequiredMarker: true,
			RequiredAttr:   true,
			Visible:        true,
		})
	}
	doc.SelectPaymentMethod(testMethodID)
	doc.SetHidden("checkout-nonce", "nonce-123")
	return doc
}

type stubBackend struct {
	mu       sync.Mutex
	sessions int
	checkout int
	failed   []FailedOrder

	createSession    func(context.Context, *PaymentSessionRequest) (*PaymentSession, error)
	processCheckout  func(context.Context, url.Values) (json.RawMessage, error)
	validateCheckout func(context.Context, url.Values) (*CheckoutValidation, error)
	recordFailed     func(context.Context, FailedOrder) error
}

func (b *stubBackend) CreatePaymentSession(ctx context.Context, req *PaymentSessionRequest) (*PaymentSession, error) {
	b.mu.Lock()
	b.sessions++
	n := b.sessions
	b.mu.Unlock()
	if b.createSession != nil {
		return b.createSession(ctx, req)
	}
	return &PaymentSession{ID: fmt.Sprintf("ps_%d", n), Token: "tok", Secret: "secret"}, nil
}

func (b *stubBackend) ProcessCheckout(ctx context.Context, form url.Values) (json.RawMessage, error) {
	b.mu.Lock()
	b.checkout++
	b.mu.Unlock()
	if b.processCheckout != nil {
		return b.processCheckout(ctx, form)
	}
	return json.RawMessage(`{"result":"success","order_id":101,"order_key":"wc_order_abc"}`), nil
}

func (b *stubBackend) ValidateCheckout(ctx context.Context, form url.Values) (*CheckoutValidation, error) {
	if b.validateCheckout != nil {
		return b.validateCheckout(ctx, form)
	}
	return &CheckoutValidation{Valid: true}, nil
}

func (b *stubBackend) RecordFailedOrder(ctx context.Context, order FailedOrder) error {
	b.mu.Lock()
	b.failed = append(b.failed, order)
	b.mu.Unlock()
	if b.recordFailed != nil {
		return b.recordFailed(ctx, order)
	}
	return nil
}

func (b *stubBackend) sessionCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions
}

func (b *stubBackend) checkoutCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkout
}

func (b *stubBackend) failedOrders() []FailedOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]FailedOrder(nil), b.failed...)
}

type stubWidget struct {
	mu        sync.Mutex
	opts      WidgetOptions
	mounts    int
	unmounts  int
	submits   int
	container page.Element

	available func(context.Context) (bool, error)
	mount     func(page.Element) error
	valid     func() bool
	submit    func() error
}

func (w *stubWidget) IsAvailable(ctx context.Context) (bool, error) {
	if w.available != nil {
		return w.available(ctx)
	}
	return true, nil
}

func (w *stubWidget) Mount(container page.Element) error {
	if w.mount != nil {
		if err := w.mount(container); err != nil {
			return err
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mounts++
	w.container = container
	return nil
}

func (w *stubWidget) IsValid() bool {
	if w.valid != nil {
		return w.valid()
	}
	return true
}

func (w *stubWidget) Submit() error {
	w.mu.Lock()
	w.submits++
	w.mu.Unlock()
	if w.submit != nil {
		return w.submit()
	}
	return nil
}

func (w *stubWidget) submitCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submits
}

func (w *stubWidget) Unmount() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unmounts++
	return nil
}

func (w *stubWidget) counts() (mounts, unmounts int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mounts, w.unmounts
}

// stubFactory hands out stub widgets, letting configure adjust each one before it is returned.
type stubFactory struct {
	mu        sync.Mutex
	created   []*stubWidget
	configure func(*stubWidget)
	err       error
}

func (f *stubFactory) Create(_ string, opts WidgetOptions) (Widget, error) {
	if f.err != nil {
		return nil, f.err
	}
	w := &stubWidget{opts: opts}
	if f.configure != nil {
		f.configure(w)
	}
	f.mu.Lock()
	f.created = append(f.created, w)
	f.mu.Unlock()
	return w, nil
}

func (f *stubFactory) widgets() []*stubWidget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*stubWidget(nil), f.created...)
}

func (f *stubFactory) last(t *testing.T) *stubWidget {
	t.Helper()
	ws := f.widgets()
	if len(ws) == 0 {
		t.Fatalf("expected a widget to be created")
	}
	return ws[len(ws)-1]
}

// sleepRecorder replaces timer waits and records every requested delay.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestFlow(t *testing.T, doc page.Document, backend Backend, widgets WidgetFactory, opts ...Option) *Flow {
	t.Helper()
	base := []Option{
		WithLogger(logr.Discard()),
		WithServerData(testServerData()),
		WithSessionKey("test-session"),
		flowWithSleep((&sleepRecorder{}).sleep),
	}
	f, err := New(doc, backend, widgets, testSettings(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

var errBoom = errors.New("boom")
