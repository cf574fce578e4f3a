package flow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *HTTPBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPBackend(Endpoints{
		PaymentSession:   srv.URL + "/session",
		Checkout:         srv.URL + "/checkout",
		ValidateCheckout: srv.URL + "/validate",
		FailedOrder:      srv.URL + "/failed",
		Callback:         srv.URL + "/callback",
		RedirectBack:     srv.URL + "/complete",
	}, WithTimeout(5*time.Second), WithHeader("X-Flow-Nonce", "n0nce"))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestHTTPBackendCreatePaymentSession(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/session" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "session-abc-1" {
			t.Errorf("unexpected idempotency key %q", got)
		}
		if got := r.Header.Get("Checkout-Session"); got != "abc" {
			t.Errorf("unexpected checkout session %q", got)
		}
		if r.Header.Get("Request-Id") == "" {
			t.Errorf("expected a request id")
		}
		if got := r.Header.Get("X-Flow-Nonce"); got != "n0nce" {
			t.Errorf("unexpected nonce header %q", got)
		}
		if got := r.Header.Get("X-Requested-With"); got != "XMLHttpRequest" {
			t.Errorf("unexpected X-Requested-With %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("currency"); got != "EUR" {
			t.Errorf("unexpected currency %q", got)
		}
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"id":"ps_9","payment_session_token":"tok","payment_session_secret":"sec"}}`)
	})

	ctx := contextWithRequestContext(context.Background(), &RequestContext{
		SessionKey:     "abc",
		Attempt:        1,
		IdempotencyKey: "session-abc-1",
	})
	session, err := backend.CreatePaymentSession(ctx, &PaymentSessionRequest{Amount: 100, Currency: "EUR"})
	if err != nil {
		t.Fatalf("CreatePaymentSession: %v", err)
	}
	if session.ID != "ps_9" || session.Token != "tok" || session.Secret != "sec" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestHTTPBackendCreatePaymentSessionErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status     int
		body       string
		wantErr    bool
		wantFailed bool
	}{
		"api error codes": {
			status:     http.StatusUnprocessableEntity,
			body:       `{"error_type":"request_invalid","error_codes":["customer_email_invalid"]}`,
			wantFailed: true,
		},
		"server error": {
			status:  http.StatusInternalServerError,
			body:    `oops`,
			wantErr: true,
		},
		"error without codes": {
			status:  http.StatusBadRequest,
			body:    `{"id":""}`,
			wantErr: true,
		},
		"malformed success": {
			status:  http.StatusOK,
			body:    `not json`,
			wantErr: true,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			session, err := backend.CreatePaymentSession(context.Background(), &PaymentSessionRequest{Currency: "EUR"})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if session.Failed() != tc.wantFailed {
				t.Fatalf("Failed() = %v, want %v", session.Failed(), tc.wantFailed)
			}
		})
	}
}

func TestHTTPBackendProcessCheckout(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("checkout-nonce"); got != "nonce-123" {
			t.Errorf("unexpected nonce %q", got)
		}
		writeJSON(w, http.StatusOK, `{"result":"success","order_id":101}`)
	})

	raw, err := backend.ProcessCheckout(context.Background(), url.Values{"checkout-nonce": {"nonce-123"}})
	if err != nil {
		t.Fatalf("ProcessCheckout: %v", err)
	}
	ref, err := parseOrderResponse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref.OrderID != "101" {
		t.Fatalf("unexpected order id %q", ref.OrderID)
	}
}

func TestHTTPBackendValidateCheckout(t *testing.T) {
	t.Parallel()

	t.Run("rejected with messages", func(t *testing.T) {
		t.Parallel()

		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"success":false,"data":{"messages":["Billing phone is required."]}}`)
		})
		res, err := backend.ValidateCheckout(context.Background(), url.Values{})
		if err != nil {
			t.Fatalf("ValidateCheckout: %v", err)
		}
		if res.Valid || len(res.Messages) != 1 || res.Messages[0] != "Billing phone is required." {
			t.Fatalf("unexpected result %+v", res)
		}
	})

	t.Run("no endpoint accepts", func(t *testing.T) {
		t.Parallel()

		backend := NewHTTPBackend(Endpoints{})
		res, err := backend.ValidateCheckout(context.Background(), url.Values{})
		if err != nil {
			t.Fatalf("ValidateCheckout: %v", err)
		}
		if !res.Valid {
			t.Fatalf("expected valid without an endpoint")
		}
	})
}

func TestHTTPBackendRecordFailedOrder(t *testing.T) {
	t.Parallel()

	got := make(chan url.Values, 1)
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got <- r.PostForm
		writeJSON(w, http.StatusOK, `{"success":true}`)
	})

	err := backend.RecordFailedOrder(context.Background(), FailedOrder{
		PaymentSessionID: "ps_1",
		OrderID:          "101",
		Email:            "ada@example.com",
		Reason:           "card declined",
	})
	if err != nil {
		t.Fatalf("RecordFailedOrder: %v", err)
	}
	form := <-got
	if form.Get("payment_session_id") != "ps_1" || form.Get("order_id") != "101" || form.Get("reason") != "card declined" {
		t.Fatalf("unexpected form %v", form)
	}

	if err := NewHTTPBackend(Endpoints{}).RecordFailedOrder(context.Background(), FailedOrder{}); err != nil {
		t.Fatalf("expected no-op without an endpoint, got %v", err)
	}
}
