package flow

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/checkout-flow/flow/page"
)

// Query parameters the payment network appends when it sends the shopper back.
const (
	ParamPaymentID = "cko-payment-id"
	ParamSessionID = "cko-session-id"
)

// threeDSPaymentType is written to the hidden payment type field by the fallback submission.
const threeDSPaymentType = "3ds"

var errNoForm = errors.New("flow: no checkout or order review form on the page")

// DetectReturn reports whether u is a return from out-of-band authentication. The parameters'
// presence is the signal, whatever their value.
func DetectReturn(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()
	return q.Has(ParamPaymentID) || q.Has(ParamSessionID)
}

// ThreeDSReconciler handles the page load that follows a 3DS redirect.
type ThreeDSReconciler struct {
	state  *State
	doc    page.Document
	store  sessionStore
	wait   time.Duration
	sleep  func(context.Context, time.Duration) error
	logger logr.Logger

	mu        sync.Mutex
	pageURL   *url.URL
	returnURL *url.URL
	fallback  bool
}

// Reconcile marks the page as a 3DS return when u carries the return parameters. It reports
// whether a client-side fallback submission should be scheduled because the checkout is still
// shown.
func (r *ThreeDSReconciler) Reconcile(u *url.URL) bool {
	if u != nil {
		r.mu.Lock()
		r.pageURL = u
		r.mu.Unlock()
	}
	if !DetectReturn(u) {
		return false
	}
	r.state.Mark3DSReturn()

	_, checkout := r.doc.FormValues(page.FormCheckout)
	_, review := r.doc.FormValues(page.FormOrderReview)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.returnURL = u
	r.fallback = checkout || review
	r.logger.Info("3DS return detected", "fallback", r.fallback)
	return r.fallback
}

// Returned reports whether this page life is a 3DS return, by the sticky flag or by the return
// parameters on the page URL. A URL match is reconciled on the spot.
func (r *ThreeDSReconciler) Returned() bool {
	if r.state.Is3DSReturn() {
		return true
	}
	r.mu.Lock()
	u := r.pageURL
	r.mu.Unlock()
	if !DetectReturn(u) {
		return false
	}
	r.Reconcile(u)
	return true
}

// NeedsFallback reports whether RunFallback has work to do.
func (r *ThreeDSReconciler) NeedsFallback() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fallback
}

// RunFallback waits for the server-side redirect and, if the page is still here afterwards,
// submits the form with the payment details filled in. It does nothing when no form exists.
func (r *ThreeDSReconciler) RunFallback(ctx context.Context) error {
	r.mu.Lock()
	u := r.returnURL
	needed := r.fallback
	r.mu.Unlock()
	if !needed || u == nil {
		return nil
	}

	if err := r.sleep(ctx, r.wait); err != nil {
		// Navigated away or shut down before the window elapsed.
		return nil
	}

	q := u.Query()
	paymentID := q.Get(ParamPaymentID)
	if paymentID == "" {
		paymentID = q.Get(ParamSessionID)
	}
	r.doc.SetHidden(HiddenPaymentID, paymentID)
	r.doc.SetHidden(HiddenPaymentType, threeDSPaymentType)

	if r.doc.Hidden(HiddenOrderID) == "" {
		if id, ok, _ := r.store.get(ctx, keyOrderID); ok && id != "" {
			r.doc.SetHidden(HiddenOrderID, id)
			if key, ok, _ := r.store.get(ctx, keyOrderKey); ok {
				r.doc.SetHidden(HiddenOrderKey, key)
			}
		}
	}

	kind, err := submitAvailableForm(r.doc)
	if errors.Is(err, errNoForm) {
		r.logger.Info("3DS fallback found no form to submit")
		return nil
	}
	if err != nil {
		r.logger.Error(err, "3DS fallback submission failed")
		return nil
	}
	r.logger.Info("3DS fallback submitted form", "form", kind)
	return nil
}

// submitAvailableForm submits the checkout form, or the order review form when that is the only
// one rendered.
func submitAvailableForm(form page.Form) (page.FormKind, error) {
	for _, kind := range []page.FormKind{page.FormCheckout, page.FormOrderReview} {
		if _, ok := form.FormValues(kind); !ok {
			continue
		}
		return kind, form.Submit(kind)
	}
	return "", errNoForm
}
