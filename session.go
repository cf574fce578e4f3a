package flow

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/checkout-flow/flow/page"
)

// Orchestrator owns the payment session and the widget. Nothing else mounts, unmounts or
// replaces them.
type Orchestrator struct {
	doc        page.Document
	state      *State
	fields     *Fields
	containers *ContainerManager
	backend    Backend
	widgets    WidgetFactory
	notifier   *Notifier
	orders     *OrderCreator
	saveCard   saveCardPreference
	settings   Settings
	sessionKey string
	timings    Timings
	clock      func() time.Time
	sleep      func(context.Context, time.Duration) error
	logger     logr.Logger

	ready       <-chan ContainerReady
	cancelReady func()

	// reinitialize re-runs the guard after a widget had to be thrown away.
	reinitialize func(ctx context.Context)

	mu          sync.Mutex
	generation  uint64
	widget      Widget
	session     *PaymentSession
	mountedIn   page.Element
	fingerprint string
	method      string
	lastChange  ChangeEvent
	lastChanged time.Time

	background sync.WaitGroup
}

// Init starts an initialization attempt unless one is already running or the page is a 3DS
// return.
func (o *Orchestrator) Init(ctx context.Context) error {
	if o.state.Is3DSReturn() {
		o.logger.V(2).Info("skipping initialization after 3DS return")
		return nil
	}
	if !o.state.TryBeginInit() {
		o.logger.V(2).Info("initialization already in progress")
		return nil
	}
	return o.load(ctx)
}

// load runs one initialization attempt. The caller holds the initialization lock; load releases
// it on every path unless the attempt was superseded by Destroy.
func (o *Orchestrator) load(ctx context.Context) (err error) {
	gen := o.nextGeneration()
	mounted := false
	defer func() {
		if mounted {
			return
		}
		if o.finishIfCurrent(gen, false) {
			o.doc.SetLoading(false)
		}
	}()

	if o.state.Is3DSReturn() {
		return nil
	}

	snap := o.fields.Snapshot()
	if !IsValidEmail(snap.Customer.Email) {
		o.notifier.Show(ErrInvalidEmail)
		return ErrInvalidEmail
	}
	if err := snap.Validate(); err != nil {
		o.notifier.Show(err)
		return err
	}

	o.doc.SetLoading(true)
	o.doc.SetSkeleton(true)

	req, err := buildSessionRequest(snap, o.settings, o.saveCard.Resolve(ctx), o.orders.Current(ctx))
	if err != nil {
		o.notifier.Show(err)
		return err
	}

	ctx = contextWithRequestContext(ctx, &RequestContext{
		SessionKey:     o.sessionKey,
		Attempt:        gen,
		IdempotencyKey: fmt.Sprintf("session-%s-%d", o.sessionKey, gen),
	})
	o.logger.V(2).Info("creating payment session", "amount", req.Amount, "currency", req.Currency, "paymentType", req.PaymentType)
	session, err := o.backend.CreatePaymentSession(ctx, req)
	if !o.current(gen) || o.state.Is3DSReturn() {
		o.logger.V(2).Info("discarding stale payment session response")
		return nil
	}
	if err != nil {
		fe := newError(SessionError, CodeGeneric, msgGeneric, withCause(err))
		o.notifier.Show(fe)
		return fe
	}
	if session.Failed() {
		fe := NewSessionError(session.ErrorType, session.ErrorCodes)
		o.notifier.Show(fe)
		return fe
	}
	if session.ID == "" {
		fe := newError(SessionError, CodeMalformedResponse, msgGeneric)
		o.notifier.Show(fe)
		return fe
	}

	o.doc.SetHidden(HiddenSessionID, session.ID)

	o.dropWidget()
	w, err := o.widgets.Create(o.settings.ComponentName, WidgetOptions{
		Session:   *session,
		Callbacks: o.callbacks(gen),
	})
	if err != nil {
		fe := newError(WidgetError, CodeComponentUnavailable, msgRefresh, withCause(err))
		o.notifier.Show(fe)
		return fe
	}
	if !o.adopt(gen, w, session, o.fields.CriticalFingerprint()) {
		o.unmount(w)
		return nil
	}

	available, err := w.IsAvailable(ctx)
	if !o.current(gen) || o.state.Is3DSReturn() {
		return nil
	}
	if err != nil || !available {
		fe := newError(WidgetError, CodeComponentUnavailable, msgUnavailable, withCause(err))
		o.notifier.Show(fe)
		o.dropIfCurrent(gen)
		return fe
	}

	mounted, err = o.mountWithRetry(ctx, gen, w)
	return err
}

// callbacks binds the widget hooks to one generation. Hooks of a destroyed widget are ignored.
func (o *Orchestrator) callbacks(gen uint64) Callbacks {
	return Callbacks{
		OnReady: func() {
			if o.current(gen) {
				o.onReady()
			}
		},
		OnChange: func(ev ChangeEvent) {
			if o.current(gen) {
				o.onChange(ev)
			}
		},
		OnPaymentCompleted: func(ctx context.Context, res PaymentResult) {
			if o.current(gen) {
				o.onPaymentCompleted(ctx, res)
			}
		},
		OnSubmit: func(ctx context.Context) {
			if o.current(gen) {
				o.onSubmit(ctx)
			}
		},
		HandleClick: func(ctx context.Context) bool {
			return o.current(gen) && o.handleClick(ctx)
		},
		OnError: func(ctx context.Context, err error) {
			if o.current(gen) {
				o.onError(ctx, err)
			}
		},
	}
}

func (o *Orchestrator) onReady() {
	o.doc.SetLoading(false)
	o.doc.SetSubmitEnabled(true)
	o.doc.DeselectStoredInstruments()
}

func (o *Orchestrator) onChange(ev ChangeEvent) {
	o.mu.Lock()
	now := o.clock()
	if !o.lastChanged.IsZero() && (ev == o.lastChange || now.Sub(o.lastChanged) < o.timings.ChangeSpacing) {
		o.mu.Unlock()
		return
	}
	o.lastChange = ev
	o.lastChanged = now
	o.method = ev.Method
	o.mu.Unlock()

	o.doc.SetSubmitVisible(!slices.Contains(o.settings.SelfSubmittingMethods, ev.Method))
	o.doc.SetSaveInstrumentVisible(o.settings.SaveInstrument && ev.Method == "card")
	if o.doc.SelectedStoredInstrument() != "" {
		o.logger.V(4).Info("widget used while a stored instrument was selected, reactivating")
		o.doc.DeselectStoredInstruments()
		o.state.SetUserInteracted()
	}
}

func (o *Orchestrator) onPaymentCompleted(ctx context.Context, res PaymentResult) {
	if res.ChallengePending {
		o.logger.V(2).Info("payment awaiting challenge, redirect expected", "paymentID", res.ID)
		return
	}
	o.doc.SetHidden(HiddenPaymentID, res.ID)
	o.doc.SetHidden(HiddenPaymentType, res.Method)

	ref := o.orders.Current(ctx)
	switch {
	case ref == nil:
		o.submitForm("no order yet")
		return
	case slices.Contains(o.settings.RedirectMethods, res.Method):
		o.submitForm("redirect payment method")
		return
	case ref.OrderKey == "" && !o.fields.IsUserLoggedIn():
		o.submitForm("order key missing for guest")
		return
	}

	target, err := redirectBackURL(o.settings.Endpoints.RedirectBack, *ref, res.ID)
	if err == nil {
		err = o.doc.Redirect(target)
	}
	if err != nil {
		o.notifier.Show(newError(ProcessingError, CodeGeneric, msgGeneric, withCause(err)))
	}
}

func (o *Orchestrator) submitForm(reason string) {
	o.logger.V(2).Info("submitting checkout form", "reason", reason)
	if _, err := submitAvailableForm(o.doc); err != nil {
		o.notifier.Show(newError(ProcessingError, CodeFormMissing, msgFormNotPresent, withCause(err)))
	}
}

// onSubmit precreates the order so the host's full checkout processing runs exactly once. A
// failure is already shown to the shopper; the payment continues and the form submission path
// creates the order instead.
func (o *Orchestrator) onSubmit(ctx context.Context) {
	o.doc.SetLoading(true)
	if _, err := o.orders.CreateBeforePayment(ctx); err != nil {
		o.logger.V(2).Info("order precreation failed, continuing", "err", err.Error())
	}
}

func (o *Orchestrator) handleClick(ctx context.Context) bool {
	o.state.SetSubmitClicked(true)
	if slices.Contains(o.settings.NoPrevalidationMethods, o.currentMethod()) {
		return true
	}
	if o.orders.Current(ctx) != nil {
		return true
	}
	values, ok := o.doc.FormValues(page.FormCheckout)
	if !ok {
		return true
	}
	res, err := o.backend.ValidateCheckout(ctx, values)
	if err != nil {
		o.notifier.Show(newError(ProcessingError, CodeNetwork, msgNetwork, withCause(err)))
		return false
	}
	if !res.Valid {
		msg := msgWaitingFields
		if len(res.Messages) > 0 {
			msg = stripTags(res.Messages[0])
		}
		o.notifier.Show(newError(InvalidInput, CodeCheckoutRejected, msg))
		return false
	}
	return true
}

// SubmitWidget hands a click on the host's place-order button to the mounted widget. Methods that
// bring their own button submit themselves and are left alone. An incomplete widget is not
// submitted; the shopper is told to finish it instead.
func (o *Orchestrator) SubmitWidget() {
	o.mu.Lock()
	w := o.widget
	mounted := o.mountedIn != nil
	method := o.method
	o.mu.Unlock()

	if w == nil || !mounted || !o.state.Initialized() {
		o.logger.V(4).Info("submit clicked without a mounted widget")
		return
	}
	if slices.Contains(o.settings.SelfSubmittingMethods, method) {
		return
	}
	if !w.IsValid() {
		o.notifier.Show(newError(WidgetError, CodeInvalidComponent, msgInvalidWidget))
		return
	}
	if err := w.Submit(); err != nil {
		o.notifier.Show(newError(WidgetError, CodeGeneric, msgGeneric, withCause(err)))
	}
}

func (o *Orchestrator) onError(ctx context.Context, err error) {
	kind := ClassifyWidgetError(err)
	o.notifier.Show(newWidgetError(kind, err))
	o.doc.SetLoading(false)
	o.doc.SetSubmitEnabled(true)

	if kind != WidgetErrorDeclined || !o.state.SubmitClicked() {
		return
	}
	o.state.SetSubmitClicked(false)
	failed := FailedOrder{
		PaymentSessionID: o.doc.Hidden(HiddenSessionID),
		OrderID:          o.doc.Hidden(HiddenOrderID),
		Email:            o.fields.Email(),
		Reason:           err.Error(),
	}
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := o.backend.RecordFailedOrder(ctx, failed); err != nil {
			o.logger.V(2).Info("recording failed order", "err", err.Error())
		}
	}()
}

// HandleContainerReady keeps a mounted widget attached after the host replaced the page. A
// widget that is still attached is left alone; a detached one is remounted without a new
// session; if that fails the widget is destroyed and the guard runs again.
func (o *Orchestrator) HandleContainerReady(ctx context.Context, ev ContainerReady) {
	o.mu.Lock()
	w := o.widget
	gen := o.generation
	attached := o.mountedIn != nil && o.mountedIn.Attached()
	o.mu.Unlock()

	if w == nil || !o.state.Initialized() {
		return
	}
	if attached {
		o.logger.V(4).Info("widget still attached, nothing to do")
		return
	}
	err := w.Mount(ev.Container)
	if err == nil {
		o.mu.Lock()
		if o.generation == gen {
			o.mountedIn = ev.Container
		}
		o.mu.Unlock()
		o.doc.OnFirstInteraction(ev.Container, o.state.SetUserInteracted)
		o.logger.V(2).Info("widget remounted after re-render")
		return
	}
	o.logger.Info("remounting widget failed, reinitializing", "err", err.Error())
	o.Destroy()
	if o.reinitialize != nil {
		o.reinitialize(ctx)
	}
}

// watchContainers handles readiness notifications until ctx is done.
func (o *Orchestrator) watchContainers(ctx context.Context) error {
	defer o.cancelReady()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-o.ready:
			if !ok {
				return nil
			}
			o.HandleContainerReady(ctx, ev)
		}
	}
}

// Destroy unmounts and forgets the widget and its session, and supersedes any attempt in
// flight. The superseded attempt can no longer touch the initialization flags.
func (o *Orchestrator) Destroy() {
	o.mu.Lock()
	o.generation++
	w := o.detachLocked()
	o.state.ResetWidget()
	o.mu.Unlock()
	o.unmount(w)
}

// dropWidget unmounts and nils the current widget.
func (o *Orchestrator) dropWidget() {
	o.mu.Lock()
	w := o.detachLocked()
	o.mu.Unlock()
	o.unmount(w)
}

// dropIfCurrent is dropWidget for attempt gen only.
func (o *Orchestrator) dropIfCurrent(gen uint64) {
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return
	}
	w := o.detachLocked()
	o.mu.Unlock()
	o.unmount(w)
}

// detachLocked forgets the widget and everything tied to it. A submit click belongs to the widget
// it was made on. o.mu must be held.
func (o *Orchestrator) detachLocked() Widget {
	w := o.widget
	o.widget = nil
	o.session = nil
	o.mountedIn = nil
	o.fingerprint = ""
	o.lastChange = ChangeEvent{}
	o.lastChanged = time.Time{}
	o.state.SetSubmitClicked(false)
	return w
}

func (o *Orchestrator) unmount(w Widget) {
	if w == nil {
		return
	}
	if err := w.Unmount(); err != nil {
		o.logger.V(4).Info("unmount widget", "err", err.Error())
	}
}

// finishIfCurrent releases the initialization lock for attempt gen. A superseded attempt leaves
// the flags to whichever attempt replaced it. Lock order is o.mu, then the state's lock.
func (o *Orchestrator) finishIfCurrent(gen uint64, mounted bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		return false
	}
	o.state.FinishInit(mounted)
	return true
}

func (o *Orchestrator) adopt(gen uint64, w Widget, session *PaymentSession, fp string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		return false
	}
	o.widget = w
	o.session = session
	o.fingerprint = fp
	return true
}

func (o *Orchestrator) nextGeneration() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	return o.generation
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == gen
}

func (o *Orchestrator) currentMethod() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.method
}

// WidgetAttached reports whether a widget exists and its container is part of the live page.
func (o *Orchestrator) WidgetAttached() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.widget != nil && o.mountedIn != nil && o.mountedIn.Attached()
}

// Session returns the live payment session.
func (o *Orchestrator) Session() (PaymentSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return PaymentSession{}, false
	}
	return *o.session, true
}

// SessionFingerprint is the critical-field fingerprint the live session was created for.
func (o *Orchestrator) SessionFingerprint() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fingerprint
}
