package flow

import (
	"context"
	"errors"
	"net/url"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/checkout-flow/flow/page"
)

// HostEventKind names a notification from the host checkout framework.
type HostEventKind int

const (
	// EventCheckoutUpdated follows every re-render of the payment methods section.
	EventCheckoutUpdated HostEventKind = iota + 1
	// EventFieldChanged follows an edit of a checkout field.
	EventFieldChanged
	// EventPaymentMethodChanged follows a change of the selected payment method.
	EventPaymentMethodChanged
	// EventSubmitClicked follows a click on the page's own place-order button.
	EventSubmitClicked
)

func (k HostEventKind) String() string {
	switch k {
	case EventCheckoutUpdated:
		return "checkout_updated"
	case EventFieldChanged:
		return "field_changed"
	case EventPaymentMethodChanged:
		return "payment_method_changed"
	case EventSubmitClicked:
		return "submit_clicked"
	default:
		return "unknown"
	}
}

// HostEvent is one host framework notification.
type HostEvent struct {
	Kind HostEventKind
	// Field is the id of the edited field for EventFieldChanged.
	Field string
}

// Flow wires the payment flow for one checkout page.
type Flow struct {
	doc        page.Document
	state      *State
	fields     *Fields
	containers *ContainerManager
	guard      *Guard
	watcher    *FieldWatcher
	orch       *Orchestrator
	orders     *OrderCreator
	threeDS    *ThreeDSReconciler
	notifier   *Notifier
	logger     logr.Logger
}

// New builds a flow for doc. Settings are validated after defaults are applied.
func New(doc page.Document, backend Backend, widgets WidgetFactory, settings Settings, opts ...Option) (*Flow, error) {
	if doc == nil || backend == nil || widgets == nil {
		return nil, errors.New("flow: document, backend and widget factory are required")
	}
	settings.applyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.storage == nil {
		cfg.storage = NewMemoryStorage()
	}
	if cfg.sessionKey == "" {
		cfg.sessionKey = cfg.serverData.CheckoutSessionID
	}
	if cfg.sessionKey == "" {
		cfg.sessionKey = uuid.NewString()
	}

	logger := cfg.logger.WithValues("session", cfg.sessionKey)
	state := NewState()
	store := sessionStore{storage: cfg.storage, sessionKey: cfg.sessionKey}
	notifier := NewNotifier(doc, state, logger)
	fields := NewFields(doc, cfg.serverData, settings.PaymentMethodID, logger.WithName("fields"))
	bus := NewBus[ContainerReady]()
	containers := NewContainerManager(doc, bus, logger.WithName("container"))
	saveCard := saveCardPreference{
		form:   doc,
		store:  store,
		secret: cfg.cookieSecret,
		logger: logger,
	}

	orders := &OrderCreator{
		doc:      doc,
		state:    state,
		backend:  backend,
		store:    store,
		saveCard: saveCard,
		notifier: notifier,
		settings: settings,
		lockWait: cfg.timings.OrderLockWait,
		sleep:    cfg.sleep,
		logger:   logger.WithName("order"),
	}

	ready, cancelReady := bus.Subscribe()
	orch := &Orchestrator{
		doc:         doc,
		state:       state,
		fields:      fields,
		containers:  containers,
		backend:     backend,
		widgets:     widgets,
		notifier:    notifier,
		orders:      orders,
		saveCard:    saveCard,
		settings:    settings,
		sessionKey:  cfg.sessionKey,
		timings:     cfg.timings,
		clock:       cfg.clock,
		sleep:       cfg.sleep,
		logger:      logger.WithName("session"),
		ready:       ready,
		cancelReady: cancelReady,
	}

	threeDS := &ThreeDSReconciler{
		state:   state,
		doc:     doc,
		store:   store,
		wait:    cfg.timings.ThreeDSFallback,
		sleep:   cfg.sleep,
		logger:  logger.WithName("3ds"),
		pageURL: cfg.pageURL,
	}

	watcher := newFieldWatcher(cfg.timings, cfg.clock, logger.WithName("watcher"))
	guard := &Guard{
		state:      state,
		doc:        doc,
		fields:     fields,
		containers: containers,
		orch:       orch,
		threeDS:    threeDS,
		watcher:    watcher,
		methodID:   settings.PaymentMethodID,
		logger:     logger.WithName("guard"),
	}
	watcher.guard = guard
	watcher.orch = orch
	watcher.fields = fields
	watcher.state = state
	orch.reinitialize = func(ctx context.Context) {
		guard.initializeAsync(ctx)
	}

	if id := cfg.serverData.OrderID; id != "" && doc.Hidden(HiddenOrderID) == "" {
		doc.SetHidden(HiddenOrderID, id)
		doc.SetHidden(HiddenOrderKey, cfg.serverData.OrderKey)
	}

	return &Flow{
		doc:        doc,
		state:      state,
		fields:     fields,
		containers: containers,
		guard:      guard,
		watcher:    watcher,
		orch:       orch,
		orders:     orders,
		threeDS:    threeDS,
		notifier:   notifier,
		logger:     logger,
	}, nil
}

// Start runs the page-load sequence: 3DS detection first, then the container, then one
// eligibility check. It returns once that attempt, if any, has finished.
func (f *Flow) Start(ctx context.Context, pageURL *url.URL) (Decision, error) {
	f.threeDS.Reconcile(pageURL)
	if _, err := f.containers.Ensure(); err != nil {
		f.logger.V(2).Info("container not created on load", "err", err.Error())
	}
	return f.guard.InitializeIfNeeded(ctx)
}

// Run handles host events until ctx is done or events is closed, together with the field
// watcher, container readiness and a pending 3DS fallback.
func (f *Flow) Run(ctx context.Context, events <-chan HostEvent) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.watcher.Run(ctx)
	})
	g.Go(func() error {
		return f.orch.watchContainers(ctx)
	})
	if f.threeDS.NeedsFallback() {
		g.Go(func() error {
			return f.threeDS.RunFallback(ctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				f.HandleEvent(ctx, ev)
			}
		}
	})

	err := g.Wait()
	f.guard.wait()
	f.orch.background.Wait()
	return err
}

// HandleEvent applies one host event.
func (f *Flow) HandleEvent(ctx context.Context, ev HostEvent) {
	f.logger.V(4).Info("host event", "kind", ev.Kind.String(), "field", ev.Field)
	switch ev.Kind {
	case EventCheckoutUpdated:
		if _, err := f.containers.Ensure(); err != nil {
			f.logger.V(2).Info("container not created after re-render", "err", err.Error())
		}
		f.notifier.Redisplay()
		if !f.state.Initialized() {
			f.guard.initializeAsync(ctx)
		}
	case EventFieldChanged:
		f.watcher.Notify()
	case EventPaymentMethodChanged:
		f.guard.initializeAsync(ctx)
	case EventSubmitClicked:
		f.state.SetSubmitClicked(true)
		f.orch.SubmitWidget()
	}
}

// InitializeFlowIfNeeded runs one eligibility check and, when allowed, one initialization.
func (f *Flow) InitializeFlowIfNeeded(ctx context.Context) (Decision, error) {
	return f.guard.InitializeIfNeeded(ctx)
}

// CreateOrderBeforePayment precreates the order for this checkout attempt.
func (f *Flow) CreateOrderBeforePayment(ctx context.Context) (*OrderReference, error) {
	return f.orders.CreateBeforePayment(ctx)
}

// Reload destroys the widget and runs a fresh initialization.
func (f *Flow) Reload(ctx context.Context) (Decision, error) {
	f.orch.Destroy()
	return f.guard.InitializeIfNeeded(ctx)
}

// State returns the shared page state.
func (f *Flow) State() *State {
	return f.state
}

// Fields returns the field validation for the page.
func (f *Flow) Fields() *Fields {
	return f.fields
}

// Session returns the live payment session.
func (f *Flow) Session() (PaymentSession, bool) {
	return f.orch.Session()
}

// CurrentOrder returns the known order, if any.
func (f *Flow) CurrentOrder(ctx context.Context) *OrderReference {
	return f.orders.Current(ctx)
}
