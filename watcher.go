package flow

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

// FieldWatcher re-evaluates field validity after edits and reacts only when validity flips.
// While the fields stay valid, a change to a critical field reloads the widget so the session
// matches what the shopper typed.
type FieldWatcher struct {
	guard   *Guard
	orch    *Orchestrator
	fields  *Fields
	state   *State
	timings Timings
	clock   func() time.Time
	logger  logr.Logger

	changed chan struct{}
	armed   chan struct{}
}

func newFieldWatcher(timings Timings, clock func() time.Time, logger logr.Logger) *FieldWatcher {
	return &FieldWatcher{
		timings: timings,
		clock:   clock,
		logger:  logger,
		changed: make(chan struct{}, 1),
		armed:   make(chan struct{}, 1),
	}
}

// Notify records that a watched field changed.
func (w *FieldWatcher) Notify() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// Arm starts or extends the periodic fallback check.
func (w *FieldWatcher) Arm() {
	select {
	case w.armed <- struct{}{}:
	default:
	}
}

// Run processes notifications until ctx is done.
func (w *FieldWatcher) Run(ctx context.Context) error {
	var (
		debounce <-chan time.Time
		reload   <-chan time.Time
		tick     <-chan time.Time
		ticker   *time.Ticker
		deadline time.Time
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.changed:
			debounce = time.After(w.timings.FieldDebounce)
		case <-w.armed:
			if ticker == nil {
				ticker = time.NewTicker(w.timings.FallbackInterval)
				tick = ticker.C
			}
			deadline = w.clock().Add(w.timings.FallbackCeiling)
		case <-debounce:
			debounce = nil
			if w.check(ctx) {
				reload = time.After(w.timings.ReloadDebounce)
			}
			if w.state.FieldsWereFilled() {
				stopTicker()
			}
		case <-tick:
			if w.clock().After(deadline) {
				w.logger.V(4).Info("periodic field check expired")
				stopTicker()
				continue
			}
			if w.check(ctx) {
				reload = time.After(w.timings.ReloadDebounce)
			}
			if w.state.FieldsWereFilled() {
				stopTicker()
			}
		case <-reload:
			reload = nil
			w.reload(ctx)
		}
	}
}

// check applies one validity evaluation and reports whether a critical-field reload should be
// scheduled.
func (w *FieldWatcher) check(ctx context.Context) bool {
	valid := w.fields.RequiredFieldsFilledAndValid()
	prev := w.state.SwapFieldsWereFilled(valid)

	switch {
	case valid && !prev:
		w.logger.V(2).Info("required fields became valid")
		w.guard.initializeAsync(ctx)
	case !valid && prev:
		w.logger.V(2).Info("required fields became invalid")
		if w.state.Initialized() || w.state.Initializing() {
			w.orch.Destroy()
		}
		w.guard.initializeAsync(ctx)
	case valid && prev:
		return w.criticalChanged()
	}
	return false
}

func (w *FieldWatcher) criticalChanged() bool {
	live := w.orch.SessionFingerprint()
	return live != "" && live != w.fields.CriticalFingerprint()
}

// reload replaces the widget after a critical field changed, if that is still the case.
func (w *FieldWatcher) reload(ctx context.Context) {
	if !w.fields.RequiredFieldsFilledAndValid() || !w.criticalChanged() {
		return
	}
	w.logger.Info("critical checkout field changed, reloading payment widget")
	w.orch.Destroy()
	w.guard.initializeAsync(ctx)
}
