package flow

import (
	"context"

	"github.com/checkout-flow/flow/page"
)

// mountWithRetry mounts w, waiting before attempt k for min(base*2^(k-1), cap). A missing
// container and a mount error are handled the same way. After the last attempt the shopper is
// asked to refresh and both initialization flags end up false.
func (o *Orchestrator) mountWithRetry(ctx context.Context, gen uint64, w Widget) (bool, error) {
	for attempt := 1; attempt <= o.timings.MountAttempts; attempt++ {
		if err := o.sleep(ctx, o.timings.mountDelay(attempt)); err != nil {
			return false, err
		}
		if !o.current(gen) || o.state.Is3DSReturn() {
			return false, nil
		}

		el, ok := o.resolveContainer()
		if !ok {
			o.logger.V(2).Info("container not found for mount", "attempt", attempt)
			continue
		}
		if err := w.Mount(el); err != nil {
			o.logger.V(2).Info("mount failed", "attempt", attempt, "err", err.Error())
			continue
		}
		if !o.afterMount(gen, el) {
			// Destroyed while mounting.
			o.unmount(w)
			return false, nil
		}
		o.logger.Info("payment widget mounted", "attempt", attempt)
		return true, nil
	}

	if !o.current(gen) {
		return false, nil
	}
	o.notifier.Show(ErrMountFailed)
	o.dropIfCurrent(gen)
	return false, ErrMountFailed
}

// resolveContainer finds the container, re-creating it directly and then through the full
// ensure routine when the host has removed it.
func (o *Orchestrator) resolveContainer() (page.Element, bool) {
	if el, ok := o.containers.Container(); ok {
		return el, true
	}
	if el, ok := o.containers.Recreate(); ok {
		return el, true
	}
	el, err := o.containers.Ensure()
	if err != nil {
		return nil, false
	}
	return el, true
}

// afterMount records a successful mount of attempt gen. It reports false when the attempt was
// superseded while mounting.
func (o *Orchestrator) afterMount(gen uint64, el page.Element) bool {
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return false
	}
	o.mountedIn = el
	o.state.FinishInit(true)
	o.mu.Unlock()

	o.doc.SetSkeleton(false)
	o.doc.SetLoading(false)
	o.doc.SetSubmitEnabled(true)
	o.doc.OnFirstInteraction(el, o.state.SetUserInteracted)
	o.notifier.Clear()
	return true
}
