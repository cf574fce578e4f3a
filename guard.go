package flow

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/checkout-flow/flow/page"
)

// GuardState is the state the guard decided on.
type GuardState string

const (
	StateIdle         GuardState = "idle"
	StateBlocked      GuardState = "blocked"
	StateInitializing GuardState = "initializing"
	StateMounted      GuardState = "mounted"
)

// BlockReason explains a blocked decision.
type BlockReason string

const (
	Reason3DSReturn           BlockReason = "3DS_RETURN"
	ReasonAlreadyInitializing BlockReason = "ALREADY_INITIALIZING"
	ReasonPaymentNotSelected  BlockReason = "PAYMENT_NOT_SELECTED"
	ReasonContainerNotFound   BlockReason = "CONTAINER_NOT_FOUND"
	ReasonFieldsInvalid       BlockReason = "FIELDS_INVALID"
)

// Decision is the outcome of one eligibility check.
type Decision struct {
	State  GuardState
	Reason BlockReason
}

func blocked(reason BlockReason) Decision {
	return Decision{State: StateBlocked, Reason: reason}
}

// Guard decides whether an initialization attempt may start. It never mounts.
type Guard struct {
	state      *State
	doc        page.Document
	fields     *Fields
	containers *ContainerManager
	orch       *Orchestrator
	threeDS    *ThreeDSReconciler
	watcher    *FieldWatcher
	methodID   string
	logger     logr.Logger

	inflight sync.WaitGroup
}

// Evaluate runs the checks in order; the first failing one decides. An Initializing decision
// means the caller now holds the initialization lock.
func (g *Guard) Evaluate() Decision {
	if g.threeDS.Returned() {
		return blocked(Reason3DSReturn)
	}
	if g.state.Initializing() {
		return blocked(ReasonAlreadyInitializing)
	}
	if g.doc.SelectedPaymentMethod() != g.methodID {
		return blocked(ReasonPaymentNotSelected)
	}
	container, ok := g.containers.Container()
	if !ok {
		return blocked(ReasonContainerNotFound)
	}
	if g.state.Initialized() && g.orch.WidgetAttached() {
		return Decision{State: StateMounted}
	}
	if !g.fields.RequiredFieldsFilledAndValid() {
		g.state.SwapFieldsWereFilled(false)
		g.doc.ShowPlaceholder(container, msgWaitingFields)
		g.watcher.Arm()
		return blocked(ReasonFieldsInvalid)
	}
	g.state.SwapFieldsWereFilled(true)
	if !g.state.TryBeginInit() {
		if g.state.Is3DSReturn() {
			return blocked(Reason3DSReturn)
		}
		return blocked(ReasonAlreadyInitializing)
	}
	return Decision{State: StateInitializing}
}

// InitializeIfNeeded evaluates and, when allowed, runs the initialization attempt to completion.
func (g *Guard) InitializeIfNeeded(ctx context.Context) (Decision, error) {
	d := g.Evaluate()
	if d.State != StateInitializing {
		g.logger.V(2).Info("initialization not started", "state", d.State, "reason", d.Reason)
		return d, nil
	}
	return d, g.orch.load(ctx)
}

// initializeAsync evaluates synchronously and runs an allowed attempt in the background.
func (g *Guard) initializeAsync(ctx context.Context) Decision {
	d := g.Evaluate()
	if d.State != StateInitializing {
		g.logger.V(4).Info("initialization not started", "state", d.State, "reason", d.Reason)
		return d
	}
	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		if err := g.orch.load(ctx); err != nil {
			g.logger.V(2).Info("initialization failed", "err", err.Error())
		}
	}()
	return d
}

// wait blocks until background attempts have returned.
func (g *Guard) wait() {
	g.inflight.Wait()
}
