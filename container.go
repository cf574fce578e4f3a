package flow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/checkout-flow/flow/page"
)

// ContainerID is the id of the element the widget mounts into.
const ContainerID = "flow-container"

var errNoPaymentBox = errors.New("flow: payment box not rendered")

// ContainerManager keeps exactly one mounting point inside the payment box.
type ContainerManager struct {
	layout page.Layout
	ready  *Bus[ContainerReady]
	logger logr.Logger

	// mu serializes Ensure so two callers cannot both create the container.
	mu sync.Mutex
}

// NewContainerManager returns a manager publishing readiness on ready.
func NewContainerManager(layout page.Layout, ready *Bus[ContainerReady], logger logr.Logger) *ContainerManager {
	return &ContainerManager{layout: layout, ready: ready, logger: logger}
}

// Container returns the live container, if any.
func (m *ContainerManager) Container() (page.Element, bool) {
	return m.layout.Element(ContainerID)
}

// Ensure creates the container when missing and publishes [ContainerReady]. It must run after
// every host re-render.
func (m *ContainerManager) Ensure() (page.Element, error) {
	m.mu.Lock()
	el, err := m.ensureLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.ready.Publish(ContainerReady{Container: el})
	return el, nil
}

func (m *ContainerManager) ensureLocked() (page.Element, error) {
	if el, ok := m.layout.Element(ContainerID); ok {
		return el, nil
	}
	el, err := m.create()
	if err != nil {
		return nil, err
	}
	if m.layout.HasSavedInstruments() {
		m.logger.V(4).Info("saved instruments shown, skipping container wrapping")
	} else {
		m.layout.Wrap(el)
	}
	m.logger.V(2).Info("payment container created")
	return el, nil
}

// Recreate creates the container directly under the payment box without publishing. Mount retry
// uses it before falling back to [ContainerManager.Ensure].
func (m *ContainerManager) Recreate() (page.Element, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.layout.Element(ContainerID); ok {
		return el, true
	}
	el, err := m.create()
	if err != nil {
		m.logger.V(4).Info("direct container re-creation failed", "reason", err.Error())
		return nil, false
	}
	return el, true
}

func (m *ContainerManager) create() (page.Element, error) {
	box, ok := m.layout.PaymentBox()
	if !ok {
		return nil, errNoPaymentBox
	}
	el, err := m.layout.CreateElement(box, ContainerID)
	if err != nil {
		return nil, fmt.Errorf("flow: create container: %w", err)
	}
	return el, nil
}
