package page

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// PaymentBoxID is the id Memory gives the payment method box.
const PaymentBoxID = "payment_method_box"

// ErrDetached is returned when creating a node under a detached parent.
var ErrDetached = errors.New("page: parent element is detached")

type memElement struct {
	doc      *Memory
	id       string
	parent   *memElement
	attached bool
}

func (e *memElement) ID() string { return e.id }

func (e *memElement) Attached() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.attached
}

// Memory is a concurrency-safe in-process [Document]. It records every side effect so
// callers can assert on submissions, redirects and notices.
type Memory struct {
	mu sync.Mutex

	fields     map[string]Field
	fieldOrder []string
	checked    map[string]bool
	loginForm  bool
	method     string
	hidden     map[string]string
	forms      map[FormKind]bool
	cookies    map[string]string

	box            *memElement
	elements       []*memElement
	wrapped        map[string]int
	saved          bool
	storedSelected string
	interaction    map[*memElement][]func()

	submissions   []FormKind
	redirects     []string
	notices       []string
	placeholders  []string
	loading       bool
	skeleton      bool
	submitEnabled bool
	submitVisible bool
	saveVisible   bool

	// SubmitErr, when set, is returned by Submit.
	SubmitErr error
}

// NewMemory returns a document with a rendered checkout form and payment box.
func NewMemory() *Memory {
	m := &Memory{
		fields:        make(map[string]Field),
		checked:       make(map[string]bool),
		hidden:        make(map[string]string),
		forms:         map[FormKind]bool{FormCheckout: true},
		cookies:       make(map[string]string),
		wrapped:       make(map[string]int),
		interaction:   make(map[*memElement][]func()),
		submitVisible: true,
	}
	m.box = &memElement{doc: m, id: PaymentBoxID, attached: true}
	return m
}

// SetField adds or replaces a field.
func (m *Memory) SetField(f Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fields[f.ID]; !ok {
		m.fieldOrder = append(m.fieldOrder, f.ID)
	}
	m.fields[f.ID] = f
}

// SetValue updates the value of an existing field.
func (m *Memory) SetValue(id, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fields[id]
	if !ok {
		return
	}
	f.Value = value
	m.fields[id] = f
}

// SetChecked sets a checkbox state.
func (m *Memory) SetChecked(id string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked[id] = on
}

// SetLoginForm toggles the presence of a login form.
func (m *Memory) SetLoginForm(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginForm = on
}

// SelectPaymentMethod selects a payment method radio.
func (m *Memory) SelectPaymentMethod(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.method = id
}

// SetFormRendered controls whether a form is present.
func (m *Memory) SetFormRendered(kind FormKind, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms[kind] = on
}

// SetSavedInstruments toggles the saved-instrument list.
func (m *Memory) SetSavedInstruments(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = on
}

// SelectStoredInstrument selects a saved instrument radio.
func (m *Memory) SelectStoredInstrument(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storedSelected = id
}

// Rerender replaces the payment methods subtree the way the host framework does: every node
// inside the payment box is detached and the box itself is replaced.
func (m *Memory) Rerender() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.box.attached = false
	for _, el := range m.elements {
		el.attached = false
	}
	m.elements = nil
	m.interaction = make(map[*memElement][]func())
	m.box = &memElement{doc: m, id: PaymentBoxID, attached: true}
}

// RemovePaymentBox detaches the payment box without replacing it.
func (m *Memory) RemovePaymentBox() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.box.attached = false
	for _, el := range m.elements {
		el.attached = false
	}
	m.elements = nil
}

// Interact simulates a first click inside the element with the given id.
func (m *Memory) Interact(id string) {
	m.mu.Lock()
	var fns []func()
	for el, cbs := range m.interaction {
		if el.id == id && el.attached {
			fns = append(fns, cbs...)
			delete(m.interaction, el)
		}
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Fields implements [Form].
func (m *Memory) Fields() []Field {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Field, 0, len(m.fieldOrder))
	for _, id := range m.fieldOrder {
		out = append(out, m.fields[id])
	}
	return out
}

// Field implements [Form].
func (m *Memory) Field(id string) (Field, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fields[id]
	return f, ok
}

// Checked implements [Form].
func (m *Memory) Checked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checked[id]
}

// HasLoginForm implements [Form].
func (m *Memory) HasLoginForm() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginForm
}

// SelectedPaymentMethod implements [Form].
func (m *Memory) SelectedPaymentMethod() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.method
}

// Hidden implements [Form].
func (m *Memory) Hidden(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden[name]
}

// SetHidden implements [Form].
func (m *Memory) SetHidden(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hidden[name] = value
}

// FormValues implements [Form].
func (m *Memory) FormValues(kind FormKind) (url.Values, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.forms[kind] {
		return nil, false
	}
	values := make(url.Values)
	for _, id := range m.fieldOrder {
		values.Set(id, m.fields[id].Value)
	}
	for id, on := range m.checked {
		if on {
			values.Set(id, "1")
		}
	}
	for name, v := range m.hidden {
		values.Set(name, v)
	}
	if m.method != "" {
		values.Set("payment_method", m.method)
	}
	return values, true
}

// Submit implements [Form].
func (m *Memory) Submit(kind FormKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.forms[kind] {
		return fmt.Errorf("page: form %s not rendered", kind)
	}
	if m.SubmitErr != nil {
		return m.SubmitErr
	}
	m.submissions = append(m.submissions, kind)
	return nil
}

// Redirect implements [Form].
func (m *Memory) Redirect(rawURL string) error {
	if _, err := url.Parse(rawURL); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirects = append(m.redirects, rawURL)
	return nil
}

// Cookie implements [Form].
func (m *Memory) Cookie(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cookies[name]
}

// SetCookie implements [Form]. A non-positive maxAge deletes the cookie.
func (m *Memory) SetCookie(name, value string, maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxAge <= 0 {
		delete(m.cookies, name)
		return
	}
	m.cookies[name] = value
}

// PaymentBox implements [Layout].
func (m *Memory) PaymentBox() (Element, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.box.attached {
		return nil, false
	}
	return m.box, true
}

// Element implements [Layout].
func (m *Memory) Element(id string) (Element, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == m.box.id && m.box.attached {
		return m.box, true
	}
	for _, el := range m.elements {
		if el.id == id && el.attached {
			return el, true
		}
	}
	return nil, false
}

// CreateElement implements [Layout].
func (m *Memory) CreateElement(parent Element, id string) (Element, error) {
	p, ok := parent.(*memElement)
	if !ok || p.doc != m {
		return nil, errors.New("page: foreign parent element")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !p.attached {
		return nil, ErrDetached
	}
	el := &memElement{doc: m, id: id, parent: p, attached: true}
	m.elements = append(m.elements, el)
	return el, nil
}

// Wrap implements [Layout].
func (m *Memory) Wrap(el Element) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wrapped[el.ID()]++
}

// HasSavedInstruments implements [Layout].
func (m *Memory) HasSavedInstruments() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved
}

// SelectedStoredInstrument implements [Layout].
func (m *Memory) SelectedStoredInstrument() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storedSelected
}

// DeselectStoredInstruments implements [Layout].
func (m *Memory) DeselectStoredInstruments() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storedSelected = ""
}

// OnFirstInteraction implements [Layout].
func (m *Memory) OnFirstInteraction(el Element, fn func()) {
	me, ok := el.(*memElement)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interaction[me] = append(m.interaction[me], fn)
}

// ShowNotice implements [UI].
func (m *Memory) ShowNotice(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, msg)
}

// ClearNotice implements [UI].
func (m *Memory) ClearNotice() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = nil
}

// ShowPlaceholder implements [UI].
func (m *Memory) ShowPlaceholder(_ Element, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeholders = append(m.placeholders, msg)
}

// SetLoading implements [UI].
func (m *Memory) SetLoading(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = on
}

// SetSkeleton implements [UI].
func (m *Memory) SetSkeleton(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skeleton = on
}

// SetSubmitEnabled implements [UI].
func (m *Memory) SetSubmitEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitEnabled = on
}

// SetSubmitVisible implements [UI].
func (m *Memory) SetSubmitVisible(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitVisible = on
}

// SetSaveInstrumentVisible implements [UI].
func (m *Memory) SetSaveInstrumentVisible(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveVisible = on
}

// Count returns how many attached elements carry id.
func (m *Memory) Count(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, el := range m.elements {
		if el.id == id && el.attached {
			n++
		}
	}
	return n
}

// Wrapped reports how many times the element with id was wrapped.
func (m *Memory) Wrapped(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wrapped[id]
}

// Submissions returns the submitted forms in order.
func (m *Memory) Submissions() []FormKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FormKind(nil), m.submissions...)
}

// Redirects returns the redirect targets in order.
func (m *Memory) Redirects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.redirects...)
}

// Notices returns the notices currently displayed.
func (m *Memory) Notices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notices...)
}

// Placeholders returns every placeholder message shown.
func (m *Memory) Placeholders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.placeholders...)
}

// Loading reports the loading affordance.
func (m *Memory) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Skeleton reports the skeleton affordance.
func (m *Memory) Skeleton() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skeleton
}

// SubmitEnabled reports whether the submit control is enabled.
func (m *Memory) SubmitEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitEnabled
}

// SubmitVisible reports whether the submit control is visible.
func (m *Memory) SubmitVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitVisible
}

// SaveInstrumentVisible reports whether the save-instrument checkbox is visible.
func (m *Memory) SaveInstrumentVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveVisible
}
