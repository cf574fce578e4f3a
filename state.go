package flow

import "sync"

// State holds the page-lifetime flags every component reads and writes. Each check-and-set
// happens under one lock so concurrent triggers cannot both win a gate.
type State struct {
	mu sync.Mutex

	initialized             bool
	initializing            bool
	orderCreationInProgress bool
	is3DSReturn             bool
	userInteracted          bool
	fieldsWereFilled        bool
	submitClicked           bool
	lastError               string
}

// StateSnapshot is a point-in-time copy of [State].
type StateSnapshot struct {
	Initialized             bool
	Initializing            bool
	OrderCreationInProgress bool
	Is3DSReturn             bool
	UserInteracted          bool
	FieldsWereFilled        bool
	SubmitClicked           bool
	LastError               string
}

// NewState returns the state of a freshly loaded page.
func NewState() *State {
	return &State{}
}

// Snapshot copies every flag.
func (s *State) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		Initialized:             s.initialized,
		Initializing:            s.initializing,
		OrderCreationInProgress: s.orderCreationInProgress,
		Is3DSReturn:             s.is3DSReturn,
		UserInteracted:          s.userInteracted,
		FieldsWereFilled:        s.fieldsWereFilled,
		SubmitClicked:           s.submitClicked,
		LastError:               s.lastError,
	}
}

func (s *State) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *State) Initializing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializing
}

// TryBeginInit takes the initialization lock. It fails after a 3DS return or while another
// initialization is in flight. Taking the lock clears initialized.
func (s *State) TryBeginInit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.is3DSReturn || s.initializing {
		return false
	}
	s.initializing = true
	s.initialized = false
	return true
}

// FinishInit releases the initialization lock and records whether a widget ended up mounted.
func (s *State) FinishInit(mounted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initializing = false
	s.initialized = mounted
}

// ResetWidget clears both initialization flags after the widget was destroyed.
func (s *State) ResetWidget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initializing = false
	s.initialized = false
}

func (s *State) OrderCreationInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderCreationInProgress
}

// TryLockOrderCreation takes the order precreation lock.
func (s *State) TryLockOrderCreation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderCreationInProgress {
		return false
	}
	s.orderCreationInProgress = true
	return true
}

func (s *State) UnlockOrderCreation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderCreationInProgress = false
}

// Mark3DSReturn sets the sticky 3DS return flag. It is never cleared for the life of the page.
func (s *State) Mark3DSReturn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.is3DSReturn = true
}

func (s *State) Is3DSReturn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.is3DSReturn
}

func (s *State) SetUserInteracted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInteracted = true
}

func (s *State) UserInteracted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userInteracted
}

// SwapFieldsWereFilled stores the latest validity and returns the previous one.
func (s *State) SwapFieldsWereFilled(filled bool) (prev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.fieldsWereFilled
	s.fieldsWereFilled = filled
	return prev
}

func (s *State) FieldsWereFilled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fieldsWereFilled
}

func (s *State) SetSubmitClicked(clicked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitClicked = clicked
}

func (s *State) SubmitClicked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitClicked
}

func (s *State) SetLastError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

func (s *State) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *State) ClearLastError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}
