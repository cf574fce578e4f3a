package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checkout-flow/flow/page"
)

func fastTimings() Timings {
	return Timings{
		FieldDebounce:    5 * time.Millisecond,
		ReloadDebounce:   5 * time.Millisecond,
		ChangeSpacing:    time.Millisecond,
		FallbackInterval: 10 * time.Millisecond,
		FallbackCeiling:  time.Second,
		OrderLockWait:    100 * time.Millisecond,
		ThreeDSFallback:  10 * time.Millisecond,
		MountAttempts:    5,
		MountBaseDelay:   time.Millisecond,
		MountMaxDelay:    time.Millisecond,
	}
}

// runWatcher starts the field watcher and stops it, waiting for background attempts, when the
// test ends.
func runWatcher(t *testing.T, f *Flow) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.watcher.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		f.guard.wait()
	})
}

func TestWatcherInitializesWhenFieldsBecomeValid(t *testing.T) {
	t.Parallel()

	doc := validPage()
	doc.SetValue(FieldCity, "")
	backend := &stubBackend{}
	f := newTestFlow(t, doc, backend, &stubFactory{}, WithTimings(fastTimings()))

	d, err := f.Start(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, ReasonFieldsInvalid, d.Reason)
	runWatcher(t, f)

	doc.SetValue(FieldCity, "London")
	f.HandleEvent(context.Background(), HostEvent{Kind: EventFieldChanged, Field: FieldCity})

	require.Eventually(t, func() bool {
		return f.state.Initialized()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, backend.sessionCalls())
}

func TestWatcherPeriodicCheckWithoutEvents(t *testing.T) {
	t.Parallel()

	doc := validPage()
	doc.SetValue(FieldEmail, "")
	backend := &stubBackend{}
	f := newTestFlow(t, doc, backend, &stubFactory{}, WithTimings(fastTimings()))

	_, err := f.Start(context.Background(), nil)
	require.NoError(t, err)
	runWatcher(t, f)

	// Autofill changed the value without a change notification.
	doc.SetValue(FieldEmail, "ada@example.com")
	require.Eventually(t, func() bool {
		return f.state.Initialized()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, backend.sessionCalls())
}

func TestWatcherDestroysWhenFieldsBecomeInvalid(t *testing.T) {
	t.Parallel()

	doc := validPage()
	backend := &stubBackend{}
	widgets := &stubFactory{}
	f := startMounted(t, doc, backend, widgets, WithTimings(fastTimings()))
	runWatcher(t, f)

	doc.SetValue(FieldPostcode, "")
	f.HandleEvent(context.Background(), HostEvent{Kind: EventFieldChanged, Field: FieldPostcode})

	w := widgets.last(t)
	require.Eventually(t, func() bool {
		_, unmounts := w.counts()
		return unmounts == 1 && !f.state.Initialized()
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, f.state.FieldsWereFilled())
	assert.Equal(t, 1, backend.sessionCalls())
	assert.Contains(t, doc.Placeholders(), msgWaitingFields)
}

func TestWatcherReloadsOnCriticalChange(t *testing.T) {
	t.Parallel()

	doc := validPage()
	backend := &stubBackend{}
	widgets := &stubFactory{}
	f := startMounted(t, doc, backend, widgets, WithTimings(fastTimings()))
	before := f.orch.SessionFingerprint()
	runWatcher(t, f)

	doc.SetValue(FieldEmail, "grace@example.com")
	f.HandleEvent(context.Background(), HostEvent{Kind: EventFieldChanged, Field: FieldEmail})

	require.Eventually(t, func() bool {
		return backend.sessionCalls() == 2 && f.state.Initialized()
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, before, f.orch.SessionFingerprint())
	_, unmounts := widgets.widgets()[0].counts()
	assert.Equal(t, 1, unmounts)
}

func TestWatcherIgnoresNonCriticalChange(t *testing.T) {
	t.Parallel()

	doc := validPage()
	backend := &stubBackend{}
	f := startMounted(t, doc, backend, &stubFactory{}, WithTimings(fastTimings()))
	runWatcher(t, f)

	doc.SetField(page.Field{ID: FieldAddress2, Value: "Flat 2", Section: page.SectionBilling})
	f.HandleEvent(context.Background(), HostEvent{Kind: EventFieldChanged, Field: FieldAddress2})

	require.Never(t, func() bool {
		return backend.sessionCalls() > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.True(t, f.state.Initialized())
}
