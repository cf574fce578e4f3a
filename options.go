package flow

import (
	"context"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/klog/v2"
)

type config struct {
	logger       logr.Logger
	clock        func() time.Time
	sleep        func(context.Context, time.Duration) error
	storage      Storage
	serverData   ServerData
	timings      Timings
	cookieSecret []byte
	sessionKey   string
	pageURL      *url.URL
}

func defaultConfig() config {
	return config{
		logger:  klog.Background().WithName("flow"),
		clock:   time.Now,
		sleep:   sleepContext,
		timings: DefaultTimings(),
	}
}

// Option customizes the flow.
type Option func(*config)

// WithLogger replaces the default klog-backed logger.
func WithLogger(logger logr.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithStorage sets the page-lifetime storage. It defaults to an in-process [MemoryStorage].
func WithStorage(storage Storage) Option {
	if storage == nil {
		panic("flow: storage must not be nil")
	}
	return func(cfg *config) {
		cfg.storage = storage
	}
}

// WithServerData provides the cart and order data the server rendered into the page.
func WithServerData(data ServerData) Option {
	return func(cfg *config) {
		cfg.serverData = data
	}
}

// WithTimings overrides the debounce, retry and fallback windows.
func WithTimings(t Timings) Option {
	if t.MountAttempts < 1 {
		panic("flow: mount attempts must be at least 1")
	}
	if t.FieldDebounce <= 0 || t.ReloadDebounce <= 0 || t.FallbackInterval <= 0 || t.OrderLockWait <= 0 {
		panic("flow: debounce and wait windows must be positive")
	}
	if t.MountBaseDelay < 0 || t.MountMaxDelay < t.MountBaseDelay {
		panic("flow: mount delay cap must not be below the base delay")
	}
	return func(cfg *config) {
		cfg.timings = t
	}
}

// WithCookieSecret signs the save-instrument fallback cookie with HMAC-SHA256.
func WithCookieSecret(secret []byte) Option {
	return func(cfg *config) {
		cfg.cookieSecret = append([]byte(nil), secret...)
	}
}

// WithSessionKey namespaces storage entries. It defaults to the server's checkout session id,
// or a random key when the server did not provide one.
func WithSessionKey(key string) Option {
	if key == "" {
		panic("flow: session key must not be empty")
	}
	return func(cfg *config) {
		cfg.sessionKey = key
	}
}

// WithPageURL sets the URL the page was loaded from, so eligibility checks recognise a 3DS
// return even when [Flow.Start] is not used.
func WithPageURL(u *url.URL) Option {
	return func(cfg *config) {
		cfg.pageURL = u
	}
}

// flowWithClock provides deterministic time in tests.
func flowWithClock(fn func() time.Time) Option {
	return func(cfg *config) {
		cfg.clock = fn
	}
}

// flowWithSleep replaces timer waits in tests.
func flowWithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(cfg *config) {
		cfg.sleep = fn
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
