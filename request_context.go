package flow

import "context"

// RequestContext describes the checkout attempt a backend call belongs to.
type RequestContext struct {
	// Storage namespace of the checkout attempt.
	//
	// Example: 5f0c7c2e-8a4b-4a57-9d4b-0c5f1b2a9e11
	SessionKey string
	// Initialization attempt that issued the call. Zero for order calls.
	Attempt uint64
	// Key used to ensure requests are idempotent
	//
	// Example: order-5f0c7c2e-8a4b-4a57-9d4b-0c5f1b2a9e11
	IdempotencyKey string
}

type requestContextKey struct{}

func contextWithRequestContext(ctx context.Context, requestCtx *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, requestCtx)
}

// RequestContextFromContext extracts the attempt metadata the flow attached to a backend call.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if requestCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return requestCtx
	}
	return nil
}
