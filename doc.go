// Package flow coordinates a hosted payment component on a server-rendered checkout page.
// It decides when the component may be initialized, creates the payment session and the
// backing order at most once, keeps the mounted component alive across the host framework's
// re-renders, and reconciles the page load that follows a 3-D Secure redirect.
//
// # Wiring
//
// Build a [Flow] with [New], handing it a [page.Document] adapter for the rendered page, a
// [Backend] (usually [NewHTTPBackend]) and a [WidgetFactory] for the hosted component. Call
// [Flow.Start] once on page load, then [Flow.Run] with the channel your UI adapter publishes
// [HostEvent] values on.
//
// # Initialization
//
// [Guard.Evaluate] checks, in order, the 3DS return flag, an initialization already in flight,
// the selected payment method, the mounting container, an already mounted widget and finally
// the required checkout fields. Only an Initializing decision leads to a payment session.
// Field edits are watched by a debounced [FieldWatcher] that acts only when validity flips.
//
// # Orders
//
// [Flow.CreateOrderBeforePayment] submits the checkout through the host's own processing
// endpoint so its side effects run once. Concurrent callers share the result or get nil.
//
// ## Persistence
//
//   - The order id and key live in hidden form fields and in page-lifetime [Storage].
//   - The save-instrument choice falls back from the checkbox to storage to a signed cookie.
//   - [redisstore] provides a shared [Storage] for server-side renderers.
package flow
