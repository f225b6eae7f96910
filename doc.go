// Package hxdrive is a headless hypermedia engine: it lets an HTML
// document declare network-driven interactions through hx-* attributes
// instead of imperative glue code, and executes those interactions against
// a live, in-process document tree.
//
// An element can declare "on this trigger, issue this HTTP request, then
// replace that target's content with the response, using this swap
// strategy". The engine discovers such elements, resolves their effective
// configuration with ancestor inheritance, runs the request through hooks
// and a middleware chain with timeout and bounded retry, and reconciles
// the response into the document - including out-of-band fragments,
// server-driven overrides, server-push streams, and sentinel-based
// incremental loading.
//
// # Core Concepts
//
// The engine owns a parsed document (golang.org/x/net/html) and an arena
// of per-element state keyed by node identity. Nodes themselves are never
// mutated with engine bookkeeping; state lives exactly as long as the
// node stays in the document.
//
//	doc, _ := hxdrive.ParseDocument(strings.NewReader(page))
//	engine := hxdrive.New(doc, hxdrive.Config{BaseURL: server.URL})
//
//	// <button id="inc" hx-post="/counter" hx-target="#count">+1</button>
//	btn := engine.Document() // locate #inc, then:
//	_ = engine.Fire(ctx, btn, "click", nil)
//
// # Configuration Resolution
//
// Attributes like hx-target, hx-swap, hx-trigger, hx-timeout, and
// hx-retries are inheritable: the nearest declaring ancestor wins, so a
// container can set defaults for a whole subtree. The target defaults to
// the element's own id, else the document body. Attributes outside a
// fixed exclusion set become outbound request headers via a fixed name
// transform (hx-retries -> HX-Retries).
//
// # Request Pipeline
//
// Each interaction builds a fresh Request descriptor and runs:
//
//	onAction hooks -> beforeRequest hooks -> middleware chain ->
//	attempt loop (maxRetries+1, per-attempt timeout) -> afterResponse hooks
//
// Middleware stages receive (descriptor, next) and may mutate, transform,
// or short-circuit. Hooks are awaited sequentially in registration order;
// a failing hook is reported without aborting the rest.
//
// # Reconciliation
//
// Responses are parsed once into a detached fragment. Out-of-band
// fragments (hx-swap-oob) are extracted first and applied independently,
// matched by id. Servers can override the target and strategy per
// response with HX-Retarget and HX-Reswap, and dispatch arbitrary events
// through HX-Event-* headers. Newly inserted elements are activated
// before they enter the document, so trigger wiring happens exactly once.
//
// # Lifecycles
//
// Elements with hx-stream hold a server-push (SSE) connection whose
// messages reconcile through the same swap primitive; the connection is
// released permanently when the element leaves the document. Elements
// with hx-scroll append an observed sentinel; pulsing the Intersections
// registry drives incremental GET loads until a response carries
// HX-Scroll-Done.
//
// # Errors
//
// Failures funnel to one resolution order: an hx-on-error named handler,
// else Config.OnError, else a built-in fallback that writes a visible
// notice into the target and logs. Loading classes and indicators are
// always cleared, on success or failure.
package hxdrive
