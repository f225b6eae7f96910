package hxdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Engine owns a live HTML document and drives the declarative interaction
// pipeline: it discovers elements carrying hx-* attributes, wires their
// triggers, executes their requests, and reconciles responses back into
// the document.
//
// Elements are not owned by the engine. It keeps only transient state per
// node - an initialization flag and, for stream or scroll elements, a
// lifecycle handle - in an arena keyed by node identity, released when the
// node leaves the document.
//
// All document mutation happens under one mutex; network I/O runs outside
// it. Overlapping in-flight requests for one element are serialized only
// by the debounce gate, not by a true mutex.
type Engine struct {
	cfg    Config
	client *http.Client
	doc    *html.Node

	bus   *Bus
	hooks *hookRegistry

	mu            sync.Mutex
	middleware    []Middleware
	states        map[*html.Node]*elementState
	errHandlers   map[string]ErrorHandler
	history       *History
	intersections *Intersections
	focused       *html.Node
}

// elementState is the engine's transient marker for one declarative
// element, living exactly as long as the node is in the document.
type elementState struct {
	initialized bool
	trigger     string
	debounce    *time.Timer
	pending     map[string]any
	stream      *streamHandle
	scroll      *scrollState
}

// New creates an engine over an already-parsed document and runs the
// initial scan.
func New(doc *html.Node, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:           cfg,
		client:        cfg.Client,
		doc:           doc,
		bus:           NewBus(),
		hooks:         newHookRegistry(),
		states:        make(map[*html.Node]*elementState),
		errHandlers:   make(map[string]ErrorHandler),
		intersections: newIntersections(),
	}
	e.history = newHistory(e)
	e.Scan()
	return e
}

// NewFromHTML parses r as a document and creates an engine over it.
func NewFromHTML(r io.Reader, cfg Config) (*Engine, error) {
	doc, err := ParseDocument(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing document: %v", ErrPayload, err)
	}
	return New(doc, cfg), nil
}

// Load fetches url, parses the response as a document, and creates an
// engine with url as the base for relative action URLs.
func Load(ctx context.Context, url string, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	resp, err := cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d loading %s", ErrStatus, resp.StatusCode, url)
	}

	doc, err := ParseDocument(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing document: %v", ErrPayload, err)
	}
	cfg.BaseURL = url
	return New(doc, cfg), nil
}

// Document returns the live document root.
func (e *Engine) Document() *html.Node {
	return e.doc
}

// HTML renders the current document.
func (e *Engine) HTML() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RenderNode(e.doc)
}

// History returns the navigation integration.
func (e *Engine) History() *History {
	return e.history
}

// Intersections returns the viewport subscription registry that drives
// scroll containers. Embedders pulse it when a sentinel becomes visible.
func (e *Engine) Intersections() *Intersections {
	return e.intersections
}

// Focused returns the element that last received focus after a swap, or
// nil.
func (e *Engine) Focused() *html.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// Query resolves a minimal selector ("#id", ".class", tag name, or the
// body token) against the live document. Returns nil when nothing
// matches.
func (e *Engine) Query(selector string) *html.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return querySelector(e.doc, selector)
}

// Use appends a middleware stage. Stages run in registration order around
// request finalization and execution.
func (e *Engine) Use(mw Middleware) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middleware = append(e.middleware, mw)
}

// Hook appends a callback to one of the five named phases.
func (e *Engine) Hook(phase HookPhase, h Hook) {
	e.hooks.add(phase, h)
}

// On registers an event listener and returns its unlisten function.
func (e *Engine) On(event string, fn Listener) (off func()) {
	return e.bus.On(event, fn)
}

// Dispatch delivers a named event to all listeners.
func (e *Engine) Dispatch(ctx context.Context, event string, payload any) {
	e.bus.Dispatch(ctx, event, payload)
}

// HandleError registers a named client-side error handler that elements
// select with hx-on-error.
func (e *Engine) HandleError(name string, h ErrorHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errHandlers[name] = h
}

// Scan discovers and activates every declarative element in the document.
// Activation is idempotent: already-initialized elements are skipped.
func (e *Engine) Scan() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activate(e.doc)
}

// Rescan activates declarative elements in the subtree rooted at root.
// Collaborators call this after inserting markup outside the engine's own
// swap path.
func (e *Engine) Rescan(root *html.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activate(root)
}

// activate classifies elements under root and wires their lifecycles.
// Callers hold e.mu.
func (e *Engine) activate(root *html.Node) {
	walkElements(root, func(n *html.Node) bool {
		st := e.states[n]
		if st != nil && st.initialized {
			return true
		}

		switch {
		case attrValue(n, AttrStream) != "":
			e.connectStream(n)
		case attrValue(n, AttrScroll) != "":
			e.armScroll(n)
		case hasOwnAction(n):
			trigger, _ := inheritedAttr(n, AttrTrigger)
			if trigger == "" {
				trigger = defaultTrigger(n)
			}
			e.state(n).trigger = trigger
			e.state(n).initialized = true
		}
		return true
	})
}

// state returns the arena record for n, creating it if needed. Callers
// hold e.mu.
func (e *Engine) state(n *html.Node) *elementState {
	st := e.states[n]
	if st == nil {
		st = &elementState{}
		e.states[n] = st
	}
	return st
}

// defaultTrigger picks the natural trigger event for an element kind.
func defaultTrigger(n *html.Node) string {
	switch n.DataAtom {
	case atom.Form:
		return "submit"
	case atom.Input, atom.Select, atom.Textarea:
		return "change"
	default:
		return "click"
	}
}

// Fire delivers a named event to an element, as a browser would. If the
// event matches the element's resolved trigger, the interaction passes
// the debounce gate and runs; only the most recent trigger within the
// window proceeds, carrying that trigger's data.
func (e *Engine) Fire(ctx context.Context, elem *html.Node, event string, data map[string]any) error {
	e.mu.Lock()
	st := e.states[elem]
	if st == nil || !st.initialized {
		e.mu.Unlock()
		return fmt.Errorf("%w: element not activated", ErrConfig)
	}
	if st.trigger != event {
		e.mu.Unlock()
		return nil
	}

	window := e.cfg.DefaultDebounce
	if raw, found := inheritedAttr(elem, AttrDebounce); found {
		if d, err := parseDurationAttr(raw); err == nil {
			window = d
		}
	}

	if window <= 0 {
		e.mu.Unlock()
		return e.trigger(ctx, elem, data)
	}

	// Debounce gate: discard any pending invocation and keep only the
	// latest trigger's data.
	st.pending = data
	if st.debounce != nil {
		st.debounce.Stop()
	}
	st.debounce = time.AfterFunc(window, func() {
		e.mu.Lock()
		pending := st.pending
		st.pending = nil
		st.debounce = nil
		e.mu.Unlock()
		_ = e.trigger(context.WithoutCancel(ctx), elem, pending)
	})
	e.mu.Unlock()
	return nil
}

// Trigger runs the element's interaction immediately, bypassing trigger
// matching and the debounce gate.
func (e *Engine) Trigger(ctx context.Context, elem *html.Node) error {
	return e.trigger(ctx, elem, nil)
}

// trigger executes one full interaction: resolve, confirm, hooks, request
// pipeline, reconciliation, history push, and custom events.
func (e *Engine) trigger(ctx context.Context, elem *html.Node, data map[string]any) error {
	e.mu.Lock()
	req, err := e.resolve(elem)
	e.mu.Unlock()
	if err != nil {
		e.handleError(ctx, elem, err)
		return err
	}
	for k, v := range data {
		req.Params[k] = v
	}

	if msg, found := getAttr(elem, AttrConfirm); found && e.cfg.Confirm != nil {
		if !e.cfg.Confirm(ctx, msg) {
			return fmt.Errorf("%w: confirmation declined", ErrCancelled)
		}
	}

	ev := &HookEvent{Phase: HookOnAction, Request: req, Element: elem}
	if err := e.runHooks(ctx, HookOnAction, ev); err != nil {
		return err
	}

	for _, name := range splitList(attrValue(elem, AttrBefore)) {
		e.bus.Dispatch(ctx, name, nil)
	}

	done := e.beginLoading(elem)
	defer done()

	resp, err := e.perform(ctx, req)
	if err != nil {
		e.handleError(ctx, elem, err)
		return err
	}

	if err := e.reconcile(ctx, resp, req); err != nil {
		e.handleError(ctx, elem, err)
		return err
	}

	if req.source != sourceReplay && req.pushEnabled {
		e.history.push(req)
	}

	for _, name := range splitList(attrValue(elem, AttrAfter)) {
		e.bus.Dispatch(ctx, name, nil)
	}
	return nil
}

// beginLoading applies the loading class and indicator markers, returning
// the always-run cleanup that clears them regardless of success or
// failure.
func (e *Engine) beginLoading(elem *html.Node) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	class := "hx-loading"
	if v, found := inheritedAttr(elem, AttrLoadingClass); found {
		class = v
	}
	addClass(elem, class)

	var indicators []*html.Node
	if sel, found := inheritedAttr(elem, AttrIndicator); found {
		indicators = querySelectorAll(e.doc, sel)
		for _, n := range indicators {
			addClass(n, "hx-active")
		}
	}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		removeClass(elem, class)
		for _, n := range indicators {
			removeClass(n, "hx-active")
		}
	}
}

// runHooks invokes a phase's hooks sequentially in registration order.
// ErrCancelled short-circuits and is returned; any other hook failure is
// routed through the error handler without aborting remaining hooks.
func (e *Engine) runHooks(ctx context.Context, phase HookPhase, ev *HookEvent) error {
	for _, h := range e.hooks.snapshot(phase) {
		if err := h(ctx, ev); err != nil {
			if IsCancelled(err) {
				return err
			}
			e.handleError(ctx, ev.Element, err)
		}
	}
	return nil
}

// handleError funnels a failure through the handler resolution order: the
// element-declared handler name wins, then the process-wide callback,
// then the built-in fallback that writes a visible notice into the target
// and logs.
func (e *Engine) handleError(ctx context.Context, elem *html.Node, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if name, found := getAttr(elem, AttrOnError); found {
		e.mu.Lock()
		h := e.errHandlers[name]
		e.mu.Unlock()
		if h != nil {
			h(ctx, elem, err)
			return
		}
	}

	if e.cfg.OnError != nil {
		e.cfg.OnError(ctx, elem, err)
		return
	}

	e.cfg.Logger.Error("hxdrive: interaction failed", "error", err)
	if elem == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	target := e.errorTarget(elem)
	if target == nil {
		return
	}
	notice, rerr := renderComponent(ctx, ErrorNotice(err))
	if rerr != nil {
		return
	}
	nodes, perr := parseFragment(notice)
	if perr != nil {
		return
	}
	_ = swapNodes(target, nodes, SwapInner)
}

// errorTarget best-effort resolves where the inline error notice goes.
// Callers hold e.mu.
func (e *Engine) errorTarget(elem *html.Node) *html.Node {
	if sel, found := inheritedAttr(elem, AttrTarget); found {
		if n := querySelector(e.doc, sel); n != nil {
			return n
		}
	}
	if id := attrValue(elem, "id"); id != "" {
		if n := elementByID(e.doc, id); n != nil {
			return n
		}
	}
	return elem
}

// sweep releases lifecycle state for nodes that have left the document.
// It runs after every swap, standing in for a mutation observer. Callers
// hold e.mu.
func (e *Engine) sweep() {
	for n, st := range e.states {
		if isAttached(e.doc, n) {
			continue
		}
		if st.stream != nil {
			st.stream.close()
		}
		if st.scroll != nil {
			e.intersections.Unobserve(st.scroll.sentinel)
		}
		if st.debounce != nil {
			st.debounce.Stop()
		}
		delete(e.states, n)
	}
}

// splitList parses a comma-separated attribute value.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
