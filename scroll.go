package hxdrive

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Intersections is the viewport subscription registry standing in for an
// intersection observer. The engine observes sentinel nodes; the embedder
// calls Pulse when one becomes visible.
type Intersections struct {
	mu   sync.Mutex
	subs map[*html.Node]func()
}

func newIntersections() *Intersections {
	return &Intersections{subs: make(map[*html.Node]func())}
}

// Observe registers a callback for n's visibility.
func (i *Intersections) Observe(n *html.Node, fn func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.subs[n] = fn
}

// Unobserve removes n's subscription.
func (i *Intersections) Unobserve(n *html.Node) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.subs, n)
}

// Pulse reports n as visible, invoking its callback synchronously.
// Returns false when n is not observed.
func (i *Intersections) Pulse(n *html.Node) bool {
	i.mu.Lock()
	fn := i.subs[n]
	i.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// scrollPhase tracks the incremental-loading state machine.
type scrollPhase int

const (
	scrollIdle scrollPhase = iota
	scrollArmed
	scrollLoading
	scrollStopped
)

type scrollState struct {
	phase    scrollPhase
	sentinel *html.Node
}

// Sentinel returns the observed sentinel node of a scroll container, or
// nil when the container is not armed.
func (e *Engine) Sentinel(container *html.Node) *html.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[container]
	if st == nil || st.scroll == nil || st.scroll.phase == scrollStopped {
		return nil
	}
	return st.scroll.sentinel
}

// armScroll appends a sentinel to the container and observes it for
// intersection. Callers hold e.mu.
func (e *Engine) armScroll(container *html.Node) {
	st := e.state(container)
	if st.scroll != nil {
		return
	}
	st.initialized = true

	sentinel := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "class", Val: "hx-sentinel"}},
	}
	container.AppendChild(sentinel)
	st.scroll = &scrollState{phase: scrollArmed, sentinel: sentinel}
	e.intersections.Observe(sentinel, func() { e.onIntersect(container) })
}

// onIntersect runs one incremental load: unobserve immediately so at most
// one load is in flight per sentinel, issue a GET sourcing extra
// parameters from the container's current last child, reconcile, then
// re-arm unless the response instructed termination.
func (e *Engine) onIntersect(container *html.Node) {
	ctx := context.Background()

	e.mu.Lock()
	st := e.states[container]
	if st == nil || st.scroll == nil || st.scroll.phase != scrollArmed {
		e.mu.Unlock()
		return
	}
	st.scroll.phase = scrollLoading
	e.intersections.Unobserve(st.scroll.sentinel)

	req, err := e.resolveWith(container, true)
	var extra map[string]any
	if last := lastLoadedChild(container, st.scroll.sentinel); last != nil {
		if raw, found := getAttr(last, AttrParams); found {
			if uerr := json.Unmarshal([]byte(raw), &extra); uerr != nil {
				extra = nil
			}
		}
	}
	e.mu.Unlock()

	if err != nil {
		e.handleError(ctx, container, err)
		e.rearmScroll(container)
		return
	}
	req.Method = http.MethodGet
	req.source = sourceScroll
	for k, v := range extra {
		req.Params[k] = v
	}

	resp, err := e.perform(ctx, req)
	if err != nil {
		e.handleError(ctx, container, err)
		e.rearmScroll(container)
		return
	}
	if err := e.reconcile(ctx, resp, req); err != nil {
		e.handleError(ctx, container, err)
	}
	e.rearmScroll(container)
}

// rearmScroll returns a loading container to armed, re-seating the
// sentinel as the container's last child. No-op once stopped.
func (e *Engine) rearmScroll(container *html.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[container]
	if st == nil || st.scroll == nil || st.scroll.phase == scrollStopped {
		return
	}
	detach(st.scroll.sentinel)
	container.AppendChild(st.scroll.sentinel)
	st.scroll.phase = scrollArmed
	e.intersections.Observe(st.scroll.sentinel, func() { e.onIntersect(container) })
}

// stopScroll transitions the container to its terminal stopped state:
// the sentinel is unobserved and removed, and no further loads occur.
func (e *Engine) stopScroll(container *html.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[container]
	if st == nil || st.scroll == nil || st.scroll.phase == scrollStopped {
		return
	}
	e.intersections.Unobserve(st.scroll.sentinel)
	detach(st.scroll.sentinel)
	st.scroll.phase = scrollStopped
}

// lastLoadedChild returns the container's last element child that is not
// the sentinel, the node incremental loads source their cursor from.
func lastLoadedChild(container, sentinel *html.Node) *html.Node {
	for c := container.LastChild; c != nil; c = c.PrevSibling {
		if c.Type == html.ElementNode && c != sentinel {
			return c
		}
	}
	return nil
}
