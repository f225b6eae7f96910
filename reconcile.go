package hxdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/net/html"
)

// Swap is the public swap primitive: parse content once into a detached
// fragment, pre-activate declarative elements inside it, and apply the
// strategy to the selected target. An empty mode uses the engine default;
// an unrecognized one is reported and falls back to inner replacement.
func (e *Engine) Swap(selector, content string, mode SwapMode) error {
	nodes, err := parseFragment(content)
	if err != nil {
		return fmt.Errorf("%w: parsing content: %v", ErrPayload, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	target := querySelector(e.doc, selector)
	if target == nil {
		return fmt.Errorf("%w: selector %q", ErrNoTarget, selector)
	}
	if err := e.applySwap(target, nodes, mode); err != nil {
		return err
	}
	e.sweep()
	return nil
}

// SwapComponent renders a templ component and swaps it into the target.
func (e *Engine) SwapComponent(ctx context.Context, selector string, c templ.Component, mode SwapMode) error {
	content, err := renderComponent(ctx, c)
	if err != nil {
		return fmt.Errorf("%w: rendering component: %v", ErrPayload, err)
	}
	return e.Swap(selector, content, mode)
}

// applySwap pre-activates the fragment, normalizes the mode, and performs
// the node-level swap. Callers hold e.mu.
func (e *Engine) applySwap(target *html.Node, nodes []*html.Node, mode SwapMode) error {
	if mode == "" {
		mode = e.cfg.DefaultSwap
	}
	if !knownSwapMode(mode) {
		e.cfg.Logger.Warn("hxdrive: unknown swap mode, falling back to inner",
			"mode", string(mode))
		mode = SwapInner
	}

	// Pre-activate before the fragment enters the document so trigger
	// wiring happens exactly once regardless of activation order.
	for _, n := range nodes {
		e.activate(n)
	}
	return swapNodes(target, nodes, mode)
}

// reconcile applies a pipeline response to the document: primary swap
// with server-sent overrides, out-of-band fragments, side-channel events,
// scroll termination, and the settle lifecycle.
func (e *Engine) reconcile(ctx context.Context, resp *Response, req *Request) error {
	nodes, err := parseFragment(resp.Text)
	if err != nil {
		return fmt.Errorf("%w: parsing response: %v", ErrPayload, err)
	}
	primary, oob := extractOOB(nodes)

	target, terr := e.primaryTarget(resp, req)
	if terr != nil {
		// Header-specified selector did not resolve: report, then fall
		// back to the caller-supplied target.
		e.handleError(ctx, req.Element, terr)
	}
	if target == nil {
		return fmt.Errorf("%w: selector %q", ErrNoTarget, req.TargetSelector)
	}

	mode := SwapMode(resp.Header.Get(HeaderReswap))
	if mode == "" {
		mode = req.Swap
	}

	e.bus.Dispatch(ctx, EventBeforeUpdate, req)

	e.mu.Lock()
	serr := e.applySwap(target, primary, mode)
	e.mu.Unlock()
	if serr != nil {
		return serr
	}

	e.bus.Dispatch(ctx, EventAfterUpdate, req)
	ev := &HookEvent{Phase: HookBeforeSettle, Request: req, Response: resp, Element: req.Element, Target: target}
	if err := e.runHooks(ctx, HookBeforeSettle, ev); err != nil {
		return err
	}
	e.bus.Dispatch(ctx, EventBeforeSettle, req)

	for _, frag := range oob {
		if err := e.applyOOB(frag); err != nil {
			// A missing out-of-band target skips that fragment only.
			e.handleError(ctx, req.Element, err)
		}
	}

	e.dispatchHeaderEvents(ctx, resp)

	if resp.Header.Get(HeaderScrollDone) != "" {
		e.stopScroll(req.Element)
	}

	e.applyFocus(req.Element, target)

	e.mu.Lock()
	e.sweep()
	e.mu.Unlock()

	ev = &HookEvent{Phase: HookAfterSettle, Request: req, Response: resp, Element: req.Element, Target: target}
	if err := e.runHooks(ctx, HookAfterSettle, ev); err != nil {
		return err
	}
	e.bus.Dispatch(ctx, EventAfterSettle, req)
	return nil
}

// primaryTarget resolves the swap target with server override precedence:
// an HX-Retarget header wins over the caller-supplied fallback; the body
// token selects the whole document. The error reports an unresolvable
// header selector while the fallback target is still returned.
func (e *Engine) primaryTarget(resp *Response, req *Request) (*html.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var herr error
	if sel := resp.Header.Get(HeaderRetarget); sel != "" {
		if n := querySelector(e.doc, sel); n != nil {
			return n, nil
		}
		herr = fmt.Errorf("%w: response retarget %q", ErrNoTarget, sel)
	}
	return querySelector(e.doc, req.TargetSelector), herr
}

// extractOOB separates out-of-band fragments from the parsed response so
// they never appear in the primary swap content.
func extractOOB(nodes []*html.Node) (primary, oob []*html.Node) {
	for _, n := range nodes {
		var found []*html.Node
		walkElements(n, func(el *html.Node) bool {
			if _, ok := getAttr(el, AttrSwapOOB); ok {
				found = append(found, el)
			}
			return true
		})
		selfOOB := false
		for _, el := range found {
			if el == n {
				selfOOB = true
			}
			detach(el)
			oob = append(oob, el)
		}
		if !selfOOB {
			primary = append(primary, n)
		}
	}
	return primary, oob
}

// applyOOB reconciles one out-of-band fragment against the existing node
// with the same identifier, using the fragment's own declared strategy.
func (e *Engine) applyOOB(frag *html.Node) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := attrValue(frag, "id")
	if id == "" {
		return fmt.Errorf("%w: out-of-band fragment without identifier", ErrPayload)
	}
	existing := elementByID(e.doc, id)
	if existing == nil {
		return fmt.Errorf("%w: out-of-band target #%s", ErrNoTarget, id)
	}

	mode := SwapMode(attrValue(frag, AttrSwapOOB))
	if mode == "true" || mode == "" {
		mode = e.cfg.DefaultSwap
	}
	removeAttr(frag, AttrSwapOOB)
	return e.applySwap(existing, []*html.Node{frag}, mode)
}

// dispatchHeaderEvents emits one event per HX-Event-* response header.
// The suffix names the event; the value is decoded as JSON when possible,
// else passed as a literal string.
func (e *Engine) dispatchHeaderEvents(ctx context.Context, resp *Response) {
	for name, vals := range resp.Header {
		if len(vals) == 0 || len(name) <= len(HeaderEventPrefix) {
			continue
		}
		if !strings.EqualFold(name[:len(HeaderEventPrefix)], HeaderEventPrefix) {
			continue
		}
		event := name[len(HeaderEventPrefix):]

		var payload any
		if err := json.Unmarshal([]byte(vals[0]), &payload); err != nil {
			payload = vals[0]
		}
		e.bus.Dispatch(ctx, event, payload)
	}
}

// applyFocus records the target as focused when the element (or the
// engine default) enables post-swap focus.
func (e *Engine) applyFocus(elem, target *html.Node) {
	enabled := e.cfg.AutoFocus
	if v, found := inheritedAttr(elem, AttrFocus); found {
		enabled = v != "false"
	}
	if !enabled {
		return
	}
	e.mu.Lock()
	e.focused = target
	e.mu.Unlock()
}
