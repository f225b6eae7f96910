package hxdrive

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// resolve builds a fresh request descriptor from an element's declarative
// attributes, applying ancestor inheritance for inheritable attributes.
func (e *Engine) resolve(elem *html.Node) (*Request, error) {
	return e.resolveWith(elem, false)
}

// resolveWith is resolve with an optional lenient mode in which malformed
// hx-params JSON is reported but tolerated as an empty object. Lenient
// resolution is used only where the caller can continue meaningfully,
// such as scroll re-loads.
func (e *Engine) resolveWith(elem *html.Node, lenient bool) (*Request, error) {
	method, actionURL, ok := findAction(elem)
	if !ok {
		return nil, fmt.Errorf("%w: missing action URL", ErrConfig)
	}

	targetSel, _ := inheritedAttr(elem, AttrTarget)
	if targetSel == "" {
		if id := attrValue(elem, "id"); id != "" {
			targetSel = "#" + id
		} else {
			targetSel = TargetBody
		}
	}

	target := querySelector(e.doc, targetSel)
	if target == nil {
		return nil, fmt.Errorf("%w: selector %q", ErrNoTarget, targetSel)
	}
	targetID := attrValue(target, "id")
	if targetID == "" && target != findBody(e.doc) {
		return nil, fmt.Errorf("%w: target %q has no identifier", ErrConfig, targetSel)
	}

	params := make(map[string]any)
	if raw, found := getAttr(elem, AttrParams); found {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			if !lenient {
				return nil, fmt.Errorf("%w: hx-params: %v", ErrPayload, err)
			}
			e.cfg.Logger.Warn("hxdrive: ignoring malformed hx-params", "error", err)
			params = make(map[string]any)
		}
	}

	var timeout time.Duration
	if raw, found := inheritedAttr(elem, AttrTimeout); found {
		d, err := parseDurationAttr(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: hx-timeout %q", ErrConfig, raw)
		}
		timeout = d
	}

	retries := e.cfg.DefaultRetries
	if raw, found := inheritedAttr(elem, AttrRetries); found {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: hx-retries %q", ErrConfig, raw)
		}
		retries = n
	}

	swap, _ := inheritedAttr(elem, AttrSwap)
	kind, _ := inheritedAttr(elem, AttrSerialize)

	req := &Request{
		ID:             uuid.NewString(),
		Method:         method,
		URL:            actionURL,
		Headers:        deriveHeaders(elem),
		TargetSelector: targetSel,
		TargetID:       targetID,
		Params:         params,
		Timeout:        timeout,
		MaxRetries:     retries,
		Swap:           SwapMode(swap),
		Element:        elem,
		serializeKind:  kind,
		pushEnabled:    attrValue(elem, AttrPush) != "false",
	}
	if req.TargetID != "" {
		req.Headers[HeaderTarget] = req.TargetID
	}
	return req, nil
}

// findAction returns the method and URL of the first action-kind
// attribute, evaluated in priority order on the element and then on each
// ancestor. The boolean reports whether any action was declared.
func findAction(elem *html.Node) (method, url string, ok bool) {
	for n := elem; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, kind := range actionKinds {
			if v, found := getAttr(n, kind.attr); found {
				return kind.method, v, true
			}
		}
	}
	return "", "", false
}

// hasOwnAction reports whether elem itself declares an action attribute,
// which is what makes it an action element during discovery.
func hasOwnAction(elem *html.Node) bool {
	for _, kind := range actionKinds {
		if _, found := getAttr(elem, kind.attr); found {
			return true
		}
	}
	return false
}

// deriveHeaders converts the element's declarative attributes outside the
// exclusion set into outbound headers via the fixed name transform.
func deriveHeaders(elem *html.Node) map[string]string {
	headers := make(map[string]string)
	for _, a := range elem.Attr {
		if !isDeclarative(a.Key) || headerExcluded[a.Key] {
			continue
		}
		headers[headerForAttr(a.Key)] = a.Val
	}
	return headers
}

// parseDurationAttr accepts either a Go duration string ("500ms") or a
// bare integer interpreted as milliseconds.
func parseDurationAttr(raw string) (time.Duration, error) {
	if ms, err := strconv.Atoi(raw); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative duration")
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}
