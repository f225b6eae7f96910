package hxdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/pthm/hxdrive/lib/serialize"
)

// Serialization kinds accepted by hx-serialize.
const (
	SerializeFlat     = "flat"
	SerializeNested   = "nested"
	SerializeDocument = "document"
)

// requestSource records what initiated an interaction, which gates
// history pushes and scroll termination handling.
type requestSource int

const (
	sourceAction requestSource = iota
	sourceScroll
	sourceReplay
)

// Request is the descriptor for one interaction. It is built fresh per
// invocation and never reused across requests.
type Request struct {
	// ID identifies the interaction in logs and events.
	ID string

	Method string
	URL    string

	// Headers layer on top of the engine-injected CSRF token;
	// descriptor headers win on conflict.
	Headers map[string]string

	// TargetSelector and TargetID locate the swap target. TargetID is
	// empty only when the target is the document body.
	TargetSelector string
	TargetID       string

	// Params contributes to the query string (bodyless requests) or the
	// JSON body (hx-body requests), where it wins conflicts.
	Params map[string]any

	// Timeout bounds each attempt; zero falls back to the engine default.
	Timeout time.Duration

	// MaxRetries bounds re-attempts; total attempts are MaxRetries + 1.
	MaxRetries int

	// Swap is the element's resolved strategy; empty means engine default.
	Swap SwapMode

	// Element is the declarative element that sourced this interaction.
	Element *html.Node

	serializeKind string
	pushEnabled   bool
	source        requestSource
}

// Response is the per-interaction result threaded to the reconciler.
// There is no shared last-response slot: concurrent interactions each
// carry their own response.
type Response struct {
	Text   string
	Status int
	Header http.Header
}

// perform runs the full request pipeline for req: beforeRequest hooks,
// the middleware chain wrapping finalization and execution, then
// afterResponse hooks.
func (e *Engine) perform(ctx context.Context, req *Request) (*Response, error) {
	ev := &HookEvent{Phase: HookBeforeRequest, Request: req, Element: req.Element}
	if err := e.runHooks(ctx, HookBeforeRequest, ev); err != nil {
		return nil, err
	}

	e.mu.Lock()
	stages := make([]Middleware, len(e.middleware))
	copy(stages, e.middleware)
	e.mu.Unlock()

	resp, err := chainMiddleware(stages, e.execute)(ctx, req)
	if err != nil {
		return nil, err
	}

	ev = &HookEvent{Phase: HookAfterResponse, Request: req, Response: resp, Element: req.Element}
	if err := e.runHooks(ctx, HookAfterResponse, ev); err != nil {
		return nil, err
	}
	return resp, nil
}

// execute is the terminal middleware stage: it finalizes body, query, and
// headers, then runs the bounded attempt loop.
func (e *Engine) execute(ctx context.Context, req *Request) (*Response, error) {
	body, contentType, paramsInBody, err := e.buildBody(req)
	if err != nil {
		return nil, err
	}

	finalURL, err := e.finalURL(req, paramsInBody)
	if err != nil {
		return nil, err
	}

	headers := e.assembleHeaders(req)

	attempts := req.MaxRetries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := e.attempt(ctx, req, finalURL, body, contentType, headers)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < attempts-1 {
			e.cfg.Logger.Debug("hxdrive: retrying request",
				"id", req.ID, "url", finalURL, "attempt", i+1, "error", err)
		}
	}
	// The loop never exits without a success or an explicit failure.
	return nil, lastErr
}

// attempt performs exactly one network call, applying the per-attempt
// timeout via context cancellation.
func (e *Engine) attempt(ctx context.Context, req *Request, u, body, contentType string, headers http.Header) (*Response, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.cfg.DefaultTimeout
	}
	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(actx, req.Method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}

	hresp, err := e.client.Do(hreq)
	if err != nil {
		if actx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, u)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = hresp.Body.Close() }()

	text, err := io.ReadAll(hresp.Body)
	if err != nil {
		if actx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, u)
		}
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	if hresp.StatusCode < 200 || hresp.StatusCode >= 300 {
		// Body text is captured for the surfaced error.
		return nil, fmt.Errorf("%w: %d: %s", ErrStatus, hresp.StatusCode, string(text))
	}

	return &Response{
		Text:   string(text),
		Status: hresp.StatusCode,
		Header: hresp.Header,
	}, nil
}

// buildBody constructs the request body. Precedence: a literal hx-body
// JSON attribute merged with Params (Params win), else an ancestor form
// serialized per the declared kind. A missing form is a hard failure for
// write methods and a no-body for reads.
func (e *Engine) buildBody(req *Request) (body, contentType string, paramsInBody bool, err error) {
	if literal, ok := getAttr(req.Element, AttrBody); ok {
		base := make(map[string]any)
		if err := json.Unmarshal([]byte(literal), &base); err != nil {
			return "", "", false, fmt.Errorf("%w: hx-body: %v", ErrPayload, err)
		}
		for k, v := range req.Params {
			base[k] = v
		}
		data, err := json.Marshal(base)
		if err != nil {
			return "", "", false, fmt.Errorf("%w: hx-body: %v", ErrPayload, err)
		}
		return string(data), "application/json", true, nil
	}

	if req.Method == http.MethodGet {
		return "", "", false, nil
	}

	form := formAncestor(req.Element)
	if form == nil {
		return "", "", false, fmt.Errorf("%w: %s requires an enclosing form", ErrConfig, req.Method)
	}

	switch req.serializeKind {
	case SerializeNested:
		obj, err := serialize.Nested(form)
		if err != nil {
			return "", "", false, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return "", "", false, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		return string(data), "application/json", false, nil
	case SerializeDocument:
		return serialize.Document(form), "application/xml", false, nil
	case SerializeFlat, "":
		return serialize.Values(form).Encode(), "application/x-www-form-urlencoded", false, nil
	default:
		return "", "", false, fmt.Errorf("%w: unknown serialization kind %q", ErrConfig, req.serializeKind)
	}
}

// finalURL resolves the request URL against the configured base and
// appends Params as query parameters unless they already travel in a
// JSON body.
func (e *Engine) finalURL(req *Request, paramsInBody bool) (string, error) {
	u, err := e.absoluteURL(req.URL)
	if err != nil {
		return "", err
	}

	if len(req.Params) == 0 || paramsInBody {
		return u, nil
	}

	q := encodeParams(req.Params)
	if strings.Contains(u, "?") {
		return u + "&" + q, nil
	}
	return u + "?" + q, nil
}

// absoluteURL resolves u against the configured base URL.
func (e *Engine) absoluteURL(u string) (string, error) {
	if u == "" {
		return "", fmt.Errorf("%w: missing URL", ErrConfig)
	}
	if e.cfg.BaseURL == "" {
		return u, nil
	}
	base, err := url.Parse(e.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: base URL: %v", ErrConfig, err)
	}
	ref, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("%w: url %q: %v", ErrConfig, u, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// encodeParams renders params as a query string. Strings pass through;
// other values are JSON-encoded.
func encodeParams(params map[string]any) string {
	values := url.Values{}
	for k, v := range params {
		switch t := v.(type) {
		case string:
			values.Set(k, t)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				continue
			}
			values.Set(k, string(data))
		}
	}
	return values.Encode()
}

// assembleHeaders injects the CSRF token first, then layers descriptor
// headers on top so they win on conflict.
func (e *Engine) assembleHeaders(req *Request) http.Header {
	headers := http.Header{}

	token := e.cfg.CSRFToken
	if e.cfg.CSRFProvider != nil {
		token = e.cfg.CSRFProvider()
	}
	if token != "" {
		headers.Set(HeaderCSRF, token)
	}

	for k, v := range req.Headers {
		headers.Set(k, v)
	}
	return headers
}
