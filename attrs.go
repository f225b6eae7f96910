package hxdrive

import (
	"net/http"
	"strings"
)

// Attribute vocabulary recognized by the engine. Every declarative element
// is configured purely through these attributes; there is no imperative
// setup call.
const (
	// Action kinds, one per HTTP method. The attribute value is the
	// request URL.
	AttrGet    = "hx-get"
	AttrPost   = "hx-post"
	AttrPut    = "hx-put"
	AttrPatch  = "hx-patch"
	AttrDelete = "hx-delete"

	// AttrTarget selects the element that receives the response.
	AttrTarget = "hx-target"

	// AttrSwap declares the swap strategy (see SwapMode).
	AttrSwap = "hx-swap"

	// AttrTrigger names the event that fires the action. Defaults depend
	// on the element: submit for forms, change for inputs, click otherwise.
	AttrTrigger = "hx-trigger"

	// AttrSerialize declares how an ancestor form is serialized:
	// "flat" (urlencoded), "nested" (JSON with path expansion), or
	// "document" (escaped field document).
	AttrSerialize = "hx-serialize"

	// AttrBody is a literal JSON request body.
	AttrBody = "hx-body"

	// AttrParams is a JSON object of extra parameters.
	AttrParams = "hx-params"

	// AttrSwapOOB marks a response fragment as out-of-band. The value is
	// a swap strategy, or "true" for the engine default.
	AttrSwapOOB = "hx-swap-oob"

	// AttrPush controls history push-state; "false" disables it.
	AttrPush = "hx-push"

	// AttrFocus controls post-swap focus; "false" disables it.
	AttrFocus = "hx-focus"

	// AttrDebounce is the per-element debounce window (duration or
	// integer milliseconds).
	AttrDebounce = "hx-debounce"

	// AttrBefore and AttrAfter are comma-separated custom event lists
	// dispatched before the action and after settle.
	AttrBefore = "hx-before"
	AttrAfter  = "hx-after"

	// AttrStream is the URL of a server-push stream bound to the element.
	AttrStream = "hx-stream"

	// AttrIndicator selects elements marked busy while a request is
	// in flight.
	AttrIndicator = "hx-indicator"

	// AttrConfirm is a confirmation message shown before the action runs.
	AttrConfirm = "hx-confirm"

	// AttrTimeout is the per-attempt request timeout.
	AttrTimeout = "hx-timeout"

	// AttrRetries is the retry bound; total attempts are retries + 1.
	AttrRetries = "hx-retries"

	// AttrOnError names a registered client-side error handler.
	AttrOnError = "hx-on-error"

	// AttrLoadingClass is the class added to the source element while a
	// request is in flight.
	AttrLoadingClass = "hx-loading-class"

	// AttrScroll marks an element as a scroll container for incremental
	// loading.
	AttrScroll = "hx-scroll"
)

// actionKind pairs an action attribute with its HTTP method. The slice
// order is the resolution priority: the first matching attribute wins.
type actionKind struct {
	attr   string
	method string
}

var actionKinds = []actionKind{
	{AttrGet, http.MethodGet},
	{AttrPost, http.MethodPost},
	{AttrPut, http.MethodPut},
	{AttrPatch, http.MethodPatch},
	{AttrDelete, http.MethodDelete},
}

// inheritableAttrs resolve through the ancestor chain: the nearest
// declaring ancestor wins, and absence is not an error.
var inheritableAttrs = map[string]bool{
	AttrTarget:       true,
	AttrSwap:         true,
	AttrSerialize:    true,
	AttrTrigger:      true,
	AttrLoadingClass: true,
	AttrIndicator:    true,
	AttrRetries:      true,
	AttrTimeout:      true,
	AttrFocus:        true,
	AttrDebounce:     true,
}

// headerExcluded attributes are never converted into outbound headers.
var headerExcluded = map[string]bool{
	AttrGet:      true,
	AttrPost:     true,
	AttrPut:      true,
	AttrPatch:    true,
	AttrDelete:   true,
	AttrTarget:   true,
	AttrTrigger:  true,
	AttrSwap:     true,
	AttrSwapOOB:  true,
	AttrPush:     true,
	AttrScroll:   true,
	AttrDebounce: true,
}

// Outbound headers set by the engine itself.
const (
	// HeaderTarget carries the identifier of the swap target.
	HeaderTarget = "HX-Target"

	// HeaderCSRF carries the configured CSRF token.
	HeaderCSRF = "X-CSRF-Token"
)

// Inbound response headers honored by the reconciler.
const (
	// HeaderRetarget overrides the swap target with a selector, or the
	// "body" token for the whole document.
	HeaderRetarget = "HX-Retarget"

	// HeaderReswap overrides the swap strategy.
	HeaderReswap = "HX-Reswap"

	// HeaderScrollDone instructs a scroll container to stop loading.
	HeaderScrollDone = "HX-Scroll-Done"

	// HeaderEventPrefix marks side-channel event headers. The suffix is
	// the event name and the value its payload (JSON when possible).
	HeaderEventPrefix = "HX-Event-"
)

// attrPrefix is stripped when deriving header names from attributes.
const attrPrefix = "hx-"

// headerForAttr converts a declarative attribute name into its outbound
// header: strip the prefix, capitalize each word, and re-prefix with HX-.
// hx-retries becomes HX-Retries, hx-loading-class becomes HX-Loading-Class.
func headerForAttr(attr string) string {
	rest := strings.TrimPrefix(attr, attrPrefix)
	words := strings.Split(rest, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return "HX-" + strings.Join(words, "-")
}

// isDeclarative reports whether key belongs to the recognized vocabulary.
func isDeclarative(key string) bool {
	if !strings.HasPrefix(key, attrPrefix) {
		return false
	}
	if inheritableAttrs[key] || headerExcluded[key] {
		return true
	}
	switch key {
	case AttrBody, AttrParams, AttrBefore, AttrAfter, AttrStream,
		AttrIndicator, AttrConfirm, AttrOnError, AttrFocus:
		return true
	}
	return false
}
