package hxdrive

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html"
)

// ErrorHandler receives interaction failures. elem is the element whose
// interaction failed, or nil when no element is involved (e.g. navigation
// replay of a foreign history entry).
type ErrorHandler func(ctx context.Context, elem *html.Node, err error)

// Config is the surface exposed to embedding code. The zero value works;
// New fills in defaults.
type Config struct {
	// DefaultSwap is the engine-wide swap strategy used when neither the
	// element nor the response declares one. Defaults to SwapInner.
	DefaultSwap SwapMode

	// OnError is the process-wide error callback. An element-declared
	// handler (hx-on-error) wins over it; when both are absent a built-in
	// fallback writes a visible notice into the target and logs.
	OnError ErrorHandler

	// CSRFToken is a static token injected into every request.
	// CSRFProvider, when set, takes precedence and is called per request.
	CSRFToken    string
	CSRFProvider func() string

	// AutoFocus moves focus to the swap target after updates unless the
	// element disables it with hx-focus="false".
	AutoFocus bool

	// DefaultDebounce is the trigger debounce window applied when an
	// element declares none. Zero means triggers run immediately.
	DefaultDebounce time.Duration

	// DefaultTimeout bounds each request attempt when the element
	// declares no hx-timeout. Zero means no timeout.
	DefaultTimeout time.Duration

	// DefaultRetries bounds retries when the element declares no
	// hx-retries. Total attempts are retries + 1.
	DefaultRetries int

	// Confirm is the user-confirmation prompt. When nil, hx-confirm
	// attributes are ignored and actions proceed.
	Confirm func(ctx context.Context, message string) bool

	// Logger receives structured engine logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Client executes requests. Defaults to http.DefaultClient.
	Client *http.Client

	// BaseURL resolves relative action URLs. Usually the URL the
	// document was loaded from.
	BaseURL string

	// SigningKey protects exported history state. Defaults to a random
	// per-process key, which still round-trips within one process.
	SigningKey []byte
}

func (c Config) withDefaults() Config {
	if c.DefaultSwap == "" {
		c.DefaultSwap = SwapInner
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	return c
}
