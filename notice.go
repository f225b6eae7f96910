package hxdrive

import (
	"bytes"
	"context"
	"html"
	"io"

	"github.com/a-h/templ"
)

// ErrorNotice is the built-in fallback view written into the target when
// an interaction fails and no custom handler intervenes.
func ErrorNotice(err error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, werr := io.WriteString(w,
			`<div class="hx-error" role="alert">`+html.EscapeString(err.Error())+`</div>`)
		return werr
	})
}

// Indicator returns a minimal indicator element for hx-indicator targets.
// Embedders typically style .hx-active to reveal it while a request is in
// flight.
func Indicator(id string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w,
			`<span id="`+html.EscapeString(id)+`" class="hx-indicator"></span>`)
		return err
	})
}

// renderComponent renders a templ component to a string.
func renderComponent(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
