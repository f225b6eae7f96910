// Package serialize converts the fields of a form subtree into the three
// body shapes the engine can send: a flat string map, a nested object with
// dot/bracket path expansion, or an escaped field document.
//
// The package is pure: it reads an *html.Node subtree and never touches the
// rest of the engine.
package serialize

import (
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// field is one submittable form control.
type field struct {
	name  string
	value string
}

// Flat collects form fields into a flat map. Later fields with the same
// name overwrite earlier ones.
//
// Unnamed and disabled controls are skipped, as are unchecked checkboxes
// and radios, matching browser form submission rules.
func Flat(form *xhtml.Node) map[string]string {
	out := make(map[string]string)
	for _, f := range collect(form) {
		out[f.name] = f.value
	}
	return out
}

// Values collects form fields into url.Values, preserving repeated names.
// Use this for application/x-www-form-urlencoded bodies.
func Values(form *xhtml.Node) url.Values {
	out := url.Values{}
	for _, f := range collect(form) {
		out.Add(f.name, f.value)
	}
	return out
}

// Nested collects form fields into a nested object, expanding dot and
// bracket paths in field names:
//
//	user.name       -> {"user": {"name": v}}
//	items[0]        -> {"items": [v]}
//	a[b][c]         -> {"a": {"b": {"c": v}}}
//
// A name that addresses an existing value with an incompatible shape
// (e.g. "a.b" after "a" was set to a scalar) returns an error.
func Nested(form *xhtml.Node) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range collect(form) {
		tokens := splitPath(f.name)
		if err := setPath(out, tokens, f.value); err != nil {
			return nil, fmt.Errorf("serialize: field %q: %w", f.name, err)
		}
	}
	return out, nil
}

// Document renders form fields as an escaped field document:
//
//	<fields><field name="a">1</field><field name="b">2</field></fields>
//
// Both names and values are markup-escaped.
func Document(form *xhtml.Node) string {
	var sb strings.Builder
	sb.WriteString("<fields>")
	for _, f := range collect(form) {
		sb.WriteString(`<field name="`)
		sb.WriteString(html.EscapeString(f.name))
		sb.WriteString(`">`)
		sb.WriteString(html.EscapeString(f.value))
		sb.WriteString("</field>")
	}
	sb.WriteString("</fields>")
	return sb.String()
}

// collect walks the subtree and gathers submittable fields in document order.
func collect(form *xhtml.Node) []field {
	var fields []field
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			if f, ok := controlValue(n); ok {
				fields = append(fields, f)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if form != nil {
		walk(form)
	}
	return fields
}

// controlValue extracts the submitted value of a single form control.
func controlValue(n *xhtml.Node) (field, bool) {
	name := attr(n, "name")
	if name == "" || hasAttr(n, "disabled") {
		return field{}, false
	}

	switch n.DataAtom {
	case atom.Input:
		typ := strings.ToLower(attr(n, "type"))
		switch typ {
		case "checkbox", "radio":
			if !hasAttr(n, "checked") {
				return field{}, false
			}
			v := attr(n, "value")
			if v == "" {
				v = "on"
			}
			return field{name, v}, true
		case "submit", "button", "reset", "file", "image":
			return field{}, false
		default:
			return field{name, attr(n, "value")}, true
		}
	case atom.Select:
		return field{name, selectedOption(n)}, true
	case atom.Textarea:
		return field{name, textContent(n)}, true
	}
	return field{}, false
}

// selectedOption returns the value of the selected option, or the first
// option when none is marked selected, matching browser behavior.
func selectedOption(sel *xhtml.Node) string {
	var first string
	var hasFirst bool
	var found string
	var done bool
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if done {
			return
		}
		if n.Type == xhtml.ElementNode && n.DataAtom == atom.Option {
			v := attr(n, "value")
			if v == "" {
				v = strings.TrimSpace(textContent(n))
			}
			if !hasFirst {
				first, hasFirst = v, true
			}
			if hasAttr(n, "selected") {
				found, done = v, true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)
	if done {
		return found
	}
	return first
}

func textContent(n *xhtml.Node) string {
	var sb strings.Builder
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *xhtml.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// splitPath tokenizes a field name into path segments.
// "a.b[0][c]" -> ["a", "b", "0", "c"]
func splitPath(name string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range name {
		switch r {
		case '.', '[':
			flush()
		case ']':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// setPath writes value into root following tokens, creating intermediate
// maps and slices as needed. Numeric tokens address slice indices.
func setPath(root map[string]any, tokens []string, value string) error {
	if len(tokens) == 0 {
		return fmt.Errorf("empty path")
	}
	_, err := assign(root, tokens, value)
	return err
}

// assign descends into container along tokens and sets the leaf to value.
// It returns the (possibly grown) container so slices re-seat in their
// parent after append.
func assign(container any, tokens []string, value string) (any, error) {
	tok, rest := tokens[0], tokens[1:]
	switch c := container.(type) {
	case nil:
		if _, err := strconv.Atoi(tok); err == nil {
			return assign([]any{}, tokens, value)
		}
		return assign(map[string]any{}, tokens, value)
	case map[string]any:
		if len(rest) == 0 {
			c[tok] = value
			return c, nil
		}
		child, err := assign(c[tok], rest, value)
		if err != nil {
			return nil, err
		}
		c[tok] = child
		return c, nil
	case []any:
		idx, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("expected array index, got %q", tok)
		}
		for len(c) <= idx {
			c = append(c, nil)
		}
		if len(rest) == 0 {
			c[idx] = value
			return c, nil
		}
		child, err := assign(c[idx], rest, value)
		if err != nil {
			return nil, err
		}
		c[idx] = child
		return c, nil
	default:
		return nil, fmt.Errorf("path collides with existing value at %q", tok)
	}
}
