package hxdrive

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TargetBody is the well-known selector token that addresses the whole
// document. It is honored both in hx-target values and in HX-Retarget
// response headers.
const TargetBody = "body"

// ParseDocument parses a complete HTML document.
func ParseDocument(r io.Reader) (*html.Node, error) {
	return html.Parse(r)
}

// parseFragment parses content as a fragment in a div context and returns
// the top-level nodes, detached and ready for insertion.
func parseFragment(content string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	return html.ParseFragment(strings.NewReader(content), ctx)
}

// RenderNode serializes a node back to HTML.
func RenderNode(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

// renderChildren serializes only the children of n.
func renderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

func getAttr(n *html.Node, key string) (string, bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrValue(n *html.Node, key string) string {
	v, _ := getAttr(n, key)
	return v
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// addClass appends name to the class attribute if not already present.
func addClass(n *html.Node, name string) {
	cur := attrValue(n, "class")
	for _, c := range strings.Fields(cur) {
		if c == name {
			return
		}
	}
	if cur == "" {
		setAttr(n, "class", name)
		return
	}
	setAttr(n, "class", cur+" "+name)
}

// removeClass removes name from the class attribute.
func removeClass(n *html.Node, name string) {
	cur := attrValue(n, "class")
	if cur == "" {
		return
	}
	fields := strings.Fields(cur)
	kept := fields[:0]
	for _, c := range fields {
		if c != name {
			kept = append(kept, c)
		}
	}
	setAttr(n, "class", strings.Join(kept, " "))
}

func hasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// walkElements visits every element node under root (inclusive) in
// document order. Returning false from fn stops the walk.
func walkElements(root *html.Node, fn func(*html.Node) bool) {
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if !fn(n) {
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	if root != nil {
		walk(root)
	}
}

// elementByID finds the element with the given id under root.
func elementByID(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	walkElements(root, func(n *html.Node) bool {
		if attrValue(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// findBody returns the document body, or the root itself when the tree
// has no body element.
func findBody(root *html.Node) *html.Node {
	var body *html.Node
	walkElements(root, func(n *html.Node) bool {
		if n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	if body == nil {
		return root
	}
	return body
}

// querySelector resolves a minimal selector against root: "#id", ".class",
// a bare tag name, or the TargetBody token. Returns nil when nothing
// matches.
func querySelector(root *html.Node, sel string) *html.Node {
	sel = strings.TrimSpace(sel)
	switch {
	case sel == "":
		return nil
	case sel == TargetBody:
		return findBody(root)
	case strings.HasPrefix(sel, "#"):
		return elementByID(root, sel[1:])
	case strings.HasPrefix(sel, "."):
		name := sel[1:]
		var found *html.Node
		walkElements(root, func(n *html.Node) bool {
			if hasClass(n, name) {
				found = n
				return false
			}
			return true
		})
		return found
	default:
		var found *html.Node
		walkElements(root, func(n *html.Node) bool {
			if n.Data == sel {
				found = n
				return false
			}
			return true
		})
		return found
	}
}

// querySelectorAll returns every element matching sel, for indicator
// selectors that may address several nodes.
func querySelectorAll(root *html.Node, sel string) []*html.Node {
	sel = strings.TrimSpace(sel)
	var out []*html.Node
	switch {
	case sel == "":
		return nil
	case strings.HasPrefix(sel, "#"):
		if n := elementByID(root, sel[1:]); n != nil {
			out = append(out, n)
		}
	case strings.HasPrefix(sel, "."):
		name := sel[1:]
		walkElements(root, func(n *html.Node) bool {
			if hasClass(n, name) {
				out = append(out, n)
			}
			return true
		})
	default:
		walkElements(root, func(n *html.Node) bool {
			if n.Data == sel {
				out = append(out, n)
			}
			return true
		})
	}
	return out
}

// isAttached reports whether n is still part of the tree rooted at root.
func isAttached(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// detach removes n from its parent, if any.
func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// lastElementChild returns the last child of n that is an element.
func lastElementChild(n *html.Node) *html.Node {
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// formAncestor returns the nearest form element enclosing n, including n
// itself.
func formAncestor(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Form {
			return p
		}
	}
	return nil
}

// inheritedAttr resolves attr on n, walking the ancestor chain for
// inheritable attributes. The second return reports whether any value was
// found; absence is not an error.
func inheritedAttr(n *html.Node, attr string) (string, bool) {
	if v, ok := getAttr(n, attr); ok {
		return v, true
	}
	if !inheritableAttrs[attr] {
		return "", false
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if v, ok := getAttr(p, attr); ok {
			return v, true
		}
	}
	return "", false
}
