package hxdrive

import (
	"errors"
	"strings"
	"testing"
)

func TestSwapNodes(t *testing.T) {
	tests := []struct {
		name    string
		mode    SwapMode
		content string
		want    string
	}{
		{
			name:    "inner replaces contents",
			mode:    SwapInner,
			content: "<p>new</p>",
			want:    `<div id="out"><div id="t"><p>new</p></div></div>`,
		},
		{
			name:    "outer replaces element",
			mode:    SwapOuter,
			content: "<p>new</p>",
			want:    `<div id="out"><p>new</p></div>`,
		},
		{
			name:    "beforebegin inserts before",
			mode:    SwapBeforeBegin,
			content: "<p>new</p>",
			want:    `<div id="out"><p>new</p><div id="t"><span>old</span></div></div>`,
		},
		{
			name:    "afterbegin prepends inside",
			mode:    SwapAfterBegin,
			content: "<p>new</p>",
			want:    `<div id="out"><div id="t"><p>new</p><span>old</span></div></div>`,
		},
		{
			name:    "beforeend appends inside",
			mode:    SwapBeforeEnd,
			content: "<p>new</p>",
			want:    `<div id="out"><div id="t"><span>old</span><p>new</p></div></div>`,
		},
		{
			name:    "afterend inserts after",
			mode:    SwapAfterEnd,
			content: "<p>new</p>",
			want:    `<div id="out"><div id="t"><span>old</span></div><p>new</p></div>`,
		},
		{
			name:    "delete removes target",
			mode:    SwapDelete,
			content: "<p>ignored</p>",
			want:    `<div id="out"></div>`,
		},
		{
			name:    "none discards content",
			mode:    SwapNone,
			content: "<p>ignored</p>",
			want:    `<div id="out"><div id="t"><span>old</span></div></div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDoc(t, `<div id="out"><div id="t"><span>old</span></div></div>`)
			target := elementByID(doc, "t")
			nodes, err := parseFragment(tt.content)
			if err != nil {
				t.Fatalf("parseFragment: %v", err)
			}
			if err := swapNodes(target, nodes, tt.mode); err != nil {
				t.Fatalf("swapNodes(%s) error = %v", tt.mode, err)
			}
			got := RenderNode(elementByID(doc, "out"))
			if got != tt.want {
				t.Errorf("swapNodes(%s) =\n%s\nwant\n%s", tt.mode, got, tt.want)
			}
		})
	}
}

func TestSwapInnerPreservesIdentity(t *testing.T) {
	doc := testDoc(t, `<div id="t"><span>old</span></div>`)
	target := elementByID(doc, "t")
	nodes, _ := parseFragment("<p>new</p>")

	if err := swapNodes(target, nodes, SwapInner); err != nil {
		t.Fatalf("swapNodes error = %v", err)
	}
	if elementByID(doc, "t") != target {
		t.Error("inner swap must preserve the target node")
	}
	if !isAttached(doc, target) {
		t.Error("inner swap must keep the target attached")
	}
}

func TestSwapOuterReplacesIdentity(t *testing.T) {
	doc := testDoc(t, `<div id="t"><span>old</span></div>`)
	target := elementByID(doc, "t")
	nodes, _ := parseFragment(`<div id="t">new</div>`)

	if err := swapNodes(target, nodes, SwapOuter); err != nil {
		t.Fatalf("swapNodes error = %v", err)
	}
	if isAttached(doc, target) {
		t.Error("outer swap must detach the old target")
	}
	if elementByID(doc, "t") == target {
		t.Error("outer swap must install a new node")
	}
}

func TestSwapNodesErrors(t *testing.T) {
	nodes, _ := parseFragment("<p>x</p>")

	if err := swapNodes(nil, nodes, SwapInner); !errors.Is(err, ErrNoTarget) {
		t.Errorf("nil target error = %v, want %v", err, ErrNoTarget)
	}

	detached, _ := parseFragment(`<div id="d"></div>`)
	if err := swapNodes(detached[0], nodes, SwapOuter); !errors.Is(err, ErrNoTarget) {
		t.Errorf("detached outer error = %v, want %v", err, ErrNoTarget)
	}

	doc := testDoc(t, `<div id="t"></div>`)
	if err := swapNodes(elementByID(doc, "t"), nodes, SwapMode("sideways")); !errors.Is(err, ErrConfig) {
		t.Errorf("unknown mode error = %v, want %v", err, ErrConfig)
	}
}

func TestKnownSwapMode(t *testing.T) {
	for _, m := range []SwapMode{SwapOuter, SwapInner, SwapBeforeBegin, SwapAfterBegin, SwapBeforeEnd, SwapAfterEnd, SwapDelete, SwapNone} {
		if !knownSwapMode(m) {
			t.Errorf("knownSwapMode(%q) = false", m)
		}
	}
	if knownSwapMode("sideways") || knownSwapMode("") {
		t.Error("knownSwapMode accepted an unknown mode")
	}
}

func TestRenderChildren(t *testing.T) {
	doc := testDoc(t, `<div id="t"><b>a</b>text</div>`)
	got := renderChildren(elementByID(doc, "t"))
	if !strings.Contains(got, "<b>a</b>") || !strings.Contains(got, "text") {
		t.Errorf("renderChildren = %q", got)
	}
}
