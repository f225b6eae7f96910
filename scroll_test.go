package hxdrive

import (
	"context"
	"net/url"
	"testing"

	"golang.org/x/net/html"
)

func scrollPage(t *testing.T, srv *ScriptedServer) *TestPage {
	t.Helper()
	return NewTestPage(
		`<div id="feed" hx-scroll="on" hx-get="/page" hx-target="#feed" hx-swap="beforeend"></div>`,
		Config{BaseURL: srv.URL()})
}

func TestScrollArmsSentinel(t *testing.T) {
	srv := NewScriptedServer()
	defer srv.Close()

	page := scrollPage(t, srv)
	feed := page.Element("feed")

	sent := page.Engine.Sentinel(feed)
	if sent == nil {
		t.Fatal("Sentinel() = nil, want an armed sentinel")
	}
	if !hasClass(sent, "hx-sentinel") {
		t.Error("sentinel missing its marker class")
	}
	if lastElementChild(feed) != sent {
		t.Error("sentinel is not the container's last element")
	}

	// Scroll containers do not respond to trigger events.
	if err := page.Engine.Fire(context.Background(), feed, "click", nil); err != nil {
		t.Errorf("Fire on scroll container error = %v, want nil no-op", err)
	}
	if got := srv.Count("/page"); got != 0 {
		t.Errorf("request count = %d, want 0", got)
	}
}

func TestScrollLoadsAndRearms(t *testing.T) {
	srv := NewScriptedServer()
	defer srv.Close()
	srv.Handle("/page", ScriptedResponse{
		Body: `<div id="item1" hx-params='{"after":"1"}'>one</div>`,
	})

	page := scrollPage(t, srv)
	feed := page.Element("feed")
	sent := page.Engine.Sentinel(feed)

	if !page.Engine.Intersections().Pulse(sent) {
		t.Fatal("Pulse = false, want observed sentinel")
	}

	if got := srv.Count("/page"); got != 1 {
		t.Fatalf("request count = %d, want 1", got)
	}
	if srv.Last().Query != "" {
		t.Errorf("first load query = %q, want none before a cursor exists", srv.Last().Query)
	}
	if !page.Contains("one") {
		t.Error("loaded content not applied")
	}
	if lastElementChild(feed) != sent {
		t.Error("sentinel not re-seated as last element after load")
	}
	if page.Engine.Sentinel(feed) != sent {
		t.Error("re-armed container lost its sentinel")
	}
}

func TestScrollCursorParams(t *testing.T) {
	srv := NewScriptedServer()
	defer srv.Close()
	srv.Handle("/page", ScriptedResponse{
		Body: `<div id="item1" hx-params='{"after":"1"}'>one</div>`,
	})

	page := scrollPage(t, srv)
	feed := page.Element("feed")

	page.Engine.Intersections().Pulse(page.Engine.Sentinel(feed))
	page.Engine.Intersections().Pulse(page.Engine.Sentinel(feed))

	if got := srv.Count("/page"); got != 2 {
		t.Fatalf("request count = %d, want 2", got)
	}
	q, err := url.ParseQuery(srv.Last().Query)
	if err != nil {
		t.Fatalf("parsing query: %v", err)
	}
	if got := q.Get("after"); got != "1" {
		t.Errorf("after = %q, want cursor from the last loaded item", got)
	}
}

func TestScrollTermination(t *testing.T) {
	srv := NewScriptedServer()
	defer srv.Close()
	srv.Handle("/page", ScriptedResponse{
		Body:   `<div id="item1">one</div>`,
		Header: map[string]string{"HX-Scroll-Done": "1"},
	})

	page := scrollPage(t, srv)
	feed := page.Element("feed")
	sent := page.Engine.Sentinel(feed)

	page.Engine.Intersections().Pulse(sent)

	if page.Engine.Sentinel(feed) != nil {
		t.Error("Sentinel() != nil after termination")
	}
	if page.Engine.Intersections().Pulse(sent) {
		t.Error("Pulse = true after termination, want unobserved")
	}
	if got := srv.Count("/page"); got != 1 {
		t.Errorf("request count = %d, want 1 (no loads after done)", got)
	}
	if page.Contains("hx-sentinel") {
		t.Error("sentinel still in the document after termination")
	}
	if !page.Contains("one") {
		t.Error("final page content missing")
	}
}

func TestScrollFailureRearms(t *testing.T) {
	srv := NewScriptedServer()
	defer srv.Close()
	srv.Handle("/page", ScriptedResponse{Status: 500, Body: "nope"})

	var reported int
	page := NewTestPage(
		`<div id="feed" hx-scroll="on" hx-get="/page" hx-target="#feed" hx-swap="beforeend"></div>`,
		Config{BaseURL: srv.URL(), OnError: func(ctx context.Context, elem *html.Node, err error) { reported++ }})
	feed := page.Element("feed")

	page.Engine.Intersections().Pulse(page.Engine.Sentinel(feed))

	if reported != 1 {
		t.Errorf("reported errors = %d, want 1", reported)
	}
	// A failed load must not kill the container; the sentinel re-arms.
	srv.Handle("/page", ScriptedResponse{Body: `<div id="item1">one</div>`})
	if !page.Engine.Intersections().Pulse(page.Engine.Sentinel(feed)) {
		t.Fatal("Pulse = false after failure, want re-armed sentinel")
	}
	if !page.Contains("one") {
		t.Error("recovery load not applied")
	}
}
