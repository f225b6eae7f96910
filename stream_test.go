package hxdrive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/html"
)

// streamServer serves a scripted sequence of SSE lines, flushing after
// each, then blocks until the client goes away.
func streamServer(t *testing.T, hits *atomic.Int32, lines []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer is not a flusher")
			return
		}
		for _, line := range lines {
			_, _ = io.WriteString(w, line+"\n")
			fl.Flush()
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamAppliesMessages(t *testing.T) {
	srv := streamServer(t, nil, []string{
		": keepalive comment",
		`data: {"content":"<p>tick</p>"}`,
		"",
		`data: {"content":"<li>two</li>","target":"#list","swap":"beforeend"}`,
		"",
	})

	var reported atomic.Int32
	page := NewTestPage(`<div id="live" hx-stream="/sse"></div><ul id="list"></ul>`, Config{
		BaseURL: srv.URL,
		OnError: func(ctx context.Context, elem *html.Node, err error) { reported.Add(1) },
	})

	waitFor(t, "default-target swap", func() bool {
		return page.Engine.HTML() != "" && page.Contains("<p>tick</p>")
	})
	waitFor(t, "retargeted append", func() bool {
		return page.Contains("<li>two</li>")
	})

	if got := reported.Load(); got != 0 {
		t.Errorf("reported errors = %d, want 0", got)
	}
}

func TestStreamSkipsInvalidPayload(t *testing.T) {
	srv := streamServer(t, nil, []string{
		"data: {not json",
		"",
		`data: {"content":"<p>recovered</p>"}`,
		"",
	})

	var reported atomic.Int32
	page := NewTestPage(`<div id="live" hx-stream="/sse"></div>`, Config{
		BaseURL: srv.URL,
		OnError: func(ctx context.Context, elem *html.Node, err error) { reported.Add(1) },
	})

	// The invalid message is reported and skipped; the stream stays open
	// and later messages still apply.
	waitFor(t, "recovery after bad payload", func() bool {
		return page.Contains("<p>recovered</p>")
	})
	if got := reported.Load(); got != 1 {
		t.Errorf("reported errors = %d, want 1", got)
	}
}

func TestStreamClosedWhenElementRemoved(t *testing.T) {
	srv := streamServer(t, nil, []string{
		`data: {"content":"<p>tick</p>"}`,
		"",
	})

	page := NewTestPage(`<div id="wrap"><div id="live" hx-stream="/sse"></div></div>`,
		Config{BaseURL: srv.URL})
	live := page.Engine.Query("#live")

	waitFor(t, "first message", func() bool { return page.Contains("<p>tick</p>") })

	// Removing the element sweeps its state and cancels the connection.
	if err := page.Engine.Swap("#wrap", "<p>gone</p>", SwapInner); err != nil {
		t.Fatalf("Swap error = %v", err)
	}

	waitFor(t, "stream state release", func() bool {
		page.Engine.mu.Lock()
		defer page.Engine.mu.Unlock()
		_, ok := page.Engine.states[live]
		return !ok
	})
}

func TestStreamNeverReopens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		_, _ = io.WriteString(w, `data: {"content":"<p>only</p>"}`+"\n")
		fl.Flush()
		// End the stream immediately; the element must not reconnect.
	}))
	t.Cleanup(srv.Close)

	page := NewTestPage(`<div id="live" hx-stream="/sse"></div>`, Config{BaseURL: srv.URL})
	waitFor(t, "first message", func() bool { return page.Contains("<p>only</p>") })

	live := page.Engine.Query("#live")
	waitFor(t, "closed handle", func() bool {
		page.Engine.mu.Lock()
		defer page.Engine.mu.Unlock()
		st := page.Engine.states[live]
		return st != nil && st.stream != nil && st.stream.phase == streamClosed
	})

	page.Engine.Scan()
	page.Engine.Rescan(page.Engine.Document())
	time.Sleep(50 * time.Millisecond)

	if got := hits.Load(); got != 1 {
		t.Errorf("connection count = %d, want 1 (closed streams never reopen)", got)
	}
}

func TestStreamEventsDispatched(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		<-release
		_, _ = io.WriteString(w, `data: {"content":"<p>x</p>","events":"pushed, refreshed"}`+"\n")
		fl.Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	page := NewTestPage(`<div id="live" hx-stream="/sse"></div>`, Config{BaseURL: srv.URL})

	var got atomic.Int32
	page.Engine.On("pushed", func(ctx context.Context, event string, payload any) { got.Add(1) })
	page.Engine.On("refreshed", func(ctx context.Context, event string, payload any) { got.Add(1) })
	close(release)

	waitFor(t, "push events", func() bool { return got.Load() == 2 })
}
