package hxdrive

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// ScriptedResponse configures how a ScriptedServer answers one path.
//
// FailFirst makes the first N requests to the path answer 500 before the
// configured response, for retry testing. Delay sleeps before answering,
// for timeout testing.
type ScriptedResponse struct {
	Status int
	Body   string
	Header map[string]string

	FailFirst int
	Delay     time.Duration
}

// RecordedRequest is one request observed by a ScriptedServer.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
	Header http.Header
}

// ScriptedServer is an httptest server with per-path scripted responses
// and full request recording. Use it to exercise the engine end to end:
//
//	srv := hxdrive.NewScriptedServer()
//	defer srv.Close()
//	srv.Handle("/a", hxdrive.ScriptedResponse{Body: "<p>hi</p>"})
//
//	page := hxdrive.NewTestPage(`<div id="x" hx-get="/a"></div>`,
//	    hxdrive.Config{BaseURL: srv.URL()})
type ScriptedServer struct {
	mu        sync.Mutex
	server    *httptest.Server
	responses map[string]*ScriptedResponse
	requests  []RecordedRequest
}

// NewScriptedServer starts an empty scripted server.
func NewScriptedServer() *ScriptedServer {
	s := &ScriptedServer{responses: make(map[string]*ScriptedResponse)}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Handle scripts the response for path.
func (s *ScriptedServer) Handle(path string, resp ScriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := resp
	s.responses[path] = &r
}

// URL returns the server's base URL.
func (s *ScriptedServer) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *ScriptedServer) Close() {
	s.server.Close()
}

// Requests returns every recorded request in arrival order.
func (s *ScriptedServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many requests hit path.
func (s *ScriptedServer) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Last returns the most recent request, or a zero value when none
// arrived.
func (s *ScriptedServer) Last() RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}
	}
	return s.requests[len(s.requests)-1]
}

func (s *ScriptedServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   string(body),
		Header: r.Header.Clone(),
	})
	resp := s.responses[r.URL.Path]
	var failing bool
	if resp != nil && resp.FailFirst > 0 {
		resp.FailFirst--
		failing = true
	}
	s.mu.Unlock()

	if resp == nil {
		http.NotFound(w, r)
		return
	}
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	if failing {
		http.Error(w, "scripted failure", http.StatusInternalServerError)
		return
	}
	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	if resp.Status != 0 {
		w.WriteHeader(resp.Status)
	}
	_, _ = io.WriteString(w, resp.Body)
}

// TestPage wraps an engine over a small document body for tests.
type TestPage struct {
	Engine *Engine
}

// NewTestPage parses body inside an html/body shell and creates an
// engine over it.
func NewTestPage(body string, cfg Config) *TestPage {
	doc, err := ParseDocument(strings.NewReader(
		"<!DOCTYPE html><html><head></head><body>" + body + "</body></html>"))
	if err != nil {
		panic("hxdrive: invalid test page: " + err.Error())
	}
	return &TestPage{Engine: New(doc, cfg)}
}

// Element returns the element with the given id, or nil.
func (p *TestPage) Element(id string) *html.Node {
	return elementByID(p.Engine.Document(), id)
}

// HTML renders the current document.
func (p *TestPage) HTML() string {
	return p.Engine.HTML()
}

// Contains reports whether the rendered document contains s.
func (p *TestPage) Contains(s string) bool {
	return strings.Contains(p.HTML(), s)
}

// InnerHTML renders the contents of the element with the given id.
func (p *TestPage) InnerHTML(id string) string {
	n := p.Element(id)
	if n == nil {
		return ""
	}
	return renderChildren(n)
}
