package hxdrive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// streamScannerSize is the max token size for the push-stream line
// scanner. Default bufio.Scanner limit is ~64 KiB, too small for large
// content payloads.
const streamScannerSize = 1 * 1024 * 1024 // 1 MB

// streamPhase tracks the per-element push connection lifecycle. A closed
// connection is never reopened for the same element instance.
type streamPhase int

const (
	streamUninitialized streamPhase = iota
	streamConnected
	streamClosed
)

type streamHandle struct {
	phase  streamPhase
	cancel context.CancelFunc
}

func (h *streamHandle) close() {
	if h.phase == streamConnected {
		h.cancel()
	}
	h.phase = streamClosed
}

// pushMessage is the structured payload carried by each server-push
// event. Focus defaults to enabled unless explicitly "false"; Events is a
// comma-separated list of event names to dispatch after the swap.
type pushMessage struct {
	Content string `json:"content"`
	Target  string `json:"target,omitempty"`
	Swap    string `json:"swap,omitempty"`
	Focus   string `json:"focus,omitempty"`
	Events  string `json:"events,omitempty"`
}

// connectStream opens the persistent push connection for an element on
// first discovery. Callers hold e.mu.
func (e *Engine) connectStream(elem *html.Node) {
	st := e.state(elem)
	if st.stream != nil {
		// Connected, or closed and never reopened.
		return
	}
	st.initialized = true

	streamURL, err := e.absoluteURL(attrValue(elem, AttrStream))
	if err != nil {
		st.stream = &streamHandle{phase: streamClosed}
		e.cfg.Logger.Error("hxdrive: invalid stream URL", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	st.stream = &streamHandle{phase: streamConnected, cancel: cancel}
	go e.readStream(ctx, elem, streamURL)
}

// readStream consumes the push stream, applying each message until the
// connection ends or the element leaves the document.
func (e *Engine) readStream(ctx context.Context, elem *html.Node, streamURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		e.closeStream(ctx, elem, fmt.Errorf("%w: %v", ErrConfig, err))
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		e.closeStream(ctx, elem, fmt.Errorf("%w: %v", ErrTransport, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	// Close the body on cancellation to unblock the scanner.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = resp.Body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, streamScannerSize), streamScannerSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var msg pushMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			// Invalid payloads abort only this message.
			e.handleError(ctx, elem, fmt.Errorf("%w: push message: %v", ErrPayload, err))
			continue
		}
		e.applyPush(ctx, elem, msg)
	}

	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		e.closeStream(ctx, elem, fmt.Errorf("%w: %v", ErrTransport, err))
		return
	}
	e.closeStream(ctx, elem, nil)
}

// applyPush reconciles one push message through the swap primitive. Push
// messages do not pass through the request pipeline.
func (e *Engine) applyPush(ctx context.Context, elem *html.Node, msg pushMessage) {
	nodes, err := parseFragment(msg.Content)
	if err != nil {
		e.handleError(ctx, elem, fmt.Errorf("%w: push content: %v", ErrPayload, err))
		return
	}

	e.mu.Lock()
	target := elem
	if msg.Target != "" {
		n := querySelector(e.doc, msg.Target)
		if n == nil {
			e.mu.Unlock()
			e.handleError(ctx, elem, fmt.Errorf("%w: push target %q", ErrNoTarget, msg.Target))
			return
		}
		target = n
	}
	serr := e.applySwap(target, nodes, SwapMode(msg.Swap))
	if serr == nil && msg.Focus != "false" {
		e.focused = target
	}
	e.sweep()
	e.mu.Unlock()

	if serr != nil {
		e.handleError(ctx, elem, serr)
		return
	}
	for _, name := range splitList(msg.Events) {
		e.bus.Dispatch(ctx, name, nil)
	}
}

// closeStream transitions the element's connection to closed, reporting
// err when the stream ended abnormally.
func (e *Engine) closeStream(ctx context.Context, elem *html.Node, err error) {
	e.mu.Lock()
	if st := e.states[elem]; st != nil && st.stream != nil {
		st.stream.close()
	}
	e.mu.Unlock()
	if err != nil {
		e.handleError(ctx, elem, err)
	}
}
