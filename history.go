package hxdrive

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/pthm/hxdrive/lib/encoding"
)

// historyMarker tags entries created by this engine. Entries without it
// (foreign navigation) can only be recovered by a full reload.
const historyMarker = "hxdrive"

// ReplayState is the minimal record needed to regenerate an interaction
// from a history entry.
type ReplayState struct {
	Marker     string `msgpack:"m"`
	TargetID   string `msgpack:"t"`
	URL        string `msgpack:"u"`
	Swap       string `msgpack:"s,omitempty"`
	MaxRetries int    `msgpack:"r,omitempty"`
}

// Entry is one history record. State is nil for entries the engine did
// not create, such as the initial document load.
type Entry struct {
	ID    string       `msgpack:"i"`
	URL   string       `msgpack:"u"`
	State *ReplayState `msgpack:"s,omitempty"`
}

// History captures enough request state to replay interactions across
// backward/forward navigation.
type History struct {
	mu      sync.Mutex
	engine  *Engine
	codec   *encoding.Codec
	entries []Entry
	index   int
}

func newHistory(e *Engine) *History {
	key := e.cfg.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	codec, _ := encoding.NewCodec(key)

	h := &History{engine: e, codec: codec}
	// Seed with the initial load so the first Back lands on a full
	// reload of the original document.
	h.entries = []Entry{{ID: uuid.NewString(), URL: e.cfg.BaseURL}}
	return h
}

// push records a replayable entry after a successful interaction,
// truncating any forward entries.
func (h *History) push(req *Request) {
	absURL, err := h.engine.absoluteURL(req.URL)
	if err != nil {
		absURL = req.URL
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], Entry{
		ID:  uuid.NewString(),
		URL: absURL,
		State: &ReplayState{
			Marker:     historyMarker,
			TargetID:   req.TargetID,
			URL:        absURL,
			Swap:       string(req.Swap),
			MaxRetries: req.MaxRetries,
		},
	})
	h.index = len(h.entries) - 1
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Index returns the current entry position.
func (h *History) Index() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index
}

// Current returns the current entry.
func (h *History) Current() Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

// Back navigates to the previous entry, replaying its interaction or
// falling back to a full reload.
func (h *History) Back(ctx context.Context) error {
	h.mu.Lock()
	if h.index == 0 {
		h.mu.Unlock()
		return fmt.Errorf("%w: no earlier history entry", ErrConfig)
	}
	h.index--
	entry := h.entries[h.index]
	h.mu.Unlock()
	return h.engine.navigate(ctx, entry)
}

// Forward navigates to the next entry.
func (h *History) Forward(ctx context.Context) error {
	h.mu.Lock()
	if h.index >= len(h.entries)-1 {
		h.mu.Unlock()
		return fmt.Errorf("%w: no later history entry", ErrConfig)
	}
	h.index++
	entry := h.entries[h.index]
	h.mu.Unlock()
	return h.engine.navigate(ctx, entry)
}

// Export serializes the history stack as a signed, tamper-evident string
// for embedders that persist navigation across processes.
func (h *History) Export() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.codec.Sign(struct {
		Entries []Entry `msgpack:"e"`
		Index   int     `msgpack:"i"`
	}{h.entries, h.index})
}

// Import replaces the history stack from an Export-ed string, verifying
// its signature first.
func (h *History) Import(encoded string) error {
	var data struct {
		Entries []Entry `msgpack:"e"`
		Index   int     `msgpack:"i"`
	}
	if err := h.codec.Verify(encoded, &data); err != nil {
		return fmt.Errorf("%w: history import: %v", ErrPayload, err)
	}
	if len(data.Entries) == 0 || data.Index < 0 || data.Index >= len(data.Entries) {
		return fmt.Errorf("%w: history import: empty or inconsistent stack", ErrPayload)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = data.Entries
	h.index = data.Index
	return nil
}

// navigate replays entry. An entry lacking the engine's marker or the
// required identifier/URL triggers a full document reload; partial
// recovery is not possible for foreign entries.
func (e *Engine) navigate(ctx context.Context, entry Entry) error {
	st := entry.State
	if st == nil || st.Marker != historyMarker || st.TargetID == "" || st.URL == "" {
		return e.fullReload(ctx, entry.URL)
	}

	e.mu.Lock()
	elem := elementByID(e.doc, st.TargetID)
	e.mu.Unlock()
	if elem == nil {
		return e.fullReload(ctx, st.URL)
	}

	e.mu.Lock()
	req, err := e.resolveWith(elem, true)
	e.mu.Unlock()
	if err != nil {
		return e.fullReload(ctx, st.URL)
	}

	req.URL = st.URL
	req.MaxRetries = st.MaxRetries
	if st.Swap != "" {
		req.Swap = SwapMode(st.Swap)
	}
	req.source = sourceReplay

	resp, err := e.perform(ctx, req)
	if err != nil {
		e.handleError(ctx, elem, err)
		return err
	}
	if err := e.reconcile(ctx, resp, req); err != nil {
		e.handleError(ctx, elem, err)
		return err
	}
	return nil
}

// fullReload fetches url (or the base URL) and replaces the entire
// document, releasing all element state.
func (e *Engine) fullReload(ctx context.Context, url string) error {
	if url == "" {
		url = e.cfg.BaseURL
	}
	abs, err := e.absoluteURL(url)
	if err != nil {
		return err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, abs, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	resp, err := e.client.Do(hreq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d reloading %s", ErrStatus, resp.StatusCode, abs)
	}

	doc, err := ParseDocument(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: parsing document: %v", ErrPayload, err)
	}

	e.mu.Lock()
	for n, st := range e.states {
		if st.stream != nil {
			st.stream.close()
		}
		if st.scroll != nil {
			e.intersections.Unobserve(st.scroll.sentinel)
		}
		if st.debounce != nil {
			st.debounce.Stop()
		}
		delete(e.states, n)
	}
	e.doc = doc
	e.activate(e.doc)
	e.mu.Unlock()
	return nil
}
