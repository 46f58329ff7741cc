package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"asset-studio/internal/store"
)

// eventKinds streamed to dashboard clients.
var eventKinds = []store.EventKind{
	store.EventJobAdded,
	store.EventJobUpdated,
	store.EventJobRemoved,
	store.EventJobsCleared,
	store.EventStatsUpdated,
	store.EventConfigUpdated,
}

// handleEvents streams store events as server-sent events until the client
// disconnects. Store callbacks are synchronous, so the bridge into the
// response goroutine is a buffered channel with non-blocking sends: a slow
// client loses events rather than stalling a mutation.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan store.Event, 64)
	st := s.sched.Store()
	subs := make([]store.Subscription, 0, len(eventKinds))
	for _, kind := range eventKinds {
		subs = append(subs, st.Subscribe(kind, func(ev store.Event) {
			select {
			case ch <- ev:
			default:
			}
		}))
	}
	defer func() {
		for _, sub := range subs {
			st.Unsubscribe(sub)
		}
	}()

	// Initial snapshot so the client has a starting state.
	writeSSEEvent(w, flusher, "snapshot", st.Snapshot())

	for {
		select {
		case ev := <-ch:
			writeSSEEvent(w, flusher, string(ev.Kind), ev)
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent serialises data as JSON and writes a single SSE event frame.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
