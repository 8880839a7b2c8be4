package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
)

const keepAliveInterval = 25 * time.Second

// Events streams full snapshots as server-sent events. A slow client only
// ever sees the latest snapshot; intermediate ones are dropped.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeError(w, http.StatusNotImplemented, "feed_disabled", "change feed not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot flush")
		return
	}
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	latest := make(chan changefeed.Snapshot, 1)
	sub := h.feed.Subscribe(r.Context(), scope, func(s changefeed.Snapshot) {
		select {
		case <-latest:
		default:
		}
		latest <- s
	})
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap := <-latest:
			body, err := json.Marshal(mapSnapshot(snap))
			if err != nil {
				h.logger.ErrorContext(r.Context(), "encode snapshot", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", body); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
