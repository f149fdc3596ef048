package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/alphaforge/engine/internal/apperr"
)

// sseHeartbeatInterval matches spec §6 ("heartbeat ~15s").
const sseHeartbeatInterval = 15 * time.Second

// handleEventsStream serves GET /runs/{run_hash}/events/stream as a
// Server-Sent Events stream, resumable via the Last-Event-ID header and
// closing once the run reaches a terminal state (spec §4.9, §6).
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	runHash := mux.Vars(r)["run_hash"]
	run, ok := s.orch.Lookup(runHash)
	if !ok {
		writeError(w, apperr.New(apperr.CodeNotFound, "run not found"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.New(apperr.CodeInternal, "streaming unsupported"))
		return
	}

	var afterID int64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			afterID = id
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	items := run.Buffer.Stream(r.Context(), afterID, sseHeartbeatInterval)
	for item := range items {
		if item.Heartbeat {
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
			continue
		}

		body, err := json.Marshal(item.Event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", item.Event.ID, item.Event.Type, body)
		flusher.Flush()
	}
}
