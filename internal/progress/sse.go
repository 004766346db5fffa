package progress

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// ServeSSE streams a run's frames as server-sent events until the run
// finishes or the client goes away. Idle connections get comment heartbeats.
func (b *Bus) ServeSSE(w http.ResponseWriter, r *http.Request, name string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	frames, cancel := b.Subscribe(name)
	defer cancel()

	// Replay the current state so late subscribers see where the run is.
	if f, ok := b.Status(name); ok {
		writeFrame(w, f)
		flusher.Flush()
		if f.Done {
			return
		}
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case f := <-frames:
			if err := writeFrame(w, f); err != nil {
				return
			}
			flusher.Flush()
			if f.Done {
				return
			}
			heartbeat.Reset(heartbeatInterval)
		}
	}
}

func writeFrame(w http.ResponseWriter, f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
