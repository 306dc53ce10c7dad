package live

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"adr-workers/internal/common/logger"

	"github.com/google/uuid"
)

const (
	DefaultPingInterval = 30 * time.Second
	observerBuffer      = 16
)

// Handler streams sink events to one client as text/event-stream.
type Handler struct {
	sink   *Sink
	ping   time.Duration
	logger logger.Logger
}

func NewHandler(sink *Sink, ping time.Duration, log logger.Logger) *Handler {
	if ping <= 0 {
		ping = DefaultPingInterval
	}
	return &Handler{sink: sink, ping: ping, logger: log}
}

func writeEvent(w http.ResponseWriter, name string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, body)
	return err
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	id := uuid.NewString()
	events := make(chan Event, observerBuffer)
	dropped := h.sink.Register(id, events)
	defer h.sink.Deregister(id)

	log := h.logger.WithFields(map[string]interface{}{"observerId": id})
	log.Info("live observer connected", map[string]interface{}{"observers": h.sink.Observers()})
	defer log.Info("live observer disconnected", nil)

	if err := writeEvent(w, "connected", map[string]interface{}{
		"clientId":  id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-dropped:
			// Fell behind. Closing the stream makes the client reconnect.
			log.Info("live observer dropped by sink", nil)
			return
		case ev := <-events:
			err = writeEvent(w, ev.Name, ev.Payload)
		case t := <-ticker.C:
			err = writeEvent(w, "ping", map[string]interface{}{"timestamp": t.UTC().Format(time.RFC3339)})
		}
		if err != nil {
			log.Debug("live stream write failed", map[string]interface{}{"error": err})
			return
		}
		flusher.Flush()
	}
}
