package search

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"streamhub/work/apperr"
	"streamhub/work/logger"
	"streamhub/work/metrics"
)

// Sink receives search events. The HTTP implementation below pushes them
// over SSE; tests substitute an in-memory sink.
type Sink interface {
	Send(event any) error
	Close()
}

// EventStream pushes newline-delimited JSON events over a text/event-stream
// response. A single closed flag guards every write: once the consumer
// disconnects (or Close is called), all subsequent writes become silent
// no-ops. The flag check and the write happen under one mutex, so a
// provider completing concurrently with a disconnect can never race a
// half-written event onto a dead connection.
type EventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewEventStream prepares an SSE response and begins watching the request
// context so consumer disconnects flip the closed flag promptly.
func NewEventStream(w http.ResponseWriter, r *http.Request) (*EventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported: ResponseWriter does not implement http.Flusher")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := &EventStream{w: w, flusher: flusher}

	go func() {
		<-r.Context().Done()
		stream.Close()
	}()

	return stream, nil
}

// Send marshals the event and writes it as one SSE data frame. Writes after
// close are swallowed (recorded only in the dropped-events counter); a
// transport-level write failure also latches the stream closed, since the
// consumer is gone either way.
func (s *EventStream) Send(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		metrics.DroppedEvents.Inc()
		logger.Debug("{search/stream - Send} dropped event after close")
		return nil
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.closed = true
		metrics.DroppedEvents.Inc()
		// swallowed: the consumer disconnected mid-write
		logger.Debug("{search/stream - Send} %v", apperr.StreamWrite(err))
		return nil
	}
	s.flusher.Flush()

	return nil
}

// Close sets the closed flag. Idempotent and safe to call concurrently with
// Send.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
