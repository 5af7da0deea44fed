// Package sse implements a Server-Sent Events broker that streams run
// progress to HTTP clients.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/mdnorm/internal/models"
)

// Event types emitted by the broker.
const (
	EventDocumentChanged = "document.changed"
	EventDocumentFailed  = "document.failed"
	EventRunProgress     = "run.progress"
	EventRunFinished     = "run.finished"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// runEvent carries either an outcome or a report through one channel so
// run.finished is never broadcast ahead of the run's document events.
type runEvent struct {
	outcome models.Outcome
	report  *models.Report
}

type progress struct {
	Documents int `json:"documents"`
	Failed    int `json:"failed"`
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set, the progress counters
// and the progress throttle timestamp. Public methods talk to it over channels.
type Broker struct {
	progressMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	runCh         chan runEvent
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewBroker creates a broker that emits run.progress at most once per
// progressThrottle.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = time.Second
	}

	b := &Broker{
		progressMin:   progressThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		runCh:         make(chan runEvent, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastProgress time.Time
		current      progress
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case ev := <-b.runCh:
			if ev.report != nil {
				current = progress{}
				lastProgress = time.Time{}
				broadcast(Event{Type: EventRunFinished, Data: ev.report})
				continue
			}
			o := ev.outcome
			current.Documents++
			switch o.Status {
			case models.StatusChanged:
				broadcast(Event{Type: EventDocumentChanged, Data: o})
			case models.StatusFailed:
				current.Failed++
				broadcast(Event{Type: EventDocumentFailed, Data: o})
			}

			now := time.Now()
			if now.Sub(lastProgress) >= b.progressMin {
				lastProgress = now
				broadcast(Event{Type: EventRunProgress, Data: current})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishOutcome publishes a document.changed or document.failed event and
// a throttled run.progress event. It never blocks: when the queue is full
// the outcome is dropped and counted, so slow clients cannot stall workers.
func (b *Broker) PublishOutcome(o models.Outcome) {
	if b.closed.Load() {
		return
	}
	select {
	case b.runCh <- runEvent{outcome: o}:
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("sse: outcome queue full, dropping events", slog.Int64("dropped", n))
		}
	}
}

// Dropped returns the number of outcomes discarded because the queue was full.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

// PublishReport publishes run.finished and resets the progress counters.
// Unlike outcomes a report is never dropped; it waits for queue space, which
// the event loop frees without depending on clients.
func (b *Broker) PublishReport(r *models.Report) {
	if b.closed.Load() {
		return
	}
	select {
	case b.runCh <- runEvent{report: r}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
