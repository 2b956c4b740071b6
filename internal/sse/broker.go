// Package sse streams board change notifications to connected UI clients
// over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event kinds understood by note subscribers.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindRemoved = "removed"
)

// pingInterval is how often idle connections receive a comment frame so
// intermediaries do not drop them.
const pingInterval = 25 * time.Second

// client is the per-connection delivery channel. The broker loop closes it
// on shutdown or deregistration.
type client chan []byte

// Broker fans out rendered SSE frames to all connected clients.
//
// A single goroutine owns the client registry; the exported methods talk to
// it over channels, so there is no locking anywhere in the package.
type Broker struct {
	register   chan client
	deregister chan client
	frames     chan []byte
	count      chan chan int

	quit    chan struct{}
	drained chan struct{}
	closed  atomic.Bool
}

// NewBroker starts the fan-out loop and returns the broker.
func NewBroker() *Broker {
	b := &Broker{
		register:   make(chan client),
		deregister: make(chan client),
		frames:     make(chan []byte, 256),
		count:      make(chan chan int),
		quit:       make(chan struct{}),
		drained:    make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.drained)

	clients := make(map[client]struct{})

	for {
		select {
		case <-b.quit:
			for c := range clients {
				close(c)
			}
			return

		case c := <-b.register:
			clients[c] = struct{}{}

		case c := <-b.deregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c)
			}

		case frame := <-b.frames:
			for c := range clients {
				select {
				case c <- frame:
				default:
					// Slow consumer; dropping beats stalling the loop.
				}
			}

		case reply := <-b.count:
			reply <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel. It blocks until the
// loop has exited and is safe to call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.drained
}

// Subscribe registers a new client. The returned channel is closed by the
// broker when the client is deregistered or the broker shuts down.
func (b *Broker) Subscribe() client {
	c := make(client, 64)
	if b.closed.Load() {
		close(c)
		return c
	}

	select {
	case b.register <- c:
	case <-b.drained:
		close(c)
	}

	return c
}

// Unsubscribe removes a client registered with Subscribe.
func (b *Broker) Unsubscribe(c client) {
	if b.closed.Load() {
		return
	}
	select {
	case b.deregister <- c:
	case <-b.drained:
	}
}

// ClientCount reports how many clients are currently connected.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	reply := make(chan int, 1)
	select {
	case b.count <- reply:
	case <-b.drained:
		return 0
	}

	select {
	case n := <-reply:
		return n
	case <-b.drained:
		return 0
	}
}

// Publish renders data as the payload of an SSE event and broadcasts it.
// Unmarshalable payloads are dropped silently.
func (b *Broker) Publish(eventType string, data any) {
	if b.closed.Load() {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	frame := fmt.Appendf(nil, "event: %s\ndata: %s\n\n", eventType, payload)

	select {
	case b.frames <- frame:
	case <-b.drained:
	}
}

// PublishNoteEvent broadcasts a note change as a "note.<kind>" event with
// the vault-relative path as payload. Unknown kinds are ignored.
func (b *Broker) PublishNoteEvent(kind, path string) {
	switch kind {
	case KindCreated, KindUpdated, KindRemoved:
	default:
		return
	}
	b.Publish("note."+kind, map[string]string{"path": path})
}

// ServeHTTP streams events to one client until it disconnects. Idle
// connections get periodic comment frames as keepalives.
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

	c := b.Subscribe()
	defer b.Unsubscribe(c)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case frame, ok := <-c:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
