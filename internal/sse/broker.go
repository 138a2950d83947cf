// Package sse implements a Server-Sent Events broker for attachment and
// document change notifications.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Event types sent to clients.
const (
	TypeAttachmentCreated = "attachment.created"
	TypeAttachmentDeleted = "attachment.deleted"
	TypeDocumentCreated   = "document.created"
	TypeDocumentUpdated   = "document.updated"
	TypeDocumentDeleted   = "document.deleted"
	TypeCatalogUpdated    = "catalog.updated"
)

type changeReq struct {
	scope string // attachment or document
	kind  string // created, updated or deleted
	id    string
}

// eventType maps a change to its event type, or "" when there is none.
func (c changeReq) eventType() string {
	switch c.scope + "." + c.kind {
	case "attachment.created":
		return TypeAttachmentCreated
	case "attachment.deleted":
		return TypeAttachmentDeleted
	case "document.created":
		return TypeDocumentCreated
	case "document.updated":
		return TypeDocumentUpdated
	case "document.deleted":
		return TypeDocumentDeleted
	}
	return ""
}

func (c changeReq) data() map[string]string {
	if c.scope == "document" {
		return map[string]string{"path": c.id}
	}
	return map[string]string{"key": c.id}
}

const (
	// historySize change events are kept for clients that reconnect with
	// Last-Event-ID.
	historySize  = 128
	clientBuffer = 64
)

type subscription struct {
	ch     chan []byte
	after  uint64
	replay bool
}

type record struct {
	id  uint64
	msg []byte
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, change history, catalog throttle timestamp). Public methods
// communicate with this loop through channels, so no mutexes are required.
//
// Attachment and document changes carry increasing ids; a client that
// reconnects with Last-Event-ID first receives the changes it missed, as long
// as they are still in the history.
type Broker struct {
	catalogMin time.Duration
	keepAlive  time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan changeReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. catalogThrottle is the minimum interval
// between two catalog.updated events.
func NewBroker(catalogThrottle time.Duration) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = 2 * time.Second
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		keepAlive:     25 * time.Second,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan changeReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func send(ch chan []byte, raw []byte) {
	select {
	case ch <- raw:
	default:
		// Client buffer full; skip to avoid blocking broker loop.
	}
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastCatalog time.Time
		lastID      uint64
		history     []record
	)

	broadcast := func(event Event, numbered bool) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		var raw []byte
		if numbered {
			lastID++
			raw = fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", lastID, event.Type, payload)
			history = append(history, record{id: lastID, msg: raw})
			if len(history) > historySize {
				history = history[len(history)-historySize:]
			}
		} else {
			raw = fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, payload)
		}
		for ch := range clients {
			send(ch, raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.replay {
				for _, r := range history {
					if r.id > sub.after {
						send(sub.ch, r.msg)
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event, false)

		case req := <-b.changeCh:
			typ := req.eventType()
			if typ == "" {
				continue
			}
			broadcast(Event{Type: typ, Data: req.data()}, true)

			now := time.Now()
			if now.Sub(lastCatalog) >= b.catalogMin {
				lastCatalog = now
				broadcast(Event{Type: TypeCatalogUpdated, Data: map[string]string{}}, false)
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
	return b.subscribe(subscription{})
}

// SubscribeAfter adds a new client whose channel first receives the buffered
// change events with an id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	return b.subscribe(subscription{after: lastID, replay: true})
}

func (b *Broker) subscribe(sub subscription) chan []byte {
	sub.ch = make(chan []byte, clientBuffer+historySize)
	if b.closed.Load() {
		close(sub.ch)
		return sub.ch
	}

	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(sub.ch)
	}

	return sub.ch
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

// Publish sends an unnumbered event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishChange publishes an attachment or document change and a throttled
// catalog.updated event. Its signature matches catalog.EventCallback.
func (b *Broker) PublishChange(scope, kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- changeReq{scope: scope, kind: kind, id: id}:
	case <-b.stopped:
	}
}

// lastEventID reads the resume point from the Last-Event-ID header, or from
// ?lastEventId= for clients that reconnect by hand.
func lastEventID(r *http.Request) (uint64, bool) {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("lastEventId")
	}
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(v, 10, 64)
	return id, err == nil
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
	_, _ = w.Write([]byte("retry: 3000\n\n"))
	flusher.Flush()

	var ch chan []byte
	if after, ok := lastEventID(r); ok {
		ch = b.SubscribeAfter(after)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
