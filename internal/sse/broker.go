// Package sse streams directory refresh notifications to HTTP clients as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/vcq/internal/contactservice"
)

// Event types emitted by the broker.
const (
	TypeDirectoryUpdated = "directory.updated"
	TypeDirectoryFailed  = "directory.failed"
	TypeContactsUpdated  = "contacts.updated"
)

const (
	clientBuffer      = 64
	historySize       = 64
	keepAliveInterval = 15 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ContactsUpdated is the payload of a contacts.updated event: how many
// directory refreshes it covers.
type ContactsUpdated struct {
	Directories int `json:"directories"`
}

type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch    chan []byte
	after uint64 // replay frames with a larger id; 0 means none
}

// Broker manages SSE client connections and broadcasts events.
//
// One loop goroutine owns the client set, the replay history and the
// contacts.updated throttle; the public methods talk to it over channels.
// Throttled contacts.updated events are coalesced and sent once the
// interval has passed, so the last refresh of a burst is always announced.
type Broker struct {
	throttle time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	eventCh       chan Event
	dirCh         chan contactservice.DirectoryInfo
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits contacts.updated at most once per
// throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		throttle:      throttle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		eventCh:       make(chan Event, 256),
		dirCh:         make(chan contactservice.DirectoryInfo, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	var (
		clients  = make(map[chan []byte]struct{})
		history  []frame
		nextID   uint64
		lastSent time.Time
		pending  int // directory refreshes not yet covered by contacts.updated
		flushC   <-chan time.Time
	)

	send := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		nextID++
		f := frame{id: nextID, raw: fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", nextID, ev.Type, payload)}
		history = append(history, f)
		if len(history) > historySize {
			history = history[len(history)-historySize:]
		}
		for ch := range clients {
			select {
			case ch <- f.raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	flushContacts := func(now time.Time) {
		send(Event{Type: TypeContactsUpdated, Data: ContactsUpdated{Directories: pending}})
		pending = 0
		lastSent = now
		flushC = nil
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			if sub.after > 0 {
				for _, f := range history {
					if f.id <= sub.after {
						continue
					}
					select {
					case sub.ch <- f.raw:
					default:
					}
				}
			}
			clients[sub.ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.eventCh:
			send(ev)

		case info := <-b.dirCh:
			if info.Error != "" {
				send(Event{Type: TypeDirectoryFailed, Data: info})
				continue
			}
			send(Event{Type: TypeDirectoryUpdated, Data: info})
			pending++
			now := time.Now()
			if wait := b.throttle - now.Sub(lastSent); wait <= 0 {
				flushContacts(now)
			} else if flushC == nil {
				flushC = time.After(wait)
			}

		case now := <-flushC:
			flushContacts(now)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(0)
}

// subscribe registers a client, first replaying retained events newer than
// after.
func (b *Broker) subscribe(after uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- subscription{ch: ch, after: after}:
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
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- ev:
	case <-b.stopped:
	}
}

// PublishDirectoryEvent announces a directory refresh. Successful
// refreshes also feed the throttled contacts.updated event.
func (b *Broker) PublishDirectoryEvent(info contactservice.DirectoryInfo) {
	if b.closed.Load() {
		return
	}
	select {
	case b.dirCh <- info:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A reconnecting
// client that sends Last-Event-ID gets the retained events it missed.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var after uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		after, _ = strconv.ParseUint(v, 10, 64)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.subscribe(after)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAliveInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
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
