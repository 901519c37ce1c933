// Package sse streams article and category changes to browsers as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event is one frame sent to every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types.
const (
	TypeArticleCreated  = "article.created"
	TypeArticleUpdated  = "article.updated"
	TypeArticleDeleted  = "article.deleted"
	TypeCategoryChanged = "category.changed"
	TypeIndexUpdated    = "index.updated"
)

var articleTypes = map[string]string{
	"created": TypeArticleCreated,
	"updated": TypeArticleUpdated,
	"deleted": TypeArticleDeleted,
}

const (
	clientBuffer = 64
	// historySize is how many frames a reconnecting client can catch up on.
	historySize = 128
	heartbeat   = 25 * time.Second
)

type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch    chan []byte
	after uint64
}

// Broker fans events out to SSE clients.
//
// All mutable state (clients, history, sequence, index throttle) belongs to
// the loop goroutine started by NewBroker; the exported methods only talk to
// it over channels.
type Broker struct {
	indexMin  time.Duration
	heartbeat time.Duration

	subCh   chan subscription
	unsubCh chan chan []byte
	eventCh chan Event
	countCh chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. index.updated is sent at most once per
// indexThrottle, however many article changes arrive.
func NewBroker(indexThrottle time.Duration) *Broker {
	if indexThrottle <= 0 {
		indexThrottle = 2 * time.Second
	}
	b := &Broker{
		indexMin:  indexThrottle,
		heartbeat: heartbeat,
		subCh:     make(chan subscription),
		unsubCh:   make(chan chan []byte),
		eventCh:   make(chan Event, 256),
		countCh:   make(chan chan int),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func encodeFrame(id uint64, e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, e.Type, payload), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	var (
		clients   = make(map[chan []byte]struct{})
		history   = make([]frame, 0, historySize)
		seq       uint64
		lastIndex time.Time
	)

	send := func(e Event) {
		raw, err := encodeFrame(seq+1, e)
		if err != nil {
			return
		}
		seq++
		if len(history) == historySize {
			history = append(history[:0], history[1:]...)
		}
		history = append(history, frame{id: seq, raw: raw})
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; it can resume with Last-Event-ID.
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

		case sub := <-b.subCh:
			clients[sub.ch] = struct{}{}
			if sub.after == 0 {
				continue
			}
			for _, f := range history {
				if f.id <= sub.after {
					continue
				}
				select {
				case sub.ch <- f.raw:
				default:
				}
			}

		case ch := <-b.unsubCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.eventCh:
			send(e)
			if _, isArticle := e.Data.(articleData); !isArticle {
				continue
			}
			if now := time.Now(); now.Sub(lastIndex) >= b.indexMin {
				lastIndex = now
				send(Event{Type: TypeIndexUpdated, Data: struct{}{}})
			}

		case resp := <-b.countCh:
			resp <- len(clients)
		}
	}
}

type articleData struct {
	Path string `json:"path"`
}

// Close stops the loop and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client that only wants new events.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeAfter(0)
}

// SubscribeAfter registers a client and first replays the retained events
// whose id is greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subCh <- subscription{ch: ch, after: lastID}:
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
	case b.unsubCh <- ch:
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
	case b.countCh <- resp:
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

// Publish queues an event for every client.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- e:
	case <-b.stopped:
	}
}

// PublishArticleEvent reports an article change; kind is created, updated
// or deleted. Unknown kinds are ignored.
func (b *Broker) PublishArticleEvent(kind, path string) {
	typ, ok := articleTypes[kind]
	if !ok {
		return
	}
	b.Publish(Event{Type: typ, Data: articleData{Path: path}})
}

// PublishCategoryChange tells clients to refetch the category tree.
func (b *Broker) PublishCategoryChange() {
	b.Publish(Event{Type: TypeCategoryChanged, Data: struct{}{}})
}

// ServeHTTP streams events to one client (GET /api/events). A reconnecting
// browser sends Last-Event-ID and receives what it missed, as long as it is
// still retained.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeAfter(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
