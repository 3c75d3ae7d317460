// Package sse implements a Server-Sent Events broker for record changes and
// notices.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	// Project scopes the event. Empty reaches every client.
	Project string `json:"-"`
}

type recordEventReq struct {
	kind      string
	projectID string
	recordID  string
}

type client struct {
	ch      chan []byte
	project string
}

type frameState struct {
	last    time.Time
	pending bool
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, the event sequence and per-project frame throttle state). Public
// methods communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	frameMin  time.Duration
	keepAlive time.Duration

	subscribeCh   chan *client
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	recordEventCh chan recordEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. frame.updated events are sent at most
// once per frameThrottle for each project; changes inside the window are
// announced by one trailing frame.updated when it ends.
func NewBroker(frameThrottle time.Duration) *Broker {
	if frameThrottle <= 0 {
		frameThrottle = 2 * time.Second
	}

	b := &Broker{
		frameMin:      frameThrottle,
		keepAlive:     15 * time.Second,
		subscribeCh:   make(chan *client),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		recordEventCh: make(chan recordEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]*client)
	frames := make(map[string]*frameState)
	var seq uint64

	trailing := time.NewTimer(time.Hour)
	trailing.Stop()
	defer trailing.Stop()

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)

		for ch, c := range clients {
			if c.project != "" && event.Project != "" && c.project != event.Project {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	frameUpdated := func(projectID string, st *frameState, now time.Time) {
		st.last, st.pending = now, false
		broadcast(Event{Type: "frame.updated", Project: projectID, Data: map[string]string{"project": projectID}})
	}

	// scheduleTrailing arms the timer for the earliest pending project.
	scheduleTrailing := func(now time.Time) {
		var (
			next  time.Duration
			armed bool
		)
		for _, st := range frames {
			if !st.pending {
				continue
			}
			if d := st.last.Add(b.frameMin).Sub(now); !armed || d < next {
				next, armed = d, true
			}
		}
		if armed {
			trailing.Reset(next)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case c := <-b.subscribeCh:
			clients[c.ch] = c

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.recordEventCh:
			data := map[string]string{"project": req.projectID, "record": req.recordID}
			switch req.kind {
			case "created", "updated", "deleted":
				broadcast(Event{Type: "record." + req.kind, Project: req.projectID, Data: data})
			default:
				continue
			}

			now := time.Now()
			st, ok := frames[req.projectID]
			if !ok {
				st = &frameState{}
				frames[req.projectID] = st
			}
			switch {
			case now.Sub(st.last) >= b.frameMin:
				frameUpdated(req.projectID, st, now)
			case !st.pending:
				st.pending = true
				scheduleTrailing(now)
			}

		case <-trailing.C:
			now := time.Now()
			for projectID, st := range frames {
				if st.pending && now.Sub(st.last) >= b.frameMin {
					frameUpdated(projectID, st, now)
				}
			}
			scheduleTrailing(now)

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

// Subscribe adds a new client and returns its channel. A non-empty project
// limits the client to that project's events and to unscoped events.
func (b *Broker) Subscribe(project string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- &client{ch: ch, project: project}:
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

// PublishRecordEvent publishes a record change (kind is created, updated or
// deleted) and a throttled frame.updated event for the project.
func (b *Broker) PublishRecordEvent(kind, projectID, recordID string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.recordEventCh <- recordEventReq{kind: kind, projectID: projectID, recordID: recordID}:
	case <-b.stopped:
	}
}

// Notify publishes a notice event to every client. Data sources report
// skipped notes through it.
func (b *Broker) Notify(level slog.Level, msg string) {
	b.Publish(Event{Type: "notice", Data: map[string]string{"level": level.String(), "message": msg}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// project query parameter scopes the stream to one project.
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

	ch := b.Subscribe(r.URL.Query().Get("project"))
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
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
