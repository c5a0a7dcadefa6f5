package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// streamBacklog is the number of recent events kept for Last-Event-ID replay.
	streamBacklog = 512

	// streamKeepalive is how often a comment line is written to idle streams.
	streamKeepalive = 15 * time.Second

	// clientBuffer bounds the per-client queue; events beyond it are dropped.
	clientBuffer = 64
)

// sseEvent is one frame of the event stream.
type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// sseHub fans out cache and run events to connected stream clients and keeps
// a bounded backlog for reconnecting clients.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	lastID  uint64
	backlog []sseEvent // oldest first, at most cap entries
	cap     int
}

type sseClient struct {
	patterns []string // empty matches every topic
	ch       chan sseEvent
}

func newSSEHub() *sseHub {
	return newSSEHubSize(streamBacklog)
}

func newSSEHubSize(n int) *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		backlog: make([]sseEvent, 0, n),
		cap:     n,
	}
}

// broadcast assigns the next sequence number to payload, appends it to the
// backlog and offers it to every matching client without blocking.
func (h *sseHub) broadcast(topic string, payload []byte) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := sseEvent{ID: h.lastID, Topic: topic, Data: payload}
	if len(h.backlog) == h.cap {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:h.cap-1]
	}
	h.backlog = append(h.backlog, evt)

	for c := range h.clients {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
	return evt.ID
}

func (h *sseHub) subscribe(patterns []string) *sseClient {
	c, _ := h.subscribeSince(patterns, nil)
	return c
}

// subscribeSince registers a client and, when lastID is set, returns the
// matching backlog events newer than it. Both happen under one lock so every
// event is either replayed or queued, never both.
func (h *sseHub) subscribeSince(patterns []string, lastID *uint64) (*sseClient, []sseEvent) {
	c := &sseClient{patterns: patterns, ch: make(chan sseEvent, clientBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if lastID == nil {
		return c, nil
	}
	var replay []sseEvent
	for _, evt := range h.after(*lastID) {
		if c.wants(evt.Topic) {
			replay = append(replay, evt)
		}
	}
	return c, replay
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// since returns backlog events newer than lastID, oldest first.
func (h *sseHub) since(lastID uint64) []sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.after(lastID)
}

// after requires h.mu.
func (h *sseHub) after(lastID uint64) []sseEvent {
	var out []sseEvent
	for _, evt := range h.backlog {
		if evt.ID > lastID {
			out = append(out, evt)
		}
	}
	return out
}

func (c *sseClient) wants(topic string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, p := range c.patterns {
		if matchTopicPattern(p, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a NATS-style
// pattern: "*" matches one segment, a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(top)
		}
		if i >= len(top) || (p != "*" && p != top[i]) {
			return false
		}
	}
	return len(pat) == len(top)
}

func parseTopics(q string) []string {
	var out []string
	for _, t := range strings.Split(q, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// handleEventStream handles GET /v1/events/stream.
func (s *NavServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var lastID *uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			lastID = &id
		}
	}
	client, replay := s.sseHub.subscribeSince(parseTopics(r.URL.Query().Get("topics")), lastID)
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, evt := range replay {
		writeSSEEvent(w, evt)
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

// broadcastEvent marshals event and hands it to the stream hub.
func (s *NavServer) broadcastEvent(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal stream event", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
