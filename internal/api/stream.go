package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/nile-sim/internal/stats"
)

const (
	maxStreamConns  = 16
	streamBuffer    = 8
	writeTimeout    = 5 * time.Second
	pingInterval    = 15 * time.Second
	pongGracePeriod = 45 * time.Second
)

// Hub fans snapshots out to stream subscribers. Slow subscribers miss
// snapshots rather than blocking the simulation.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan stats.Snapshot
	last   *stats.Snapshot
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan stats.Snapshot)}
}

// Subscribe registers a subscriber. The latest snapshot, if any, is queued
// immediately. ok is false when the hub is full or closed.
func (h *Hub) Subscribe() (id int, ch <-chan stats.Snapshot, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.subs) >= maxStreamConns {
		return 0, nil, false
	}
	h.nextID++
	c := make(chan stats.Snapshot, streamBuffer)
	if h.last != nil {
		c <- *h.last
	}
	h.subs[h.nextID] = c
	return h.nextID, c, true
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(c)
	}
}

// Broadcast queues snap for every subscriber.
func (h *Hub) Broadcast(snap stats.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &snap
	for id, c := range h.subs {
		select {
		case c <- snap:
		default:
			slog.Debug("stream subscriber lagging, snapshot dropped", "sub_id", id, "tick", snap.Tick)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.subs {
		delete(h.subs, id)
		close(c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket and pushes one JSON snapshot per
// completed step.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	subID, ch, ok := s.hub.Subscribe()
	if !ok {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.hub.Unsubscribe(subID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	slog.Info("stream client connected", "sub_id", subID)

	// Reader: handles pongs and notices the client going away.
	gone := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(pongGracePeriod))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongGracePeriod))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-gone:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		}
	}
}
