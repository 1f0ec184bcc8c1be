// Package hub is the in-memory pub/sub registry that fans new-message
// events out to live websocket subscribers, keyed by workspace. It
// holds no durable state: a frame missed while disconnected is
// recovered by polling the message store, not replayed here.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sendWait bounds a single frame write. A peer that stops reading
// (TCP backpressure, not a hard error) hits this deadline, turns into
// a send error, and is evicted like any other dead connection.
const sendWait = 10 * time.Second

// Conn is the minimal transport surface the hub needs; satisfied by
// *websocket.Conn and by test fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscription is a live connection registered under one workspace.
// All writes to the underlying conn go through Send, which serializes
// writers (gorilla allows one concurrent writer per conn).
type Subscription struct {
	conn Conn

	mu     sync.Mutex
	closed bool
}

func (s *Subscription) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("subscription closed")
	}
	s.conn.SetWriteDeadline(time.Now().Add(sendWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Subscription) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(data)
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.conn.Close()
	}
}

// topic holds one workspace's subscriber set. mu guards the set and is
// only ever held for map operations; sendMu orders broadcast delivery
// and is the only lock held across network writes, so a slow peer can
// delay nothing outside its own workspace.
type topic struct {
	sendMu sync.Mutex

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

type Hub struct {
	mu     sync.RWMutex
	topics map[uuid.UUID]*topic
}

func New() *Hub {
	return &Hub{topics: make(map[uuid.UUID]*topic)}
}

// Subscribe registers conn under workspaceID and returns the handle
// used for direct sends and for Unsubscribe. Insertion happens under
// the registry lock so a concurrent last-member unsubscribe cannot
// reclaim the topic between lookup and insert.
func (h *Hub) Subscribe(workspaceID uuid.UUID, conn Conn) *Subscription {
	sub := &Subscription{conn: conn}

	h.mu.Lock()
	t, ok := h.topics[workspaceID]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		h.topics[workspaceID] = t
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	h.mu.Unlock()

	slog.Info("subscriber joined", "workspace_id", workspaceID)
	return sub
}

// Unsubscribe removes sub; the workspace entry is reclaimed when its
// last subscriber leaves so the registry never grows unbounded.
func (h *Hub) Unsubscribe(workspaceID uuid.UUID, sub *Subscription) {
	h.mu.Lock()
	t, ok := h.topics[workspaceID]
	if !ok {
		h.mu.Unlock()
		return
	}
	t.mu.Lock()
	delete(t.subs, sub)
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(h.topics, workspaceID)
	}
	h.mu.Unlock()

	sub.close()
	slog.Info("subscriber left", "workspace_id", workspaceID)
}

// Broadcast serializes event once and delivers it to every current
// subscriber of the workspace. Delivery is best-effort: a failed
// subscriber is dropped (treated as disconnected) without affecting the
// rest. sendMu keeps concurrent broadcasts to one workspace in
// invocation order; the writes themselves happen outside the registry
// and membership locks.
func (h *Hub) Broadcast(workspaceID uuid.UUID, event any) {
	h.mu.RLock()
	t, ok := h.topics[workspaceID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("broadcast marshal failed", "workspace_id", workspaceID, "error", err)
		return
	}

	t.sendMu.Lock()
	t.mu.Lock()
	targets := make([]*Subscription, 0, len(t.subs))
	for sub := range t.subs {
		targets = append(targets, sub)
	}
	t.mu.Unlock()

	var dead []*Subscription
	for _, sub := range targets {
		if err := sub.Send(data); err != nil {
			slog.Warn("broadcast delivery failed, dropping subscriber",
				"workspace_id", workspaceID, "error", err)
			dead = append(dead, sub)
		}
	}
	t.sendMu.Unlock()

	if len(dead) == 0 {
		return
	}
	t.mu.Lock()
	for _, sub := range dead {
		delete(t.subs, sub)
	}
	t.mu.Unlock()
	for _, sub := range dead {
		sub.close()
	}
	h.reclaimIfEmpty(workspaceID)
}

func (h *Hub) reclaimIfEmpty(workspaceID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[workspaceID]; ok {
		t.mu.Lock()
		empty := len(t.subs) == 0
		t.mu.Unlock()
		if empty {
			delete(h.topics, workspaceID)
		}
	}
}

// SubscriberCount reports live subscribers for a workspace.
func (h *Hub) SubscriberCount(workspaceID uuid.UUID) int {
	h.mu.RLock()
	t, ok := h.topics[workspaceID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Workspaces reports how many workspace keys currently hold
// subscribers.
func (h *Hub) Workspaces() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}
