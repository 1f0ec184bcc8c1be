package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeConn records frames and can be flipped into a failing state to
// simulate a dead peer.
type fakeConn struct {
	mu           sync.Mutex
	frames       [][]byte
	failed       bool
	closed       bool
	lastDeadline time.Time
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return errors.New("connection reset")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastDeadline = t
	return nil
}

func (c *fakeConn) writeDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDeadline
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) lastFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func TestBroadcastDeliversToWorkspaceSubscribers(t *testing.T) {
	h := New()
	wsID := uuid.New()

	c1 := &fakeConn{}
	c2 := &fakeConn{}
	h.Subscribe(wsID, c1)
	h.Subscribe(wsID, c2)

	h.Broadcast(wsID, map[string]string{"type": "new_message"})

	for i, c := range []*fakeConn{c1, c2} {
		if c.frameCount() != 1 {
			t.Errorf("conn %d got %d frames, want 1", i, c.frameCount())
		}
	}

	var event map[string]string
	if err := json.Unmarshal(c1.lastFrame(), &event); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if event["type"] != "new_message" {
		t.Errorf("event type = %q, want new_message", event["type"])
	}
}

func TestBroadcastIsolatedByWorkspace(t *testing.T) {
	h := New()
	wsA := uuid.New()
	wsB := uuid.New()

	connA := &fakeConn{}
	connB := &fakeConn{}
	h.Subscribe(wsA, connA)
	h.Subscribe(wsB, connB)

	h.Broadcast(wsA, map[string]string{"type": "new_message"})

	if connA.frameCount() != 1 {
		t.Errorf("workspace A conn got %d frames, want 1", connA.frameCount())
	}
	if connB.frameCount() != 0 {
		t.Errorf("workspace B conn got %d frames, want 0", connB.frameCount())
	}
}

func TestBroadcastWithoutSubscribersIsNoop(t *testing.T) {
	h := New()
	// Must not panic or create topic state.
	h.Broadcast(uuid.New(), map[string]string{"type": "new_message"})
	if h.Workspaces() != 0 {
		t.Errorf("workspaces = %d, want 0", h.Workspaces())
	}
}

func TestBroadcastEvictsDeadSubscriber(t *testing.T) {
	h := New()
	wsID := uuid.New()

	dead := &fakeConn{failed: true}
	live := &fakeConn{}
	h.Subscribe(wsID, dead)
	h.Subscribe(wsID, live)

	h.Broadcast(wsID, map[string]string{"type": "new_message"})

	if got := h.SubscriberCount(wsID); got != 1 {
		t.Errorf("subscriber count after eviction = %d, want 1", got)
	}
	if !dead.closed {
		t.Error("dead conn was not closed")
	}
	if live.frameCount() != 1 {
		t.Errorf("live conn got %d frames, want 1", live.frameCount())
	}

	// Live subscriber keeps receiving.
	h.Broadcast(wsID, map[string]string{"type": "new_message"})
	if live.frameCount() != 2 {
		t.Errorf("live conn got %d frames after second broadcast, want 2", live.frameCount())
	}
}

func TestUnsubscribeReclaimsEmptyWorkspace(t *testing.T) {
	h := New()
	wsID := uuid.New()

	conn := &fakeConn{}
	sub := h.Subscribe(wsID, conn)
	if h.Workspaces() != 1 {
		t.Fatalf("workspaces = %d, want 1", h.Workspaces())
	}

	h.Unsubscribe(wsID, sub)
	if h.Workspaces() != 0 {
		t.Errorf("workspaces after unsubscribe = %d, want 0", h.Workspaces())
	}
	if !conn.closed {
		t.Error("conn was not closed on unsubscribe")
	}

	// Closed subscription refuses further sends.
	if err := sub.Send([]byte("x")); err == nil {
		t.Error("Send on closed subscription succeeded, want error")
	}
}

func TestUnsubscribeUnknownWorkspace(t *testing.T) {
	h := New()
	sub := h.Subscribe(uuid.New(), &fakeConn{})
	// Wrong workspace id must not panic.
	h.Unsubscribe(uuid.New(), sub)
}

func TestSendBoundsEveryWrite(t *testing.T) {
	h := New()
	wsID := uuid.New()
	conn := &fakeConn{}
	sub := h.Subscribe(wsID, conn)

	before := time.Now()
	if err := sub.Send([]byte("x")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	dl := conn.writeDeadline()
	if dl.IsZero() {
		t.Fatal("no write deadline set before the write")
	}
	if dl.Before(before) || dl.After(before.Add(sendWait+time.Second)) {
		t.Errorf("write deadline = %v, want about %v from now", dl, sendWait)
	}
}

// blockingConn parks inside WriteMessage until released, standing in
// for a peer whose TCP window filled up.
type blockingConn struct {
	fakeConn
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingConn() *blockingConn {
	return &blockingConn{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (c *blockingConn) WriteMessage(messageType int, data []byte) error {
	c.once.Do(func() { close(c.entered) })
	<-c.release
	return errors.New("write timeout")
}

func TestStalledSubscriberDoesNotBlockOtherWorkspaces(t *testing.T) {
	h := New()
	wsA := uuid.New()
	wsB := uuid.New()

	stalled := newBlockingConn()
	peer := &fakeConn{}
	peerSub := h.Subscribe(wsA, peer)
	h.Subscribe(wsA, stalled)

	connB := &fakeConn{}
	h.Subscribe(wsB, connB)

	broadcastDone := make(chan struct{})
	go func() {
		h.Broadcast(wsA, map[string]string{"type": "new_message"})
		close(broadcastDone)
	}()
	<-stalled.entered

	// With the stalled write in flight, membership changes on the same
	// workspace and traffic on unrelated workspaces must both proceed.
	done := make(chan struct{})
	go func() {
		h.Unsubscribe(wsA, peerSub)
		h.Broadcast(wsB, map[string]string{"type": "new_message"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub operations blocked behind a stalled peer")
	}
	if connB.frameCount() != 1 {
		t.Errorf("workspace B conn got %d frames, want 1", connB.frameCount())
	}

	// Once the write errors out the stalled peer is evicted and the
	// workspace entry reclaimed.
	close(stalled.release)
	<-broadcastDone
	if got := h.SubscriberCount(wsA); got != 0 {
		t.Errorf("subscriber count after eviction = %d, want 0", got)
	}
	if !stalled.fakeConn.closed {
		t.Error("stalled conn was not closed")
	}
}

func TestSubscribeDuringLastUnsubscribe(t *testing.T) {
	h := New()
	wsID := uuid.New()

	// A subscriber arriving while the previous last member leaves must
	// land on the live topic, not an orphaned one.
	for i := 0; i < 200; i++ {
		leaving := h.Subscribe(wsID, &fakeConn{})
		conn := &fakeConn{}
		var sub *Subscription
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Unsubscribe(wsID, leaving)
		}()
		go func() {
			defer wg.Done()
			sub = h.Subscribe(wsID, conn)
		}()
		wg.Wait()

		h.Broadcast(wsID, map[string]string{"type": "new_message"})
		if conn.frameCount() != 1 {
			t.Fatalf("iteration %d: subscriber missed broadcast after racing an unsubscribe", i)
		}
		h.Unsubscribe(wsID, sub)
	}
}

func TestConcurrentBroadcasts(t *testing.T) {
	h := New()
	wsID := uuid.New()
	conn := &fakeConn{}
	h.Subscribe(wsID, conn)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Broadcast(wsID, map[string]string{"type": "new_message"})
		}()
	}
	wg.Wait()

	if conn.frameCount() != 20 {
		t.Errorf("conn got %d frames, want 20", conn.frameCount())
	}
}
