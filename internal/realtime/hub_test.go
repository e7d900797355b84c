package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventGrant, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventAbuse},
	}}

	if !h.shouldSend(client, &Event{Type: EventAbuse}) {
		t.Error("Should receive abuse events")
	}
	if h.shouldSend(client, &Event{Type: EventGrant}) {
		t.Error("Should NOT receive grant events")
	}
}

func TestShouldSend_UIDFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UIDs: []string{"user-1"},
	}}

	matching := &Event{
		Type: EventGrant,
		Data: map[string]any{"uid": "user-1", "riskScore": 20.0},
	}
	notMatching := &Event{
		Type: EventGrant,
		Data: map[string]any{"uid": "user-2"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on uid")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other users")
	}
}

func TestShouldSend_MinRiskScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinRiskScore: 60,
	}}

	hot := &Event{
		Type: EventAbuse,
		Data: map[string]any{"uid": "u", "riskScore": 90.0},
	}
	cold := &Event{
		Type: EventGrant,
		Data: map[string]any{"uid": "u", "riskScore": 10.0},
	}
	noScore := &Event{
		Type: EventRedeem,
		Data: map[string]any{"uid": "u", "amount": 5.0},
	}

	if !h.shouldSend(client, hot) {
		t.Error("Should receive high-score event")
	}
	if h.shouldSend(client, cold) {
		t.Error("Should NOT receive low-score event")
	}
	if !h.shouldSend(client, noScore) {
		t.Error("Score filter should pass events without a score")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	if !h.shouldSend(client, &Event{Type: EventGrant}) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.EmitGrant(map[string]any{"uid": "u1", "action": "grant"})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	if got := h.Stats()["connectedClients"].(int); got != 1 {
		t.Errorf("Expected 1 connected client, got %v", got)
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	if got := h.Stats()["connectedClients"].(int); got != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", got)
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.EmitAbuse(map[string]any{"uid": "u1", "reason": "risk score reached ban threshold"})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants abuse entries
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventAbuse}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.EmitGrant(map[string]any{"uid": "u1"})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive grant event")
	default:
		// Good - filtered out
	}

	h.EmitAbuse(map[string]any{"uid": "u1"})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive abuse event")
	}
}
