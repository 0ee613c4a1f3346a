package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, userID string, queue int) *client {
	return &client{
		hub:    h,
		userID: userID,
		send:   make(chan Message, queue),
		done:   make(chan struct{}),
	}
}

func subscriberCount(h *Hub, stream, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byStream[stream][userID])
}

func TestBroadcastStreamReturnsWhenClientStalls(t *testing.T) {
	h := NewHub()

	stalled := newTestClient(h, "user-a", 1)
	healthy := newTestClient(h, "user-b", 4)
	h.subscribe(stalled, []string{StreamNotifications})
	h.subscribe(healthy, []string{StreamNotifications})

	// Fill the stalled client's queue so the next broadcast cannot fit.
	stalled.send <- Message{Event: "backlog"}

	finished := make(chan struct{})
	go func() {
		h.BroadcastStream(StreamNotifications, Message{Event: "ticket.created"})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not return with a stalled subscriber")
	}

	// The stalled client is disconnected and gone from the registry; the
	// healthy one received the message.
	select {
	case <-stalled.done:
	default:
		t.Fatal("stalled client was not closed")
	}
	require.Zero(t, subscriberCount(h, StreamNotifications, "user-a"))

	require.Len(t, healthy.send, 1)
	got := <-healthy.send
	require.Equal(t, "ticket.created", got.Event)
	require.Equal(t, StreamNotifications, got.Stream)

	// The hub stayed usable: new subscriptions and broadcasts go through.
	late := newTestClient(h, "user-c", 4)
	h.subscribe(late, []string{StreamNotifications})
	h.BroadcastToUser(StreamNotifications, "user-c", Message{Event: "ping"})
	require.Len(t, late.send, 1)
}

func TestBroadcastToUserTargetsSingleUser(t *testing.T) {
	h := NewHub()

	owner := newTestClient(h, "owner", 4)
	other := newTestClient(h, "other", 4)
	stream := ScopedStream(StreamProjectMessages, "p1")
	h.subscribe(owner, []string{stream})
	h.subscribe(other, []string{stream})

	h.BroadcastToUser(stream, "owner", Message{Event: "message.created"})

	require.Len(t, owner.send, 1)
	require.Empty(t, other.send)
}

func TestEnqueueAfterCloseIsSafe(t *testing.T) {
	h := NewHub()

	cl := newTestClient(h, "user-a", 1)
	h.subscribe(cl, []string{StreamNotifications})
	cl.close()
	cl.close()

	require.True(t, cl.enqueue(Message{Event: "late"}))
	require.Empty(t, cl.send)
	require.Zero(t, subscriberCount(h, StreamNotifications, "user-a"))
}
