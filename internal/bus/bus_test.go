package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindChatStarted, Timestamp: time.Now()})

	select {
	case evt := <-ch:
		if evt.Kind != KindChatStarted {
			t.Errorf("got kind %q, want %q", evt.Kind, KindChatStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("relay.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindPeerMessage})
	b.Publish(Event{Kind: KindRelayFound})

	select {
	case evt := <-ch:
		if evt.Kind != KindRelayFound {
			t.Errorf("got kind %q, want %q", evt.Kind, KindRelayFound)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the peer event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("peer.", 10)
	unsub()

	b.Publish(Event{Kind: KindPeerMessage})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 1)
	defer unsub()

	before := time.Now()
	b.Publish(Event{Kind: KindMessageSaved})

	evt := <-ch
	if evt.Timestamp.Before(before) {
		t.Errorf("timestamp %v not stamped at publish", evt.Timestamp)
	}
}

func TestKindMatches(t *testing.T) {
	cases := []struct {
		kind   Kind
		prefix Kind
		want   bool
	}{
		{KindMessageSaved, "store.", true},
		{KindMessageSaved, "store.message_saved", true},
		{KindMessageSaved, "peer.", false},
		{KindPeerMessage, "", true},
	}
	for _, c := range cases {
		if got := c.kind.Matches(c.prefix); got != c.want {
			t.Errorf("%q.Matches(%q) = %v, want %v", c.kind, c.prefix, got, c.want)
		}
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: KindProfileUpdated})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: KindMessageSaved})

	evt := <-ch
	if evt.Kind != KindProfileUpdated {
		t.Errorf("got %q, want %q", evt.Kind, KindProfileUpdated)
	}
}
