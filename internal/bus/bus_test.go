package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("stream.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStreamStatus, Account: "main", Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStreamStatus {
			t.Errorf("got kind %q, want %q", evt.Kind, KindStreamStatus)
		}
		if evt.Account != "main" {
			t.Errorf("got account %q, want main", evt.Account)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("timeline.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStreamStatus})
	b.Publish(Event{Kind: KindTimelineLoaded})

	select {
	case evt := <-ch:
		if evt.Kind != KindTimelineLoaded {
			t.Errorf("got kind %q, want %q", evt.Kind, KindTimelineLoaded)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure stream event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestExactKindSubscription(t *testing.T) {
	// Subscribing on a full kind must exclude sibling kinds in the same
	// namespace, so loaded-event bursts cannot crowd out a completion.
	b := New()
	ch, unsub := b.Subscribe(KindTimelineInitialComplete, 2)
	defer unsub()

	b.Publish(Event{Kind: KindTimelineLoaded})
	b.Publish(Event{Kind: KindTimelineLoaded})
	b.Publish(Event{Kind: KindTimelineInitialComplete, Account: "main"})

	select {
	case evt := <-ch:
		if evt.Kind != KindTimelineInitialComplete {
			t.Errorf("got kind %q, want %q", evt.Kind, KindTimelineInitialComplete)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	if b.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", b.Dropped())
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("timeline.", 10)
	unsub()

	b.Publish(Event{Kind: KindTimelineLoaded})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if b.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", b.Dropped())
	}
}
