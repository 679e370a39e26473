package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	topic := "plan:p1"
	ch := b.Subscribe(topic)
	defer func() { recover() }() // ignore close panic if already closed

	evt := Event{Type: "plan.completed", Data: map[string]any{"plan_id": "p1"}}
	b.Publish(topic, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["plan_id"].(string) != "p1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(topic, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("plan:a")
	ch2 := b.Subscribe("plan:b")
	defer b.Unsubscribe("plan:a", ch1)
	defer b.Unsubscribe("plan:b", ch2)

	b.Publish("plan:a", Event{Type: "plan.completed", Data: map[string]any{}})

	select {
	case <-ch1:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("subscriber on plan:a saw nothing")
	}
	select {
	case <-ch2:
		t.Fatal("subscriber on plan:b received a foreign event")
	default:
	}
}

func TestBrokerDropsWhenSubscriberSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("plan:x")
	defer b.Unsubscribe("plan:x", ch)
	// Channel capacity is 8; extra publishes must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Publish("plan:x", Event{Type: "plan.completed", Data: map[string]any{"i": i}})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
