package hub

import (
	"fmt"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New()
	a := h.Subscribe("job:1", 4)
	b := h.Subscribe("job:1", 4)
	other := h.Subscribe("job:2", 4)
	defer a.Close()
	defer b.Close()
	defer other.Close()

	h.Publish("job:1", KindJobCreated, "payload")

	for _, sub := range []Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			if ev.Kind != KindJobCreated || ev.Topic != "job:1" {
				t.Fatalf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("unrelated topic received %+v", ev)
	default:
	}
}

func TestPerTopicOrder(t *testing.T) {
	h := New()
	sub := h.Subscribe("job:1", 16)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		h.Publish("job:1", KindJobTransition, i)
	}
	for i := 0; i < 10; i++ {
		ev := <-sub.Events()
		if ev.Payload.(int) != i {
			t.Fatalf("out of order: expected %d, got %v", i, ev.Payload)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := New()
	var dropped int
	h.OnDrop(func(topic string) { dropped++ })

	sub := h.Subscribe("job:1", 2)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish("job:1", KindJobTransition, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if dropped != 3 {
		t.Fatalf("expected 3 drops, got %d", dropped)
	}
	// the two buffered events are still the oldest ones
	if ev := <-sub.Events(); ev.Payload.(int) != 0 {
		t.Fatalf("expected payload 0, got %v", ev.Payload)
	}
}

func TestCloseStopsDeliveryAndReleasesTopic(t *testing.T) {
	h := New()
	sub := h.Subscribe("courier:9", 4)
	if n := h.Subscribers("courier:9"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	sub.Close()
	sub.Close() // idempotent

	if n := h.Subscribers("courier:9"); n != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", n)
	}
	if _, open := <-sub.Events(); open {
		t.Fatal("events channel still open after close")
	}
	// publishing after close must not panic
	h.Publish("courier:9", KindLocationUpdate, nil)
}

func TestManyTopicsIsolated(t *testing.T) {
	h := New()
	subs := make([]Subscription, 0, 5)
	for i := 0; i < 5; i++ {
		subs = append(subs, h.Subscribe(JobTopic(fmt.Sprint(i)), 1))
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()

	h.Publish(JobTopic("3"), KindJobTransition, "x")
	for i, s := range subs {
		if i == 3 {
			continue
		}
		select {
		case ev := <-s.Events():
			t.Fatalf("topic %d leaked event %+v", i, ev)
		default:
		}
	}
	if ev := <-subs[3].Events(); ev.Payload != "x" {
		t.Fatalf("expected x, got %v", ev.Payload)
	}
}
