package broker

import (
	"testing"
	"time"

	"github.com/logline-motor/motor/internal/domain"
)

func testConfig() Config {
	return Config{
		RetentionSize:       8,
		SubscriberQueueSize: 4,
		HeartbeatInterval:   50 * time.Millisecond,
	}
}

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	sub := b.Subscribe([]string{"default"}, 0)
	defer sub.Close()

	ev := domain.NewEvent(domain.EventIdeaRegistered)
	ev.ID = 1
	if err := b.Publish(ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case f := <-sub.Frames():
		if f.Heartbeat {
			t.Fatal("expected a real event frame, got heartbeat")
		}
		if f.Event.ID != 1 {
			t.Fatalf("expected event id 1, got %d", f.Event.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestPublishSkipsNonMatchingChannel(t *testing.T) {
	// Heartbeats reach every idle subscriber regardless of channel, so the
	// interval is pushed past the observation window below.
	cfg := testConfig()
	cfg.HeartbeatInterval = time.Hour
	b := New(cfg)
	defer b.Close()

	sub := b.Subscribe([]string{"other"}, 0)
	defer sub.Close()

	ev := domain.NewEvent(domain.EventIdeaRegistered, "default")
	ev.ID = 1
	_ = b.Publish(ev)

	select {
	case f := <-sub.Frames():
		t.Fatalf("unexpected frame delivered: %+v", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeReplaysSinceLastEventID(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	for i := uint64(1); i <= 3; i++ {
		ev := domain.NewEvent(domain.EventIdeaRegistered)
		ev.ID = i
		_ = b.Publish(ev)
	}

	sub := b.Subscribe([]string{"default"}, 1)
	defer sub.Close()

	var got []uint64
	for i := 0; i < 2; i++ {
		select {
		case f := <-sub.Frames():
			got = append(got, f.Event.ID)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for replay frame %d", i)
		}
	}

	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected replay [2 3], got %v", got)
	}
}

// A lastEventID older than the oldest retained event must produce
// live-from-now delivery with no partial replay of the remaining ring.
func TestSubscribeStaleLastEventIDSkipsReplay(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	// Retention is 8, so after 20 publishes the ring holds ids 13..20 and
	// everything at or below 12 has been evicted.
	for i := uint64(1); i <= 20; i++ {
		ev := domain.NewEvent(domain.EventIdeaRegistered)
		ev.ID = i
		_ = b.Publish(ev)
	}

	sub := b.Subscribe([]string{"default"}, 2)
	defer sub.Close()

	live := domain.NewEvent(domain.EventIdeaRegistered)
	live.ID = 21
	_ = b.Publish(live)

	select {
	case f := <-sub.Frames():
		if f.Heartbeat {
			t.Fatal("expected a real event frame, got heartbeat")
		}
		if f.Event.ID != 21 {
			t.Fatalf("expected live-from-now delivery starting at id 21, got replayed id %d", f.Event.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live frame")
	}
}

func TestQueueOverflowDisconnectsSubscriber(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	sub := b.Subscribe([]string{"default"}, 0)
	defer sub.Close()

	for i := uint64(1); i <= 20; i++ {
		ev := domain.NewEvent(domain.EventIdeaRegistered)
		ev.ID = i
		_ = b.Publish(ev)
	}

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("expected subscriber to be disconnected after queue overflow")
	}
}

func TestHeartbeatEmittedWhenIdle(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	sub := b.Subscribe([]string{"default"}, 0)
	defer sub.Close()

	select {
	case f := <-sub.Frames():
		if !f.Heartbeat {
			t.Fatalf("expected heartbeat frame, got %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
}

// An event published without an id (e.g. a gateway-level notification
// that never touched the timeline) is stamped past the highest id seen,
// so the per-stream id sequence stays strictly increasing.
func TestPublishStampsUnstampedEvents(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	sub := b.Subscribe([]string{"default"}, 0)
	defer sub.Close()

	stamped := domain.NewEvent(domain.EventIdeaRegistered)
	stamped.ID = 7
	_ = b.Publish(stamped)
	_ = b.Publish(domain.NewEvent("command_executed"))
	_ = b.Publish(domain.NewEvent("command_executed"))

	var ids []uint64
	for i := 0; i < 3; i++ {
		select {
		case f := <-sub.Frames():
			ids = append(ids, f.Event.ID)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
	if ids[0] != 7 || ids[1] != 8 || ids[2] != 9 {
		t.Fatalf("expected ids [7 8 9], got %v", ids)
	}
}

func TestActiveSubscribersCount(t *testing.T) {
	b := New(testConfig())
	defer b.Close()

	if b.ActiveSubscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.ActiveSubscribers())
	}
	sub := b.Subscribe(nil, 0)
	if b.ActiveSubscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.ActiveSubscribers())
	}
	sub.Close()
	if b.ActiveSubscribers() != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", b.ActiveSubscribers())
	}
}
