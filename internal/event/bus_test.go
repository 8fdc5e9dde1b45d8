package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

func TestBus_SubscribeAsync(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan Event, 1)
	unsub := bus.Subscribe(ChangeAdded, func(e Event) {
		received <- e
	})
	defer unsub()

	bus.Publish(Event{Type: ChangeAdded, Data: "chg_1"})

	select {
	case e := <-received:
		if e.Type != ChangeAdded || e.Data != "chg_1" {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_PublishSyncKeepsOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got []EventType
	bus.SubscribeAll(func(e Event) {
		got = append(got, e.Type)
	})

	want := []EventType{RunUpdated, ChangeAdded, ChangeResolved, RunReviewed, DocumentSaved}
	for _, typ := range want {
		bus.PublishSync(Event{Type: typ})
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var typed, global int32
	unsubTyped := bus.Subscribe(RunThought, func(Event) { atomic.AddInt32(&typed, 1) })
	unsubGlobal := bus.SubscribeAll(func(Event) { atomic.AddInt32(&global, 1) })

	bus.PublishSync(Event{Type: RunThought})
	unsubTyped()
	unsubGlobal()
	bus.PublishSync(Event{Type: RunThought})

	if typed != 1 || global != 1 {
		t.Errorf("expected one delivery each, got typed=%d global=%d", typed, global)
	}
}

func TestBus_EventTypeFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var saved, failed int32
	bus.Subscribe(DocumentSaved, func(Event) { atomic.AddInt32(&saved, 1) })
	bus.Subscribe(DocumentSaveFailed, func(Event) { atomic.AddInt32(&failed, 1) })

	bus.PublishSync(Event{Type: DocumentSaved})
	bus.PublishSync(Event{Type: DocumentSaved})
	bus.PublishSync(Event{Type: DocumentSaveFailed})

	if saved != 2 || failed != 1 {
		t.Errorf("got saved=%d failed=%d", saved, failed)
	}
}

func TestBus_ClosedBusIgnoresSubscribers(t *testing.T) {
	bus := NewBus()
	var count int32
	bus.SubscribeAll(func(Event) { atomic.AddInt32(&count, 1) })

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	bus.PublishSync(Event{Type: RunUpdated})
	unsub := bus.Subscribe(RunUpdated, func(Event) { atomic.AddInt32(&count, 1) })
	unsub()
	bus.PublishSync(Event{Type: RunUpdated})

	if count != 0 {
		t.Errorf("closed bus delivered %d events", count)
	}
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(DocumentUpdated, func(Event) {})
			defer unsub()
			for j := 0; j < 10; j++ {
				bus.Publish(Event{Type: DocumentUpdated})
			}
		}()
	}
	wg.Wait()
}

func TestBus_PubSubRoundTrip(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	messages, err := bus.PubSub().Subscribe(ctx, "test.topic")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := bus.PubSub().Publish("test.topic", message.NewMessage(watermill.NewUUID(), []byte("payload"))); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-messages:
		if string(msg.Payload) != "payload" {
			t.Errorf("unexpected payload %q", msg.Payload)
		}
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestLoggerAdapter(t *testing.T) {
	logger := NewLogger("test").With(watermill.LogFields{"topic": "x"})
	logger.Info("info", watermill.LogFields{"n": 1})
	logger.Debug("debug", nil)
	logger.Trace("trace", nil)
	logger.Error("error", errors.New("boom"), nil)
}
