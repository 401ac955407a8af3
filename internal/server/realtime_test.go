package server

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"go.uber.org/goleak"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)

	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "7")
	defer cleanup()

	dispatcher.HandleEvents([]gameroot.Event{{
		Name:      "LotteryTicketBuy",
		Topic:     "7",
		Args:      map[string]any{"ticket_id": uint64(1)},
		Timestamp: time.Now().UTC(),
	}})

	select {
	case received := <-stream:
		if received.Event.Name != "LotteryTicketBuy" {
			t.Fatalf("expected event LotteryTicketBuy, got %s", received.Event.Name)
		}
		if received.Topic != "7" {
			t.Fatalf("expected topic 7, got %s", received.Topic)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByTopic(t *testing.T) {
	defer goleak.VerifyNone(t)

	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gameStream, cleanup := dispatcher.Subscribe(ctx, "2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(ctx, "3")
	defer otherCleanup()

	allStream, allCleanup := dispatcher.Subscribe(ctx, RealtimeTopicAll)
	defer allCleanup()

	dispatcher.Publish(RealtimeMessage{Topic: "3", Event: gameroot.Event{Name: "LotteryTicketBuy", Topic: "3"}})

	select {
	case <-gameStream:
		t.Fatal("did not expect realtime message for unrelated game")
	case <-time.After(200 * time.Millisecond):
	}

	for name, stream := range map[string]<-chan RealtimeMessage{"game": otherStream, "all": allStream} {
		select {
		case msg := <-stream:
			if msg.Topic != "3" {
				t.Fatalf("%s stream: expected topic 3, received %s", name, msg.Topic)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("%s stream: expected realtime message", name)
		}
	}
}

func TestRealtimeDispatcherUnsubscribesOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	_, _ = dispatcher.Subscribe(ctx, "9")
	if dispatcher.subscriberCount("9") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for dispatcher.subscriberCount("9") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected subscriber to be removed after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
