package gateway

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	busPkg "omnibot/internal/bus"
	"omnibot/internal/domain"
	"omnibot/internal/outbox"
	"omnibot/internal/triage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeTriager struct {
	calls atomic.Int32
}

func (f *fakeTriager) Triage(ctx context.Context, in triage.Inbound) (*triage.Result, error) {
	f.calls.Add(1)
	return &triage.Result{
		Intent:   triage.IntentGreeting,
		Reply:    "Olá! Como posso ajudar?",
		Snippets: []string{},
	}, nil
}

func TestLoop_RoutesReplyBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := busPkg.New(10, testLogger())
	defer b.Close()

	replies := make(chan domain.OutboundEvent, 1)
	b.OnOutbound("web", func(msg domain.OutboundEvent) { replies <- msg })

	tr := &fakeTriager{}
	loop := NewLoop(LoopConfig{Triager: tr, Bus: b, Logger: testLogger()})
	go loop.Run(ctx)

	b.Publish(domain.InboundEvent{Channel: "web", ChatID: "c1", SenderID: "web:u1", Text: "Oi"})

	select {
	case msg := <-replies:
		if msg.Text != "Olá! Como posso ajudar?" {
			t.Errorf("reply = %q", msg.Text)
		}
		if msg.Intent != "greeting" {
			t.Errorf("intent = %q", msg.Intent)
		}
		if msg.ChatID != "c1" {
			t.Errorf("chat id = %q", msg.ChatID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply routed back")
	}
}

func TestLoop_EmitsTriageEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := busPkg.New(10, testLogger())
	defer b.Close()
	events := busPkg.NewEventBus(testLogger())

	got := make(chan busPkg.Event, 1)
	events.On(busPkg.EventTriageCompleted, func(e busPkg.Event) { got <- e })

	loop := NewLoop(LoopConfig{Triager: &fakeTriager{}, Bus: b, Events: events, Logger: testLogger()})
	go loop.Run(ctx)

	b.Publish(domain.InboundEvent{Channel: "web", ChatID: "c1", Text: "Oi"})

	select {
	case e := <-got:
		if e.Payload["intent"] != "greeting" {
			t.Errorf("event payload = %v", e.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
	}
}

type staticPublisher struct {
	result outbox.Result
}

func (s *staticPublisher) Publish(ctx context.Context, raw map[string]any) outbox.Result {
	return s.result
}

func TestInstrumentPublisher_Events(t *testing.T) {
	events := busPkg.NewEventBus(testLogger())

	var published, failed atomic.Int32
	events.On(busPkg.EventOutboxPublished, func(e busPkg.Event) { published.Add(1) })
	events.On(busPkg.EventOutboxFailed, func(e busPkg.Event) { failed.Add(1) })

	ok := InstrumentPublisher(&staticPublisher{result: outbox.Result{OK: true, ID: "m1", TraceID: "t1"}}, events)
	bad := InstrumentPublisher(&staticPublisher{result: outbox.Result{OK: false, Code: outbox.CodeRedisError}}, events)

	if res := ok.Publish(context.Background(), nil); !res.OK {
		t.Errorf("result mutated: %+v", res)
	}
	bad.Publish(context.Background(), nil)

	if published.Load() != 1 || failed.Load() != 1 {
		t.Errorf("events published=%d failed=%d, want 1/1", published.Load(), failed.Load())
	}
}
