package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	busPkg "omnibot/internal/bus"
	"omnibot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// startWeb spins up the channel on an ephemeral port with an echo gateway
// behind it.
func startWeb(t *testing.T) (*Web, *busPkg.InMemoryBus) {
	t.Helper()

	b := busPkg.New(10, testLogger())
	w := NewWeb(WebConfig{Port: 0, ReplyTimeout: 5 * time.Second, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx, b); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		w.Stop()
		b.Close()
	})

	// Minimal stand-in for the gateway loop: reply to every inbound event.
	go func() {
		for msg := range b.Subscribe() {
			b.SendOutbound(domain.OutboundEvent{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Text:    "echo: " + msg.Text,
				Intent:  "unknown",
			})
		}
	}()

	return w, b
}

func TestWeb_MessageRoundTrip(t *testing.T) {
	w, _ := startWeb(t)

	body, _ := json.Marshal(map[string]string{"text": "Oi", "channel": "web", "from": "web:u1"})
	resp, err := http.Post("http://"+w.Addr()+"/v1/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Reply != "echo: Oi" {
		t.Errorf("reply = %q", got.Reply)
	}
	if got.Intent != "unknown" {
		t.Errorf("intent = %q", got.Intent)
	}
}

func TestWeb_RejectsEmptyText(t *testing.T) {
	w, _ := startWeb(t)

	resp, err := http.Post("http://"+w.Addr()+"/v1/messages", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWeb_Status(t *testing.T) {
	w, _ := startWeb(t)

	resp, err := http.Get("http://" + w.Addr() + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

func TestWeb_EventIntake(t *testing.T) {
	// No echo gateway here: the test itself is the sole consumer, so it can
	// inspect the inbound event the webhook produced.
	b := busPkg.New(10, testLogger())
	w := NewWeb(WebConfig{Port: 0, ReplyTimeout: 5 * time.Second, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx, b); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		w.Stop()
		b.Close()
	})

	// A whatsapp event has no pending web request; it is acknowledged and
	// handed to the gateway for outbox delivery.
	inbound := make(chan domain.InboundEvent, 1)
	go func() {
		for msg := range b.Subscribe() {
			inbound <- msg
		}
	}()

	body, _ := json.Marshal(map[string]any{
		"id":        "evt-1",
		"channel":   "whatsapp",
		"direction": "in",
		"from":      map[string]any{"kind": "whatsapp", "id": "whatsapp:+5511999990000"},
		"to":        map[string]any{"kind": "web", "id": "web:bot"},
		"content":   map[string]any{"type": "text", "text": "Quero um orçamento"},
		"timestamp": "2026-08-30T12:00:00Z",
		"trace":     map[string]any{"trace_id": "trace-evt-1"},
	})
	resp, err := http.Post("http://"+w.Addr()+"/v1/events", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	select {
	case msg := <-inbound:
		if msg.SenderID != "whatsapp:+5511999990000" {
			t.Errorf("sender = %q", msg.SenderID)
		}
		if msg.Metadata["trace_id"] != "trace-evt-1" {
			t.Errorf("trace not propagated: %v", msg.Metadata)
		}
		if msg.Metadata["requested_channel"] != "whatsapp" {
			t.Errorf("requested channel = %q", msg.Metadata["requested_channel"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not published to bus")
	}
}

func TestWeb_EventIntakeRejectsInvalid(t *testing.T) {
	w, _ := startWeb(t)

	resp, err := http.Post("http://"+w.Addr()+"/v1/events", "application/json", bytes.NewReader([]byte(`{"channel":"fax"}`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}
