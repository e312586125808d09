package triage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"omnibot/internal/outbox"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProvider returns canned snippets or an error.
type fakeProvider struct {
	snippets []string
	err      error
	calls    int
}

func (f *fakeProvider) Search(ctx context.Context, query string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(query) == "" {
		return []string{}, nil
	}
	return f.snippets, nil
}

// fakePublisher records publish attempts.
type fakePublisher struct {
	result   outbox.Result
	attempts []map[string]any
}

func (f *fakePublisher) Publish(ctx context.Context, raw map[string]any) outbox.Result {
	f.attempts = append(f.attempts, raw)
	return f.result
}

func newTestOrchestrator(provider *fakeProvider, pub *fakePublisher) *Orchestrator {
	return New(Config{
		Snippets: provider,
		Outbox:   pub,
		Logger:   testLogger(),
	})
}

func TestTriage_BudgetScenario(t *testing.T) {
	pub := &fakePublisher{result: outbox.Result{OK: true, ID: "m1", TraceID: "t1"}}
	o := newTestOrchestrator(&fakeProvider{snippets: []string{}}, pub)

	res, err := o.Triage(context.Background(), Inbound{
		Text:    "Quero um orçamento",
		Channel: "whatsapp",
		From:    "whatsapp:+5511988887777",
	})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.Intent != IntentBudget {
		t.Errorf("intent = %q, want budget", res.Intent)
	}
	for _, item := range []string{"kWh", "CEP", "fase", "telefone"} {
		if !strings.Contains(res.Reply, item) {
			t.Errorf("reply missing %q", item)
		}
	}

	if len(pub.attempts) != 1 {
		t.Fatalf("publish attempts = %d, want 1", len(pub.attempts))
	}
	raw := pub.attempts[0]
	content := raw["content"].(map[string]any)
	if content["type"] != "text" {
		t.Errorf("content.type = %v, want text", content["type"])
	}
	if content["text"] != res.Reply {
		t.Errorf("published text differs from returned reply")
	}
	to := raw["to"].(map[string]any)
	if to["id"] != "whatsapp:+5511988887777" {
		t.Errorf("to.id = %v", to["id"])
	}
	if raw["channel"] != "whatsapp" {
		t.Errorf("channel = %v", raw["channel"])
	}
}

func TestTriage_SnippetSuffix(t *testing.T) {
	pub := &fakePublisher{result: outbox.Result{OK: true}}
	o := newTestOrchestrator(&fakeProvider{snippets: []string{"Energia solar reduz a conta.", "outro"}}, pub)

	res, err := o.Triage(context.Background(), Inbound{Text: "informação solar", Channel: "web", From: "web:u1"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if len(res.Snippets) != 2 {
		t.Fatalf("snippets = %v", res.Snippets)
	}
	if !strings.HasSuffix(res.Reply, "\n\n"+res.Snippets[0]) {
		t.Errorf("reply %q does not end with top snippet block", res.Reply)
	}
}

func TestTriage_EmptySnippetsLeaveTemplateExact(t *testing.T) {
	pub := &fakePublisher{result: outbox.Result{OK: true}}
	o := newTestOrchestrator(&fakeProvider{snippets: []string{}}, pub)

	res, err := o.Triage(context.Background(), Inbound{Text: "Oi", Channel: "web", From: "web:u1"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if want := NewComposer(nil).Compose(IntentGreeting, nil); res.Reply != want {
		t.Errorf("reply = %q, want exact template %q", res.Reply, want)
	}
	if len(res.Snippets) != 0 {
		t.Errorf("snippets = %v, want empty", res.Snippets)
	}
}

// A provider failure must degrade to an empty snippet list, never fail the
// triage call.
func TestTriage_ProviderErrorDegrades(t *testing.T) {
	pub := &fakePublisher{result: outbox.Result{OK: true}}
	o := newTestOrchestrator(&fakeProvider{err: errors.New("kb backend down")}, pub)

	res, err := o.Triage(context.Background(), Inbound{Text: "status do pedido", Channel: "web", From: "web:u1"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.Intent != IntentStatus {
		t.Errorf("intent = %q", res.Intent)
	}
	if res.Snippets == nil || len(res.Snippets) != 0 {
		t.Errorf("snippets = %#v, want empty non-nil", res.Snippets)
	}
	if len(pub.attempts) != 1 {
		t.Errorf("publish attempts = %d, want 1", len(pub.attempts))
	}
}

// A publish failure is logged, not surfaced: the computed reply still comes
// back to the caller.
func TestTriage_PublishFailureNotSurfaced(t *testing.T) {
	pub := &fakePublisher{result: outbox.Result{OK: false, Code: outbox.CodeRedisError, Message: "connection refused"}}
	o := newTestOrchestrator(&fakeProvider{snippets: []string{}}, pub)

	res, err := o.Triage(context.Background(), Inbound{Text: "Olá", Channel: "web", From: "web:u1"})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.Intent != IntentGreeting || res.Reply == "" {
		t.Errorf("result masked by publish failure: %+v", res)
	}
}

func TestTriage_Cancellation(t *testing.T) {
	pub := &fakePublisher{result: outbox.Result{OK: true}}
	blocking := &blockingProvider{started: make(chan struct{}), block: make(chan struct{})}
	defer close(blocking.block)
	o := New(Config{Snippets: blocking, Outbox: pub, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-blocking.started
		cancel()
	}()

	_, err := o.Triage(ctx, Inbound{Text: "Oi", Channel: "web", From: "web:u1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(pub.attempts) != 0 {
		t.Errorf("publish attempted after cancellation")
	}
}

// blockingProvider simulates a hung backend: Search never returns, so the
// orchestrator can only exit through its cancellation path.
type blockingProvider struct {
	started chan struct{}
	block   chan struct{}
}

func (b *blockingProvider) Search(ctx context.Context, query string) ([]string, error) {
	close(b.started)
	<-b.block
	return []string{}, nil
}

func TestTriage_TracePropagation(t *testing.T) {
	pub := &fakePublisher{result: outbox.Result{OK: true}}
	o := newTestOrchestrator(&fakeProvider{snippets: []string{}}, pub)

	_, err := o.Triage(context.Background(), Inbound{
		Text:    "Oi",
		Channel: "whatsapp",
		From:    "whatsapp:+5511988887777",
		TraceID: "trace-inbound-1",
	})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	meta, ok := pub.attempts[0]["metadata"].(map[string]any)
	if !ok || meta["trace_id"] != "trace-inbound-1" {
		t.Errorf("trace not threaded to outbox candidate: %v", pub.attempts[0])
	}
}
