package triage

import (
	"context"
	"log/slog"

	"omnibot/internal/domain"
	"omnibot/internal/outbox"
)

// Inbound is the minimal inbound call surface. Channel and From are opaque
// pass-through strings here; full canonical validation happens at the
// outbox boundary.
type Inbound struct {
	Text    string `json:"text"`
	Channel string `json:"channel"`
	From    string `json:"from,omitempty"`
	// TraceID, when already assigned upstream, is threaded through to the
	// outbox so the published reply correlates with the inbound event.
	TraceID string `json:"trace_id,omitempty"`
}

// Result is the audit record of one triage invocation. It is ephemeral and
// owned by the caller; nothing persists it.
type Result struct {
	Intent   Intent   `json:"intent"`
	Reply    string   `json:"reply"`
	Snippets []string `json:"snippets"`
}

// Publisher is the durable hand-off capability for composed replies.
// *outbox.Publisher satisfies it; tests inject a fake.
type Publisher interface {
	Publish(ctx context.Context, raw map[string]any) outbox.Result
}

// Orchestrator wires classifier, snippet provider, composer and outbox into
// the triage pipeline. It holds no per-call state; concurrent Triage calls
// are independent, and no reply ordering is guaranteed for a given sender.
type Orchestrator struct {
	classifier *Classifier
	composer   *Composer
	snippets   domain.SnippetProvider
	outbox     Publisher
	logger     *slog.Logger
}

// Config holds the orchestrator dependencies.
type Config struct {
	Classifier *Classifier
	Composer   *Composer
	Snippets   domain.SnippetProvider
	Outbox     Publisher
	Logger     *slog.Logger
}

// New creates an orchestrator. Classifier and Composer default to the
// built-in rule table and templates.
func New(cfg Config) *Orchestrator {
	if cfg.Classifier == nil {
		cfg.Classifier = NewClassifier(nil)
	}
	if cfg.Composer == nil {
		cfg.Composer = NewComposer(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		classifier: cfg.Classifier,
		composer:   cfg.Composer,
		snippets:   cfg.Snippets,
		outbox:     cfg.Outbox,
		logger:     cfg.Logger,
	}
}

// Triage classifies the message, retrieves snippets, composes a reply and
// attempts to queue it on the outbox.
//
// Classification and snippet search have no data dependency and run
// concurrently; both are joined before composing. A snippet provider
// failure degrades to an empty snippet list. A publish failure is logged
// and counted but never surfaced: the value of triage is the computed
// reply, and a delivery problem must not mask the classification result.
// The only error returned is context cancellation.
func (o *Orchestrator) Triage(ctx context.Context, in Inbound) (*Result, error) {
	type searched struct {
		snippets []string
		err      error
	}
	ch := make(chan searched, 1)
	go func() {
		s, err := o.snippets.Search(ctx, in.Text)
		ch <- searched{snippets: s, err: err}
	}()

	intent := o.classifier.Classify(in.Text)

	var snippets []string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case got := <-ch:
		if got.err != nil {
			o.logger.Warn("snippet search failed, replying without snippets",
				"intent", intent, "err", got.err)
		} else {
			snippets = got.snippets
		}
	}
	if snippets == nil {
		snippets = []string{}
	}

	reply := o.composer.Compose(intent, snippets)

	candidate := map[string]any{
		"to":      map[string]any{"id": in.From},
		"content": map[string]any{"type": "text", "text": reply},
	}
	if in.Channel != "" {
		candidate["channel"] = in.Channel
	}
	if in.TraceID != "" {
		candidate["metadata"] = map[string]any{"trace_id": in.TraceID}
	}

	if res := o.outbox.Publish(ctx, candidate); res.OK {
		o.logger.Info("reply queued",
			"trace_id", res.TraceID, "id", res.ID, "intent", intent, "channel", in.Channel)
	} else {
		o.logger.Warn("reply publish failed",
			"code", res.Code, "intent", intent, "channel", in.Channel, "err", res.Message)
	}

	return &Result{Intent: intent, Reply: reply, Snippets: snippets}, nil
}
