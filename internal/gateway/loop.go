// Package gateway consumes inbound events from the message bus and drives
// the triage pipeline with bounded concurrency.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"omnibot/internal/bus"
	"omnibot/internal/domain"
	"omnibot/internal/metrics"
	"omnibot/internal/outbox"
	"omnibot/internal/triage"
)

const (
	defaultConcurrency = 4
	defaultTimeout     = 30 * time.Second
)

// Triager runs one triage invocation. *triage.Orchestrator satisfies it.
type Triager interface {
	Triage(ctx context.Context, in triage.Inbound) (*triage.Result, error)
}

// Loop is the consumption engine: receive inbound event → triage → route
// the reply back to the intake channel.
type Loop struct {
	triager     Triager
	bus         domain.MessageBus
	events      *bus.EventBus
	logger      *slog.Logger
	concurrency int
	timeout     time.Duration
}

// LoopConfig holds the loop dependencies and tuning parameters.
type LoopConfig struct {
	Triager     Triager
	Bus         domain.MessageBus
	Events      *bus.EventBus
	Logger      *slog.Logger
	Concurrency int           // max parallel messages (default 4)
	Timeout     time.Duration // per-message deadline (default 30s)
}

// NewLoop creates a gateway loop.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		triager:     cfg.Triager,
		bus:         cfg.Bus,
		events:      cfg.Events,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
	}
}

// Run consumes inbound events until ctx ends or the bus closes. Each event
// is handled in its own goroutine under a concurrency semaphore; no
// ordering is guaranteed between concurrent events from the same sender.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("gateway loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("gateway loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound bus closed, gateway loop stopping")
				return
			}
			sem <- struct{}{}
			go func(msg domain.InboundEvent) {
				defer func() { <-sem }()
				l.handle(ctx, msg)
			}(msg)
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg domain.InboundEvent) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	inflight := metrics.Collector.GetGauge("omnibot_triage_inflight", "Triage invocations in progress.")
	inflight.Inc()
	defer inflight.Dec()

	// The bus channel routes the reply back to the intake; the delivery
	// channel for the outbox may be overridden by the intake request.
	deliveryChannel := msg.Channel
	if rc := msg.Metadata["requested_channel"]; rc != "" {
		deliveryChannel = rc
	}

	res, err := l.triager.Triage(ctx, triage.Inbound{
		Text:    msg.Text,
		Channel: deliveryChannel,
		From:    msg.SenderID,
		TraceID: msg.Metadata["trace_id"],
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			l.logger.Warn("triage aborted", "channel", msg.Channel, "err", err)
		} else {
			l.logger.Error("triage failed", "channel", msg.Channel, "err", err)
		}
		return
	}

	metrics.Collector.GetCounter("omnibot_messages_triaged_total", "Messages triaged.").Inc()
	if l.events != nil {
		l.events.Emit(bus.Event{
			Type:   bus.EventTriageCompleted,
			Source: "gateway",
			Payload: map[string]any{
				"intent":  string(res.Intent),
				"channel": msg.Channel,
			},
		})
	}

	l.bus.SendOutbound(domain.OutboundEvent{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Text:    res.Reply,
		Intent:  string(res.Intent),
	})
}

// instrumentedPublisher decorates a publisher with metrics and lifecycle
// events. The publish result itself is passed through untouched.
type instrumentedPublisher struct {
	inner  triage.Publisher
	events *bus.EventBus
}

// InstrumentPublisher wraps pub so every attempt is counted and emitted on
// the event bus.
func InstrumentPublisher(pub triage.Publisher, events *bus.EventBus) triage.Publisher {
	return &instrumentedPublisher{inner: pub, events: events}
}

func (p *instrumentedPublisher) Publish(ctx context.Context, raw map[string]any) outbox.Result {
	res := p.inner.Publish(ctx, raw)
	if res.OK {
		metrics.Collector.GetCounter("omnibot_outbox_published_total", "Successful outbox appends.").Inc()
		if p.events != nil {
			p.events.Emit(bus.Event{
				Type:    bus.EventOutboxPublished,
				Source:  "outbox",
				Payload: map[string]any{"id": res.ID, "trace_id": res.TraceID},
			})
		}
	} else {
		metrics.Collector.GetCounter("omnibot_outbox_failed_total", "Failed outbox publish attempts.").Inc()
		if p.events != nil {
			p.events.Emit(bus.Event{
				Type:    bus.EventOutboxFailed,
				Source:  "outbox",
				Payload: map[string]any{"code": res.Code, "message": res.Message},
			})
		}
	}
	return res
}
