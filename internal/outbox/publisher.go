// Package outbox durably hands composed replies to the outbound delivery
// stream. Downstream channel adapters consume the stream, decode the
// payload and dispatch it; this package never performs delivery itself.
package outbox

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"omnibot/internal/domain"
)

// DefaultStream is the well-known outbox stream name.
const DefaultStream = "omni.outbox"

// Result codes.
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeRedisError   = "REDIS_ERROR"
	CodeCancelled    = "CANCELLED"
)

// Result reports the outcome of one publish attempt. Failures are data,
// not panics, so callers can decide their own retry/alerting policy.
type Result struct {
	OK      bool   `json:"ok"`
	ID      string `json:"id,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Broker is the append-only stream capability the publisher depends on.
// Append writes one entry under a broker-assigned sequence id and returns
// that id. Tests inject a fake; production uses the Redis Streams broker.
type Broker interface {
	Append(ctx context.Context, stream string, values map[string]any) (string, error)
	Close() error
}

// payload is the durable unit written to the stream, JSON-encoded into the
// single "payload" entry field.
type payload struct {
	ID       string           `json:"id"`
	TraceID  string           `json:"trace_id"`
	To       domain.Recipient `json:"to"`
	Content  domain.Content   `json:"content"`
	Channel  domain.Channel   `json:"channel,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// Publisher validates outbound candidates and appends them to the outbox
// stream. It holds no mutable state; concurrent Publish calls are
// independent.
type Publisher struct {
	stream string
	broker Broker
	dial   func() (Broker, error)
	logger *slog.Logger
}

// Config configures a Publisher. When Broker is set it is used for every
// call and never closed by the publisher (externally owned). Otherwise a
// connection is dialed per call and released once the call completes.
type Config struct {
	Stream        string
	Broker        Broker
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Logger        *slog.Logger
}

// New creates a Publisher.
func New(cfg Config) *Publisher {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Publisher{
		stream: cfg.Stream,
		broker: cfg.Broker,
		logger: cfg.Logger,
	}
	if cfg.Broker == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		p.dial = func() (Broker, error) {
			return NewRedisBroker(addr, cfg.RedisPassword, cfg.RedisDB), nil
		}
	}
	return p
}

// Stream returns the stream name this publisher appends to.
func (p *Publisher) Stream() string { return p.stream }

// Publish validates raw against the outbound contract, assigns a message id
// and trace id (reusing metadata.trace_id when present), and appends the
// serialized payload to the stream in a single atomic attempt.
//
// Exactly one append happens on the success path and zero on every failure
// path. There is no local retry: a REDIS_ERROR result leaves no partial
// state, so the caller may simply call Publish again.
func (p *Publisher) Publish(ctx context.Context, raw map[string]any) Result {
	out, err := domain.DecodeOutbound(raw)
	if err != nil {
		// Caller error; not worth a log line.
		return Result{OK: false, Code: CodeInvalidInput, Message: err.Error()}
	}

	id := uuid.NewString()
	traceID := ""
	if v, ok := out.Metadata["trace_id"].(string); ok && v != "" {
		traceID = v
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}

	body, err := json.Marshal(payload{
		ID:       id,
		TraceID:  traceID,
		To:       out.To,
		Content:  out.Content,
		Channel:  out.Channel,
		Metadata: out.Metadata,
	})
	if err != nil {
		return Result{OK: false, Code: CodeInvalidInput, Message: "encode payload: " + err.Error()}
	}

	broker := p.broker
	if broker == nil {
		b, err := p.dial()
		if err != nil {
			p.logger.Error("broker dial failed", "trace_id", traceID, "err", err)
			return Result{OK: false, Code: CodeRedisError, Message: err.Error()}
		}
		defer b.Close()
		broker = b
	}

	entryID, err := broker.Append(ctx, p.stream, map[string]any{"payload": string(body)})
	if err != nil {
		code := CodeRedisError
		if ctx.Err() != nil {
			code = CodeCancelled
		}
		p.logger.Error("publish failed", "trace_id", traceID, "stream", p.stream, "err", err)
		return Result{OK: false, Code: code, Message: err.Error()}
	}

	p.logger.Info("message published",
		"trace_id", traceID,
		"id", id,
		"stream", p.stream,
		"entry_id", entryID,
	)
	return Result{OK: true, ID: id, TraceID: traceID}
}
