// Package channel implements message intake channels. Outbound delivery
// adapters live downstream of the outbox stream, not here.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"omnibot/internal/domain"
	"omnibot/internal/metrics"
)

const (
	maxBodySize         = 1 << 20 // 1MB
	defaultReplyTimeout = 30 * time.Second
)

var _ domain.IntakeChannel = (*Web)(nil)

// Web implements domain.IntakeChannel over HTTP. POST /v1/messages accepts
// an inbound event and answers with the triaged reply once the gateway
// routes it back.
type Web struct {
	host         string
	port         int
	replyTimeout time.Duration
	bus          domain.MessageBus
	logger       *slog.Logger
	server       *http.Server
	listener     net.Listener

	// Pending responses keyed by chat ID
	pendingResponses   map[string]chan domain.OutboundEvent
	pendingResponsesMu sync.Mutex
}

// WebConfig configures the web intake channel.
type WebConfig struct {
	Host         string
	Port         int
	ReplyTimeout time.Duration
	Logger       *slog.Logger
}

// NewWeb creates the web channel.
func NewWeb(cfg WebConfig) *Web {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultReplyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Web{
		host:             cfg.Host,
		port:             cfg.Port,
		replyTimeout:     cfg.ReplyTimeout,
		logger:           cfg.Logger,
		pendingResponses: make(map[string]chan domain.OutboundEvent),
	}
}

func (w *Web) Name() string { return "web" }

// Addr returns the bound listen address, valid after Start.
func (w *Web) Addr() string {
	if w.listener == nil {
		return fmt.Sprintf("%s:%d", w.host, w.port)
	}
	return w.listener.Addr().String()
}

// Start registers the outbound handler and serves HTTP until Stop.
func (w *Web) Start(ctx context.Context, bus domain.MessageBus) error {
	w.bus = bus

	// Route replies back to the request waiting on this chat
	bus.OnOutbound("web", func(msg domain.OutboundEvent) {
		w.pendingResponsesMu.Lock()
		ch, ok := w.pendingResponses[msg.ChatID]
		w.pendingResponsesMu.Unlock()
		if !ok {
			w.logger.Warn("reply for unknown chat", "chat_id", msg.ChatID)
			return
		}
		select {
		case ch <- msg:
		default:
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", w.handleMessage)
	mux.HandleFunc("POST /v1/events", w.handleEvent)
	mux.HandleFunc("GET /status", w.handleStatus)
	mux.Handle("GET /metrics", metrics.Collector.Handler())

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", w.host, w.port))
	if err != nil {
		return fmt.Errorf("web channel listen: %w", err)
	}
	w.listener = listener
	w.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		w.logger.Info("web channel listening", "addr", w.Addr())
		if err := w.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			w.logger.Error("web channel server error", "err", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (w *Web) Stop() error {
	if w.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.server.Shutdown(ctx)
}

type messageRequest struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
	From    string `json:"from,omitempty"`
}

type messageResponse struct {
	Intent string `json:"intent"`
	Reply  string `json:"reply"`
}

func (w *Web) handleMessage(rw http.ResponseWriter, r *http.Request) {
	var req messageRequest
	body := http.MaxBytesReader(rw, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		httpError(rw, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		httpError(rw, http.StatusBadRequest, "text is required")
		return
	}
	if req.Channel == "" {
		req.Channel = "web"
	}

	chatID := uuid.NewString()
	from := req.From
	if from == "" {
		from = "web:" + chatID
	}

	replyCh := make(chan domain.OutboundEvent, 1)
	w.pendingResponsesMu.Lock()
	w.pendingResponses[chatID] = replyCh
	w.pendingResponsesMu.Unlock()
	defer func() {
		w.pendingResponsesMu.Lock()
		delete(w.pendingResponses, chatID)
		w.pendingResponsesMu.Unlock()
	}()

	w.bus.Publish(domain.InboundEvent{
		Channel:   "web",
		ChatID:    chatID,
		SenderID:  from,
		Text:      req.Text,
		Timestamp: time.Now(),
		Metadata:  map[string]string{"requested_channel": req.Channel},
	})

	select {
	case <-r.Context().Done():
		return
	case <-time.After(w.replyTimeout):
		httpError(rw, http.StatusGatewayTimeout, "reply timed out")
	case msg := <-replyCh:
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(messageResponse{Intent: msg.Intent, Reply: msg.Text})
	}
}

// handleEvent is the webhook intake for external channel adapters: the
// body must be a full canonical inbound message. The reply is queued on the
// outbox for the adapter consuming the stream, so the response is just an
// acknowledgement.
func (w *Web) handleEvent(rw http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	body := http.MaxBytesReader(rw, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		httpError(rw, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := domain.DecodeMessage(raw)
	if err != nil {
		httpError(rw, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if msg.Direction != domain.DirectionIn {
		httpError(rw, http.StatusUnprocessableEntity, "direction must be \"in\"")
		return
	}
	if msg.Content.Type != domain.ContentText {
		httpError(rw, http.StatusUnprocessableEntity, "only text content can be triaged")
		return
	}

	meta := map[string]string{"requested_channel": string(msg.Channel)}
	if msg.Trace != nil && msg.Trace.TraceID != "" {
		meta["trace_id"] = msg.Trace.TraceID
	}

	w.bus.Publish(domain.InboundEvent{
		Channel:   string(msg.Channel),
		ChatID:    msg.ID,
		SenderID:  msg.From.ID,
		Text:      msg.Content.Text,
		Timestamp: msg.Timestamp,
		Metadata:  meta,
	})

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusAccepted)
	json.NewEncoder(rw).Encode(map[string]any{"accepted": true, "id": msg.ID})
}

func (w *Web) handleStatus(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]any{
		"status":  "ok",
		"uptime":  metrics.Collector.Uptime().String(),
		"metrics": metrics.Collector.Snapshot(),
	})
}

func httpError(rw http.ResponseWriter, code int, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(map[string]string{"error": msg})
}
