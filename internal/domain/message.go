package domain

import "time"

// Channel identifies a transport a message travels over.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWeb      Channel = "web"
	ChannelEmail    Channel = "email"
	ChannelVoice    Channel = "voice"
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
)

// Channels is the closed set of supported transports.
var Channels = []Channel{
	ChannelWhatsApp, ChannelWeb, ChannelEmail,
	ChannelVoice, ChannelSMS, ChannelTelegram,
}

// Direction of a message relative to this service.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Status tracks delivery progress. It only ever advances:
// queued → sent → delivered → read (failed is terminal from any state).
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Statuses in advancement order.
var Statuses = []Status{StatusQueued, StatusSent, StatusDelivered, StatusRead, StatusFailed}

// RouteAdapter names a delivery adapter a downstream consumer may dispatch to.
type RouteAdapter string

const (
	AdapterMCPWhatsApp RouteAdapter = "mcp-whatsapp"
	AdapterWeb         RouteAdapter = "web"
	AdapterSMTP        RouteAdapter = "smtp"
)

var RouteAdapters = []RouteAdapter{AdapterMCPWhatsApp, AdapterWeb, AdapterSMTP}

// ContentType is the discriminator of the content union.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentAudio    ContentType = "audio"
	ContentFile     ContentType = "file"
	ContentLocation ContentType = "location"
	ContentTemplate ContentType = "template"
)

var ContentTypes = []ContentType{
	ContentText, ContentImage, ContentAudio,
	ContentFile, ContentLocation, ContentTemplate,
}

// Route steers delivery of a message to a specific adapter/thread.
type Route struct {
	Adapter  RouteAdapter `json:"adapter"`
	ThreadID string       `json:"thread_id,omitempty"`
}

// ContactRef identifies one party of a message. ID is a channel-scoped
// address (e.g. "whatsapp:+55...", "web:user-42", "email:foo@bar").
type ContactRef struct {
	Kind    Channel `json:"kind"`
	ID      string  `json:"id"`
	Display string  `json:"display,omitempty"`
	Route   *Route  `json:"route,omitempty"`
}

// Content is the tagged union over message payload kinds. Type determines
// which of the remaining fields are legal; cross-variant fields are a
// validation failure, not ignored.
type Content struct {
	Type ContentType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image | audio | file
	URL  string `json:"url,omitempty"`
	MIME string `json:"mime,omitempty"`

	// image
	Caption string `json:"caption,omitempty"`
	// audio
	DurationMs int64 `json:"duration_ms,omitempty"`
	// file
	Filename string `json:"filename,omitempty"`

	// location
	Lat   float64 `json:"lat,omitempty"`
	Lon   float64 `json:"lon,omitempty"`
	Label string  `json:"label,omitempty"`

	// template
	Name      string            `json:"name,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Trace correlates a message across systems.
type Trace struct {
	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id,omitempty"`
	Source  string `json:"source,omitempty"`
}

// DeliveryError records a failure reported by a delivery adapter.
type DeliveryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	At      string `json:"at,omitempty"`
}

// Message is the canonical, channel-agnostic representation every inbound
// and outbound event is normalized to. ID and Timestamp are assigned once
// at creation and never reassigned. The top-level Channel is the primary
// transport context; From.Kind/To.Kind are per-party and may differ.
type Message struct {
	ID        string          `json:"id"`
	Channel   Channel         `json:"channel"`
	Direction Direction       `json:"direction"`
	From      ContactRef      `json:"from"`
	To        ContactRef      `json:"to"`
	Content   Content         `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Status    Status          `json:"status,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Trace     *Trace          `json:"trace,omitempty"`
	Errors    []DeliveryError `json:"errors,omitempty"`
}

// Recipient is the looser contact contract accepted at the outbox boundary:
// only the address is mandatory; kind and route are hints for the downstream
// delivery adapter.
type Recipient struct {
	ID      string  `json:"id"`
	Kind    Channel `json:"kind,omitempty"`
	Display string  `json:"display,omitempty"`
	Route   *Route  `json:"route,omitempty"`
}

// Outbound is a validated outbox candidate, ready for id assignment and
// publication.
type Outbound struct {
	To       Recipient      `json:"to"`
	Content  Content        `json:"content"`
	Channel  Channel        `json:"channel,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ValidChannel reports whether c is in the closed channel set.
func ValidChannel(c Channel) bool {
	for _, k := range Channels {
		if c == k {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is in the closed status set.
func ValidStatus(s Status) bool {
	for _, k := range Statuses {
		if s == k {
			return true
		}
	}
	return false
}

// ValidAdapter reports whether a is in the closed route adapter set.
func ValidAdapter(a RouteAdapter) bool {
	for _, k := range RouteAdapters {
		if a == k {
			return true
		}
	}
	return false
}
