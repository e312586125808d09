package domain

import "time"

// InboundEvent is a raw communication event as it arrives from an intake
// channel, before any canonical validation. Channel and SenderID are opaque
// pass-through strings at this boundary; full validation happens at the
// outbox.
type InboundEvent struct {
	Channel   string
	ChatID    string
	SenderID  string
	Text      string
	Timestamp time.Time
	Metadata  map[string]string
}

// OutboundEvent is a composed reply routed back to the intake channel that
// owns the conversation.
type OutboundEvent struct {
	Channel string
	ChatID  string
	Text    string
	Intent  string
}

// MessageBus routes events between intake channels and the triage gateway.
type MessageBus interface {
	Publish(msg InboundEvent)
	Subscribe() <-chan InboundEvent
	SendOutbound(msg OutboundEvent)
	OnOutbound(channelName string, handler func(OutboundEvent))
	Close()
}
