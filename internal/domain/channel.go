package domain

import "context"

// IntakeChannel is the interface for user-facing message intake (Web, CLI).
type IntakeChannel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
