package ports

import (
	"context"
	"time"
)

// AuthenticatedEvent is emitted after a wallet has been verified on a connection
type AuthenticatedEvent struct {
	SessionID string    `json:"session_id"`
	Wallet    string    `json:"wallet"`
	Energies  int       `json:"energies"`
	At        time.Time `json:"at"`
}

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishAuthenticated(ctx context.Context, event AuthenticatedEvent) error
}
