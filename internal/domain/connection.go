package domain

import (
	"context"

	"github.com/google/uuid"
)

// ConnectionID identifies one client connection across all instances.
// It is generated at accept time and never reused while registered.
type ConnectionID string

// NewConnectionID returns a fresh random identity.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

func (id ConnectionID) String() string { return string(id) }

// Conn is a duplex text connection held by this instance.
//
// Send must honour ctx cancellation and deadlines. Receive blocks until the next
// inbound text frame and returns ErrConnectionClosed (possibly wrapped) once the peer
// is gone. Close is safe to call more than once.
type Conn interface {
	Send(ctx context.Context, text string) error
	Receive(ctx context.Context) (string, error)
	Close() error
}
