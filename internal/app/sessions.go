package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/logging"
)

const echoPrefix = "Message text was: "

// Rewrap turns client text into the message broadcast to everyone.
func Rewrap(text string) string {
	return echoPrefix + text
}

// Sessions runs the receive loop of client connections.
type Sessions struct {
	registry *Registry
}

func NewSessions(registry *Registry) *Sessions {
	return &Sessions{registry: registry}
}

// Serve registers conn, publishes everything it sends and unregisters it when it goes
// away. Registration errors are returned as is (domain.ErrShuttingDown during drain) and
// conn is left open for the caller to close with a reason.
func (s *Sessions) Serve(ctx context.Context, conn domain.Conn) error {
	id, err := s.registry.Connect(ctx, conn)
	if err != nil {
		return err
	}

	ctx = logging.WithConnection(ctx, id)
	defer s.registry.Disconnect(ctx, id)
	slog.InfoContext(ctx, "Client connected")

	for {
		text, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrConnectionClosed) || ctx.Err() != nil {
				slog.InfoContext(ctx, "Client disconnected")
				return nil
			}
			slog.WarnContext(ctx, "Receive failed, dropping client", "error", err)
			return fmt.Errorf("receive from %s: %w", id, err)
		}

		if err := s.registry.PublishGlobal(ctx, Rewrap(text)); err != nil {
			slog.WarnContext(ctx, "Failed to publish client message", "error", err)
		}
	}
}
