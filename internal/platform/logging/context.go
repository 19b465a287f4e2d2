package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pscheid92/fanout/internal/domain"
)

type connectionKey struct{}

// WithConnection returns a context whose log records carry the connection id.
func WithConnection(ctx context.Context, id domain.ConnectionID) context.Context {
	return context.WithValue(ctx, connectionKey{}, id)
}

// Connection extracts the connection id from ctx, returning ("", false) if not present.
func Connection(ctx context.Context) (domain.ConnectionID, bool) {
	id, ok := ctx.Value(connectionKey{}).(domain.ConnectionID)
	return id, ok && id != ""
}

// ContextHandler wraps an existing slog.Handler to automatically inject a
// "connection_id" attribute when the context carries one.
type ContextHandler struct {
	inner slog.Handler
}

func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := Connection(ctx); ok {
		r.AddAttrs(slog.String("connection_id", id.String()))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("context handler: %w", err)
	}
	return nil
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
