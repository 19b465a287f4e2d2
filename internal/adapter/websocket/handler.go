package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

const (
	reasonShuttingDown = "Server is shutting down"
	reasonAtCapacity   = "Server at capacity"
	reasonBroker       = "Broker unavailable"
)

// SessionServer runs a registered connection until the client goes away.
type SessionServer interface {
	Serve(ctx context.Context, conn domain.Conn) error
}

// Handler upgrades HTTP requests to WebSocket connections and hands them to the session loop.
type Handler struct {
	upgrader websocket.Upgrader
	sessions SessionServer
	limiter  *ConnectionLimiter
	metrics  *metrics.RelayMetrics
	clock    clockwork.Clock
}

func NewHandler(sessions SessionServer, limiter *ConnectionLimiter, checkOrigin func(*http.Request) bool, m *metrics.RelayMetrics, clock clockwork.Clock) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		sessions: sessions,
		limiter:  limiter,
		metrics:  m,
		clock:    clock,
	}
}

// ServeHTTP always upgrades before rejecting, so refused clients get a close code
// instead of a bare HTTP error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn := NewConn(ws, h.clock)

	if !h.limiter.Acquire() {
		h.metrics.RejectedConnections.WithLabelValues("capacity").Inc()
		slog.Warn("WebSocket connection rejected, instance at capacity", "remote_addr", r.RemoteAddr)
		_ = conn.CloseWithReason(closeStatus(domain.ErrAtCapacity))
		return
	}
	defer h.limiter.Release()

	err = h.sessions.Serve(r.Context(), conn)
	if err != nil && !errors.Is(err, domain.ErrShuttingDown) {
		slog.Debug("WebSocket session ended with error", "remote_addr", r.RemoteAddr, "error", err)
	}
	_ = conn.CloseWithReason(closeStatus(err))
}

func closeStatus(err error) (int, string) {
	switch {
	case err == nil:
		return websocket.CloseNormalClosure, ""
	case errors.Is(err, domain.ErrShuttingDown):
		return websocket.ClosePolicyViolation, reasonShuttingDown
	case errors.Is(err, domain.ErrAtCapacity):
		return websocket.CloseTryAgainLater, reasonAtCapacity
	case errors.Is(err, domain.ErrBrokerUnavailable):
		return websocket.CloseInternalServerErr, reasonBroker
	default:
		return websocket.CloseInternalServerErr, ""
	}
}
