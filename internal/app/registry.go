package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/logging"
)

// brokerOpTimeout bounds cleanup calls that must not inherit a cancelled request context.
const brokerOpTimeout = 2 * time.Second

// Registry is the only component that touches the local connection table and the
// global membership set.
type Registry struct {
	broker      domain.Broker
	sendTimeout time.Duration
	metrics     *metrics.RelayMetrics

	// mu guards conns and serializes the running check in Connect against BeginDrain.
	mu        sync.Mutex
	conns     map[domain.ConnectionID]domain.Conn
	lifecycle domain.Lifecycle
}

func NewRegistry(broker domain.Broker, sendTimeout time.Duration, m *metrics.RelayMetrics) *Registry {
	return &Registry{
		broker:      broker,
		sendTimeout: sendTimeout,
		metrics:     m,
		conns:       make(map[domain.ConnectionID]domain.Conn),
	}
}

// Connect registers conn under a fresh identity. It fails with domain.ErrShuttingDown
// once drain has begun. If the shared set cannot be updated the local entry is rolled
// back and the broker error is returned.
func (r *Registry) Connect(ctx context.Context, conn domain.Conn) (domain.ConnectionID, error) {
	r.mu.Lock()
	if !r.lifecycle.Running() {
		r.mu.Unlock()
		r.metrics.RejectedConnections.WithLabelValues("shutting_down").Inc()
		return "", domain.ErrShuttingDown
	}
	id := domain.NewConnectionID()
	for r.conns[id] != nil {
		id = domain.NewConnectionID()
	}
	r.conns[id] = conn
	r.metrics.ActiveConnections.Inc()
	r.mu.Unlock()

	if err := r.broker.AddMember(ctx, id); err != nil {
		r.forget(id)
		r.metrics.RejectedConnections.WithLabelValues("broker").Inc()
		return "", fmt.Errorf("failed to register connection %s: %w", id, err)
	}

	// a forced drain may have released id and cleared the set while AddMember was in flight
	r.mu.Lock()
	_, stillLocal := r.conns[id]
	r.mu.Unlock()
	if !stillLocal {
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), brokerOpTimeout)
		defer cancel()
		if err := r.broker.RemoveMember(removeCtx, id); err != nil {
			slog.WarnContext(removeCtx, "Failed to remove connection from membership set", "error", err)
		}
		r.metrics.RejectedConnections.WithLabelValues("shutting_down").Inc()
		return "", domain.ErrShuttingDown
	}

	return id, nil
}

// forget drops id from the local table without touching the broker or the handle.
func (r *Registry) forget(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		delete(r.conns, id)
		r.metrics.ActiveConnections.Dec()
	}
}

// Disconnect removes id locally and from the shared set and closes its handle.
// Unknown ids are ignored, so calling it twice is harmless.
func (r *Registry) Disconnect(ctx context.Context, id domain.ConnectionID) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.release(ctx, id, conn)
}

// DisconnectAll force-closes every local connection and returns how many there were.
func (r *Registry) DisconnectAll(ctx context.Context) int {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[domain.ConnectionID]domain.Conn)
	r.mu.Unlock()

	for id, conn := range conns {
		r.release(ctx, id, conn)
	}
	return len(conns)
}

func (r *Registry) release(ctx context.Context, id domain.ConnectionID, conn domain.Conn) {
	ctx, cancel := context.WithTimeout(logging.WithConnection(context.WithoutCancel(ctx), id), brokerOpTimeout)
	defer cancel()

	if err := r.broker.RemoveMember(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to remove connection from membership set", "error", err)
	}
	if err := conn.Close(); err != nil {
		slog.DebugContext(ctx, "Closing connection failed", "error", err)
	}
	r.metrics.ActiveConnections.Dec()
}

// BroadcastLocal sends message to every local connection concurrently, each send bounded
// by the send timeout. Failed sends are dropped. It returns once every send has finished
// or timed out, reporting the number of successful deliveries.
func (r *Registry) BroadcastLocal(ctx context.Context, message string) int {
	r.mu.Lock()
	targets := make(map[domain.ConnectionID]domain.Conn, len(r.conns))
	for id, conn := range r.conns {
		targets[id] = conn
	}
	r.mu.Unlock()

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for id, conn := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(logging.WithConnection(ctx, id), r.sendTimeout)
			defer cancel()

			if err := conn.Send(sendCtx, message); err != nil {
				r.metrics.SendFailures.Inc()
				slog.DebugContext(sendCtx, "Dropped message for connection", "error", err)
				return
			}
			delivered.Add(1)
		}()
	}
	wg.Wait()

	n := int(delivered.Load())
	r.metrics.Deliveries.Add(float64(n))
	return n
}

// PublishGlobal puts message on the shared channel. Every instance, this one included,
// delivers it through its relay.
func (r *Registry) PublishGlobal(ctx context.Context, message string) error {
	if err := r.broker.Publish(ctx, message); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	r.metrics.MessagesPublished.Inc()
	return nil
}

// Members reads the shared membership set across all instances.
func (r *Registry) Members(ctx context.Context) ([]domain.ConnectionID, error) {
	members, err := r.broker.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read membership: %w", err)
	}
	return members, nil
}

// ClearShared drops all shared broker state.
func (r *Registry) ClearShared(ctx context.Context) error {
	if err := r.broker.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear shared state: %w", err)
	}
	return nil
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *Registry) IDs() []domain.ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]domain.ConnectionID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// BeginDrain moves the lifecycle to draining. No Connect succeeds afterwards.
func (r *Registry) BeginDrain() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lifecycle.BeginDrain()
}

func (r *Registry) Lifecycle() *domain.Lifecycle {
	return &r.lifecycle
}
