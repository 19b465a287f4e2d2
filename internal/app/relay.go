package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

// RelayState tracks a relay through idle -> subscribed -> closing -> closed.
type RelayState int32

const (
	RelayIdle RelayState = iota
	RelaySubscribed
	RelayClosing
	RelayClosed
)

func (s RelayState) String() string {
	switch s {
	case RelayIdle:
		return "idle"
	case RelaySubscribed:
		return "subscribed"
	case RelayClosing:
		return "closing"
	case RelayClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errRelayStarted = errors.New("relay already started")

// Relay delivers every message on the shared channel to this instance's connections.
// A Relay runs once.
type Relay struct {
	subscriber domain.Subscriber
	registry   *Registry
	metrics    *metrics.RelayMetrics
	state      atomic.Int32
}

func NewRelay(subscriber domain.Subscriber, registry *Registry, m *metrics.RelayMetrics) *Relay {
	return &Relay{subscriber: subscriber, registry: registry, metrics: m}
}

func (r *Relay) State() RelayState {
	return RelayState(r.state.Load())
}

// Run subscribes and relays until ctx is cancelled (returns nil) or the broker fails
// (returns the error). There is no retry. The subscription is closed on every exit path,
// and cancelling ctx closes it at once so a blocked receive returns.
func (r *Relay) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(RelayIdle), int32(RelaySubscribed)) {
		return errRelayStarted
	}

	sub, err := r.subscriber.Subscribe(ctx)
	if err != nil {
		r.state.Store(int32(RelayClosed))
		if ctx.Err() != nil {
			return nil
		}
		slog.Error("Relay failed to subscribe", "error", err)
		return fmt.Errorf("relay subscribe: %w", err)
	}
	slog.Info("Relay subscribed")

	stop := context.AfterFunc(ctx, func() {
		r.state.CompareAndSwap(int32(RelaySubscribed), int32(RelayClosing))
		_ = sub.Close()
	})
	defer func() {
		stop()
		r.state.Store(int32(RelayClosing))
		if err := sub.Close(); err != nil {
			slog.Debug("Relay subscription close failed", "error", err)
		}
		r.state.Store(int32(RelayClosed))
	}()

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Relay stopped")
				return nil
			}
			slog.Error("Relay lost its subscription", "error", err)
			return fmt.Errorf("relay receive: %w", err)
		}

		r.metrics.MessagesRelayed.Inc()
		delivered := r.registry.BroadcastLocal(ctx, msg)
		slog.Debug("Relayed message", "delivered", delivered)
	}
}
