package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Notifier periodically sends a fixed text to this instance's connections.
// It never goes through the shared channel.
type Notifier struct {
	registry *Registry
	clock    clockwork.Clock
	interval time.Duration
	text     string
}

func NewNotifier(registry *Registry, clock clockwork.Clock, interval time.Duration, text string) *Notifier {
	return &Notifier{registry: registry, clock: clock, interval: interval, text: text}
}

// Run blocks until ctx is cancelled. A non-positive interval disables the notifier.
func (n *Notifier) Run(ctx context.Context) error {
	if n.interval <= 0 {
		return nil
	}

	ticker := n.clock.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if n.registry.Count() == 0 {
				continue
			}
			delivered := n.registry.BroadcastLocal(ctx, n.text)
			slog.DebugContext(ctx, "Sent notification", "delivered", delivered)
		}
	}
}
