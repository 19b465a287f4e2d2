package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pscheid92/fanout/internal/domain"
)

// subscriptionBuffer is how many undelivered messages a subscriber may lag behind
// before new messages are dropped for it.
const subscriptionBuffer = 256

var _ domain.Broker = (*Broker)(nil)

// Broker provides the shared membership set and broadcast channel for instances
// living in the same process. Safe for concurrent use.
type Broker struct {
	mu      sync.Mutex
	members map[domain.ConnectionID]struct{}
	subs    map[*subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		members: make(map[domain.ConnectionID]struct{}),
		subs:    make(map[*subscription]struct{}),
	}
}

func (b *Broker) AddMember(_ context.Context, id domain.ConnectionID) error {
	b.mu.Lock()
	b.members[id] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *Broker) RemoveMember(_ context.Context, id domain.ConnectionID) error {
	b.mu.Lock()
	delete(b.members, id)
	b.mu.Unlock()
	return nil
}

func (b *Broker) Members(_ context.Context) ([]domain.ConnectionID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]domain.ConnectionID, 0, len(b.members))
	for id := range b.members {
		ids = append(ids, id)
	}
	return ids, nil
}

// Clear drops the membership set. Open subscriptions are unaffected, as with FLUSHDB.
func (b *Broker) Clear(_ context.Context) error {
	b.mu.Lock()
	clear(b.members)
	b.mu.Unlock()
	return nil
}

// Publish hands message to every open subscription. A subscriber whose buffer is full
// misses the message.
func (b *Broker) Publish(_ context.Context, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.messages <- message:
		default:
			slog.Warn("Memory broker subscriber lagging, message dropped")
		}
	}
	return nil
}

func (b *Broker) Ping(_ context.Context) error {
	return nil
}

// Subscribe registers a subscription synchronously; messages published after it
// returns are delivered.
func (b *Broker) Subscribe(ctx context.Context) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{
		broker:   b,
		messages: make(chan string, subscriptionBuffer),
		done:     make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) unsubscribe(sub *subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

type subscription struct {
	broker    *Broker
	messages  chan string
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", domain.ErrBrokerUnavailable
	case msg := <-s.messages:
		return msg, nil
	}
}

// Close is idempotent and unblocks a pending Receive.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.broker.unsubscribe(s)
		close(s.done)
	})
	return nil
}
