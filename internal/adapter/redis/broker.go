package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pscheid92/fanout/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

var _ domain.Broker = (*Broker)(nil)

// Broker keeps the global membership set and the broadcast channel in Redis.
type Broker struct {
	rdb           *goredis.Client
	membershipKey string
	channel       string
}

func NewBroker(rdb *goredis.Client, membershipKey, channel string) *Broker {
	return &Broker{rdb: rdb, membershipKey: membershipKey, channel: channel}
}

func (b *Broker) AddMember(ctx context.Context, id domain.ConnectionID) error {
	if err := b.rdb.SAdd(ctx, b.membershipKey, id.String()).Err(); err != nil {
		return unavailable("sadd", err)
	}
	return nil
}

func (b *Broker) RemoveMember(ctx context.Context, id domain.ConnectionID) error {
	if err := b.rdb.SRem(ctx, b.membershipKey, id.String()).Err(); err != nil {
		return unavailable("srem", err)
	}
	return nil
}

func (b *Broker) Members(ctx context.Context) ([]domain.ConnectionID, error) {
	members, err := b.rdb.SMembers(ctx, b.membershipKey).Result()
	if err != nil {
		return nil, unavailable("smembers", err)
	}

	ids := make([]domain.ConnectionID, 0, len(members))
	for _, m := range members {
		ids = append(ids, domain.ConnectionID(m))
	}
	return ids, nil
}

// Clear flushes the whole database, not only the membership key. Stragglers held by
// other instances disappear from the set as well.
func (b *Broker) Clear(ctx context.Context) error {
	if err := b.rdb.FlushDB(ctx).Err(); err != nil {
		return unavailable("flushdb", err)
	}
	return nil
}

func (b *Broker) Publish(ctx context.Context, message string) error {
	if err := b.rdb.Publish(ctx, b.channel, message).Err(); err != nil {
		return unavailable("publish", err)
	}
	return nil
}

func (b *Broker) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Subscribe opens a Pub/Sub connection and waits for Redis to confirm the subscription,
// so a message published after Subscribe returns is never missed.
func (b *Broker) Subscribe(ctx context.Context) (domain.Subscription, error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, unavailable("subscribe "+b.channel, err)
	}
	return &subscription{sub: sub}, nil
}

type subscription struct {
	sub       *goredis.PubSub
	closeOnce sync.Once
	closeErr  error
}

func (s *subscription) Receive(ctx context.Context) (string, error) {
	msg, err := s.sub.ReceiveMessage(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", unavailable("receive", err)
	}
	return msg.Payload, nil
}

// Close is idempotent. Closing unblocks a pending Receive.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.sub.Close()
	})
	return s.closeErr
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("redis %s: %w", op, err)
	}
	return fmt.Errorf("%w: redis %s: %w", domain.ErrBrokerUnavailable, op, err)
}
