package domain

import (
	"context"
)

// MembershipStore is the shared set of connection identities across all instances.
// It is only used as a liveness signal and never dereferenced back to a handle.
type MembershipStore interface {
	AddMember(ctx context.Context, id ConnectionID) error
	RemoveMember(ctx context.Context, id ConnectionID) error
	Members(ctx context.Context) ([]ConnectionID, error)
	// Clear drops all shared state held by the broker.
	Clear(ctx context.Context) error
}

// Publisher publishes a broadcast message to the shared channel.
type Publisher interface {
	Publish(ctx context.Context, message string) error
}

// Subscription is a lazy, cancellable sequence of messages from the shared channel.
type Subscription interface {
	// Receive blocks until the next message arrives, ctx is done, or the broker fails.
	Receive(ctx context.Context) (string, error)
	Close() error
}

// Subscriber opens subscriptions on the shared channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Broker bundles everything the relay needs from the shared broker.
type Broker interface {
	MembershipStore
	Publisher
	Subscriber
	Ping(ctx context.Context) error
}
