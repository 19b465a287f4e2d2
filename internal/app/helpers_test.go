package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pscheid92/fanout/internal/adapter/memory"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const testSendTimeout = 50 * time.Millisecond

var errSendFailed = errors.New("send failed")

// fakeConn is an in-process domain.Conn. Inbound text is fed through Push.
type fakeConn struct {
	mode sendMode

	mu   sync.Mutex
	sent []string

	inbound   chan string
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

type sendMode int

const (
	sendOK sendMode = iota
	sendFail
	sendBlock
)

func newFakeConn(mode sendMode) *fakeConn {
	return &fakeConn{
		mode:    mode,
		inbound: make(chan string, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, text string) error {
	switch c.mode {
	case sendFail:
		return errSendFailed
	case sendBlock:
		<-ctx.Done()
		return ctx.Err()
	}
	c.mu.Lock()
	c.sent = append(c.sent, text)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.closed:
		return "", domain.ErrConnectionClosed
	case text := <-c.inbound:
		return text, nil
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Push(text string) { c.inbound <- text }

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) Closes() int { return int(c.closes.Load()) }

// faultyBroker wraps the memory broker and fails selected operations.
type faultyBroker struct {
	*memory.Broker
	addErr     error
	membersErr error
	publishErr error

	// beforeAdd runs inside AddMember before the member is written.
	beforeAdd func()
}

func (b *faultyBroker) AddMember(ctx context.Context, id domain.ConnectionID) error {
	if b.beforeAdd != nil {
		b.beforeAdd()
	}
	if b.addErr != nil {
		return b.addErr
	}
	return b.Broker.AddMember(ctx, id)
}

func (b *faultyBroker) Members(ctx context.Context) ([]domain.ConnectionID, error) {
	if b.membersErr != nil {
		return nil, b.membersErr
	}
	return b.Broker.Members(ctx)
}

func (b *faultyBroker) Publish(ctx context.Context, message string) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	return b.Broker.Publish(ctx, message)
}

func newTestMetrics() *metrics.RelayMetrics {
	return metrics.NewRelayMetrics(prometheus.NewRegistry())
}

func newTestRegistry(broker domain.Broker) *Registry {
	return NewRegistry(broker, testSendTimeout, newTestMetrics())
}

func mustConnect(t *testing.T, r *Registry, conn domain.Conn) domain.ConnectionID {
	t.Helper()
	id, err := r.Connect(context.Background(), conn)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return id
}

// collect subscribes to broker and gathers every message until the test ends.
func collect(t *testing.T, broker domain.Subscriber) func() []string {
	t.Helper()

	sub, err := broker.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	var (
		mu   sync.Mutex
		msgs []string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := sub.Receive(context.Background())
			if err != nil {
				return
			}
			mu.Lock()
			msgs = append(msgs, msg)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = sub.Close()
		<-done
	})

	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, len(msgs))
		copy(out, msgs)
		return out
	}
}
