package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_SendsToLocalConnectionsOnEveryTick(t *testing.T) {
	broker := memory.NewBroker()
	r := newTestRegistry(broker)
	conn := newFakeConn(sendOK)
	mustConnect(t, r, conn)
	shared := collect(t, broker)

	clock := clockwork.NewFakeClock()
	n := NewNotifier(r, clock, 10*time.Second, "Test notification")
	task := Go(context.Background(), "notifier", n.Run)
	defer task.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(10 * time.Second)
	assert.Eventually(t, func() bool { return len(conn.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(10 * time.Second)
	assert.Eventually(t, func() bool { return len(conn.Sent()) == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"Test notification", "Test notification"}, conn.Sent())
	assert.Empty(t, shared(), "notifications stay local")
}

func TestNotifier_SkipsWhenNoConnections(t *testing.T) {
	r := newTestRegistry(memory.NewBroker())
	clock := clockwork.NewFakeClock()
	n := NewNotifier(r, clock, time.Second, "Test notification")
	task := Go(context.Background(), "notifier", n.Run)
	defer task.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, testutil.ToFloat64(r.metrics.Deliveries))
}

func TestNotifier_DisabledWithZeroInterval(t *testing.T) {
	n := NewNotifier(newTestRegistry(memory.NewBroker()), clockwork.NewFakeClock(), 0, "Test notification")

	assert.NoError(t, n.Run(context.Background()))
}

func TestNotifier_StopsOnCancel(t *testing.T) {
	n := NewNotifier(newTestRegistry(memory.NewBroker()), clockwork.NewFakeClock(), time.Second, "x")
	task := Go(context.Background(), "notifier", n.Run)

	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop")
	}
	assert.NoError(t, task.Err())
}
