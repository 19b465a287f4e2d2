package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
)

// taskStopGrace bounds how long termination waits for drain tasks to release resources.
const taskStopGrace = 2 * time.Second

// ShutdownStatus is the text broadcast on every drain poll.
func ShutdownStatus(remaining time.Duration) string {
	return fmt.Sprintf("Server is shutting down in %d seconds", int(max(remaining, 0)/time.Second))
}

type CoordinatorConfig struct {
	DrainTimeout time.Duration
	PollInterval time.Duration
	Clock        clockwork.Clock
	// Exit terminates the process. Defaults to os.Exit.
	Exit func(code int)
}

// Coordinator runs the drain protocol once per process: stop accepting, broadcast the
// remaining time, wait for the shared membership set to empty, force-close what is left
// at the deadline, then exit.
type Coordinator struct {
	registry *Registry
	metrics  *metrics.RelayMetrics
	clock    clockwork.Clock
	timeout  time.Duration
	interval time.Duration
	exit     func(code int)

	started atomic.Bool
	done    chan struct{}

	mu           sync.Mutex
	nonEssential []*Task
	drainTasks   []*Task
}

func NewCoordinator(registry *Registry, cfg CoordinatorConfig, m *metrics.RelayMetrics) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	return &Coordinator{
		registry: registry,
		metrics:  m,
		clock:    cfg.Clock,
		timeout:  cfg.DrainTimeout,
		interval: cfg.PollInterval,
		exit:     cfg.Exit,
		done:     make(chan struct{}),
	}
}

// AddNonEssential registers a task that is cancelled as soon as drain begins.
func (c *Coordinator) AddNonEssential(t *Task) {
	c.mu.Lock()
	c.nonEssential = append(c.nonEssential, t)
	c.mu.Unlock()
}

// AddDrainTask registers a task that keeps running through drain and is stopped just
// before exit.
func (c *Coordinator) AddDrainTask(t *Task) {
	c.mu.Lock()
	c.drainTasks = append(c.drainTasks, t)
	c.mu.Unlock()
}

// Done is closed once shutdown has finished, right before the exit function runs.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Shutdown drains and terminates the process. Only the first call does anything; later
// calls return immediately.
func (c *Coordinator) Shutdown(reason string) {
	if !c.started.CompareAndSwap(false, true) {
		slog.Debug("Shutdown already in progress", "reason", reason)
		return
	}

	start := c.clock.Now()
	deadline := start.Add(c.timeout)
	slog.Info("Shutdown started", "reason", reason, "drain_timeout", c.timeout)

	c.registry.BeginDrain()

	c.mu.Lock()
	nonEssential := c.nonEssential
	drainTasks := c.drainTasks
	c.mu.Unlock()

	for _, t := range nonEssential {
		t.Cancel()
	}

	forced := c.drain(deadline)

	c.stopTasks(drainTasks)
	c.registry.Lifecycle().Terminate()

	elapsed := c.clock.Since(start)
	c.metrics.DrainDuration.Observe(elapsed.Seconds())
	slog.Info("Shutdown complete", "forced", forced, "elapsed", elapsed)

	close(c.done)
	c.exit(0)
}

// drain polls until the shared set is empty or the deadline passes. It reports whether
// connections had to be force-closed.
func (c *Coordinator) drain(deadline time.Time) bool {
	for {
		remaining := deadline.Sub(c.clock.Now())

		count, err := c.memberCount()
		if err != nil {
			slog.Warn("Drain: reading membership failed, treating as not drained", "error", err)
		}

		if err := c.publish(ShutdownStatus(remaining)); err != nil {
			slog.Warn("Drain: status broadcast failed", "error", err)
		}

		if remaining <= 0 {
			c.force()
			return true
		}
		if err == nil && count == 0 {
			slog.Info("Drain: all connections gone")
			return false
		}

		slog.Info("Drain: waiting for connections", "remaining_members", count, "remaining", remaining)
		c.clock.Sleep(min(c.interval, remaining))
	}
}

func (c *Coordinator) force() {
	ctx, cancel := context.WithTimeout(context.Background(), brokerOpTimeout)
	defer cancel()

	n := c.registry.DisconnectAll(ctx)
	c.metrics.ForcedDisconnects.Add(float64(n))
	slog.Warn("Drain deadline passed, forced disconnect", "connections", n)

	if err := c.registry.ClearShared(ctx); err != nil {
		slog.Error("Failed to clear shared state", "error", err)
	}
}

func (c *Coordinator) memberCount() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), brokerOpTimeout)
	defer cancel()

	members, err := c.registry.Members(ctx)
	return len(members), err
}

func (c *Coordinator) publish(message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), brokerOpTimeout)
	defer cancel()
	return c.registry.PublishGlobal(ctx, message)
}

func (c *Coordinator) stopTasks(tasks []*Task) {
	if len(tasks) == 0 {
		return
	}
	for _, t := range tasks {
		t.Cancel()
	}

	grace := c.clock.After(taskStopGrace)
	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-grace:
			slog.Warn("Task did not stop in time", "task", t.Name())
			return
		}
	}
}
