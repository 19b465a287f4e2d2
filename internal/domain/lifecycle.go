package domain

import "sync/atomic"

// ShutdownState is the process-wide lifecycle of an instance.
type ShutdownState int32

const (
	StateRunning ShutdownState = iota
	StateDraining
	StateTerminated
)

func (s ShutdownState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Lifecycle holds the monotonic running -> draining -> terminated transition.
// The zero value is running.
type Lifecycle struct {
	state atomic.Int32
}

func (l *Lifecycle) State() ShutdownState {
	return ShutdownState(l.state.Load())
}

func (l *Lifecycle) Running() bool {
	return l.State() == StateRunning
}

// BeginDrain moves running to draining. It reports false if drain already started.
func (l *Lifecycle) BeginDrain() bool {
	return l.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
}

// Terminate moves draining to terminated. It reports false from any other state.
func (l *Lifecycle) Terminate() bool {
	return l.state.CompareAndSwap(int32(StateDraining), int32(StateTerminated))
}
