package domain

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecycle_ZeroValueIsRunning(t *testing.T) {
	var l Lifecycle
	assert.Equal(t, StateRunning, l.State())
	assert.True(t, l.Running())
}

func TestLifecycle_TransitionsAreMonotonic(t *testing.T) {
	var l Lifecycle

	assert.False(t, l.Terminate(), "cannot terminate without draining")
	assert.True(t, l.BeginDrain())
	assert.False(t, l.BeginDrain())
	assert.False(t, l.Running())
	assert.Equal(t, StateDraining, l.State())

	assert.True(t, l.Terminate())
	assert.False(t, l.Terminate())
	assert.False(t, l.BeginDrain())
	assert.Equal(t, StateTerminated, l.State())
}

func TestLifecycle_BeginDrainWinsOnce(t *testing.T) {
	var l Lifecycle
	var wins atomic.Int32

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.BeginDrain() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestShutdownState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "unknown", ShutdownState(9).String())
}

func TestNewConnectionID(t *testing.T) {
	a, b := NewConnectionID(), NewConnectionID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 36)
}
