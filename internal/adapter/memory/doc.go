// Package memory implements domain.Broker in process memory. It backs single-instance
// mode (BROKER=memory) and lets several in-process registries share one broker in tests.
package memory
